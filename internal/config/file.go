package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/psylog/internal/flagx"
	"github.com/dmitrijs2005/psylog/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is a DTO used exclusively for file unmarshalling. Pointer and
// nil-slice fields distinguish "absent" from "zero" so a partial file only
// overrides what it names.
type FileConfig struct {
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	StoreDir     string `json:"store_dir" yaml:"store_dir"`
	BackupsDir   string `json:"backups_dir" yaml:"backups_dir"`
	ExportDir    string `json:"export_dir" yaml:"export_dir"`
	AudioDir     string `json:"audio_dir" yaml:"audio_dir"`
	PhotoDir     string `json:"photo_dir" yaml:"photo_dir"`
	SnapshotPath string `json:"snapshot_path" yaml:"snapshot_path"`
	StoreBackend string `json:"store_backend" yaml:"store_backend"`

	MaxBackups         *int            `json:"max_backups" yaml:"max_backups"`
	AutoBackupInterval *timex.Duration `json:"auto_backup_interval" yaml:"auto_backup_interval"`
	PromptDebounce     *timex.Duration `json:"prompt_debounce" yaml:"prompt_debounce"`
	Iterations         *int            `json:"pbkdf2_iterations" yaml:"pbkdf2_iterations"`
	AudioExtensions    []string        `json:"audio_extensions" yaml:"audio_extensions"`
	MaxEntrySize       *int64          `json:"max_entry_size" yaml:"max_entry_size"`

	LogLevel    string  `json:"log_level" yaml:"log_level"`
	LogFormat   string  `json:"log_format" yaml:"log_format"`
	MetricsAddr *string `json:"metrics_addr" yaml:"metrics_addr"`
}

// parseFile overlays cfg with the config file named by -c/-config in args.
// No flag means no file.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *FileConfig) apply(cfg *Config) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.StoreDir, fc.StoreDir)
	setString(&cfg.BackupsDir, fc.BackupsDir)
	setString(&cfg.ExportDir, fc.ExportDir)
	setString(&cfg.AudioDir, fc.AudioDir)
	setString(&cfg.PhotoDir, fc.PhotoDir)
	setString(&cfg.SnapshotPath, fc.SnapshotPath)
	setString(&cfg.StoreBackend, fc.StoreBackend)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)

	if fc.MaxBackups != nil {
		cfg.MaxBackups = *fc.MaxBackups
	}
	if fc.AutoBackupInterval != nil {
		cfg.AutoBackupInterval = fc.AutoBackupInterval.Duration
	}
	if fc.PromptDebounce != nil {
		cfg.PromptDebounce = fc.PromptDebounce.Duration
	}
	if fc.Iterations != nil {
		cfg.Iterations = *fc.Iterations
	}
	if fc.AudioExtensions != nil {
		cfg.AudioExtensions = fc.AudioExtensions
	}
	if fc.MaxEntrySize != nil {
		cfg.MaxEntrySize = *fc.MaxEntrySize
	}
	if fc.MetricsAddr != nil {
		cfg.MetricsAddr = *fc.MetricsAddr
	}
}

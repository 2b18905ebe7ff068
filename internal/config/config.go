package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/psylog/internal/cryptox"
	"github.com/dmitrijs2005/psylog/internal/securestore"
)

// Config holds runtime settings for the psylog host.
type Config struct {
	DataDir      string `validate:"required"`
	StoreDir     string `validate:"required"`
	BackupsDir   string `validate:"required"`
	ExportDir    string `validate:"required"`
	AudioDir     string `validate:"required,nefield=PhotoDir"`
	PhotoDir     string `validate:"required"`
	SnapshotPath string

	StoreBackend string `validate:"oneof=sqlite badger"`

	MaxBackups         int           `validate:"min=1,max=1000"`
	AutoBackupInterval time.Duration `validate:"min=1m"`
	PromptDebounce     time.Duration `validate:"min=0"`
	Iterations         int           `validate:"min=120000"`
	AudioExtensions    []string      `validate:"min=1,dive,startswith=."`
	MaxEntrySize       int64         `validate:"min=1"`

	LogLevel    string `validate:"oneof=debug info warn error"`
	LogFormat   string `validate:"oneof=text json"`
	MetricsAddr string `validate:"omitempty,hostname_port"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = defaultDataDir()
	c.StoreBackend = securestore.BackendSQLite
	c.MaxBackups = 7
	c.AutoBackupInterval = 12 * time.Hour
	c.PromptDebounce = 800 * time.Millisecond
	c.Iterations = cryptox.MinIterations
	c.AudioExtensions = []string{".m4a"}
	c.MaxEntrySize = 512 << 20
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.MetricsAddr = "127.0.0.1:9464"
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "psylog")
	}
	return ".psylog"
}

// deriveDirs fills directories that were not set explicitly.
func (c *Config) deriveDirs() {
	derive := func(p *string, name string) {
		if *p == "" {
			*p = filepath.Join(c.DataDir, name)
		}
	}
	derive(&c.StoreDir, "store")
	derive(&c.BackupsDir, "backups")
	derive(&c.ExportDir, "exports")
	derive(&c.AudioDir, "audio_notes")
	derive(&c.PhotoDir, "entry_photos")
}

// Load constructs a Config from defaults, the optional config file and the
// flags found in args. Later sources take precedence over earlier ones.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	cfg.deriveDirs()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks c against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

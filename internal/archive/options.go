package archive

import (
	"github.com/dmitrijs2005/psylog/internal/cryptox"
	"github.com/dmitrijs2005/psylog/internal/rotation"
)

const (
	DefaultMaxEntrySize   int64 = 512 << 20
	DefaultMaxPayloadSize int64 = 2 << 30
)

// Options locates the directories the engine works with and bounds its work.
type Options struct {
	BackupsDir string
	ExportDir  string
	// An empty AudioDir or PhotoDir means no media of that kind: nothing is
	// backed up and restored entries are skipped with a warning.
	AudioDir string
	PhotoDir string

	MaxBackups int
	Iterations int
	// AudioExtensions lists the audio files included in backups, with dot.
	AudioExtensions []string
	// MaxEntrySize caps any single restored entry.
	MaxEntrySize int64
	// MaxPayloadSize caps the encrypted payload, which is held in memory.
	MaxPayloadSize int64
}

func (o Options) withDefaults() Options {
	if o.MaxBackups < 1 {
		o.MaxBackups = rotation.DefaultKeep
	}
	if o.Iterations < cryptox.MinIterations {
		o.Iterations = cryptox.MinIterations
	}
	if len(o.AudioExtensions) == 0 {
		o.AudioExtensions = []string{".m4a"}
	}
	if o.MaxEntrySize <= 0 {
		o.MaxEntrySize = DefaultMaxEntrySize
	}
	if o.MaxPayloadSize <= 0 {
		o.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if o.ExportDir == "" {
		o.ExportDir = o.BackupsDir
	}
	return o
}

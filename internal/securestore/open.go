package securestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/cryptox"
	"github.com/dmitrijs2005/psylog/internal/filex"
	"github.com/dmitrijs2005/psylog/internal/logging"
)

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"

	keyFileName    = "device.key"
	sqliteFileName = "store.db"
	badgerDirName  = "store.badger"
)

// Options selects where and how the store lives on disk.
type Options struct {
	Dir     string
	Backend string
	Logger  logging.Logger
}

// LoadOrCreateDeviceKey reads the device key from dir, generating and
// atomically writing a new random key on first use.
func LoadOrCreateDeviceKey(dir string) ([]byte, error) {
	path := filepath.Join(dir, keyFileName)

	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != cryptox.KeySize {
			return nil, fmt.Errorf("%w: device key %s is corrupt", common.ErrStorage, path)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: read device key: %v", common.ErrStorage, err)
	}

	key = common.GenerateRandByteArray(cryptox.KeySize)
	err = filex.WriteAtomic(path, 0o600, func(w io.Writer) error {
		_, err := w.Write(key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: write device key: %v", common.ErrStorage, err)
	}
	return key, nil
}

// Open creates the data directory, loads the device key and opens the
// configured backend.
func Open(ctx context.Context, opts Options) (*Store, error) {
	dir, err := filex.EnsureDir(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	key, err := LoadOrCreateDeviceKey(dir)
	if err != nil {
		return nil, err
	}

	var backend Backend
	switch opts.Backend {
	case "", BackendSQLite:
		backend, err = OpenSQLite(ctx, filepath.Join(dir, sqliteFileName))
	case BackendBadger:
		backend, err = OpenBadger(BadgerConfig{Path: filepath.Join(dir, badgerDirName), Logger: opts.Logger})
	default:
		err = fmt.Errorf("unknown backend %q", opts.Backend)
	}
	if err != nil {
		common.WipeByteArray(key)
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	return New(backend, key)
}

// OpenMemory returns a store on a private in-memory SQLite database with a
// random key. Nothing survives Close.
func OpenMemory(ctx context.Context) (*Store, error) {
	backend, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return New(backend, common.GenerateRandByteArray(cryptox.KeySize))
}

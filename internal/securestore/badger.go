package securestore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dmitrijs2005/psylog/internal/logging"
)

// BadgerConfig configures the embedded badger backend.
type BadgerConfig struct {
	// Path is the database directory; ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool
	// Logger receives badger's internal messages; nil silences them.
	Logger logging.Logger
}

// badgerLogger adapts logging.Logger to badger.Logger.
type badgerLogger struct {
	log logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

// BadgerBackend stores sealed values in a badger database.
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens a badger database with synchronous writes and a single
// retained version per key.
func OpenBadger(cfg BadgerConfig) (*BadgerBackend, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{log: cfg.Logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kv[%s]: %w", key, err)
	}
	return value, nil
}

func (b *BadgerBackend) Put(_ context.Context, entries map[string][]byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for k, v := range entries {
			if err := txn.Set([]byte(k), v); err != nil {
				return fmt.Errorf("kv[%s]: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put kv: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Delete(_ context.Context, keys ...string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return fmt.Errorf("kv[%s]: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete kv: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

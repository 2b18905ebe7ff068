// Package watch keeps the cached snapshot in step with the snapshot file the
// host's data layer writes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/psylog/internal/logging"
	"github.com/dmitrijs2005/psylog/internal/snapshot"
	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long the file must be quiet before it is read.
const DefaultSettle = 200 * time.Millisecond

// Cacher stores a snapshot for later unattended backups.
type Cacher interface {
	CacheSnapshot(ctx context.Context, text []byte) error
}

// SnapshotWatcher watches one file and caches its content after each burst
// of writes. The parent directory is watched so editors and atomic renames
// that replace the file are seen too.
type SnapshotWatcher struct {
	path   string
	cache  Cacher
	log    logging.Logger
	settle time.Duration

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}
}

type Option func(*SnapshotWatcher)

func WithSettle(d time.Duration) Option {
	return func(w *SnapshotWatcher) { w.settle = d }
}

func New(path string, cache Cacher, log logging.Logger, opts ...Option) (*SnapshotWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &SnapshotWatcher{
		path:    abs,
		cache:   cache,
		log:     log.With("component", "snapshot-watcher", "path", abs),
		settle:  DefaultSettle,
		watcher: fw,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Refresh reads the file and caches it if it holds a valid snapshot.
func (w *SnapshotWatcher) Refresh(ctx context.Context) error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if err := snapshot.Validate(data); err != nil {
		return err
	}
	if err := w.cache.CacheSnapshot(ctx, data); err != nil {
		return err
	}
	w.log.Debug(ctx, "snapshot cached", "bytes", len(data))
	return nil
}

// Run caches the current file, then watches until ctx is cancelled or Stop
// is called.
func (w *SnapshotWatcher) Run(ctx context.Context) error {
	defer w.Stop()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	if err := w.Refresh(ctx); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.log.Warn(ctx, "initial snapshot not cached", "error", err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.settle)
			} else {
				timer.Reset(w.settle)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.Refresh(ctx); err != nil {
				w.log.Warn(ctx, "snapshot not cached", "error", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn(ctx, "watcher error", "error", err)
		}
	}
}

// Stop ends Run and releases the watcher. Safe to call more than once.
func (w *SnapshotWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

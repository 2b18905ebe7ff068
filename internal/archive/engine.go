package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/filex"
	"github.com/dmitrijs2005/psylog/internal/logging"
	"github.com/dmitrijs2005/psylog/internal/rotation"
	"github.com/dmitrijs2005/psylog/internal/securestore"
	"github.com/dmitrijs2005/psylog/internal/timex"
	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/semaphore"
)

// Observer is told about finished operations.
type Observer interface {
	BackupFinished(kind string, err error, sizeBytes int64)
	RestoreFinished(err error, audios, photos int)
}

type nopObserver struct{}

func (nopObserver) BackupFinished(string, error, int64) {}
func (nopObserver) RestoreFinished(error, int, int)     {}

// Engine runs builds, restores and exports. At most one of them runs at a
// time; a concurrent request fails with common.ErrBusy.
type Engine struct {
	opts     Options
	store    *securestore.Store
	log      logging.Logger
	now      timex.Clock
	sem      *semaphore.Weighted
	rotation *rotation.Manager
	observer Observer
}

type Option func(*Engine)

func WithClock(now timex.Clock) Option {
	return func(e *Engine) { e.now = now }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

func NewEngine(opts Options, store *securestore.Store, log logging.Logger, options ...Option) *Engine {
	opts = opts.withDefaults()
	log = log.With("component", "archive")
	e := &Engine{
		opts:     opts,
		store:    store,
		log:      log,
		now:      time.Now,
		sem:      semaphore.NewWeighted(1),
		rotation: rotation.New(opts.BackupsDir, opts.MaxBackups, IsBackupName, log),
		observer: nopObserver{},
	}
	for _, o := range options {
		o(e)
	}
	return e
}

func (e *Engine) acquire(op string) (func(), error) {
	if !e.sem.TryAcquire(1) {
		return nil, fmt.Errorf("%s: %w", op, common.ErrBusy)
	}
	return func() { e.sem.Release(1) }, nil
}

// BuildOutcome is delivered by BuildAsync.
type BuildOutcome struct {
	Result *BuildResult
	Err    error
}

// BuildAsync runs Build on its own goroutine. The channel yields one outcome.
func (e *Engine) BuildAsync(ctx context.Context, req BuildRequest) <-chan BuildOutcome {
	ch := make(chan BuildOutcome, 1)
	go func() {
		defer close(ch)
		res, err := e.Build(ctx, req)
		ch <- BuildOutcome{Result: res, Err: err}
	}()
	return ch
}

// RestoreOutcome is delivered by RestoreAsync.
type RestoreOutcome struct {
	Result *RestoreResult
	Err    error
}

func (e *Engine) RestoreAsync(ctx context.Context, path string, password []byte) <-chan RestoreOutcome {
	ch := make(chan RestoreOutcome, 1)
	go func() {
		defer close(ch)
		res, err := e.Restore(ctx, path, password)
		ch <- RestoreOutcome{Result: res, Err: err}
	}()
	return ch
}

// ListBackups returns the archives in the backups directory, newest first.
func (e *Engine) ListBackups() ([]Record, error) {
	entries, err := os.ReadDir(e.opts.BackupsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list backups: %w", err)
	}

	var out []Record
	for _, de := range entries {
		if !de.Type().IsRegular() || !IsBackupName(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(e.opts.BackupsDir, de.Name())
		r := Record{
			Filename:  de.Name(),
			Path:      path,
			CreatedAt: info.ModTime(),
			SizeBytes: info.Size(),
			Kind:      KindManual,
		}
		if zr, err := zip.OpenReader(path); err == nil {
			r.Kind, r.Encrypted = parseComment(zr.Comment)
			_ = zr.Close()
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Filename > out[j].Filename
	})
	return out, nil
}

// DeleteBackup removes one archive by file name.
func (e *Engine) DeleteBackup(ctx context.Context, name string) error {
	release, err := e.acquire("delete backup")
	if err != nil {
		return err
	}
	defer release()

	if name != filepath.Base(name) || !IsBackupName(name) {
		return fmt.Errorf("%w: %q is not a backup name", common.ErrValidation, name)
	}
	path := filepath.Join(e.opts.BackupsDir, name)
	if !filex.IsWithin(e.opts.BackupsDir, path) {
		return fmt.Errorf("%w: %q is outside the backups directory", common.ErrValidation, name)
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", name, common.ErrNotFound)
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	e.log.Info(ctx, "backup deleted", "name", name)
	return nil
}

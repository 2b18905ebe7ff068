// Package app wires the psylog components together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/psylog/internal/archive"
	"github.com/dmitrijs2005/psylog/internal/biometric"
	"github.com/dmitrijs2005/psylog/internal/config"
	"github.com/dmitrijs2005/psylog/internal/lock"
	"github.com/dmitrijs2005/psylog/internal/logging"
	"github.com/dmitrijs2005/psylog/internal/metrics"
	"github.com/dmitrijs2005/psylog/internal/scheduler"
	"github.com/dmitrijs2005/psylog/internal/securestore"
	"github.com/dmitrijs2005/psylog/internal/watch"
	"golang.org/x/sync/errgroup"
)

type App struct {
	Config  *config.Config
	Log     logging.Logger
	Store   *securestore.Store
	Policy  *lock.Policy
	Gate    *biometric.Gate
	Engine  *archive.Engine
	Metrics *metrics.Metrics
}

// New opens the secure store and builds every component on top of it. The
// lock state is initialised before New returns.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	store, err := securestore.Open(ctx, securestore.Options{
		Dir:     cfg.StoreDir,
		Backend: cfg.StoreBackend,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return NewWithStore(ctx, cfg, store, log)
}

// NewWithStore is New for an already opened store, which the App then owns.
func NewWithStore(ctx context.Context, cfg *config.Config, store *securestore.Store, log logging.Logger) (*App, error) {
	m := metrics.New()
	policy := lock.NewPolicy(store, log)
	gate := biometric.NewGate(m.CountUnlocks(policy), log,
		biometric.WithDebounce(cfg.PromptDebounce),
		biometric.WithObserver(m),
	)
	engine := archive.NewEngine(archive.Options{
		BackupsDir:      cfg.BackupsDir,
		ExportDir:       cfg.ExportDir,
		AudioDir:        cfg.AudioDir,
		PhotoDir:        cfg.PhotoDir,
		MaxBackups:      cfg.MaxBackups,
		Iterations:      cfg.Iterations,
		AudioExtensions: cfg.AudioExtensions,
		MaxEntrySize:    cfg.MaxEntrySize,
	}, store, log, archive.WithObserver(m))

	if _, err := policy.Initialize(ctx); err != nil {
		log.Warn(ctx, "lock state could not be read, starting locked", "error", err)
	}

	return &App{
		Config:  cfg,
		Log:     log,
		Store:   store,
		Policy:  policy,
		Gate:    gate,
		Engine:  engine,
		Metrics: m,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// SnapshotProvider reads the configured snapshot file. With no file
// configured it returns nil, so builds fall back to the cached snapshot.
func (a *App) SnapshotProvider() archive.SnapshotProvider {
	path := a.Config.SnapshotPath
	if path == "" {
		return nil
	}
	return func(context.Context) ([]byte, error) {
		return os.ReadFile(path)
	}
}

// RunDaemon runs the backup scheduler, the snapshot watcher and the metrics
// endpoint until ctx is cancelled or one of them fails.
func (a *App) RunDaemon(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	sched := scheduler.New(a.Engine, a.Config.AutoBackupInterval, a.Log)
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})

	if a.Config.SnapshotPath != "" {
		w, err := watch.New(a.Config.SnapshotPath, a.Engine, a.Log)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	if a.Config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.Metrics.Handler())
		srv := &http.Server{Addr: a.Config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			a.Log.Info(ctx, "metrics endpoint listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.Log.Info(ctx, "daemon started", "interval", a.Config.AutoBackupInterval.String())
	return g.Wait()
}

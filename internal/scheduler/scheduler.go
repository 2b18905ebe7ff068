// Package scheduler runs unattended backups on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/psylog/internal/archive"
	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/logging"
	"github.com/dmitrijs2005/psylog/internal/timex"
)

// Backuper is the part of archive.Engine the scheduler drives.
type Backuper interface {
	Build(ctx context.Context, req archive.BuildRequest) (*archive.BuildResult, error)
	LastBackup(ctx context.Context) (*archive.Record, error)
}

type Scheduler struct {
	backups      Backuper
	interval     time.Duration
	includeMedia bool
	log          logging.Logger
	now          timex.Clock
}

type Option func(*Scheduler)

func WithClock(now timex.Clock) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithoutMedia limits automatic backups to the structured data.
func WithoutMedia() Option {
	return func(s *Scheduler) { s.includeMedia = false }
}

func New(b Backuper, interval time.Duration, log logging.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		backups:      b,
		interval:     interval,
		includeMedia: true,
		log:          log.With("component", "scheduler"),
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Due reports whether a backup is owed: there is none yet, or the last one
// is at least one interval old.
func (s *Scheduler) Due(ctx context.Context) bool {
	last, err := s.backups.LastBackup(ctx)
	if err != nil {
		s.log.Warn(ctx, "cannot read last backup, treating as due", "error", err)
		return true
	}
	return last == nil || s.now().Sub(last.CreatedAt) >= s.interval
}

// RunOnce builds one automatic backup from the cached snapshot. A build that
// loses the race with a manual one is skipped quietly.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	res, err := s.backups.Build(ctx, archive.BuildRequest{
		IncludeMedia: s.includeMedia,
		Kind:         archive.KindAuto,
	})
	switch {
	case errors.Is(err, common.ErrBusy):
		s.log.Info(ctx, "automatic backup skipped, another operation is running")
		return err
	case err != nil:
		s.log.Error(ctx, "automatic backup failed", "error", err)
		return err
	}
	s.log.Info(ctx, "automatic backup done", "name", res.Record.Filename, "removed", len(res.Removed))
	return nil
}

// Run catches up on a missed backup, then backs up every interval until ctx
// is cancelled. Failures are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Due(ctx) {
		_ = s.RunOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

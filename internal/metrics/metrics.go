// Package metrics exposes backup, restore and unlock counters in the
// Prometheus format.
package metrics

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/psylog/internal/lock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "psylog"

// Metrics implements archive.Observer and biometric.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Labels: kind (auto, manual), status (success, error)
	backups *prometheus.CounterVec
	// backupBytes tracks archive sizes. Labels: kind
	backupBytes *prometheus.HistogramVec
	// Labels: status
	restores *prometheus.CounterVec
	// Labels: media (audio, photo)
	restoredFiles *prometheus.CounterVec
	// Labels: outcome (success, error, cancelled, skipped)
	prompts *prometheus.CounterVec
	// Labels: method
	unlocks *prometheus.CounterVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		backups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "builds_total",
			Help:      "Backup archives built, by kind and status",
		}, []string{"kind", "status"}),
		backupBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "size_bytes",
			Help:      "Size of written backup archives",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 10),
		}, []string{"kind"}),
		restores: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "restores_total",
			Help:      "Restore attempts, by status",
		}, []string{"status"}),
		restoredFiles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "restored_files_total",
			Help:      "Media files written by restores",
		}, []string{"media"}),
		prompts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "prompts_total",
			Help:      "Authentication prompts, by outcome",
		}, []string{"outcome"}),
		unlocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "unlocks_total",
			Help:      "Successful unlocks, by method",
		}, []string{"method"}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) BackupFinished(kind string, err error, size int64) {
	m.backups.WithLabelValues(kind, status(err)).Inc()
	if err == nil {
		m.backupBytes.WithLabelValues(kind).Observe(float64(size))
	}
}

func (m *Metrics) RestoreFinished(err error, audios, photos int) {
	m.restores.WithLabelValues(status(err)).Inc()
	m.restoredFiles.WithLabelValues("audio").Add(float64(audios))
	m.restoredFiles.WithLabelValues("photo").Add(float64(photos))
}

func (m *Metrics) PromptResolved(kind string) {
	m.prompts.WithLabelValues(kind).Inc()
}

// UnlockRecorder is the lock-side dependency wrapped by CountUnlocks.
type UnlockRecorder interface {
	RecordUnlock(ctx context.Context, method lock.Method) error
}

type countingRecorder struct {
	next UnlockRecorder
	m    *Metrics
}

func (r countingRecorder) RecordUnlock(ctx context.Context, method lock.Method) error {
	if err := r.next.RecordUnlock(ctx, method); err != nil {
		return err
	}
	r.m.unlocks.WithLabelValues(string(method)).Inc()
	return nil
}

// CountUnlocks wraps next so every successful unlock is counted.
func (m *Metrics) CountUnlocks(next UnlockRecorder) UnlockRecorder {
	return countingRecorder{next: next, m: m}
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

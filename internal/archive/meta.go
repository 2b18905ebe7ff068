package archive

import (
	"context"
	"fmt"
	"time"
)

const (
	keyLastTimestamp = "backup.last.timestamp"
	keyLastPath      = "backup.last.path"
	keyLastFilename  = "backup.last.filename"
	keyLastKind      = "backup.last.kind"
	keyLastSize      = "backup.last.size"
	keyLastEncrypted = "backup.last.encrypted"

	keySnapshotCache = "snapshot.cache"
)

func (e *Engine) saveLastBackup(ctx context.Context, r Record) error {
	return e.store.Batch().
		SetLong(keyLastTimestamp, r.CreatedAt.UnixMilli()).
		SetString(keyLastPath, r.Path).
		SetString(keyLastFilename, r.Filename).
		SetString(keyLastKind, string(r.Kind)).
		SetLong(keyLastSize, r.SizeBytes).
		SetBool(keyLastEncrypted, r.Encrypted).
		Commit(ctx)
}

// LastBackup returns the metadata persisted by the most recent successful
// build, or nil if there never was one.
func (e *Engine) LastBackup(ctx context.Context) (*Record, error) {
	ts, ok, err := e.store.GetLong(ctx, keyLastTimestamp)
	if err != nil {
		return nil, fmt.Errorf("last backup: %w", err)
	}
	if !ok || ts <= 0 {
		return nil, nil
	}
	path, okPath, err := e.store.GetString(ctx, keyLastPath)
	if err != nil {
		return nil, fmt.Errorf("last backup: %w", err)
	}
	name, okName, err := e.store.GetString(ctx, keyLastFilename)
	if err != nil {
		return nil, fmt.Errorf("last backup: %w", err)
	}
	if !okPath || !okName {
		return nil, nil
	}
	kind, _, err := e.store.GetString(ctx, keyLastKind)
	if err != nil {
		return nil, fmt.Errorf("last backup: %w", err)
	}
	size, _, err := e.store.GetLong(ctx, keyLastSize)
	if err != nil {
		return nil, fmt.Errorf("last backup: %w", err)
	}
	encrypted, _, err := e.store.GetBool(ctx, keyLastEncrypted)
	if err != nil {
		return nil, fmt.Errorf("last backup: %w", err)
	}

	return &Record{
		Filename:  name,
		Path:      path,
		CreatedAt: time.UnixMilli(ts),
		SizeBytes: size,
		Kind:      ParseKind(kind),
		Encrypted: encrypted,
	}, nil
}

// CacheSnapshot stores text as the snapshot used by builds that are not
// handed a fresh one.
func (e *Engine) CacheSnapshot(ctx context.Context, text []byte) error {
	if err := e.store.SetString(ctx, keySnapshotCache, string(text)); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	return nil
}

// CachedSnapshot returns the cached snapshot, if any.
func (e *Engine) CachedSnapshot(ctx context.Context) ([]byte, bool, error) {
	s, ok, err := e.store.GetString(ctx, keySnapshotCache)
	if err != nil || !ok {
		return nil, false, err
	}
	return []byte(s), true, nil
}

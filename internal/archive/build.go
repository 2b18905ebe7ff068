package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/psylog/internal/filex"
	"github.com/dmitrijs2005/psylog/internal/snapshot"
)

// SnapshotProvider returns the current structured data as JSON text.
type SnapshotProvider func(ctx context.Context) ([]byte, error)

// StaticSnapshot returns a provider for fixed text.
func StaticSnapshot(text []byte) SnapshotProvider {
	return func(context.Context) ([]byte, error) { return text, nil }
}

type BuildRequest struct {
	// Snapshot may be nil; the cached snapshot is used then, and also when
	// the provider fails or returns blank text.
	Snapshot     SnapshotProvider
	IncludeMedia bool
	// Password encrypts the archive when non-empty.
	Password []byte
	Kind     Kind
}

type BuildResult struct {
	Record Record
	// Warnings lists skipped media files and snapshot fallbacks.
	Warnings []string
	// Removed lists archives deleted by rotation.
	Removed []string
}

// Build writes one backup archive. Nothing is visible under the final name
// until the archive is complete. On success the archive is recorded as the
// last backup, a freshly supplied snapshot becomes the cached one, and old
// archives are rotated out.
func (e *Engine) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	release, err := e.acquire("build")
	if err != nil {
		return nil, err
	}
	defer release()

	if req.Kind == "" {
		req.Kind = KindManual
	}
	res, err := e.build(ctx, req)
	size := int64(0)
	if res != nil {
		size = res.Record.SizeBytes
	}
	e.observer.BackupFinished(string(req.Kind), err, size)
	if err != nil {
		e.log.Error(ctx, "backup failed", "kind", req.Kind, "error", err)
	}
	return res, err
}

func (e *Engine) build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	dir, err := filex.EnsureDir(e.opts.BackupsDir)
	if err != nil {
		return nil, fmt.Errorf("backups dir: %w", err)
	}

	now := e.now()
	data, fresh, warnings := e.resolveSnapshot(ctx, req.Snapshot, now)

	b := bundle{snapshot: data}
	if s, err := snapshot.DecodeJSON(data); err != nil {
		warnings = append(warnings, fmt.Sprintf("%s skipped: %v", EntryCSV, err))
	} else {
		b.csv = snapshot.EncodeCSV(s)
	}

	if req.IncludeMedia {
		media, err := e.collectMedia()
		if err != nil {
			return nil, err
		}
		b.media = media
	}

	encrypted := len(req.Password) > 0
	path := uniquePath(dir, backupPrefix, now)
	err = filex.WriteAtomic(path, 0o600, func(w io.Writer) error {
		ws, err := writeArchive(ctx, w, b, req.Password, e.opts.Iterations, comment(req.Kind, encrypted), now, e.log)
		warnings = append(warnings, ws...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", filepath.Base(path), err)
	}

	rec := Record{
		Filename:  filepath.Base(path),
		Path:      path,
		CreatedAt: now,
		Kind:      req.Kind,
		Encrypted: encrypted,
	}
	if info, err := os.Stat(path); err == nil {
		rec.SizeBytes = info.Size()
		rec.CreatedAt = info.ModTime()
	}

	if err := e.saveLastBackup(ctx, rec); err != nil {
		e.log.Error(ctx, "failed to save last backup metadata", "error", err)
	}
	if fresh {
		if err := e.CacheSnapshot(ctx, data); err != nil {
			e.log.Error(ctx, "failed to cache snapshot", "error", err)
		}
	}

	removed, err := e.rotation.Prune(ctx, path)
	if err != nil {
		e.log.Warn(ctx, "rotation failed", "error", err)
	}

	e.log.Info(ctx, "backup created", "name", rec.Filename, "kind", rec.Kind,
		"encrypted", encrypted, "size", rec.SizeBytes, "warnings", len(warnings))
	return &BuildResult{Record: rec, Warnings: warnings, Removed: removed}, nil
}

// resolveSnapshot picks the snapshot to archive: the provider's text, else
// the cached snapshot, else a placeholder noting that none was available.
func (e *Engine) resolveSnapshot(ctx context.Context, p SnapshotProvider, now time.Time) (data []byte, fresh bool, warnings []string) {
	if p != nil {
		text, err := p(ctx)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("snapshot provider failed, using cached snapshot: %v", err))
			e.log.Warn(ctx, "snapshot provider failed", "error", err)
		case len(bytes.TrimSpace(text)) > 0:
			return text, true, nil
		}
	}

	cached, ok, err := e.CachedSnapshot(ctx)
	if err != nil {
		e.log.Warn(ctx, "cached snapshot unavailable", "error", err)
	}
	if ok && len(bytes.TrimSpace(cached)) > 0 {
		return cached, false, warnings
	}

	warnings = append(warnings, "no snapshot available, wrote placeholder")
	placeholder, _ := json.Marshal(map[string]any{
		"timestamp": now.UnixMilli(),
		"version":   "1.0",
		"note":      "snapshot unavailable, placeholder written",
	})
	return placeholder, false, warnings
}

func (e *Engine) collectMedia() ([]mediaFile, error) {
	audios, err := listMedia(e.opts.AudioDir, audioPrefix, extensionFilter(e.opts.AudioExtensions))
	if err != nil {
		return nil, err
	}
	photos, err := listMedia(e.opts.PhotoDir, photoPrefix, anyFile)
	if err != nil {
		return nil, err
	}
	return append(audios, photos...), nil
}

// ExportAudio writes the audio notes to a share-ready zip in the export
// directory, encrypted when password is non-empty, and returns its path.
func (e *Engine) ExportAudio(ctx context.Context, password []byte) (string, error) {
	audios, err := listMedia(e.opts.AudioDir, audioPrefix, extensionFilter(e.opts.AudioExtensions))
	if err != nil {
		return "", err
	}
	prefix := "audios_"
	if len(password) > 0 {
		prefix = "audios_encrypted_"
	}
	return e.export(ctx, prefix, bundle{media: audios}, password)
}

// ExportPhotos writes the photos to a share-ready zip in the export directory.
func (e *Engine) ExportPhotos(ctx context.Context) (string, error) {
	photos, err := listMedia(e.opts.PhotoDir, photoPrefix, anyFile)
	if err != nil {
		return "", err
	}
	return e.export(ctx, "photos_", bundle{media: photos}, nil)
}

func (e *Engine) export(ctx context.Context, prefix string, b bundle, password []byte) (string, error) {
	release, err := e.acquire("export")
	if err != nil {
		return "", err
	}
	defer release()

	dir, err := filex.EnsureDir(e.opts.ExportDir)
	if err != nil {
		return "", fmt.Errorf("export dir: %w", err)
	}
	now := e.now()
	path := uniquePath(dir, prefix, now)
	err = filex.WriteAtomic(path, 0o600, func(w io.Writer) error {
		_, err := writeArchive(ctx, w, b, password, e.opts.Iterations, "", now, e.log)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	e.log.Info(ctx, "export created", "name", filepath.Base(path), "files", len(b.media))
	return path, nil
}

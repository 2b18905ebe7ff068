package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/cryptox"
	"github.com/klauspost/compress/zip"
)

const maxMetadataSize = 64 << 10

// RestoreResult is returned by Restore whether or not it succeeded. Message
// is always safe to show to the user.
type RestoreResult struct {
	Success bool
	// PasswordRequired is set when the archive is encrypted and no password
	// was given; retry with one.
	PasswordRequired bool
	Encrypted        bool
	SnapshotText     []byte
	RestoredAudios   int
	RestoredPhotos   int
	Warnings         []string
	Message          string
}

// Restore extracts an archive into staging directories and, once every entry
// has been read, swaps them in for the live audio and photo directories. The
// restored snapshot text is returned for the host's data layer and becomes
// the cached snapshot. Live data is untouched on any failure.
func (e *Engine) Restore(ctx context.Context, path string, password []byte) (*RestoreResult, error) {
	release, err := e.acquire("restore")
	if err != nil {
		return &RestoreResult{Message: common.Classify(err)}, err
	}
	defer release()

	res := &RestoreResult{}
	err = e.restore(ctx, path, password, res)
	res.Success = err == nil
	if err != nil {
		res.Message = common.Classify(err)
		res.PasswordRequired = errors.Is(err, common.ErrPasswordRequired)
		if !res.PasswordRequired {
			e.log.Error(ctx, "restore failed", "path", path, "error", err)
		}
	} else {
		res.Message = fmt.Sprintf("restore succeeded (%d audios, %d photos)", res.RestoredAudios, res.RestoredPhotos)
		e.log.Info(ctx, "backup restored", "path", path, "audios", res.RestoredAudios, "photos", res.RestoredPhotos)
	}
	e.observer.RestoreFinished(err, res.RestoredAudios, res.RestoredPhotos)
	return res, err
}

func (e *Engine) restore(ctx context.Context, path string, password []byte, res *RestoreResult) error {
	p, err := e.openPayload(path, password)
	if p != nil {
		res.Encrypted = p.encrypted
		defer p.Close()
	}
	if err != nil {
		return err
	}

	st, err := newStaging(e.opts.AudioDir, e.opts.PhotoDir)
	if err != nil {
		return err
	}
	defer st.cleanup()

	ex, err := e.extract(ctx, p.reader, st)
	res.Warnings = ex.warnings
	if err != nil {
		return err
	}

	if err := st.commit(); err != nil {
		return fmt.Errorf("%w: replace media directories: %v", common.ErrMediaIO, err)
	}

	res.SnapshotText = ex.snapshot
	res.RestoredAudios = len(ex.audios)
	res.RestoredPhotos = len(ex.photos)

	if err := e.CacheSnapshot(ctx, ex.snapshot); err != nil {
		e.log.Error(ctx, "failed to cache restored snapshot", "error", err)
	}
	return nil
}

// VerifyResult describes an archive checked without touching live data.
type VerifyResult struct {
	Encrypted     bool
	Audios        int
	Photos        int
	SnapshotBytes int
	Warnings      []string
}

// Verify reads and, if needed, decrypts an archive, checking every entry's
// checksum. Nothing is written.
func (e *Engine) Verify(ctx context.Context, path string, password []byte) (*VerifyResult, error) {
	p, err := e.openPayload(path, password)
	if p != nil {
		defer p.Close()
	}
	if err != nil {
		return nil, err
	}
	ex, err := e.extract(ctx, p.reader, discardSink{})
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		Encrypted:     p.encrypted,
		Audios:        len(ex.audios),
		Photos:        len(ex.photos),
		SnapshotBytes: len(ex.snapshot),
		Warnings:      ex.warnings,
	}, nil
}

// payload is the plain archive: the file itself, or the decrypted inner
// archive of an encrypted one.
type payload struct {
	reader    *zip.Reader
	encrypted bool
	closer    io.Closer
	plain     []byte
}

func (p *payload) Close() error {
	if p.plain != nil {
		common.WipeByteArray(p.plain)
	}
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

func findEntry(r *zip.Reader, name string) *zip.File {
	for _, f := range r.File {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", common.ErrArchiveFormat, f.Name, limit)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrArchiveFormat, f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", common.ErrArchiveFormat, f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", common.ErrArchiveFormat, f.Name, limit)
	}
	return data, nil
}

// openPayload opens path and, for an encrypted archive, decrypts data.enc.
// The returned payload, when non-nil, must be closed.
func (e *Engine) openPayload(path string, password []byte) (*payload, error) {
	// A reader returned alongside an error flags insecure entry names; those
	// entries are rejected one by one during extraction.
	rc, err := zip.OpenReader(path)
	if rc == nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, common.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrArchiveFormat, path, err)
	}

	meta := findEntry(&rc.Reader, EntryMetadata)
	sealed := findEntry(&rc.Reader, EntryPayload)
	if meta == nil || sealed == nil {
		return &payload{reader: &rc.Reader, closer: rc}, nil
	}

	p := &payload{encrypted: true}
	defer rc.Close()

	if len(password) == 0 {
		return p, common.ErrPasswordRequired
	}

	raw, err := readEntry(meta, maxMetadataSize)
	if err != nil {
		return p, err
	}
	var env cryptox.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return p, fmt.Errorf("%w: %s: %v", common.ErrArchiveFormat, EntryMetadata, err)
	}
	ciphertext, err := readEntry(sealed, e.opts.MaxPayloadSize)
	if err != nil {
		return p, err
	}
	plain, err := cryptox.DecryptWithPassword(password, env, ciphertext)
	if err != nil {
		return p, err
	}
	p.plain = plain

	inner, err := zip.NewReader(bytes.NewReader(plain), int64(len(plain)))
	if inner == nil {
		return p, fmt.Errorf("%w: inner archive: %v", common.ErrArchiveFormat, err)
	}
	p.reader = inner
	return p, nil
}

type mediaKind int

const (
	mediaAudio mediaKind = iota
	mediaPhoto
)

// sink receives extracted media files.
type sink interface {
	put(kind mediaKind, name string, r io.Reader, limit int64) error
}

type discardSink struct{}

func (discardSink) put(_ mediaKind, _ string, r io.Reader, limit int64) error {
	n, err := io.Copy(io.Discard, io.LimitReader(r, limit+1))
	if err != nil {
		return err
	}
	if n > limit {
		return fmt.Errorf("exceeds %d bytes", limit)
	}
	return nil
}

type extraction struct {
	snapshot []byte
	audios   map[string]struct{}
	photos   map[string]struct{}
	warnings []string
}

// extract walks every entry. Media failures become warnings; a missing or
// blank data.json, or an unreadable one, fails the whole extraction.
func (e *Engine) extract(ctx context.Context, zr *zip.Reader, dst sink) (*extraction, error) {
	ex := &extraction{audios: map[string]struct{}{}, photos: map[string]struct{}{}}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return ex, err
		}
		name := f.Name
		switch {
		case f.FileInfo().IsDir():
		case strings.EqualFold(name, EntrySnapshot):
			data, err := readEntry(f, e.opts.MaxEntrySize)
			if err != nil {
				return ex, err
			}
			ex.snapshot = data
		case strings.EqualFold(name, EntryCSV):
			// derived from data.json
		case strings.HasPrefix(name, audioPrefix):
			e.extractMedia(ctx, f, mediaAudio, strings.TrimPrefix(name, audioPrefix), dst, ex, ex.audios)
		case strings.HasPrefix(name, photoPrefix):
			e.extractMedia(ctx, f, mediaPhoto, strings.TrimPrefix(name, photoPrefix), dst, ex, ex.photos)
		default:
			e.log.Debug(ctx, "ignoring unknown archive entry", "entry", name)
		}
	}

	if len(bytes.TrimSpace(ex.snapshot)) == 0 {
		return ex, fmt.Errorf("%w: archive has no %s", common.ErrArchiveFormat, EntrySnapshot)
	}
	return ex, nil
}

func (e *Engine) extractMedia(ctx context.Context, f *zip.File, kind mediaKind, rel string, dst sink, ex *extraction, seen map[string]struct{}) {
	warn := func(msg string, args ...any) {
		w := fmt.Sprintf("%s: %s", f.Name, fmt.Sprintf(msg, args...))
		ex.warnings = append(ex.warnings, w)
		e.log.Warn(ctx, "skipping archive entry", "entry", f.Name, "reason", fmt.Sprintf(msg, args...))
	}

	name, ok := sanitizeEntryName(rel)
	if !ok {
		warn("rejected entry name")
		return
	}
	if f.UncompressedSize64 > uint64(e.opts.MaxEntrySize) {
		warn("exceeds %d bytes", e.opts.MaxEntrySize)
		return
	}

	rc, err := f.Open()
	if err != nil {
		warn("%v", err)
		return
	}
	defer rc.Close()

	if err := dst.put(kind, name, rc, e.opts.MaxEntrySize); err != nil {
		warn("%v", err)
		return
	}
	seen[name] = struct{}{}
}

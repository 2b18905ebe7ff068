package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/cryptox"
	"github.com/dmitrijs2005/psylog/internal/logging"
	"github.com/klauspost/compress/zip"
)

type mediaFile struct {
	entry string
	path  string
}

// bundle is the content of a plain archive. Nil snapshot or csv entries are
// left out, which is how media-only exports are written.
type bundle struct {
	snapshot []byte
	csv      []byte
	media    []mediaFile
}

// listMedia returns the regular files in dir accepted by keep, sorted by name,
// as entries under prefix. A missing dir yields nothing.
func listMedia(dir, prefix string, keep func(name string) bool) ([]mediaFile, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list %s: %v", common.ErrMediaIO, dir, err)
	}
	var out []mediaFile
	for _, e := range entries {
		if !e.Type().IsRegular() || !keep(e.Name()) {
			continue
		}
		out = append(out, mediaFile{entry: prefix + e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].entry < out[j].entry })
	return out, nil
}

func extensionFilter(exts []string) func(string) bool {
	return func(name string) bool {
		ext := strings.ToLower(filepath.Ext(name))
		for _, e := range exts {
			if strings.ToLower(e) == ext {
				return true
			}
		}
		return false
	}
}

func anyFile(string) bool { return true }

func writeEntry(zw *zip.Writer, name string, method uint16, data []byte, mod time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: mod})
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", common.ErrArchiveFormat, name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// addFile copies one media file. The source is opened before the entry is
// created so an unreadable file leaves no entry behind.
func addFile(zw *zip.Writer, m mediaFile) error {
	f, err := os.Open(m.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = m.entry
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// writeBundle writes b as a plain archive to w. Media files that cannot be
// read are skipped and reported as warnings; everything else is fatal.
func writeBundle(ctx context.Context, w io.Writer, b bundle, zipComment string, now time.Time, log logging.Logger) ([]string, error) {
	zw := zip.NewWriter(w)
	if zipComment != "" {
		if err := zw.SetComment(zipComment); err != nil {
			return nil, err
		}
	}

	if b.snapshot != nil {
		if err := writeEntry(zw, EntrySnapshot, zip.Deflate, b.snapshot, now); err != nil {
			return nil, err
		}
	}
	if b.csv != nil {
		if err := writeEntry(zw, EntryCSV, zip.Deflate, b.csv, now); err != nil {
			return nil, err
		}
	}

	var warnings []string
	for _, m := range b.media {
		if err := ctx.Err(); err != nil {
			return warnings, err
		}
		if err := addFile(zw, m); err != nil {
			log.Warn(ctx, "skipping media file", "entry", m.entry, "error", err)
			warnings = append(warnings, fmt.Sprintf("%s: %v", m.entry, fmt.Errorf("%w: %v", common.ErrMediaIO, err)))
		}
	}

	if err := zw.Close(); err != nil {
		return warnings, fmt.Errorf("finish archive: %w", err)
	}
	return warnings, nil
}

// writeEncrypted seals inner under a fresh envelope and writes the outer
// archive. metadata.json is indented JSON with hex salt and iv.
func writeEncrypted(w io.Writer, password []byte, iterations int, now time.Time, inner []byte, zipComment string) error {
	env := cryptox.NewEnvelope(iterations, now)
	sealed, err := cryptox.EncryptWithPassword(password, env, inner)
	if err != nil {
		return err
	}
	meta, err := env.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %v", common.ErrCrypto, err)
	}

	zw := zip.NewWriter(w)
	if zipComment != "" {
		if err := zw.SetComment(zipComment); err != nil {
			return err
		}
	}
	if err := writeEntry(zw, EntryMetadata, zip.Deflate, meta, now); err != nil {
		return err
	}
	if err := writeEntry(zw, EntryPayload, zip.Store, sealed, now); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

// writeArchive writes b plain, or nested and encrypted when password is set.
func writeArchive(ctx context.Context, w io.Writer, b bundle, password []byte, iterations int, zipComment string, now time.Time, log logging.Logger) ([]string, error) {
	if len(password) == 0 {
		return writeBundle(ctx, w, b, zipComment, now, log)
	}

	var inner bytes.Buffer
	warnings, err := writeBundle(ctx, &inner, b, "", now, log)
	if err != nil {
		return warnings, err
	}
	defer common.WipeByteArray(inner.Bytes())
	return warnings, writeEncrypted(w, password, iterations, now, inner.Bytes(), zipComment)
}

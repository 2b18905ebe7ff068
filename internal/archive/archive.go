// Package archive builds and restores backup archives.
//
// A plain archive is a zip holding data.json (the structured snapshot),
// data.csv (the tabular export), audios/<name> and photos/<name>. An
// encrypted archive is an outer zip holding metadata.json (the public
// envelope) and data.enc: the plain archive sealed with AES-256-GCM under a
// PBKDF2-SHA256 key, tag appended. The layout is a durable on-disk format.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	EntrySnapshot = "data.json"
	EntryCSV      = "data.csv"
	EntryMetadata = "metadata.json"
	EntryPayload  = "data.enc"

	audioPrefix = "audios/"
	photoPrefix = "photos/"

	backupPrefix    = "backup_"
	zipExt          = ".zip"
	timestampLayout = "2006-01-02_15-04-05"

	commentTag = "psylog"
)

// Kind tells scheduled backups from user-requested ones.
type Kind string

const (
	KindAuto   Kind = "auto"
	KindManual Kind = "manual"
)

func ParseKind(s string) Kind {
	if Kind(strings.ToLower(strings.TrimSpace(s))) == KindAuto {
		return KindAuto
	}
	return KindManual
}

// Record describes one archive on disk.
type Record struct {
	Filename  string
	Path      string
	CreatedAt time.Time
	SizeBytes int64
	Kind      Kind
	Encrypted bool
}

// IsBackupName reports whether name is a finished backup archive.
func IsBackupName(name string) bool {
	return strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, zipExt)
}

// uniquePath returns dir/<prefix><timestamp>.zip, adding a counter when a file
// with that name already exists.
func uniquePath(dir, prefix string, now time.Time) string {
	stamp := now.Format(timestampLayout)
	path := filepath.Join(dir, prefix+stamp+zipExt)
	for i := 2; ; i++ {
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s%s_%d%s", prefix, stamp, i, zipExt))
	}
}

// comment is stored as the zip archive comment so listings can report the
// kind without opening the payload.
func comment(kind Kind, encrypted bool) string {
	return fmt.Sprintf("%s kind=%s encrypted=%t", commentTag, kind, encrypted)
}

func parseComment(c string) (Kind, bool) {
	kind, encrypted := KindManual, false
	fields := strings.Fields(c)
	if len(fields) == 0 || fields[0] != commentTag {
		return kind, encrypted
	}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch k {
		case "kind":
			kind = ParseKind(v)
		case "encrypted":
			encrypted = v == "true"
		}
	}
	return kind, encrypted
}

// sanitizeEntryName reduces an archive entry name to a bare file name.
// Names containing ".." anywhere, or nothing usable, are rejected.
func sanitizeEntryName(raw string) (string, bool) {
	if strings.Contains(raw, "..") {
		return "", false
	}
	raw = strings.ReplaceAll(raw, `\`, "/")
	name := strings.TrimSpace(raw[strings.LastIndex(raw, "/")+1:])
	if name == "" || name == "." || strings.ContainsRune(name, 0) {
		return "", false
	}
	return name, true
}

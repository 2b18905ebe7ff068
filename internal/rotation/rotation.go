// Package rotation enforces the backup retention limit.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/psylog/internal/logging"
)

const DefaultKeep = 7

// Matcher selects the files rotation manages.
type Matcher func(name string) bool

// Prefixed matches names of the form <prefix>*<ext>, skipping temporaries.
func Prefixed(prefix, ext string) Matcher {
	return func(name string) bool {
		return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext)
	}
}

type Manager struct {
	dir   string
	keep  int
	match Matcher
	log   logging.Logger
}

func New(dir string, keep int, match Matcher, log logging.Logger) *Manager {
	if keep < 1 {
		keep = DefaultKeep
	}
	return &Manager{dir: dir, keep: keep, match: match, log: log.With("component", "rotation")}
}

type candidate struct {
	name    string
	modTime time.Time
}

// Prune deletes the oldest managed files beyond the retention count and
// returns the names it removed. current, the archive just written, is kept
// and counts toward the limit. Individual deletion failures are logged and
// skipped; only a failure to list the directory is returned.
func (m *Manager) Prune(ctx context.Context, current string) ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", m.dir, err)
	}

	current = filepath.Base(current)
	total := 0
	var others []candidate
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !m.match(name) {
			continue
		}
		total++
		if name == current {
			continue
		}
		info, err := e.Info()
		if err != nil {
			m.log.Warn(ctx, "skipping unreadable backup", "name", name, "error", err)
			continue
		}
		others = append(others, candidate{name: name, modTime: info.ModTime()})
	}

	excess := total - m.keep
	if excess <= 0 {
		return nil, nil
	}

	// oldest first; names embed the timestamp so they break mtime ties
	sort.Slice(others, func(i, j int) bool {
		if !others[i].modTime.Equal(others[j].modTime) {
			return others[i].modTime.Before(others[j].modTime)
		}
		return others[i].name < others[j].name
	})
	if excess > len(others) {
		excess = len(others)
	}

	var removed []string
	for _, c := range others[:excess] {
		if err := os.Remove(filepath.Join(m.dir, c.name)); err != nil {
			m.log.Warn(ctx, "failed to delete old backup", "name", c.name, "error", err)
			continue
		}
		m.log.Info(ctx, "deleted old backup", "name", c.name)
		removed = append(removed, c.name)
	}
	return removed, nil
}

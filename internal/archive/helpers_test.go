package archive

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/psylog/internal/cryptox"
	"github.com/dmitrijs2005/psylog/internal/logging"
	"github.com/dmitrijs2005/psylog/internal/securestore"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	engine *Engine
	opts   Options
	store  *securestore.Store
	clock  *testClock
	root   string
}

func newFixture(t *testing.T, tweak ...func(*Options)) *fixture {
	t.Helper()
	root := t.TempDir()
	opts := Options{
		BackupsDir: filepath.Join(root, "backups"),
		ExportDir:  filepath.Join(root, "exports"),
		AudioDir:   filepath.Join(root, "media", "audio_notes"),
		PhotoDir:   filepath.Join(root, "media", "entry_photos"),
		Iterations: cryptox.MinIterations,
	}
	for _, f := range tweak {
		f(&opts)
	}

	store, err := securestore.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &testClock{now: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)}
	e := NewEngine(opts, store, logging.Nop(), WithClock(clock.Now))
	return &fixture{engine: e, opts: e.opts, store: store, clock: clock, root: root}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	var out []string
	for _, f := range zr.File {
		out = append(out, f.Name)
	}
	sort.Strings(out)
	return out
}

type zipEntry struct {
	name string
	body string
}

func writeZip(t *testing.T, path string, entries ...zipEntry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

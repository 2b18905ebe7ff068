package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/psylog/internal/app"
	"github.com/dmitrijs2005/psylog/internal/config"
	"github.com/dmitrijs2005/psylog/internal/logging"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load([]string{"--data-dir", t.TempDir()})
	require.NoError(t, err)
	return cfg
}

// run executes one command line against cfg and returns everything printed.
func run(t *testing.T, cfg *config.Config, stdin string, args ...string) (string, error) {
	t.Helper()
	open := func(ctx context.Context) (*app.App, error) {
		return app.New(ctx, cfg, logging.Nop())
	}
	root := NewRootCmd(open, strings.NewReader(stdin))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// fakeTerminal queues answers for password prompts.
func fakeTerminal(t *testing.T, answers ...string) {
	t.Helper()
	var mu sync.Mutex
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		require.NotEmpty(t, answers, "unexpected password prompt")
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/psylog/internal/app"
	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/config"
	"github.com/spf13/cobra"
)

// Opener builds the application for one command run.
type Opener func(ctx context.Context) (*app.App, error)

type env struct {
	open Opener
	in   *bufio.Reader
}

// run adapts an App-consuming handler to cobra's RunE. The App lives for the
// duration of one command.
func (e *env) run(fn func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := e.open(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

// NewRootCmd builds the command tree. in is used for confirmations.
func NewRootCmd(open Opener, in io.Reader) *cobra.Command {
	e := &env{open: open, in: bufio.NewReader(in)}

	root := &cobra.Command{
		Use:   "psylog",
		Short: "Local logbook core: app lock, secure settings and backups",
		Long: `psylog manages the local state of a personal substance-use logbook:
the app lock and its access history, encrypted settings, and zip backups of
the logbook data with its audio notes and photos.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Parsed by config.Load before the tree runs; declared so cobra accepts them.
	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "path to a JSON or YAML config file")
	pf.String(config.FlagDataDir, "", "data directory")
	pf.String(config.FlagBackend, "", "store backend (sqlite, badger)")
	pf.String(config.FlagLogLevel, "", "log level (debug, info, warn, error)")
	pf.String(config.FlagLogFormat, "", "log format (text, json)")
	pf.String(config.FlagMetricsAddr, "", "metrics listen address for the daemon")

	root.AddCommand(
		newLockCmd(e),
		newBackupCmd(e),
		newSnapshotCmd(e),
		newDaemonCmd(e),
		newVersionCmd(),
	)
	return root
}

// Execute runs the tree and prints a user-facing message on failure.
func Execute(ctx context.Context, root *cobra.Command) int {
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s (%v)\n", common.Classify(err), err)
		return 1
	}
	return 0
}

package cli

import (
	"github.com/dmitrijs2005/psylog/internal/app"
	"github.com/spf13/cobra"
)

func newDaemonCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled backups, the snapshot watcher and the metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			return a.RunDaemon(cmd.Context())
		}),
	}
}

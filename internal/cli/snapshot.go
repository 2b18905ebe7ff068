package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dmitrijs2005/psylog/internal/app"
	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/snapshot"
	"github.com/spf13/cobra"
)

func newSnapshotCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Convert the logbook snapshot between JSON and CSV",
	}
	cmd.AddCommand(
		newExportCSVCmd(e),
		newImportCSVCmd(e),
		&cobra.Command{
			Use:   "summary",
			Short: "Count substances and entries in the current snapshot",
			Args:  cobra.NoArgs,
			RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
				s, source, err := currentSnapshot(cmd.Context(), a)
				if err != nil {
					return err
				}
				printSummary(cmd, source, s.Summary())
				return nil
			}),
		},
	)
	return cmd
}

// currentSnapshot reads the configured snapshot file, falling back to the
// cached snapshot and then to an empty one.
func currentSnapshot(ctx context.Context, a *app.App) (*snapshot.Snapshot, string, error) {
	if path := a.Config.SnapshotPath; path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			s, err := snapshot.DecodeJSON(data)
			return s, path, err
		case !errors.Is(err, fs.ErrNotExist):
			return nil, "", fmt.Errorf("read snapshot: %w", err)
		}
	}
	cached, ok, err := a.Engine.CachedSnapshot(ctx)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return &snapshot.Snapshot{}, "empty", nil
	}
	s, err := snapshot.DecodeJSON(cached)
	return s, "cache", err
}

func printSummary(cmd *cobra.Command, source string, sum snapshot.Summary) {
	cmd.Printf("Source:     %s\n", source)
	cmd.Printf("Substances: %d\n", sum.Substances)
	cmd.Printf("Entries:    %d\n", sum.Entries)
	if sum.Dangling > 0 {
		cmd.Printf("Entries without a known substance: %d\n", sum.Dangling)
	}
}

func newExportCSVCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-csv",
		Short: "Write the current snapshot as a semicolon-delimited CSV file",
		Args:  cobra.NoArgs,
		RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			s, _, err := currentSnapshot(cmd.Context(), a)
			if err != nil {
				return err
			}
			if s.IsEmpty() {
				return fmt.Errorf("%w: nothing to export", common.ErrValidation)
			}
			if err := writeFile(out, snapshot.EncodeCSV(s)); err != nil {
				return err
			}
			cmd.Printf("Exported %d substances and %d entries to %s\n", len(s.Substances), len(s.Entries), out)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&out, "out", "o", "psylog_export.csv", "CSV file to write")
	return cmd
}

func newImportCSVCmd(e *env) *cobra.Command {
	var (
		replace bool
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "import-csv <file>",
		Short: "Merge a CSV export into the snapshot",
		Long: `import-csv reads a CSV export (current or legacy layout) and merges it into
the current snapshot. By default substances already present by name are kept
and all entries are appended; --replace discards the current records. The
result is written to the configured snapshot path and cached for backups.`,
		Args: cobra.ExactArgs(1),
		RunE: e.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			ctx := cmd.Context()
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			imported, err := snapshot.DecodeCSV(raw)
			if err != nil {
				return err
			}
			printSummary(cmd, args[0], imported.Summary())
			if dryRun {
				return nil
			}

			current, _, err := currentSnapshot(ctx, a)
			if err != nil {
				return err
			}
			merged, stats := snapshot.Merge(current, imported, replace)
			text, err := snapshot.EncodeJSON(merged)
			if err != nil {
				return err
			}

			if path := a.Config.SnapshotPath; path != "" {
				if err := writeFile(path, text); err != nil {
					return err
				}
			}
			if err := a.Engine.CacheSnapshot(ctx, text); err != nil {
				return err
			}
			cmd.Printf("Imported %d substances (%d already present) and %d entries\n",
				stats.AddedSubstances, stats.SkippedSubstances, stats.AddedEntries)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "replace the current records instead of merging")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only show what the file contains")
	return cmd
}

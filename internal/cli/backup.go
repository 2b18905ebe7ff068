package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/psylog/internal/app"
	"github.com/dmitrijs2005/psylog/internal/archive"
	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/filex"
	"github.com/spf13/cobra"
)

func newBackupCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, inspect and restore backup archives",
	}
	cmd.AddCommand(
		newBackupCreateCmd(e),
		&cobra.Command{
			Use:   "list",
			Short: "List backups, newest first",
			Args:  cobra.NoArgs,
			RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
				list, err := a.Engine.ListBackups()
				if err != nil {
					return err
				}
				if len(list) == 0 {
					cmd.Println("No backups yet")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tCREATED\tSIZE\tKIND\tENCRYPTED")
				for _, r := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n",
						r.Filename, r.CreatedAt.Format(time.DateTime), humanSize(r.SizeBytes), r.Kind, r.Encrypted)
				}
				return tw.Flush()
			}),
		},
		&cobra.Command{
			Use:   "last",
			Short: "Show the most recent successful backup",
			Args:  cobra.NoArgs,
			RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
				r, err := a.Engine.LastBackup(cmd.Context())
				if err != nil {
					return err
				}
				if r == nil {
					cmd.Println("No backup has been made yet")
					return nil
				}
				printRecord(cmd.OutOrStdout(), *r)
				return nil
			}),
		},
		newRestoreCmd(e),
		&cobra.Command{
			Use:   "verify <archive>",
			Short: "Check that an archive opens and decrypts, without restoring it",
			Args:  cobra.ExactArgs(1),
			RunE: e.run(func(cmd *cobra.Command, a *app.App, args []string) error {
				path := resolveArchive(a, args[0])
				res, err := a.Engine.Verify(cmd.Context(), path, nil)
				if errors.Is(err, common.ErrPasswordRequired) {
					var pw []byte
					if pw, err = GetPassword("Archive password", cmd.OutOrStdout()); err != nil {
						return err
					}
					defer common.WipeByteArray(pw)
					res, err = a.Engine.Verify(cmd.Context(), path, pw)
				}
				if err != nil {
					return err
				}
				cmd.Printf("OK: %d audios, %d photos, snapshot %s, encrypted %t\n",
					res.Audios, res.Photos, humanSize(int64(res.SnapshotBytes)), res.Encrypted)
				printWarnings(cmd.OutOrStdout(), res.Warnings)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete one backup from the backups directory",
			Args:  cobra.ExactArgs(1),
			RunE: e.run(func(cmd *cobra.Command, a *app.App, args []string) error {
				if err := a.Engine.DeleteBackup(cmd.Context(), args[0]); err != nil {
					return err
				}
				cmd.Printf("Deleted %s\n", args[0])
				return nil
			}),
		},
		newExportAudioCmd(e),
		&cobra.Command{
			Use:   "export-photos",
			Short: "Write all photos to a zip in the export directory",
			Args:  cobra.NoArgs,
			RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
				path, err := a.Engine.ExportPhotos(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Printf("Exported photos to %s\n", path)
				return nil
			}),
		},
	)
	return cmd
}

func newBackupCreateCmd(e *env) *cobra.Command {
	var (
		noMedia bool
		encrypt bool
		kind    string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a backup archive now",
		Args:  cobra.NoArgs,
		RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			req := archive.BuildRequest{
				Snapshot:     a.SnapshotProvider(),
				IncludeMedia: !noMedia,
				Kind:         archive.ParseKind(kind),
			}
			if encrypt {
				pw, err := GetNewPassword("Archive password", cmd.OutOrStdout())
				if err != nil {
					return err
				}
				defer common.WipeByteArray(pw)
				req.Password = pw
			}

			res, err := a.Engine.Build(cmd.Context(), req)
			if err != nil {
				return err
			}
			cmd.Println("Backup created")
			printRecord(cmd.OutOrStdout(), res.Record)
			printWarnings(cmd.OutOrStdout(), res.Warnings)
			for _, name := range res.Removed {
				cmd.Printf("Rotated out %s\n", name)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&noMedia, "no-media", false, "leave audio notes and photos out")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "encrypt the archive with a password")
	cmd.Flags().StringVar(&kind, "kind", string(archive.KindManual), "backup kind recorded in the archive (manual, auto)")
	return cmd
}

func newRestoreCmd(e *env) *cobra.Command {
	var (
		yes         bool
		snapshotOut string
	)
	cmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Replace audio notes and photos with the contents of an archive",
		Long: `Restore extracts the archive into staging directories and swaps them in
only after every entry was read. The restored snapshot is cached and written to
--snapshot-out, or to the configured snapshot path.`,
		Args: cobra.ExactArgs(1),
		RunE: e.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			ctx := cmd.Context()
			path := resolveArchive(a, args[0])
			if !yes && !Confirm(e.in, fmt.Sprintf("Replace current media with %s?", filepath.Base(path)), cmd.OutOrStdout()) {
				cmd.Println("Restore cancelled")
				return nil
			}

			res, err := a.Engine.Restore(ctx, path, nil)
			if res != nil && res.PasswordRequired {
				var pw []byte
				if pw, err = GetPassword("Archive password", cmd.OutOrStdout()); err != nil {
					return err
				}
				defer common.WipeByteArray(pw)
				res, err = a.Engine.Restore(ctx, path, pw)
			}
			if res != nil {
				printWarnings(cmd.OutOrStdout(), res.Warnings)
			}
			if err != nil {
				return err
			}
			cmd.Println(res.Message)

			out := snapshotOut
			if out == "" {
				out = a.Config.SnapshotPath
			}
			if out != "" {
				if err := writeFile(out, res.SnapshotText); err != nil {
					return err
				}
				cmd.Printf("Snapshot written to %s\n", out)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().StringVar(&snapshotOut, "snapshot-out", "", "file to write the restored snapshot to")
	return cmd
}

func newExportAudioCmd(e *env) *cobra.Command {
	var encrypt bool
	cmd := &cobra.Command{
		Use:   "export-audio",
		Short: "Write all audio notes to a zip in the export directory",
		Args:  cobra.NoArgs,
		RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			var pw []byte
			if encrypt {
				var err error
				if pw, err = GetNewPassword("Export password", cmd.OutOrStdout()); err != nil {
					return err
				}
				defer common.WipeByteArray(pw)
			}
			path, err := a.Engine.ExportAudio(cmd.Context(), pw)
			if err != nil {
				return err
			}
			cmd.Printf("Exported audio notes to %s\n", path)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "encrypt the export with a password")
	return cmd
}

// resolveArchive lets users name a backup by file name alone.
func resolveArchive(a *app.App, arg string) string {
	if !strings.ContainsAny(arg, `/\`) && archive.IsBackupName(arg) {
		return filepath.Join(a.Config.BackupsDir, arg)
	}
	return arg
}

func writeFile(path string, data []byte) error {
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return filex.WriteAtomic(path, 0o600, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func printRecord(w io.Writer, r archive.Record) {
	fmt.Fprintf(w, "  Name:      %s\n", r.Filename)
	fmt.Fprintf(w, "  Path:      %s\n", r.Path)
	fmt.Fprintf(w, "  Created:   %s\n", r.CreatedAt.Format(time.DateTime))
	fmt.Fprintf(w, "  Size:      %s\n", humanSize(r.SizeBytes))
	fmt.Fprintf(w, "  Kind:      %s\n", r.Kind)
	fmt.Fprintf(w, "  Encrypted: %t\n", r.Encrypted)
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

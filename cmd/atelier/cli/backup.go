package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"atelier/internal/backup"
)

func newBackupCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or import the whole catalog as JSON",
	}
	cmd.AddCommand(newBackupExportCommand(a), newBackupImportCommand(a))
	return cmd
}

func newBackupExportCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write mounts, entries and library settings to a backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			doc, err := backup.Export(ctx, db, a.settings(ctx, db), time.Now())
			if err != nil {
				return err
			}

			if output == "-" {
				return backup.Write(a.out, doc)
			}
			return writeFileAtomic(output, func(w io.Writer) error { return backup.Write(w, doc) })
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "file to write, or - for stdout")
	return cmd
}

func newBackupImportCommand(a *app) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a backup file into the catalog",
		Long: `Load a backup file. merge upserts its records over the catalog;
replace removes every entry and mount first. Use - to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := backup.ParseMode(mode)
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = bufio.NewReader(f)
			}
			doc, err := backup.Read(r)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			res, err := backup.NewImporter(db, a.cfg.Bulk.ChunkSize).Import(ctx, doc, m)
			if err != nil {
				return err
			}
			if a.structured() {
				return a.printJSON(res)
			}
			fmt.Fprintf(a.out, "Imported %d mounts and %d entries (%s), %d invalid, %d removed\n",
				res.Mounts, res.Entries, res.Mode, res.Invalid, res.Removed)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(backup.Merge), "merge or replace")
	return cmd
}

// writeFileAtomic writes path through a temporary file in the same
// directory so a failed write leaves any previous file intact.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".atelier-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

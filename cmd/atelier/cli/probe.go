package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"atelier/internal/catalog"
	"atelier/internal/probe"
)

func newProbeCommand(a *app) *cobra.Command {
	var binary string
	cmd := &cobra.Command{
		Use:   "probe [mount-id...]",
		Short: "Record media durations with ffprobe",
		Long: `Run ffprobe on directory entries that have no duration yet, limited to
the named mounts when any are given. Durations already set are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := a.cfg.Probe
			if binary != "" {
				cfg.Binary = binary
			}
			p := probe.New(cfg)
			if !p.Available() {
				return fmt.Errorf("%w: %s not found", probe.ErrUnavailable, cfg.Binary)
			}

			db, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			var entries []catalog.Entry
			if len(args) == 0 {
				err = db.IterateAll(ctx, func(e catalog.Entry) error {
					entries = append(entries, e)
					return nil
				})
				if err != nil {
					return err
				}
			} else {
				for _, id := range args {
					if _, err := db.GetMount(ctx, id); err != nil {
						if errors.Is(err, catalog.ErrNotFound) {
							return fmt.Errorf("unknown mount %q", id)
						}
						return err
					}
					got, err := db.QueryRange(ctx, id)
					if err != nil {
						return err
					}
					entries = append(entries, got...)
				}
			}

			res, err := p.Fill(ctx, db, entries)
			if err != nil {
				return err
			}
			if a.structured() {
				return a.printJSON(res)
			}
			fmt.Fprintf(a.out, "Probed %d entries: %d updated, %d without duration, %d failed\n",
				res.Candidates, res.Updated, res.NoDuration, res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&binary, "binary", "", "ffprobe executable (default from probe.binary)")
	return cmd
}

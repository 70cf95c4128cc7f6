package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"atelier/internal/indexer"
)

func newScanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [mount-id...]",
		Short: "Reconcile directory mounts into the catalog",
		Long: `Scan the named mounts, or every directory mount when none are named.
Existing entries keep their tags and edits. Interrupting stops the scan
after the current batch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			gate := a.startMemoryGate()
			defer gate.Stop()
			idx := a.newIndexer(db, gate)

			var results []indexer.ScanResult
			if len(args) == 0 {
				results, err = idx.ScanAll(ctx)
				if err != nil {
					return err
				}
			} else {
				for _, id := range args {
					res := indexer.ScanResult{MountID: id}
					res.Stats, err = idx.TryScan(ctx, id)
					if err != nil {
						res.Error = err.Error()
					}
					results = append(results, res)
				}
			}

			if err := a.emit(results, []string{"MOUNT", "FILES", "MATCHED", "ADDED", "UPDATED", "SKIPPED", "TIME", "ERROR"}, func() [][]string {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{
						r.MountID,
						strconv.Itoa(r.Stats.TotalFiles),
						strconv.Itoa(r.Stats.MatchedFiles),
						strconv.Itoa(r.Stats.Added),
						strconv.Itoa(r.Stats.Updated),
						strconv.Itoa(r.Stats.Skipped),
						(time.Duration(r.Stats.DurationMs) * time.Millisecond).String(),
						r.Error,
					})
				}
				return rows
			}); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scans failed", failed, len(results))
			}
			return nil
		},
	}
}

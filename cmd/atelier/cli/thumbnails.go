package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"atelier/internal/catalog"
	"atelier/internal/media"
)

func newThumbnailsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thumbnails",
		Short: "Maintain the thumbnail cache",
	}
	cmd.AddCommand(newThumbnailsPruneCommand(a))
	return cmd
}

func newThumbnailsPruneCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete cached thumbnails no entry refers to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			inUse := make(map[string]bool)
			if err := db.IterateAll(ctx, func(e catalog.Entry) error {
				if e.Thumbnail != "" {
					inUse[e.Thumbnail] = true
				}
				return nil
			}); err != nil {
				return err
			}

			thumbs, err := media.NewThumbnailStore(filepath.Join(a.cfg.CacheDir, "thumbnails"), a.cfg.Thumbnails)
			if err != nil {
				return err
			}
			removed, err := thumbs.Prune(ctx, func(ref string) bool { return inUse[ref] })
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Removed %d unused thumbnails, %d in use\n", removed, len(inUse))
			return nil
		},
	}
}

package cli

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"atelier/internal/catalog"
	"atelier/internal/indexer"
)

func newMountCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount",
		Short: "Manage the directories and URL bases in the catalog",
	}
	cmd.AddCommand(newMountAddCommand(a), newMountListCommand(a), newMountRemoveCommand(a))
	return cmd
}

func newMountAddCommand(a *app) *cobra.Command {
	var (
		m         catalog.Mount
		noSubdirs bool
	)

	cmd := &cobra.Command{
		Use:   "add [directory]",
		Short: "Register a directory, or a URL base with --url",
		Example: `  atelier mount add ~/Videos --name Videos --ignore '**/.trash/**'
  atelier mount add --url https://cdn.example.com/media --name CDN`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m.SourceKind = catalog.SourceHandle
			if m.BaseURL != "" {
				m.SourceKind = catalog.SourceURL
			}
			if len(args) == 1 {
				if m.SourceKind == catalog.SourceURL {
					return fmt.Errorf("a directory and --url are mutually exclusive")
				}
				m.Root = args[0]
			}
			if strings.TrimSpace(m.Name) == "" {
				m.Name = defaultMountName(m)
			}
			m.IncludeSubdirs = !noSubdirs
			m.AddedAt = time.Now().UnixMilli()

			prepared, err := indexer.PrepareMount(m, a.cfg.RetryConfig())
			if err != nil {
				return err
			}

			db, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			if err := db.PutMount(cmd.Context(), prepared); err != nil {
				return fmt.Errorf("failed to save mount: %w", err)
			}
			if a.structured() {
				return a.printJSON(prepared)
			}
			fmt.Fprintf(a.out, "Added mount %s (%s)\n", prepared.ID, prepared.Name)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&m.Name, "name", "", "display name (default is the directory or host name)")
	f.StringVar(&m.Color, "color", "", "display color")
	f.StringVar(&m.BaseURL, "url", "", "register a URL base instead of a directory")
	f.StringSliceVar(&m.Extensions, "ext", nil, "file extensions to index (default is every audio and video type)")
	f.StringSliceVar(&m.IgnoreGlobs, "ignore", nil, "glob of paths to skip, repeatable")
	f.BoolVar(&noSubdirs, "no-subdirs", false, "index only the top-level directory")
	return cmd
}

func defaultMountName(m catalog.Mount) string {
	if m.SourceKind == catalog.SourceURL {
		if u, err := url.Parse(m.BaseURL); err == nil {
			return u.Host
		}
		return ""
	}
	if m.Root == "" {
		return ""
	}
	if abs, err := filepath.Abs(m.Root); err == nil {
		return filepath.Base(abs)
	}
	return filepath.Base(m.Root)
}

// mountView is a mount with its last scan for listing.
type mountView struct {
	catalog.Mount
	LastScan *indexer.ScanRecord `json:"lastScan,omitempty"`
}

func newMountListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List mounts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			mounts, err := db.ListMounts(ctx)
			if err != nil {
				return err
			}
			idx := a.newIndexer(db, nil)
			views := make([]mountView, 0, len(mounts))
			for _, m := range mounts {
				v := mountView{Mount: m}
				if rec, err := idx.LastScan(ctx, m.ID); err == nil {
					v.LastScan = &rec
				}
				views = append(views, v)
			}

			return a.emit(views, []string{"ID", "NAME", "KIND", "SOURCE", "LAST SCAN"}, func() [][]string {
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					source := v.Root
					if v.SourceKind == catalog.SourceURL {
						source = v.BaseURL
					}
					rows = append(rows, []string{v.ID, v.Name, string(v.SourceKind), source, describeScan(v.LastScan)})
				}
				return rows
			})
		},
	}
}

func describeScan(rec *indexer.ScanRecord) string {
	switch {
	case rec == nil:
		return "never"
	case rec.Error != "":
		return "failed " + rec.FinishedAt.Local().Format(time.DateTime)
	default:
		return fmt.Sprintf("%s (%d files)", rec.FinishedAt.Local().Format(time.DateTime), rec.Stats.MatchedFiles)
	}
}

func newMountRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <mount-id>...",
		Aliases: []string{"rm"},
		Short:   "Unregister mounts; their entries stay in the catalog",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			for _, id := range args {
				if err := db.DeleteMount(cmd.Context(), id); err != nil {
					return fmt.Errorf("remove mount %s: %w", id, err)
				}
				fmt.Fprintf(a.out, "Removed mount %s\n", id)
			}
			return nil
		},
	}
}

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"atelier/internal/bulk"
	"atelier/internal/catalog"
	"atelier/internal/filterstate"
	"atelier/internal/playlist"
	"atelier/internal/query"
)

func newPlaylistCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playlist",
		Short: "Exchange Windows Media (.wpl) playlists with the catalog",
	}
	cmd.AddCommand(newPlaylistExportCommand(a), newPlaylistImportCommand(a))
	return cmd
}

func newPlaylistExportCommand(a *app) *cobra.Command {
	var output, title string

	cmd := &cobra.Command{
		Use:   "export [state]",
		Short: "Write every playable entry matching a filter state as a playlist",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			settings := a.settings(ctx, db)
			state := filterstate.NewCodec(settings).Decode(firstArg(args))
			entries, err := query.New(db, settings).Matches(ctx, state.Spec())
			if err != nil {
				return err
			}

			if title == "" {
				title = "atelier"
				if len(state.Tags) > 0 {
					title = strings.Join(state.Tags, ", ")
				}
			}
			p := playlist.Build(title, entries)
			if output == "-" {
				return playlist.Write(a.out, p)
			}
			if err := writeFileAtomic(output, func(w io.Writer) error { return playlist.Write(w, p) }); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Wrote %d entries to %s\n", len(p.Body.Seq.Media), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "file to write, or - for stdout")
	cmd.Flags().StringVar(&title, "title", "", "playlist title (default is the filter's tags)")
	return cmd
}

// playlistImport reports how a playlist mapped onto the catalog.
type playlistImport struct {
	Tag       string       `json:"tag"`
	Matched   int          `json:"matched"`
	Unmatched []string     `json:"unmatched"`
	Outcome   bulk.Outcome `json:"outcome"`
}

func newPlaylistImportCommand(a *app) *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "import <file.wpl>",
		Short: "Tag every catalog entry named by a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag = catalog.NormalizeTag(tag)
			if tag == "" {
				return fmt.Errorf("--tag is required")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			p, err := playlist.Parse(f)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			var all []catalog.Entry
			if err := db.IterateAll(ctx, func(e catalog.Entry) error {
				all = append(all, e)
				return nil
			}); err != nil {
				return err
			}

			matched, unmatched := playlist.Match(p, all)
			res := playlistImport{Tag: tag, Matched: len(matched), Unmatched: unmatched}
			if res.Unmatched == nil {
				res.Unmatched = []string{}
			}
			if len(matched) > 0 {
				ids := make([]string, 0, len(matched))
				for _, e := range matched {
					ids = append(ids, e.ID)
				}
				res.Outcome, err = bulk.New(db, a.cfg.EditorConfig()).Apply(ctx, ids, bulk.AddTag, tag)
				if err != nil {
					return err
				}
			}

			if a.structured() {
				return a.printJSON(res)
			}
			fmt.Fprintf(a.out, "Tagged %d of %d matched entries with %q\n", res.Outcome.Changed, res.Matched, tag)
			for _, src := range res.Unmatched {
				fmt.Fprintf(a.out, "  not found: %s\n", src)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "tag to add to the matched entries")
	return cmd
}

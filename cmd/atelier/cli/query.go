package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"atelier/internal/bulk"
	"atelier/internal/catalog"
	"atelier/internal/filterstate"
	"atelier/internal/query"
)

// queryOutput is one page of results with its canonical state.
type queryOutput struct {
	query.Result
	State string `json:"state"`
}

func newQueryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query [state]",
		Short: "List catalog entries matching a filter state",
		Long: `List one page of entries. The state uses the same keys as the web UI's
address bar: q (search), tag (repeatable), m (mount), fav, p (page),
sort, ps (page size) and len (duration bucket).`,
		Example: `  atelier query 'tag=live&tag=1990s&sort=oldest'
  atelier query 'q=concert&fav=1&p=2' --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			settings := a.settings(ctx, db)
			codec := filterstate.NewCodec(settings)
			state := codec.Decode(firstArg(args))

			res, err := query.New(db, settings).Query(ctx, state.Spec())
			if err != nil {
				return err
			}
			out := queryOutput{Result: res, State: codec.Encode(state)}

			titleWidth := 0
			if w := a.width(); w > 0 {
				titleWidth = max(w/2, 20)
			}
			if err := a.emit(out, []string{"ID", "TITLE", "TAGS", "FAV", "PLAYS"}, func() [][]string {
				rows := make([][]string, 0, len(res.Entries))
				for _, e := range res.Entries {
					rows = append(rows, []string{
						e.ID,
						truncate(e.Title(), titleWidth),
						strings.Join(e.Tags, " "),
						favoriteMark(e),
						strconv.Itoa(e.PlayCount),
					})
				}
				return rows
			}); err != nil {
				return err
			}
			if !a.structured() {
				fmt.Fprintf(a.out, "\nPage %d of %d, %d entries\n", res.Page, max(res.TotalPages, 1), res.TotalCount)
			}
			return nil
		},
	}
}

func newTagsCommand(a *app) *cobra.Command {
	var (
		rank string
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "tags [state]",
		Short: "Rank the tags of the entries matching a filter state",
		Long: `Rank tags over the entries matching the state, ignoring its own tag
filter. Pinned tags are flagged. With --all, list every tag in the catalog
(or in the state's mount) alphabetically.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			settings := a.settings(ctx, db)
			engine := query.New(db, settings)
			state := filterstate.NewCodec(settings).Decode(firstArg(args))

			var tags []query.TagCount
			if all {
				tags, err = engine.AllTags(ctx, state.MountID)
			} else {
				mode := query.RankMode(strings.ToLower(rank))
				if rank != "" && !mode.Valid() {
					return fmt.Errorf("unknown rank %q", rank)
				}
				tags, err = engine.TagRanking(ctx, state.Spec(), mode)
			}
			if err != nil {
				return err
			}

			return a.emit(tags, []string{"TAG", "COUNT", "PINNED"}, func() [][]string {
				rows := make([][]string, 0, len(tags))
				for _, t := range tags {
					pinned := ""
					if t.Pinned {
						pinned = "*"
					}
					rows = append(rows, []string{t.Tag, strconv.Itoa(t.Count), pinned})
				}
				return rows
			})
		},
	}

	cmd.Flags().StringVar(&rank, "rank", "", "popular or alpha (default from library.tag_sort)")
	cmd.Flags().BoolVar(&all, "all", false, "list every tag alphabetically")
	cmd.AddCommand(newTagRenameCommand(a), newTagDeleteCommand(a))
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func favoriteMark(e catalog.Entry) string {
	if e.Favorite {
		return "*"
	}
	return ""
}

func newTagRenameCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <from> <to>",
		Short: "Rename a tag on every entry, merging into an existing tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			out, err := bulk.New(db, a.cfg.EditorConfig()).RenameTag(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.reportOutcome(out)
		},
	}
}

func newTagDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tag>",
		Short: "Remove a tag from every entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCatalog(db)

			out, err := bulk.New(db, a.cfg.EditorConfig()).DeleteTag(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.reportOutcome(out)
		},
	}
}

func (a *app) reportOutcome(out bulk.Outcome) error {
	if a.structured() {
		return a.printJSON(out)
	}
	fmt.Fprintf(a.out, "%s: changed %d of %d entries\n", out.Action, out.Changed, out.Requested)
	return nil
}

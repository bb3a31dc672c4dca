package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/compendium/internal/app"
	"github.com/MrWong99/compendium/internal/catalog"
	"github.com/MrWong99/compendium/internal/catalogfs"
	"github.com/MrWong99/compendium/internal/search"
)

// loadSnapshot loads the configured catalog once, without metrics.
func (o *options) loadSnapshot(cmd *cobra.Command) (*app.Snapshot, error) {
	cfg, _, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), cfg, slog.Default(), nil)
}

func newSearchCmd(opts *options) *cobra.Command {
	var (
		categories []string
		deep       bool
		limit      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Rank catalog entities by name, suggesting close spellings when nothing matches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := opts.loadSnapshot(cmd)
			if err != nil {
				return err
			}
			res := snap.Lookup(cmd.Context(), search.Query{
				Text:       strings.Join(args, " "),
				Categories: categories,
				Deep:       deep,
			})
			if limit > 0 && len(res.Scores) > limit {
				res.Scores = res.Scores[:limit]
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	f := cmd.Flags()
	f.StringSliceVarP(&categories, "category", "t", nil, "restrict to these categories (repeatable, singular or plural)")
	f.BoolVarP(&deep, "deep", "d", false, "also match entity text and traits")
	f.IntVarP(&limit, "limit", "n", 0, "show at most this many results")
	f.BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	var (
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "get <id> | get --category <category> <name>",
		Short: "Show one catalog entity by id, or by category and name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := opts.loadSnapshot(cmd)
			if err != nil {
				return err
			}
			value := strings.Join(args, " ")

			var (
				e  *catalog.Entity
				ok bool
			)
			if category != "" {
				if _, known := snap.ResolveCategoryAlias(category); !known {
					return fmt.Errorf("unknown category %q", category)
				}
				e, ok = snap.FindByValue(category, value)
			} else {
				e, ok = snap.FindByID(value)
			}
			if !ok {
				return fmt.Errorf("no entity matches %q", value)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), e)
			}
			return printEntity(cmd.OutOrStdout(), snap, e)
		},
	}
	cmd.Flags().StringVarP(&category, "category", "t", "", "look the name up in this category instead of treating the argument as an id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the entity as JSON")
	return cmd
}

func newCategoriesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the catalog categories and their entity counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := opts.loadSnapshot(cmd)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tPLURAL\tENTITIES")
			for _, c := range snap.AllCategories() {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", c, snap.Plural(c), snap.Len(c))
			}
			return tw.Flush()
		},
	}
}

func newRepairCmd(opts *options) *cobra.Command {
	var ropts catalogfs.RepairOptions
	cmd := &cobra.Command{
		Use:   "repair-ids",
		Short: "Give stable identifiers to catalog records whose id collides with an earlier record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			reg, err := app.BuildRegistry(cfg.Catalog.Categories)
			if err != nil {
				return err
			}
			ropts.Canonical = reg.ResolveCategoryAlias
			loader := catalogfs.NewLoader(cfg.Catalog.Dir,
				catalogfs.WithConcurrency(cfg.Catalog.Concurrency),
				catalogfs.WithLogger(slog.Default()),
			)
			rep, err := loader.RepairIDs(cmd.Context(), ropts)
			if err != nil {
				return err
			}
			verb := "repaired"
			if ropts.DryRun {
				verb = "would repair"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d record(s): %d duplicate, %d missing, in %d file(s)\n",
				verb, rep.Changed(), rep.Regenerated, rep.Filled, len(rep.Files))
			return nil
		},
	}
	cmd.Flags().BoolVar(&ropts.DryRun, "dry-run", false, "report what would change without writing files")
	cmd.Flags().BoolVar(&ropts.FillMissing, "fill-missing", false, "also write the derived id of records without one")
	return cmd
}

func printResult(w io.Writer, res search.Result) error {
	if res.Empty() {
		_, err := fmt.Fprintf(w, "No matches for %q.\n", res.Query)
		return err
	}
	fmt.Fprintln(w, res.Title())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range res.Scores {
		var score string
		switch s.Kind {
		case search.ScoreHits:
			score = fmt.Sprintf("%d", s.Hits)
		case search.ScoreDistance:
			score = fmt.Sprintf("%.2f", 1-s.Distance)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", s.Entity.Name, s.Entity.Category, score, s.Entity.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if res.Total > len(res.Scores) {
		fmt.Fprintf(w, "  … %d more\n", res.Total-len(res.Scores))
	}
	return nil
}

func printEntity(w io.Writer, snap *app.Snapshot, e *catalog.Entity) error {
	fmt.Fprintf(w, "%s (%s)\n", e.Name, e.Category)
	fmt.Fprintf(w, "id: %s\n", e.ID)
	if e.Related != "" {
		if rel, ok := snap.Related(e); ok {
			fmt.Fprintf(w, "related: %s (%s)\n", rel.Name, rel.ID)
		} else {
			fmt.Fprintf(w, "related: %s (unresolved)\n", e.Related)
		}
	}
	if len(e.Traits) > 0 {
		fmt.Fprintf(w, "traits: %s\n", strings.Join(e.Traits, ", "))
	}
	var lines []string
	e.Content.Walk(func(text string) { lines = append(lines, text) })
	if len(lines) > 0 {
		fmt.Fprintln(w)
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/compendium/internal/catalog"
	"github.com/MrWong99/compendium/internal/catalogfs"
	"github.com/MrWong99/compendium/internal/config"
	"github.com/MrWong99/compendium/internal/observe"
	"github.com/MrWong99/compendium/internal/search"
)

// Snapshot is one fully loaded catalog together with the engine ranking it.
// A snapshot is never mutated after [Build] returns; hot reload replaces it
// as a whole.
type Snapshot struct {
	*catalog.Registry
	*search.Engine

	// Summary reports what the load pass read and skipped.
	Summary catalogfs.Summary

	// LoadedAt is when the load pass completed.
	LoadedAt time.Time
}

// BuildRegistry returns an empty registry with every configured category
// registered.
func BuildRegistry(cats []config.CategoryConfig, opts ...catalog.Option) (*catalog.Registry, error) {
	reg := catalog.NewRegistry(opts...)
	for _, c := range cats {
		var copts []catalog.CategoryOption
		if !c.Related.IsZero() {
			copts = append(copts, catalog.WithRelated(c.Related.Field, c.Related.Category))
		}
		if !c.Children.IsZero() {
			copts = append(copts, catalog.WithChildField(c.Children.Field, c.Children.Category))
		}
		if err := reg.Register(c.Name, c.Plural, copts...); err != nil {
			return nil, fmt.Errorf("app: register category %q: %w", c.Name, err)
		}
	}
	return reg, nil
}

// Build loads the catalog described by cfg into a new [Snapshot].
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observe.Metrics) (*Snapshot, error) {
	reg, err := BuildRegistry(cfg.Catalog.Categories, catalog.WithLogger(logger), catalog.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}

	loader := catalogfs.NewLoader(cfg.Catalog.Dir,
		catalogfs.WithConcurrency(cfg.Catalog.Concurrency),
		catalogfs.WithLogger(logger),
	)
	sum, err := loader.Load(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("app: load catalog: %w", err)
	}
	metrics.RecordCatalogLoad(ctx, sum.Duration.Seconds())

	eng := search.New(reg,
		search.WithExactWeight(cfg.Search.ExactWeight),
		search.WithFuzzyThreshold(cfg.Search.FuzzyThreshold),
		search.WithMaxResults(cfg.Search.Limit()),
		search.WithLogger(logger),
		search.WithMetrics(metrics),
	)
	return &Snapshot{
		Registry: reg,
		Engine:   eng,
		Summary:  sum,
		LoadedAt: time.Now(),
	}, nil
}

// Entities returns the number of active entities per category.
func (s *Snapshot) Entities() map[string]int {
	out := make(map[string]int)
	for _, c := range s.AllCategories() {
		out[c] = s.Len(c)
	}
	return out
}

// Package search ranks catalog entities against free-text queries.
//
// Two strategies are provided. [Engine.Search] counts term hits over entity
// names (and, on request, their full content); [Engine.SearchComparison]
// ranks names by Jaro-Winkler similarity and backs the "did you mean"
// suggestions. [Engine.Lookup] combines the two: hit counting first, fuzzy
// comparison only when that finds nothing.
//
// An Engine is read-only after construction and safe for concurrent use as
// long as the underlying catalog is not being loaded at the same time.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/compendium/internal/catalog"
	"github.com/MrWong99/compendium/internal/match"
	"github.com/MrWong99/compendium/internal/observe"
)

const (
	// DefaultExactWeight is the hit count credited to a name that matches the
	// whole query.
	DefaultExactWeight = 100

	// DefaultFuzzyThreshold is the minimum similarity for a fuzzy match.
	DefaultFuzzyThreshold = 0.80

	// DefaultMaxResults caps the number of scores returned per query.
	DefaultMaxResults = 25
)

// Catalog is the read API the engine needs. [*catalog.Registry] satisfies it.
type Catalog interface {
	ResolveCategoryAlias(text string) (string, bool)
	AllCategories() []string
	All(category string) []*catalog.Entity
	Plural(category string) string
}

// Query describes one search request.
type Query struct {
	// Text is the raw query.
	Text string

	// Categories optionally restricts the search. Values are resolved with
	// the catalog's alias rules. When none of them resolves and Deep is unset,
	// the values are searched for as additional query terms; otherwise
	// unresolved values are ignored.
	Categories []string

	// Deep additionally scans every entity's content and traits.
	Deep bool
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithExactWeight sets the hit count credited to an exact name match.
// Default: 100.
func WithExactWeight(w int) Option {
	return func(e *Engine) {
		if w > 0 {
			e.exactWeight = w
		}
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler similarity for
// [Engine.SearchComparison]. Default: 0.80.
func WithFuzzyThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 && t <= 1 {
			e.fuzzyThreshold = t
		}
	}
}

// WithMaxResults caps the scores returned per query. Zero means unlimited.
// Default: 25.
func WithMaxResults(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxResults = n
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine answers ranked queries over a [Catalog].
type Engine struct {
	cat            Catalog
	exactWeight    int
	fuzzyThreshold float64
	maxResults     int
	logger         *slog.Logger
	metrics        *observe.Metrics
}

// New returns an [Engine] over cat.
func New(cat Catalog, opts ...Option) *Engine {
	e := &Engine{
		cat:            cat,
		exactWeight:    DefaultExactWeight,
		fuzzyThreshold: DefaultFuzzyThreshold,
		maxResults:     DefaultMaxResults,
		logger:         slog.Default(),
		metrics:        observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Catalog returns the catalog the engine searches.
func (e *Engine) Catalog() Catalog { return e.cat }

// Lookup runs [Engine.Search] and, when it finds nothing for a non-blank
// query, falls back to [Engine.SearchComparison].
func (e *Engine) Lookup(ctx context.Context, q Query) Result {
	res := e.Search(ctx, q)
	if !res.Empty() || res.Query == "" {
		return res
	}
	return e.SearchComparison(ctx, q)
}

// scope is the resolved form of a [Query].
type scope struct {
	text       string   // effective query text
	key        string   // normalized text
	terms      []string // normalized terms
	categories []string // canonical names, sorted
	single     string   // canonical name when exactly one category resolved
}

func (e *Engine) resolve(q Query) scope {
	var (
		resolved   []string
		unresolved []string
		seen       = make(map[string]bool)
	)
	for _, c := range q.Categories {
		if strings.TrimSpace(c) == "" {
			continue
		}
		name, ok := e.cat.ResolveCategoryAlias(c)
		if !ok {
			unresolved = append(unresolved, strings.TrimSpace(c))
			continue
		}
		if !seen[name] {
			seen[name] = true
			resolved = append(resolved, name)
		}
	}

	text := strings.TrimSpace(q.Text)
	if len(resolved) == 0 && len(unresolved) > 0 && !q.Deep {
		text = strings.TrimSpace(strings.Join(unresolved, " ") + " " + text)
	}

	s := scope{
		text:  text,
		key:   match.Normalize(text),
		terms: dedupe(match.Terms(text)),
	}

	all := e.cat.AllCategories()
	if len(resolved) == 0 {
		s.categories = all
		return s
	}
	// Keep the catalog's sorted order.
	for _, name := range all {
		if seen[name] {
			s.categories = append(s.categories, name)
		}
	}
	if len(s.categories) == 1 {
		s.single = s.categories[0]
	}
	return s
}

func (e *Engine) newResult(s scope) Result {
	r := Result{Query: s.text, Category: s.single}
	if s.single != "" {
		r.Plural = e.cat.Plural(s.single)
	}
	return r
}

// truncate caps scores at the configured maximum and records the total.
func (e *Engine) truncate(r *Result) {
	r.Total = len(r.Scores)
	if e.maxResults > 0 && len(r.Scores) > e.maxResults {
		r.Scores = r.Scores[:e.maxResults]
	}
}

func (e *Engine) record(ctx context.Context, mode string, r Result, start time.Time) {
	outcome := "hit"
	switch {
	case r.Empty():
		outcome = "empty"
	case r.TheOne:
		outcome = "the_one"
	}
	observe.SetQueryOutcome(ctx, r.Total, outcome)
	e.metrics.RecordSearch(ctx, mode, outcome, r.Total, time.Since(start).Seconds())
}

func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

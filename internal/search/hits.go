package search

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/compendium/internal/catalog"
	"github.com/MrWong99/compendium/internal/match"
	"github.com/MrWong99/compendium/internal/observe"
)

// Search ranks in-scope entities by hit count.
//
// A name equal to the whole query (after normalization) scores the exact
// weight; otherwise every query term contained in the name scores one hit.
// With q.Deep set, every occurrence of a term in the entity's content or
// traits scores one more. Entities without hits are dropped. The result is
// ordered by descending hits, ties in scan order, and then stably
// partitioned so that exact name matches come first.
func (e *Engine) Search(ctx context.Context, q Query) Result {
	ctx, span := observe.StartQuerySpan(ctx, "search", q.Text, q.Categories)
	defer span.End()
	start := time.Now()

	s := e.resolve(q)
	res := e.newResult(s)
	if s.key == "" {
		e.record(ctx, "hits", res, start)
		return res
	}

	for _, cat := range s.categories {
		for _, ent := range e.cat.All(cat) {
			if n := e.hits(ent, s, q.Deep); n > 0 {
				res.Scores = append(res.Scores, Score{Entity: ent, Hits: n, Kind: ScoreHits})
			}
		}
	}

	slices.SortStableFunc(res.Scores, func(a, b Score) int {
		return b.Hits - a.Hits
	})
	res.Scores = exactFirst(res.Scores, s.key)

	res.TheOne = len(res.Scores) == 1 && match.Normalize(res.Scores[0].Entity.Name) == s.key
	e.truncate(&res)

	e.logger.DebugContext(ctx, "search",
		"query", s.text, "categories", len(s.categories), "deep", q.Deep, "results", res.Total)
	e.record(ctx, "hits", res, start)
	return res
}

func (e *Engine) hits(ent *catalog.Entity, s scope, deep bool) int {
	name := match.Normalize(ent.Name)
	n := 0
	if name == s.key {
		n = e.exactWeight
	} else {
		for _, t := range s.terms {
			if strings.Contains(name, t) {
				n++
			}
		}
	}
	if !deep {
		return n
	}

	count := func(text string) {
		norm := match.Normalize(text)
		if norm == "" {
			return
		}
		for _, t := range s.terms {
			n += strings.Count(norm, t)
		}
	}
	ent.Content.Walk(count)
	for _, tr := range ent.Traits {
		count(tr)
	}
	return n
}

// exactFirst moves scores whose entity name matches key to the front,
// keeping the relative order inside both partitions.
func exactFirst(scores []Score, key string) []Score {
	out := make([]Score, 0, len(scores))
	var rest []Score
	for _, sc := range scores {
		if match.Normalize(sc.Entity.Name) == key {
			out = append(out, sc)
		} else {
			rest = append(rest, sc)
		}
	}
	return append(out, rest...)
}

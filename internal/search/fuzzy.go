package search

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/compendium/internal/match"
	"github.com/MrWong99/compendium/internal/observe"
)

// SearchComparison ranks in-scope entity names by similarity to the query.
// Only names at or above the fuzzy threshold are kept. Scores carry a
// distance (1 - similarity) instead of a hit count and are sorted ascending,
// best match first. A non-empty result is flagged as a suggestion
// ([Result.DidYouMean]).
func (e *Engine) SearchComparison(ctx context.Context, q Query) Result {
	ctx, span := observe.StartQuerySpan(ctx, "compare", q.Text, q.Categories)
	defer span.End()
	start := time.Now()

	s := e.resolve(q)
	res := e.newResult(s)
	if s.key == "" {
		e.record(ctx, "fuzzy", res, start)
		return res
	}

	queryTokens := strings.Fields(s.key)
	for _, cat := range s.categories {
		for _, ent := range e.cat.All(cat) {
			name := match.Normalize(ent.Name)
			if name == "" {
				continue
			}
			sim := similarity(queryTokens, strings.Fields(name), s.key, name)
			if sim < e.fuzzyThreshold {
				continue
			}
			res.Scores = append(res.Scores, Score{Entity: ent, Distance: 1 - sim, Kind: ScoreDistance})
		}
	}

	slices.SortStableFunc(res.Scores, func(a, b Score) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	res.DidYouMean = len(res.Scores) > 0
	e.truncate(&res)

	e.logger.DebugContext(ctx, "fuzzy search",
		"query", s.text, "categories", len(s.categories), "results", res.Total)
	e.record(ctx, "fuzzy", res, start)
	return res
}

// similarity returns the best Jaro-Winkler score between the query and a
// name: on the full strings, and for multi-word input on the best token
// pair.
func similarity(queryTokens, nameTokens []string, query, name string) float64 {
	score := matchr.JaroWinkler(query, name, false)
	if len(queryTokens) < 2 && len(nameTokens) < 2 {
		return score
	}
	for _, qt := range queryTokens {
		for _, nt := range nameTokens {
			if s := matchr.JaroWinkler(qt, nt, false); s > score {
				score = s
			}
		}
	}
	return score
}

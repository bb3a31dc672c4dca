package search

import "github.com/MrWong99/compendium/internal/catalog"

// ScoreKind says which ranking strategy produced a [Score].
type ScoreKind uint8

const (
	// ScoreHits marks a hit-counting score; [Score.Hits] is meaningful.
	ScoreHits ScoreKind = iota + 1

	// ScoreDistance marks a fuzzy score; [Score.Distance] is meaningful.
	ScoreDistance
)

func (k ScoreKind) String() string {
	switch k {
	case ScoreHits:
		return "hits"
	case ScoreDistance:
		return "distance"
	default:
		return "unknown"
	}
}

// Score pairs an entity with how well it matched.
type Score struct {
	Entity   *catalog.Entity `json:"entity"`
	Hits     int             `json:"hits,omitempty"`
	Distance float64         `json:"distance,omitempty"`
	Kind     ScoreKind       `json:"-"`
}

// Result is the ranked answer to one query. It carries no formatting;
// rendering and pagination are up to the caller.
type Result struct {
	// Query is the effective query text.
	Query string `json:"query"`

	// Scores is ordered best first and truncated to the engine's limit.
	Scores []Score `json:"scores"`

	// Category is the canonical category name when the query was scoped to
	// exactly one category, and Plural its plural form.
	Category string `json:"category,omitempty"`
	Plural   string `json:"-"`

	// TheOne marks a single, unambiguous name match.
	TheOne bool `json:"the_one,omitempty"`

	// DidYouMean marks fuzzy suggestions rather than hits.
	DidYouMean bool `json:"did_you_mean,omitempty"`

	// Total is the number of scores before truncation.
	Total int `json:"total"`
}

// Empty reports whether nothing matched.
func (r Result) Empty() bool { return len(r.Scores) == 0 }

// Title returns the heading a renderer should show above the scores.
func (r Result) Title() string {
	if r.DidYouMean {
		return "Did you mean…"
	}
	switch {
	case r.Plural != "":
		return "Top Matches in " + r.Plural
	case r.Category != "":
		return "Top Matches in " + r.Category
	}
	return "Top Matches"
}

// Entities returns the entities of r in order.
func (r Result) Entities() []*catalog.Entity {
	out := make([]*catalog.Entity, len(r.Scores))
	for i, s := range r.Scores {
		out[i] = s.Entity
	}
	return out
}

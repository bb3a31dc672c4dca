package ruleslookup

import (
	"strings"

	"github.com/MrWong99/compendium/internal/catalog"
	"github.com/MrWong99/compendium/internal/search"
)

// searchView is the JSON body of a "search_rules" result.
type searchView struct {
	Title      string       `json:"title"`
	DidYouMean bool         `json:"did_you_mean,omitempty"`
	Exact      bool         `json:"exact,omitempty"`
	Total      int          `json:"total"`
	Results    []entityView `json:"results"`
}

// entityView is one entity as presented to tool callers.
type entityView struct {
	ID        string   `json:"id"`
	Category  string   `json:"category"`
	Name      string   `json:"name"`
	Related   string   `json:"related,omitempty"`
	RelatedID string   `json:"related_id,omitempty"`
	Traits    []string `json:"traits,omitempty"`
	Score     float64  `json:"score,omitempty"`
	Text      string   `json:"text,omitempty"`
}

type categoryView struct {
	Name     string `json:"name"`
	Plural   string `json:"plural,omitempty"`
	Entities int    `json:"entities"`
}

func newSearchView(res search.Result) searchView {
	v := searchView{
		Title:      res.Title(),
		DidYouMean: res.DidYouMean,
		Exact:      res.TheOne,
		Total:      res.Total,
		Results:    make([]entityView, 0, len(res.Scores)),
	}
	for _, s := range res.Scores {
		ev := newEntityView(s.Entity, res.TheOne)
		switch s.Kind {
		case search.ScoreHits:
			ev.Score = float64(s.Hits)
		case search.ScoreDistance:
			ev.Score = 1 - s.Distance
		}
		v.Results = append(v.Results, ev)
	}
	return v
}

func newEntityView(e *catalog.Entity, withText bool) entityView {
	v := entityView{
		ID:       e.ID,
		Category: e.Category,
		Name:     e.Name,
		Related:  e.Related,
		Traits:   e.Traits,
	}
	if withText {
		v.Text = renderContent(e.Content)
	}
	return v
}

// renderContent flattens a content tree into indented plain text. Blocks
// render as "key:" headings, list items as "- " bullets.
func renderContent(n catalog.Node) string {
	var sb strings.Builder
	render(&sb, n, 0, false)
	return strings.TrimRight(sb.String(), "\n")
}

func render(sb *strings.Builder, n catalog.Node, depth int, bullet bool) {
	indent := strings.Repeat("  ", depth)
	switch n.Kind {
	case catalog.TextNode:
		if bullet {
			sb.WriteString(indent + "- " + n.Text + "\n")
		} else {
			sb.WriteString(indent + n.Text + "\n")
		}
	case catalog.BlockNode:
		next := depth
		if n.Key != "" {
			if len(n.Children) == 1 && n.Children[0].Kind == catalog.TextNode {
				sb.WriteString(indent + n.Key + ": " + n.Children[0].Text + "\n")
				return
			}
			sb.WriteString(indent + n.Key + ":\n")
			next++
		}
		for _, c := range n.Children {
			render(sb, c, next, false)
		}
	case catalog.ListNode:
		for _, c := range n.Children {
			render(sb, c, depth, true)
		}
	}
}

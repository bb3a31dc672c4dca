// Package ruleslookup provides the MCP tools for searching and retrieving
// entities from the loaded rules catalog.
//
// Three tools are installed by [Handler.Register]:
//   - "search_rules": ranked search with "did you mean" suggestions.
//   - "get_rule": retrieve one entity by id, or by category and name.
//   - "list_categories": the categories and how many entities each holds.
//
// All handlers are safe for concurrent use.
package ruleslookup

import (
	"context"
	"log/slog"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/compendium/internal/catalog"
	"github.com/MrWong99/compendium/internal/mcp/tools"
	"github.com/MrWong99/compendium/internal/observe"
	"github.com/MrWong99/compendium/internal/search"
)

// Tool names.
const (
	ToolSearch     = "search_rules"
	ToolGet        = "get_rule"
	ToolCategories = "list_categories"
)

// SearchArgs is the input of the "search_rules" tool.
type SearchArgs struct {
	Query      string   `json:"query" jsonschema:"keyword or phrase matched against entity names"`
	Categories []string `json:"categories,omitempty" jsonschema:"restrict results to these categories (singular or plural names)"`
	Deep       bool     `json:"deep,omitempty" jsonschema:"also match against entity text and traits"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results to return"`
}

// GetArgs is the input of the "get_rule" tool. Either ID, or Category and
// Name, must be set.
type GetArgs struct {
	ID       string `json:"id,omitempty" jsonschema:"entity identifier as returned by search_rules"`
	Category string `json:"category,omitempty" jsonschema:"category to look the name up in"`
	Name     string `json:"name,omitempty" jsonschema:"entity name, matched ignoring case and punctuation"`
}

// CategoriesArgs is the (empty) input of the "list_categories" tool.
type CategoriesArgs struct{}

// Handler serves the rules-lookup tools over a catalog source.
type Handler struct {
	source  tools.Source
	metrics *observe.Metrics
	logger  *slog.Logger
}

// Option configures a [Handler].
type Option func(*Handler)

// WithMetrics records tool calls and lookups on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// New returns a Handler querying the catalog returned by source.
func New(source tools.Source, opts ...Option) *Handler {
	h := &Handler{source: source, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register installs the rules-lookup tools on server.
func (h *Handler) Register(server *mcpsdk.Server) {
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolSearch,
		Description: "Search the rules catalog by name. Returns the best matches, an exact match first when there is one. When nothing matches, returns close spellings as suggestions.",
	}, h.Search)
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolGet,
		Description: "Retrieve a single rules entity with its full text, either by id (use search_rules to discover ids) or by category and name.",
	}, h.Get)
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolCategories,
		Description: "List the categories of the rules catalog and how many entities each holds.",
	}, h.Categories)
}

// Search implements "search_rules".
func (h *Handler) Search(ctx context.Context, _ *mcpsdk.CallToolRequest, args SearchArgs) (*mcpsdk.CallToolResult, any, error) {
	start := time.Now()
	cat := h.source()
	if cat == nil {
		return h.done(ctx, ToolSearch, start, notReady())
	}
	if strings.TrimSpace(args.Query) == "" {
		return h.done(ctx, ToolSearch, start, tools.Errorf("query must not be empty"))
	}

	res := cat.Lookup(ctx, search.Query{Text: args.Query, Categories: args.Categories, Deep: args.Deep})
	if args.Limit > 0 && len(res.Scores) > args.Limit {
		res.Scores = res.Scores[:args.Limit]
	}
	out, err := tools.JSON(newSearchView(res))
	if err != nil {
		return h.fail(ctx, ToolSearch, start, err)
	}
	return h.done(ctx, ToolSearch, start, out)
}

// Get implements "get_rule".
func (h *Handler) Get(ctx context.Context, _ *mcpsdk.CallToolRequest, args GetArgs) (*mcpsdk.CallToolResult, any, error) {
	start := time.Now()
	cat := h.source()
	if cat == nil {
		return h.done(ctx, ToolGet, start, notReady())
	}

	var (
		e    *catalog.Entity
		ok   bool
		kind string
	)
	switch {
	case strings.TrimSpace(args.ID) != "":
		kind = "id"
		e, ok = cat.FindByID(strings.TrimSpace(args.ID))
	case strings.TrimSpace(args.Category) != "" && strings.TrimSpace(args.Name) != "":
		kind = "value"
		if _, known := cat.ResolveCategoryAlias(args.Category); !known {
			return h.done(ctx, ToolGet, start, tools.Errorf("unknown category %q", args.Category))
		}
		e, ok = cat.FindByValue(args.Category, args.Name)
	default:
		return h.done(ctx, ToolGet, start, tools.Errorf("either id, or category and name, must be set"))
	}
	h.metrics.RecordLookup(ctx, kind, ok)

	if !ok {
		if kind == "id" {
			return h.done(ctx, ToolGet, start, tools.Errorf("no entity with id %q", args.ID))
		}
		return h.done(ctx, ToolGet, start, tools.Errorf("no %s named %q", args.Category, args.Name))
	}

	v := newEntityView(e, true)
	if rel, found := cat.Related(e); found {
		v.RelatedID = rel.ID
	}
	out, err := tools.JSON(v)
	if err != nil {
		return h.fail(ctx, ToolGet, start, err)
	}
	return h.done(ctx, ToolGet, start, out)
}

// Categories implements "list_categories".
func (h *Handler) Categories(ctx context.Context, _ *mcpsdk.CallToolRequest, _ CategoriesArgs) (*mcpsdk.CallToolResult, any, error) {
	start := time.Now()
	cat := h.source()
	if cat == nil {
		return h.done(ctx, ToolCategories, start, notReady())
	}

	names := cat.AllCategories()
	list := make([]categoryView, 0, len(names))
	for _, name := range names {
		list = append(list, categoryView{Name: name, Plural: cat.Plural(name), Entities: cat.Len(name)})
	}
	out, err := tools.JSON(list)
	if err != nil {
		return h.fail(ctx, ToolCategories, start, err)
	}
	return h.done(ctx, ToolCategories, start, out)
}

func (h *Handler) done(ctx context.Context, tool string, start time.Time, res *mcpsdk.CallToolResult) (*mcpsdk.CallToolResult, any, error) {
	status := "ok"
	if res.IsError {
		status = "error"
	}
	h.metrics.RecordToolCall(ctx, tool, status, time.Since(start).Seconds())
	return res, nil, nil
}

func (h *Handler) fail(ctx context.Context, tool string, start time.Time, err error) (*mcpsdk.CallToolResult, any, error) {
	h.logger.Error("rules tool failed", "tool", tool, "err", err)
	h.metrics.RecordToolCall(ctx, tool, "error", time.Since(start).Seconds())
	return nil, nil, err
}

func notReady() *mcpsdk.CallToolResult {
	return tools.Errorf("The rules catalog is still loading. Please try again shortly.")
}

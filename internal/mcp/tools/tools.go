// Package tools defines what the built-in MCP tool packages share: the view
// of the served catalog they query and helpers for building tool results.
// Each sub-package exports a Register function that installs its tools on an
// MCP server.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/compendium/internal/catalog"
	"github.com/MrWong99/compendium/internal/search"
)

// Catalog is the loaded catalog a tool queries. Implementations must be safe
// for concurrent reads.
type Catalog interface {
	Lookup(ctx context.Context, q search.Query) search.Result
	FindByID(id string) (*catalog.Entity, bool)
	FindByValue(category, value string) (*catalog.Entity, bool)
	Related(e *catalog.Entity) (*catalog.Entity, bool)
	ResolveCategoryAlias(text string) (string, bool)
	AllCategories() []string
	Plural(category string) string
	Len(category string) int
}

// Source returns the catalog currently being served. It returns nil until
// the first catalog load completes. Hot reload may hand out a different
// catalog on every call, so handlers call it once per invocation.
type Source func() Catalog

// Text returns a successful result holding s.
func Text(s string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: s}},
	}
}

// Errorf returns a tool-level error result. Tool errors are reported to the
// client as content, not as protocol errors.
func Errorf(format string, args ...any) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// JSON returns a successful result holding v encoded as indented JSON.
func JSON(v any) (*mcpsdk.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("tools: encode result: %w", err)
	}
	return Text(string(b)), nil
}

// Package mcp exposes the rules catalog as a Model Context Protocol server.
//
// The server carries the tools of [ruleslookup] and can be served over
// stdio ([ServeStdio]) or mounted on an HTTP mux using the streamable HTTP
// transport ([HTTPHandler]).
package mcp

import (
	"context"
	"errors"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/compendium/internal/mcp/tools"
	"github.com/MrWong99/compendium/internal/mcp/tools/ruleslookup"
)

// ServerName is the implementation name reported to MCP clients.
const ServerName = "compendium"

// NewServer returns an MCP server with the rules-lookup tools installed over
// the catalog returned by source.
func NewServer(version string, source tools.Source, opts ...ruleslookup.Option) *mcpsdk.Server {
	s := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    ServerName,
		Version: version,
	}, nil)
	ruleslookup.New(source, opts...).Register(s)
	return s
}

// ServeStdio serves s over stdin/stdout until the client disconnects or ctx
// is cancelled. Cancellation is not reported as an error.
func ServeStdio(ctx context.Context, s *mcpsdk.Server) error {
	return serve(ctx, s, &mcpsdk.StdioTransport{})
}

func serve(ctx context.Context, s *mcpsdk.Server, t mcpsdk.Transport) error {
	err := s.Run(ctx, t)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HTTPHandler returns a streamable HTTP handler serving s for every request.
func HTTPHandler(s *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s
	}, nil)
}

// Package mcp exposes the proxy as a Model Context Protocol server so agents
// can dispatch app actions and discover the catalog as MCP tools.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ericfisherdev/blimp/internal/application"
)

// ErrMissingDispatcher is returned when no dispatcher is provided.
var ErrMissingDispatcher = errors.New("mcp: dispatcher is required")

// ServerName is the implementation name announced to MCP clients.
const ServerName = "blimp"

// Server is the MCP server of the proxy.
type Server struct {
	dispatcher *application.Dispatcher
	server     *mcp.Server
	logger     *slog.Logger
}

// NewServer creates an MCP server whose tools run through dispatcher.
func NewServer(dispatcher *application.Dispatcher, version string, logger *slog.Logger) (*Server, error) {
	if dispatcher == nil {
		return nil, ErrMissingDispatcher
	}
	if logger == nil {
		logger = slog.Default()
	}

	impl := &mcp.Implementation{
		Name:    ServerName,
		Version: version,
	}

	s := &Server{
		dispatcher: dispatcher,
		server:     mcp.NewServer(impl, nil),
		logger:     logger,
	}

	s.registerTools()

	return s, nil
}

// Handler serves the MCP streamable HTTP transport. It is mounted at /mcp
// next to the REST API.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

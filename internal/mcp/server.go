// Package mcp exposes the engine's operations to agents as MCP tools
// served over streamable HTTP.
package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/keremavci/engram/internal/engine"
)

const serverName = "engram"

// Server fronts one engine with the full tool set registered.
type Server struct {
	eng       *engine.Engine
	mcpServer *mcp.Server
}

func NewServer(eng *engine.Engine) *Server {
	s := &Server{
		eng: eng,
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: "0.1.0",
		}, nil),
	}
	s.registerTools()
	return s
}

// Handler serves the MCP session protocol; every request lands on the same
// underlying server instance.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}

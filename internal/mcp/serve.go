package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
)

// DefaultEndpoint is the path of the streamable HTTP endpoint.
const DefaultEndpoint = "/mcp"

// ServeStdio serves s over stdin/stdout until the input closes.
func ServeStdio(s *server.MCPServer) error {
	log.Info().Msg("starting MCP server in stdio mode")
	return server.ServeStdio(s)
}

// ServeHTTP serves s as a streamable HTTP endpoint on addr.
func ServeHTTP(s *server.MCPServer, addr string) error {
	log.Info().Str("addr", addr).Str("endpoint", DefaultEndpoint).Msg("starting MCP server over HTTP")
	httpServer := server.NewStreamableHTTPServer(s, server.WithEndpointPath(DefaultEndpoint))
	return httpServer.Start(addr)
}

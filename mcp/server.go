// Package mcp exposes the commander to agents as stdio MCP tools.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbocsi/radiofleet/services"
)

type Server struct {
	mcpServer *server.MCPServer
	services  *services.ServiceContainer
}

func NewServer(svc *services.ServiceContainer, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer("radiofleet", version),
		services:  svc,
	}
	s.registerFleetTools()
	s.registerDataTools()
	return s
}

// Run serves on stdin/stdout until the stream closes or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()
	err := server.NewStdioServer(s.mcpServer).Listen(ctx, os.Stdin, os.Stdout)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

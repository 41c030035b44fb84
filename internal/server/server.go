// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/muninnlabs/muninn/internal/engine"
	"github.com/muninnlabs/muninn/internal/tools"
)

// MCPServer wraps the mcp-go server with our configuration
type MCPServer struct {
	mcpServer *server.MCPServer
	engine    *engine.Engine
}

// NewMCPServer creates a new MCP server instance and registers the tools
func NewMCPServer(eng *engine.Engine, version string) *MCPServer {
	mcpServer := server.NewMCPServer(
		"Muninn",
		version,
		server.WithToolCapabilities(true),
	)

	srv := &MCPServer{
		mcpServer: mcpServer,
		engine:    eng,
	}
	srv.registerTools()
	return srv
}

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	toolCtx := tools.NewToolContext(s.engine)

	// muninn_recall: assemble remembered context for a prompt
	s.mcpServer.AddTool(tools.NewRecallTool(), tools.RecallHandler(toolCtx))

	// muninn_remember: buffer a turn, optionally flushing to extraction
	s.mcpServer.AddTool(tools.NewRememberTool(), tools.RememberHandler(toolCtx))

	// muninn_flush: force the access-tracking buffer to disk
	s.mcpServer.AddTool(tools.NewFlushTool(), tools.FlushHandler(toolCtx))

	// muninn_status: engine health snapshot
	s.mcpServer.AddTool(tools.NewStatusTool(), tools.StatusHandler(toolCtx))
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the server on stdin/stdout
func (s *MCPServer) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

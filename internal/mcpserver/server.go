// Package mcpserver exposes the execution engine over the Model Context
// Protocol so agent clients can run commands through the same supervised
// path the CLI uses. Communication is stdio JSON-RPC.
package mcpserver

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server instance.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server with the execution tools registered.
func NewServer(version string) *Server {
	s := server.NewMCPServer("bastion-exec", version, server.WithLogging())
	registerTools(s)
	return &Server{mcpServer: s}
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools adds the execution tools to the server.
func registerTools(s *server.MCPServer) {
	runTool := mcp.NewTool("run_command",
		mcp.WithDescription("Run a command under stream supervision and return the structured result: exit status or signal, captured stdout/stderr lines, and per-stream byte counts. No shell interpretation."),
		mcp.WithString("cmd",
			mcp.Description("Command and arguments, whitespace-separated. The first token is the executable."),
			mcp.Required(),
		),
		mcp.WithString("stdin",
			mcp.Description("Bytes to write to the child's stdin before closing it"),
		),
		mcp.WithBoolean("must_succeed",
			mcp.Description("Report a non-zero exit as an error-kind result"),
		),
		mcp.WithNumber("max_stdout_bytes",
			mcp.Description("Cap on captured stdout bytes; the child is cut off once reached"),
		),
	)
	s.AddTool(runTool, handleRunCommand)

	helperTool := mcp.NewTool("run_helper",
		mcp.WithDescription("Run a helper command, extract its JSON_START/JSON_END envelope from stdout, and return the unwrapped result."),
		mcp.WithString("cmd",
			mcp.Description("Helper command and arguments, whitespace-separated"),
			mcp.Required(),
		),
	)
	s.AddTool(helperTool, handleRunHelper)
}

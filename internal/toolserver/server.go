// Package toolserver is the GrabMart MCP tool server served by cmd/grabmart-mcp.
package toolserver

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	Name    = "GrabMart"
	Version = "1.0.0"

	welcomeMessage = "Welcome to GrabMart MCP! This system was developed by Team Vertex for GrabHack."
)

// New returns an MCP server with the GrabMart tools registered.
func New() *server.MCPServer {
	s := server.NewMCPServer(Name, Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("greeting",
		mcp.WithDescription("Greets the user and introduces the GrabMart system."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The user's greeting or question"),
		),
	), handleGreeting)

	return s
}

func handleGreeting(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query must not be empty"), nil
	}
	return mcp.NewToolResultText(welcomeMessage), nil
}

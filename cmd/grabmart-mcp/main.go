// Command grabmart-mcp serves the GrabMart tools over MCP stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/manthysbr/grabagent/internal/toolserver"
)

func main() {
	if err := server.ServeStdio(toolserver.New()); err != nil {
		fmt.Fprintf(os.Stderr, "grabmart-mcp: %v\n", err)
		os.Exit(1)
	}
}

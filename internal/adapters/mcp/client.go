// Package mcp adapts an MCP server to domain.ToolProvider.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	clientName    = "grabagent"
	clientVersion = "1.0.0"
)

// Client is a connected MCP session exposed as a domain.ToolProvider.
type Client struct {
	logger     *slog.Logger
	client     *mcpclient.Client
	serverName string
	connected  atomic.Bool
}

// ConnectStdio launches the tool server command and performs the MCP
// handshake over its stdin/stdout.
func ConnectStdio(ctx context.Context, logger *slog.Logger, cfg domain.MCPConfig) (*Client, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp: no server command configured")
	}
	c, err := mcpclient.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: start %s: %w", cfg.Command, err)
	}
	return Connect(ctx, logger, c)
}

// Connect starts and initializes an already constructed mcp-go client
// (stdio, SSE, streamable HTTP or in-process).
func Connect(ctx context.Context, logger *slog.Logger, c *mcpclient.Client) (*Client, error) {
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp: start transport: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}

	res, err := c.Initialize(ctx, req)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp: initialize: %w", err)
	}

	cl := &Client{
		logger:     logger,
		client:     c,
		serverName: res.ServerInfo.Name,
	}
	cl.connected.Store(true)
	c.OnConnectionLost(func(err error) {
		cl.connected.Store(false)
		logger.Error("mcp connection lost", "server", cl.serverName, "error", err)
	})

	logger.Info("connected to mcp server",
		"server", res.ServerInfo.Name,
		"version", res.ServerInfo.Version,
		"protocol", res.ProtocolVersion,
	)
	return cl, nil
}

// Connected reports whether the session is usable.
func (c *Client) Connected() bool { return c != nil && c.connected.Load() }

func (c *Client) ServerName() string { return c.serverName }

// ListTools implements domain.ToolProvider. Pagination is handled by mcp-go.
func (c *Client) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	res, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: tools/list: %w", err)
	}

	tools := make([]domain.ToolDescriptor, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, domain.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			Schema:      inputSchema(t),
		})
	}
	return tools, nil
}

// CallTool implements domain.ToolProvider. A transport failure is returned
// as an error; a tool-side failure (isError) comes back as an error result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (domain.ToolInvocationResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.client.CallTool(ctx, req)
	if err != nil {
		return domain.ToolInvocationResult{}, fmt.Errorf("mcp: tools/call %s: %w", name, err)
	}
	return toResult(res), nil
}

// Close terminates the session and, for stdio, the server process.
func (c *Client) Close() error {
	c.connected.Store(false)
	return c.client.Close()
}

// toResult maps an MCP tool result onto the closed set of result variants.
func toResult(res *mcp.CallToolResult) domain.ToolInvocationResult {
	text := contentText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error without details"
		}
		return domain.ErrorResult(fmt.Errorf("%w: %s", domain.ErrToolExecution, text))
	}
	if res.StructuredContent != nil {
		return domain.StructuredResult(res.StructuredContent)
	}
	return domain.ContentResult(text)
}

func contentText(items []mcp.Content) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		case mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes base64]", v.MIMEType, len(v.Data)))
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes base64]", v.MIMEType, len(v.Data)))
		default:
			data, err := json.Marshal(item)
			if err != nil {
				continue
			}
			parts = append(parts, string(data))
		}
	}
	return strings.Join(parts, "\n")
}

func inputSchema(t mcp.Tool) map[string]any {
	if len(t.RawInputSchema) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(t.RawInputSchema, &schema); err == nil {
			return schema
		}
	}
	schema := map[string]any{"type": t.InputSchema.Type}
	if schema["type"] == "" {
		schema["type"] = "object"
	}
	if len(t.InputSchema.Properties) > 0 {
		schema["properties"] = t.InputSchema.Properties
	}
	if len(t.InputSchema.Required) > 0 {
		schema["required"] = t.InputSchema.Required
	}
	if len(t.InputSchema.Defs) > 0 {
		schema["$defs"] = t.InputSchema.Defs
	}
	return schema
}

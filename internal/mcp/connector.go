package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/agentcore/internal/tools"
)

// Connector adapts a single MCP server connection to the
// agentcore.ToolProvider contract, so ConnectToolProviders can fold an
// MCP server's tools into the ordinary ToolRegistry alongside local and
// skill_script tools.
type Connector struct {
	client *Client
	cfg    *ServerConfig
	logger *slog.Logger
}

// NewConnector builds a Connector for the given server configuration. It
// does not connect; call Connect to dial the transport and fetch the
// server's capabilities.
func NewConnector(cfg *ServerConfig, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		client: NewClient(cfg, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// ID identifies this provider by its configured server ID.
func (c *Connector) ID() string { return c.cfg.ID }

// Connect dials the underlying transport and performs the MCP
// initialize handshake.
func (c *Connector) Connect(ctx context.Context) error {
	return c.client.Connect(ctx)
}

// ListTools translates the server's advertised tools into tool
// descriptors, tagged KindMCP so the registry and BM25 tie-break can
// rank them below locally implemented tools.
func (c *Connector) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	if err := c.client.RefreshCapabilities(ctx); err != nil {
		return nil, fmt.Errorf("mcp connector %s: refresh capabilities: %w", c.cfg.ID, err)
	}

	mcpTools := c.client.Tools()
	descriptors := make([]tools.Descriptor, 0, len(mcpTools))
	for _, t := range mcpTools {
		descriptors = append(descriptors, tools.Descriptor{
			Name:             qualifiedToolName(c.cfg.ID, t.Name),
			Description:      t.Description,
			ParametersSchema: t.InputSchema,
			Kind:             tools.KindMCP,
		})
	}
	return descriptors, nil
}

// Call invokes a tool by its registry-qualified name, stripping this
// connector's server-ID prefix before forwarding to the MCP server.
func (c *Connector) Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	toolName, err := unqualifyToolName(c.cfg.ID, name)
	if err != nil {
		return nil, err
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return nil, fmt.Errorf("mcp connector %s: unmarshal arguments: %w", c.cfg.ID, err)
		}
	}

	result, err := c.client.CallTool(ctx, toolName, arguments)
	if err != nil {
		return nil, fmt.Errorf("mcp connector %s: call %s: %w", c.cfg.ID, toolName, err)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("mcp connector %s: marshal result: %w", c.cfg.ID, err)
	}
	return out, nil
}

// Close tears down the transport connection.
func (c *Connector) Close() error {
	return c.client.Close()
}

// qualifiedToolName namespaces an MCP tool under its server ID so two
// servers exposing the same bare tool name never collide in the shared
// registry.
func qualifiedToolName(serverID, toolName string) string {
	return fmt.Sprintf("mcp__%s__%s", serverID, toolName)
}

// unqualifyToolName reverses qualifiedToolName, rejecting names that
// don't belong to this connector's server ID.
func unqualifyToolName(serverID, qualified string) (string, error) {
	prefix := fmt.Sprintf("mcp__%s__", serverID)
	if len(qualified) <= len(prefix) || qualified[:len(prefix)] != prefix {
		return "", fmt.Errorf("mcp connector %s: tool name %q does not belong to this server", serverID, qualified)
	}
	return qualified[len(prefix):], nil
}

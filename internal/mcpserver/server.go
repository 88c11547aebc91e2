// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package mcpserver exposes a tool registry over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"fsguard/internal/tools"
)

// New builds an MCP server advertising every tool the registry exposes.
func New(registry *tools.Registry, version string, log zerolog.Logger) *mcp.Server {
	impl := &mcp.Implementation{
		Name:    "fsguard",
		Title:   "Sandboxed filesystem and command tools",
		Version: version,
	}
	instructions, err := Instructions()
	if err != nil {
		log.Warn().Err(err).Msg("serving without instructions")
	}
	server := mcp.NewServer(impl, &mcp.ServerOptions{Instructions: instructions})
	Register(server, registry, log)
	return server
}

// Register adds the registry's tools to server. Arguments are passed through
// untouched; the registry validates them before dispatch.
func Register(server *mcp.Server, registry *tools.Registry, log zerolog.Logger) {
	for _, tool := range registry.Tools() {
		server.AddTool(&mcp.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Parameters(),
		}, handler(registry, tool.Name(), log))
	}
}

func handler(registry *tools.Registry, name string, log zerolog.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw []byte
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		result := registry.ExecuteJSON(ctx, name, raw)
		if result.Error != nil {
			log.Debug().Str("tool", name).Err(result.Error).Msg("mcp tool call failed")
		}
		return toCallToolResult(result), nil
	}
}

// toCallToolResult reports failures in-band with IsError set so the calling
// model can see them, never as protocol errors.
func toCallToolResult(result *tools.ToolResult) *mcp.CallToolResult {
	text := result.JSON()
	res := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: result.Error != nil,
	}
	// Structured content must be an object; read_files returns a list.
	if strings.HasPrefix(text, "{") {
		res.StructuredContent = json.RawMessage(text)
	}
	return res
}

// Serve runs server over stdin/stdout until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

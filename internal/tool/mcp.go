package tool

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/nidhogg/taskforce/internal/mcp"
)

// mcpCaller is the slice of *mcp.Client a bridged tool needs.
type mcpCaller interface {
	Name() string
	CallTool(ctx context.Context, name string, args json.RawMessage) (mcp.CallResult, error)
}

// MCPTool exposes one MCP server tool through the Tool interface.
type MCPTool struct {
	client mcpCaller
	info   mcp.ToolInfo
}

// NewMCPTool wraps a discovered MCP tool.
func NewMCPTool(client mcpCaller, info mcp.ToolInfo) *MCPTool {
	return &MCPTool{client: client, info: info}
}

func (t *MCPTool) Metadata() Metadata {
	return Metadata{
		Name:        t.client.Name() + "_" + t.info.Name,
		Description: t.info.Description,
		Parameters:  schemaParameters(t.info.InputSchema),
	}
}

func (t *MCPTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	res, err := t.client.CallTool(ctx, t.info.Name, args)
	if err != nil {
		return Result{}, err
	}
	if res.IsError {
		return Failure("%s", res.Text), nil
	}
	return Success(res.Text), nil
}

// RegisterMCPTools bridges every tool of every client into reg.
func RegisterMCPTools(reg *Registry, clients []*mcp.Client) int {
	n := 0
	for _, c := range clients {
		for _, info := range c.ListTools() {
			reg.Register(NewMCPTool(c, info))
			n++
		}
	}
	return n
}

// schemaParameters flattens a JSON Schema object into catalog parameters.
func schemaParameters(schema map[string]interface{}) []Parameter {
	props, _ := schema["properties"].(map[string]interface{})
	required := map[string]bool{}
	if req, ok := schema["required"].([]interface{}); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	sort.Strings(names)

	params := make([]Parameter, 0, len(names))
	for _, n := range names {
		p := Parameter{Name: n, Type: "any", Required: required[n]}
		if def, ok := props[n].(map[string]interface{}); ok {
			if typ, ok := def["type"].(string); ok {
				p.Type = typ
			}
			if desc, ok := def["description"].(string); ok {
				p.Description = desc
			}
		}
		params = append(params, p)
	}
	return params
}

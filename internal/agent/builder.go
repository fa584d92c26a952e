package agent

import (
	"encoding/json"
	"fmt"

	"github.com/nidhogg/taskforce/internal/tool"
)

// Builder assembles a specialized agent fluently.
type Builder struct {
	name             string
	description      string
	systemPrompt     string
	toolNames        []string
	tools            []tool.Tool
	responseSchema   json.RawMessage
	returnToolOutput bool
}

// NewBuilder starts an agent definition.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Description is what routers and supervisors read to pick this agent.
func (b *Builder) Description(d string) *Builder {
	b.description = d
	return b
}

func (b *Builder) SystemPrompt(p string) *Builder {
	b.systemPrompt = p
	return b
}

// Tools grants registry tools by name.
func (b *Builder) Tools(names ...string) *Builder {
	b.toolNames = append(b.toolNames, names...)
	return b
}

// Tool grants a tool instance that need not be in the shared registry.
func (b *Builder) Tool(t tool.Tool) *Builder {
	b.tools = append(b.tools, t)
	return b
}

func (b *Builder) ResponseSchema(schema json.RawMessage) *Builder {
	b.responseSchema = schema
	return b
}

func (b *Builder) ReturnToolOutput(enabled bool) *Builder {
	b.returnToolOutput = enabled
	return b
}

// Name returns the agent name being built.
func (b *Builder) Name() string { return b.name }

// ToolCount counts granted tools of both kinds.
func (b *Builder) ToolCount() int { return len(b.toolNames) + len(b.tools) }

// Config resolves defaults and returns the agent configuration.
func (b *Builder) Config() Config {
	desc := b.description
	if desc == "" {
		desc = "Specialized agent: " + b.name
	}
	prompt := b.systemPrompt
	if prompt == "" {
		prompt = fmt.Sprintf("You are a specialized agent named %s. Use your available tools to complete tasks.", b.name)
	}
	names := make([]string, 0, b.ToolCount())
	names = append(names, b.toolNames...)
	for _, t := range b.tools {
		names = append(names, t.Metadata().Name)
	}
	return Config{
		Name:             b.name,
		Description:      desc,
		SystemPrompt:     prompt,
		Tools:            names,
		ResponseSchema:   b.responseSchema,
		ReturnToolOutput: b.returnToolOutput,
	}
}

// Build creates the agent. Named tools are resolved against deps.Tools.
func (b *Builder) Build(deps Deps) (*SpecializedAgent, error) {
	cfg := b.Config()
	if len(b.tools) == 0 {
		return NewSpecializedAgent(cfg, deps)
	}

	reg := tool.NewRegistry(b.tools...)
	for _, name := range b.toolNames {
		if deps.Tools == nil {
			return nil, fmt.Errorf("build agent %s: %s: %w", b.name, name, tool.ErrToolNotFound)
		}
		t, ok := deps.Tools.Get(name)
		if !ok {
			return nil, fmt.Errorf("build agent %s: %s: %w", b.name, name, tool.ErrToolNotFound)
		}
		reg.Register(t)
	}
	deps.Tools = reg
	return NewSpecializedAgent(cfg, deps)
}

// BuildAll builds every definition into a catalog.
func BuildAll(deps Deps, builders ...*Builder) (*Catalog, error) {
	catalog := NewCatalog(deps.Logger)
	for _, b := range builders {
		a, err := b.Build(deps)
		if err != nil {
			return nil, err
		}
		catalog.Register(a)
	}
	return catalog, nil
}

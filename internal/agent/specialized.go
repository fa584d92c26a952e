package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nidhogg/taskforce/internal/metrics"
	"github.com/nidhogg/taskforce/internal/provider"
	"github.com/nidhogg/taskforce/internal/tool"
	"go.uber.org/zap"
)

// ErrAgentNotFound is returned when an agent name is not registered.
var ErrAgentNotFound = fmt.Errorf("agent not found")

// Config describes a specialized agent.
type Config struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	SystemPrompt string   `json:"system_prompt"`
	Tools        []string `json:"tools"`
	// ResponseSchema is an optional JSON schema the agent's answers are
	// expected to follow. It is advertised, not enforced.
	ResponseSchema json.RawMessage `json:"response_schema,omitempty"`
	// ReturnToolOutput replaces the LLM's final answer with the raw output
	// of the last successful tool call.
	ReturnToolOutput bool `json:"return_tool_output"`
}

// Deps are the shared collaborators every agent is built from.
type Deps struct {
	LLM      provider.Chatter
	Tools    *tool.Registry
	Executor *tool.Executor
	Metrics  *metrics.Recorder
	Logger   *zap.Logger

	// Compactor bounds session history. Nil keeps it whole.
	Compactor *Compactor
}

// SpecializedAgent is a reasoning loop fixed to a domain prompt and a tool subset.
type SpecializedAgent struct {
	config Config
	loop   *Loop
	logger *zap.Logger
}

// NewSpecializedAgent builds an agent whose toolset is cfg.Tools picked from
// deps.Tools. An empty cfg.Tools grants every registered tool.
func NewSpecializedAgent(cfg Config, deps Deps) (*SpecializedAgent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	tools := deps.Tools
	if tools == nil {
		tools = tool.NewRegistry()
	}
	if len(cfg.Tools) > 0 {
		sub, err := tools.Subset(cfg.Tools...)
		if err != nil {
			return nil, fmt.Errorf("build agent %s: %w", cfg.Name, err)
		}
		tools = sub
	}
	logger := deps.Logger.With(zap.String("agent", cfg.Name))
	return &SpecializedAgent{
		config: cfg,
		loop:   NewLoop(deps.LLM, tools, deps.Executor, deps.Metrics, logger),
		logger: logger,
	}, nil
}

func (a *SpecializedAgent) Name() string        { return a.config.Name }
func (a *SpecializedAgent) Description() string { return a.config.Description }
func (a *SpecializedAgent) Config() Config      { return a.config }

// ToolNames lists the tools this agent can call.
func (a *SpecializedAgent) ToolNames() []string { return a.loop.Tools().Names() }

// ExecuteTask runs task without injected context.
func (a *SpecializedAgent) ExecuteTask(ctx context.Context, task string, maxIterations int) Response {
	return a.ExecuteWithContext(ctx, task, nil, maxIterations)
}

// ExecuteWithContext runs task with data from earlier agents embedded in the
// system prompt. A nil context omits the context section.
func (a *SpecializedAgent) ExecuteWithContext(ctx context.Context, task string, data json.RawMessage, maxIterations int) Response {
	a.logger.Info("executing task", zap.Int("max_iterations", maxIterations), zap.Bool("has_context", len(data) > 0))
	return a.loop.Run(ctx, task, RunOptions{
		Name:             a.config.Name,
		SystemPrompt:     a.systemPrompt(),
		Context:          data,
		MaxIterations:    maxIterations,
		ReturnToolOutput: a.config.ReturnToolOutput,
	})
}

func (a *SpecializedAgent) systemPrompt() string {
	if len(a.config.ResponseSchema) == 0 {
		return a.config.SystemPrompt
	}
	return a.config.SystemPrompt + "\n\nYour final_answer should follow this JSON schema:\n" + string(a.config.ResponseSchema)
}

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/nidhogg/taskforce/internal/provider"
	"go.uber.org/zap"
)

// RoutingDecision is the classifier's pick.
type RoutingDecision struct {
	AgentName string `json:"agent_name"`
	Reasoning string `json:"reasoning"`
}

// RouterAgent classifies a task once and hands it to one specialized agent.
type RouterAgent struct {
	catalog *Catalog
	llm     provider.Chatter
	logger  *zap.Logger
}

// NewRouterAgent creates a router over catalog.
func NewRouterAgent(catalog *Catalog, llm provider.Chatter, logger *zap.Logger) *RouterAgent {
	return &RouterAgent{catalog: catalog, llm: llm, logger: logger}
}

// Route classifies task and runs the chosen agent, falling back to
// general_agent when the pick is unknown.
func (r *RouterAgent) Route(ctx context.Context, task string, maxIterations int) Response {
	r.logger.Info("routing task", zap.String("task", task))

	decision, err := r.Classify(ctx, task)
	if err != nil {
		r.logger.Error("failed to classify intent", zap.Error(err))
		return Failure(fmt.Sprintf("Failed to classify intent: %v", err), nil, nil,
			Failed(fmt.Sprintf("Intent classification failed: %v", err), true))
	}
	r.logger.Info("routing decision",
		zap.String("agent", decision.AgentName),
		zap.String("reasoning", decision.Reasoning))

	if a, ok := r.catalog.Get(decision.AgentName); ok {
		return a.ExecuteTask(ctx, task, maxIterations)
	}
	r.logger.Warn("routed agent not found", zap.String("agent", decision.AgentName))
	if fallback, ok := r.catalog.Get(GeneralAgent); ok {
		r.logger.Info("falling back to general agent")
		return fallback.ExecuteTask(ctx, task, maxIterations)
	}
	return Failure(fmt.Sprintf("Agent '%s' not found and no fallback available", decision.AgentName), nil, nil,
		Failed("No suitable agent found for routing", false))
}

// Classify asks the LLM which agent should handle task. An unparsable reply
// selects general_agent.
func (r *RouterAgent) Classify(ctx context.Context, task string) (RoutingDecision, error) {
	if r.llm == nil {
		return RoutingDecision{}, provider.ErrNoProvider
	}
	reply, err := r.llm.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: r.prompt()},
		{Role: provider.RoleUser, Content: TaskMessage(task)},
	})
	if err != nil {
		return RoutingDecision{}, err
	}
	decision, tier := DecodeJSON[RoutingDecision](reply)
	if tier == TierRaw || decision.AgentName == "" {
		r.logger.Warn("failed to parse routing decision, using general agent")
		return RoutingDecision{
			AgentName: GeneralAgent,
			Reasoning: "Failed to parse router response, using general agent as fallback",
		}, nil
	}
	return decision, nil
}

func (r *RouterAgent) prompt() string {
	var lines []string
	for _, a := range r.catalog.List() {
		lines = append(lines, fmt.Sprintf("- %s: %s", a.Name(), a.Description()))
	}
	return "You are a router that classifies user requests and determines which specialized agent should handle them.\n\n" +
		"Available Agents:\n" + strings.Join(lines, "\n") + "\n\n" +
		"Your task is to analyze the user's request and decide which agent is best suited to handle it.\n\n" +
		"IMPORTANT: You MUST respond in this EXACT JSON format:\n" +
		"{\n  \"agent_name\": \"the_agent_name\",\n  \"reasoning\": \"why this agent is the best choice\"\n}\n\n" +
		"Guidelines:\n" +
		"- If the task involves file operations (reading/writing files), choose 'file_ops_agent'\n" +
		"- If the task involves shell commands or system operations, choose 'shell_agent'\n" +
		"- If the task involves web requests or fetching online data, choose 'web_agent'\n" +
		"- If the task requires multiple tool types or is unclear, choose 'general_agent'\n\n" +
		"Respond with valid JSON only. No extra text."
}

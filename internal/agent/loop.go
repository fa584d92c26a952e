package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nidhogg/taskforce/internal/metrics"
	"github.com/nidhogg/taskforce/internal/provider"
	"github.com/nidhogg/taskforce/internal/tool"
	"go.uber.org/zap"
)

// DefaultMaxIterations bounds a run when the caller does not.
const DefaultMaxIterations = 10

const (
	implicitThought      = "Task completed based on previous observations"
	noProgressMessage    = "No action specified and no prior progress"
	timeoutPartialResult = "Max iterations reached without completing task"
)

// RunOptions parameterize one reasoning run.
type RunOptions struct {
	// Name labels logs, metrics and response metadata.
	Name string
	// SystemPrompt is the domain preamble; empty selects the generic one.
	SystemPrompt string
	// Context is structured data embedded into the system prompt.
	Context json.RawMessage
	// History holds earlier conversation turns placed before the task.
	History          []provider.Message
	MaxIterations    int
	ReturnToolOutput bool
}

// Loop is the think/act/observe engine shared by every agent. It holds no
// per-run state, so one Loop may serve concurrent runs.
type Loop struct {
	llm      provider.Chatter
	tools    *tool.Registry
	executor *tool.Executor
	metrics  *metrics.Recorder
	logger   *zap.Logger
}

// NewLoop creates a reasoning loop over the given tools.
func NewLoop(llm provider.Chatter, tools *tool.Registry, executor *tool.Executor, rec *metrics.Recorder, logger *zap.Logger) *Loop {
	if tools == nil {
		tools = tool.NewRegistry()
	}
	if executor == nil {
		executor = tool.NewExecutor(tool.DefaultConfig(), rec, logger)
	}
	return &Loop{
		llm:      llm,
		tools:    tools,
		executor: executor,
		metrics:  rec,
		logger:   logger,
	}
}

// Tools returns the registry this loop acts through.
func (l *Loop) Tools() *tool.Registry { return l.tools }

// run holds the state of a single Run call.
type run struct {
	opts           RunOptions
	start          time.Time
	messages       []provider.Message
	steps          []Step
	toolCalls      []ToolCallMetadata
	lastToolOutput string
	hasToolOutput  bool
	// observed counts steps that carry an observation, empty output included.
	observed int
}

// Run executes the loop for task until a final answer, an LLM failure or
// iteration exhaustion.
func (l *Loop) Run(ctx context.Context, task string, opts RunOptions) Response {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	messages := make([]provider.Message, 0, len(opts.History)+2)
	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: BuildSystemPrompt(opts.SystemPrompt, l.tools.Description(), opts.Context, opts.MaxIterations),
	})
	messages = append(messages, opts.History...)
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: TaskMessage(task)})
	r := &run{opts: opts, start: time.Now(), messages: messages}

	resp := l.loop(ctx, r)
	l.metrics.ObserveRun(opts.Name, string(resp.Outcome))
	l.logger.Info("agent run finished",
		zap.String("agent", opts.Name),
		zap.String("outcome", string(resp.Outcome)),
		zap.Int("steps", len(resp.Steps)),
		zap.Int("tool_calls", len(r.toolCalls)))
	return resp
}

func (l *Loop) loop(ctx context.Context, r *run) Response {
	if l.llm == nil {
		l.logger.Error("no LLM configured", zap.String("agent", r.opts.Name))
		return NoModel()
	}
	limit := r.opts.MaxIterations
	for iteration := 0; iteration < limit; iteration++ {
		l.logger.Debug("agent iteration",
			zap.String("agent", r.opts.Name),
			zap.Int("iteration", iteration+1),
			zap.Int("max", limit))

		reply, err := l.llm.Chat(ctx, r.messages)
		if err != nil {
			l.logger.Error("failed to get decision", zap.String("agent", r.opts.Name), zap.Error(err))
			return Failure(fmt.Sprintf("Failed to reason: %v", err), r.steps, nil,
				Failed(fmt.Sprintf("LLM reasoning failed: %v", err), true))
		}

		decision, tier := DecodeDecision(reply)
		if tier != TierStrict {
			l.logger.Debug("decision not strict JSON",
				zap.String("agent", r.opts.Name), zap.Stringer("tier", tier))
		}
		remaining := limit - iteration - 1

		if decision.IsFinal {
			answer := l.finalAnswer(r, decision)
			r.observe(Step{Iteration: iteration, Thought: decision.Thought, Observation: answer})
			return Success(answer, r.steps, r.metadata(1.0), Complete(1.0))
		}

		if decision.Action != nil {
			l.act(ctx, r, iteration, remaining, decision)
			continue
		}

		if r.hasObservation() {
			result := l.implicitResult(r, decision)
			r.observe(Step{Iteration: iteration, Thought: implicitThought, Observation: result})
			l.logger.Info("task appears complete, no new action", zap.String("agent", r.opts.Name))
			return Success(result, r.steps, r.metadata(0.8), Complete(0.8))
		}

		l.logger.Warn(noProgressMessage, zap.String("agent", r.opts.Name))
		r.messages = append(r.messages,
			provider.Message{Role: provider.RoleAssistant, Content: reply},
			provider.Message{Role: provider.RoleUser, Content: ObservationMessage("Error: "+noProgressMessage, remaining)})
		r.observe(Step{Iteration: iteration, Thought: decision.Thought, Observation: noProgressMessage})
	}

	progress := r.progress()
	meta := r.metadata(progress)
	return Timeout(timeoutPartialResult, r.steps, meta,
		Partial(progress, "Increase max_iterations or simplify task"))
}

func (l *Loop) act(ctx context.Context, r *run, iteration, remaining int, decision Decision) {
	action := decision.Action
	t, ok := l.tools.Get(action.Tool)
	if !ok {
		msg := fmt.Sprintf("Tool '%s' not found", action.Tool)
		l.logger.Warn("unknown tool requested", zap.String("agent", r.opts.Name), zap.String("tool", action.Tool))
		r.messages = append(r.messages,
			provider.Message{Role: provider.RoleAssistant, Content: encodeDecision(decision)},
			provider.Message{Role: provider.RoleUser, Content: ObservationMessage("Error: "+msg, remaining)})
		r.observe(Step{Iteration: iteration, Thought: decision.Thought, Action: action.Tool, Observation: msg})
		return
	}

	input := action.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	l.logger.Info("executing tool", zap.String("agent", r.opts.Name), zap.String("tool", action.Tool))
	started := time.Now()
	res := l.executor.Execute(ctx, t, input)

	r.toolCalls = append(r.toolCalls, ToolCallMetadata{
		ToolName:   action.Tool,
		InputSize:  len(input),
		OutputSize: len(res.Output),
		DurationMs: time.Since(started).Milliseconds(),
		Success:    res.Success,
	})

	var observation string
	if res.Success {
		observation = res.Output
		r.lastToolOutput = res.Output
		r.hasToolOutput = true
	} else {
		observation = "Tool failed: " + res.Error
	}

	r.messages = append(r.messages,
		provider.Message{Role: provider.RoleAssistant, Content: encodeDecision(decision)},
		provider.Message{Role: provider.RoleUser, Content: ObservationMessage(observation, remaining)})
	r.observe(Step{Iteration: iteration, Thought: decision.Thought, Action: action.Tool, Observation: observation})
}

func (l *Loop) finalAnswer(r *run, d Decision) string {
	answer, ok := d.Answer()
	if !r.opts.ReturnToolOutput {
		if !ok {
			return "Task completed without explicit answer"
		}
		return answer
	}
	if r.hasToolOutput {
		return r.lastToolOutput
	}
	l.logger.Warn("return_tool_output set but no tool output available", zap.String("agent", r.opts.Name))
	if !ok {
		return "Task completed without tool output"
	}
	return answer
}

func (l *Loop) implicitResult(r *run, d Decision) string {
	if r.opts.ReturnToolOutput && r.hasToolOutput {
		return r.lastToolOutput
	}
	if !r.opts.ReturnToolOutput && d.Thought != "" {
		return d.Thought
	}
	if n := len(r.steps); n > 0 && r.steps[n-1].Observation != "" {
		return r.steps[n-1].Observation
	}
	return "Task completed"
}

func (r *run) observe(s Step) {
	r.steps = append(r.steps, s)
	r.observed++
}

func (r *run) hasObservation() bool { return r.observed > 0 }

// progress is the observed-step ratio, capped at 0.9.
func (r *run) progress() float64 {
	p := float64(r.observed) / float64(r.opts.MaxIterations)
	if p > 0.9 {
		return 0.9
	}
	return p
}

func (r *run) metadata(confidence float64) *OutputMetadata {
	calls := make([]ToolCallMetadata, len(r.toolCalls))
	copy(calls, r.toolCalls)
	return &OutputMetadata{
		Confidence:      confidence,
		ExecutionTimeMs: time.Since(r.start).Milliseconds(),
		ToolCalls:       calls,
		AgentName:       r.opts.Name,
	}
}

// Package orchestrator coordinates specialized agents: the supervisor plans
// sub-goals and invokes agents step by step, and the batch runner fans
// independent tasks out over a bounded pool.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/taskforce/internal/agent"
	"github.com/nidhogg/taskforce/internal/handoff"
	"github.com/nidhogg/taskforce/internal/metrics"
	"github.com/nidhogg/taskforce/internal/provider"
	"go.uber.org/zap"
)

const defaultFinalAnswer = "Task completed without explicit answer"

// Config bounds a supervisor run.
type Config struct {
	MaxSteps      int `json:"max_orchestration_steps" yaml:"max_orchestration_steps"`
	MaxSubGoals   int `json:"max_sub_goals" yaml:"max_sub_goals"`
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// AgentTimeout bounds one agent invocation. Zero means no bound.
	AgentTimeout time.Duration `json:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{MaxSteps: 20, MaxSubGoals: 10, MaxIterations: agent.DefaultMaxIterations}
}

// Executor is the part of a specialized agent the supervisor drives.
type Executor interface {
	Name() string
	Description() string
	ExecuteWithContext(ctx context.Context, task string, data json.RawMessage, maxIterations int) agent.Response
}

// Executors adapts every agent of a catalog.
func Executors(c *agent.Catalog) []Executor {
	list := c.List()
	out := make([]Executor, len(list))
	for i, a := range list {
		out[i] = a
	}
	return out
}

// SubGoalSpec is a sub-goal as declared by the supervisor LLM.
type SubGoalSpec struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// SupervisorDecision is the per-step JSON contract of the supervisor LLM.
type SupervisorDecision struct {
	Thought       string          `json:"thought"`
	SubGoals      []SubGoalSpec   `json:"sub_goals"`
	AgentToInvoke string          `json:"agent_to_invoke"`
	AgentTask     *string         `json:"agent_task"`
	SubGoalID     string          `json:"sub_goal_id"`
	IsFinal       bool            `json:"is_final"`
	FinalAnswer   json.RawMessage `json:"final_answer"`
}

// Supervisor decomposes a task into sub-goals and delegates each one to a
// specialized agent, optionally gating every handoff through contracts.
type Supervisor struct {
	llm         provider.Chatter
	agents      map[string]Executor
	cfg         Config
	coordinator *handoff.Coordinator
	bus         *EventBus
	metrics     *metrics.Recorder
	logger      *zap.Logger
}

// NewSupervisor creates a supervisor over agents. Zero config fields take
// their defaults.
func NewSupervisor(llm provider.Chatter, agents []Executor, cfg Config, logger *zap.Logger) *Supervisor {
	def := DefaultConfig()
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.MaxSubGoals <= 0 {
		cfg.MaxSubGoals = def.MaxSubGoals
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	byName := make(map[string]Executor, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}
	return &Supervisor{
		llm:    llm,
		agents: byName,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "supervisor")),
	}
}

// WithCoordinator gates every agent result through its "{agent}_handoff"
// contract when one is registered.
func (s *Supervisor) WithCoordinator(c *handoff.Coordinator) *Supervisor {
	s.coordinator = c
	return s
}

func (s *Supervisor) WithEventBus(b *EventBus) *Supervisor {
	s.bus = b
	return s
}

func (s *Supervisor) WithMetrics(rec *metrics.Recorder) *Supervisor {
	s.metrics = rec
	return s
}

// Agents lists the agent names in sorted order.
func (s *Supervisor) Agents() []string {
	names := make([]string, 0, len(s.agents))
	for n := range s.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// orchestration is the state of one Orchestrate call.
type orchestration struct {
	runID       string
	messages    []provider.Message
	steps       []agent.Step
	progress    *TaskProgress
	planned     bool
	outputs     map[string]json.RawMessage
	invocations int
}

// contextData merges every successful result so far, keyed "{agent}_output".
func (o *orchestration) contextData() json.RawMessage {
	if len(o.outputs) == 0 {
		return nil
	}
	data, err := json.Marshal(o.outputs)
	if err != nil {
		return nil
	}
	return data
}

func (o *orchestration) storeOutput(agentName, result string) {
	value := json.RawMessage(strings.TrimSpace(result))
	if !json.Valid(value) {
		value, _ = json.Marshal(result)
	}
	o.outputs[agentName+"_output"] = value
}

// Orchestrate runs task to completion, failure or step exhaustion.
func (s *Supervisor) Orchestrate(ctx context.Context, task string) agent.Response {
	start := time.Now()
	o := &orchestration{
		runID:    uuid.New().String(),
		progress: NewTaskProgress(),
		outputs:  make(map[string]json.RawMessage),
	}
	o.messages = []provider.Message{
		{Role: provider.RoleSystem, Content: supervisorPrompt(s.sortedAgents(), s.cfg.MaxSteps, s.cfg.MaxSubGoals)},
		{Role: provider.RoleUser, Content: agent.TaskMessage(task)},
	}

	s.logger.Info("orchestration started",
		zap.String("run", o.runID),
		zap.Int("agents", len(s.agents)),
		zap.Int("max_steps", s.cfg.MaxSteps))

	resp := s.orchestrate(ctx, o)
	s.metrics.ObserveRun("supervisor", string(resp.Outcome))
	s.logger.Info("orchestration finished",
		zap.String("run", o.runID),
		zap.String("outcome", string(resp.Outcome)),
		zap.Int("steps", len(resp.Steps)),
		zap.String("progress", o.progress.Summary()),
		zap.Duration("elapsed", time.Since(start)))
	return resp
}

func (s *Supervisor) orchestrate(ctx context.Context, o *orchestration) agent.Response {
	if s.llm == nil {
		s.logger.Error("no LLM configured", zap.String("run", o.runID))
		return agent.NoModel()
	}
	limit := s.cfg.MaxSteps
	for step := 0; step < limit; step++ {
		s.logger.Debug("orchestration step",
			zap.String("run", o.runID),
			zap.Int("step", step+1),
			zap.Int("max", limit))

		reply, err := s.llm.Chat(ctx, o.messages)
		if err != nil {
			s.logger.Error("failed to get supervisor decision", zap.String("run", o.runID), zap.Error(err))
			return agent.Failure(fmt.Sprintf("Supervisor decision failed: %v", err), o.steps, nil,
				agent.Failed(fmt.Sprintf("Supervisor reasoning failed: %v", err), true))
		}
		d := s.decode(reply)

		if d.SubGoals != nil && !o.planned {
			s.plan(ctx, o, step, d.SubGoals)
		}

		if !d.IsFinal && o.progress.IsComplete() {
			answer := "Task completed successfully. All sub-goals accomplished:\n" +
				strings.Join(o.progress.Results(), "\n")
			o.steps = append(o.steps, agent.Step{
				Iteration:   step,
				Thought:     "All sub-goals complete: " + o.progress.Summary(),
				Observation: answer,
			})
			s.finish(ctx, o, step, EventComplete, answer)
			return agent.Success(answer, o.steps, nil, agent.Complete(0.95))
		}

		if d.IsFinal {
			answer, ok := agent.RenderAnswer(d.FinalAnswer)
			if !ok {
				answer = defaultFinalAnswer
			}
			o.steps = append(o.steps, agent.Step{Iteration: step, Thought: d.Thought, Observation: answer})
			s.finish(ctx, o, step, EventComplete, answer)
			return agent.Success(answer, o.steps, nil, agent.Complete(1.0))
		}

		// An empty task still invokes; only a missing one does not.
		if d.AgentToInvoke != "" && d.AgentTask != nil {
			if resp, done := s.invoke(ctx, o, step, d); done {
				return resp
			}
			continue
		}

		s.logger.Warn(noDecisionWarning, zap.String("run", o.runID))
		s.metrics.ObserveSupervisorStep("no_action")
		o.messages = append(o.messages,
			provider.Message{Role: provider.RoleAssistant, Content: reply},
			provider.Message{Role: provider.RoleUser, Content: noDecisionMessage})
		o.steps = append(o.steps, agent.Step{Iteration: step, Thought: d.Thought, Observation: noDecisionWarning})
	}

	s.logger.Warn("max orchestration steps reached",
		zap.String("run", o.runID),
		zap.String("progress", o.progress.Summary()))
	partial := fmt.Sprintf("Supervisor reached max orchestration steps. %s\nCompleted %d agent invocations.",
		o.progress.Summary(), o.invocations)
	s.finish(ctx, o, limit, EventTimeout, partial)
	return agent.Timeout(partial, o.steps, nil, agent.Partial(o.progress.Fraction(),
		"Increase max_orchestration_steps",
		"Resume from: "+o.progress.Detail()))
}

func (s *Supervisor) decode(reply string) SupervisorDecision {
	d, tier := agent.DecodeJSON[SupervisorDecision](reply)
	switch tier {
	case agent.TierRaw:
		s.logger.Warn("could not extract supervisor JSON, using response as thought")
		return SupervisorDecision{Thought: reply}
	case agent.TierStrict:
	default:
		s.logger.Debug("supervisor decision not strict JSON", zap.Stringer("tier", tier))
	}
	return d
}

// plan registers the first declared batch of sub-goals, truncated to the
// configured maximum.
func (s *Supervisor) plan(ctx context.Context, o *orchestration, step int, declared []SubGoalSpec) {
	limit := s.cfg.MaxSubGoals
	if len(declared) > limit {
		s.logger.Warn("too many sub-goals declared, truncating",
			zap.Int("declared", len(declared)),
			zap.Int("max", limit))
		declared = declared[:limit]
	}
	for _, g := range declared {
		if !o.progress.Add(g.ID, g.Description) {
			s.logger.Warn("duplicate sub-goal id ignored", zap.String("sub_goal", g.ID))
		}
	}
	o.planned = o.progress.Len() > 0

	s.metrics.ObserveSupervisorStep("plan")
	s.logger.Info("declared sub-goals",
		zap.Int("count", o.progress.Len()),
		zap.Int("max", limit))
	s.logger.Debug(o.progress.Detail())
	s.publish(ctx, o, &RunEvent{Kind: EventPlan, Step: step, Payload: o.progress.Detail()})
}

// invoke delegates one sub-goal. done is true when the run is over.
func (s *Supervisor) invoke(ctx context.Context, o *orchestration, step int, d SupervisorDecision) (agent.Response, bool) {
	name, task := d.AgentToInvoke, *d.AgentTask
	goalID := d.SubGoalID
	if goalID == "" {
		goalID = fmt.Sprintf("goal_%d", step)
		s.logger.Warn("no sub_goal_id specified, using fallback", zap.String("sub_goal", goalID))
	}
	if !o.progress.Has(goalID) {
		s.logger.Warn("sub-goal not declared upfront, adding now", zap.String("sub_goal", goalID))
		o.progress.Add(goalID, task)
	}
	o.progress.MarkInProgress(goalID, name)
	echo := s.echo(d, goalID)

	ex, ok := s.agents[name]
	if !ok {
		msg := fmt.Sprintf("Agent '%s' not found", name)
		s.logger.Error(msg, zap.String("run", o.runID))
		s.metrics.ObserveSupervisorStep("unknown_agent")
		o.messages = append(o.messages,
			provider.Message{Role: provider.RoleAssistant, Content: echo},
			provider.Message{Role: provider.RoleUser, Content: "Error: " + msg})
		o.steps = append(o.steps, agent.Step{Iteration: step, Thought: d.Thought, Action: name, Observation: msg})
		return agent.Response{}, false
	}

	s.logger.Info("invoking agent",
		zap.String("agent", name),
		zap.String("sub_goal", goalID),
		zap.String("progress", o.progress.Summary()))
	s.metrics.ObserveSupervisorStep("invoke")
	s.publish(ctx, o, &RunEvent{Kind: EventInvoke, Step: step, Agent: name, SubGoalID: goalID, Payload: task})

	data := o.contextData()
	s.logger.Debug("passing context to agent", zap.String("agent", name), zap.Int("entries", len(o.outputs)))
	actx := ctx
	if s.cfg.AgentTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.cfg.AgentTimeout)
		defer cancel()
	}
	resp := ex.ExecuteWithContext(actx, task, data, s.cfg.MaxIterations)
	action := name + ":" + task

	if s.coordinator != nil {
		var rejected bool
		resp, rejected = s.gate(ctx, o, step, d, goalID, echo, resp)
		if rejected {
			return agent.Response{}, false
		}
	}

	summary := resp.Summary()
	switch resp.Outcome {
	case agent.OutcomeSuccess:
		o.invocations++
		o.progress.MarkCompleted(goalID, resp.Result)
		o.storeOutput(name, resp.Result)
		if o.progress.IsComplete() {
			answer := fmt.Sprintf("Task completed successfully. All %d sub-goals accomplished:\n\n%s",
				o.progress.Len(), strings.Join(o.progress.Results(), "\n\n"))
			o.steps = append(o.steps, agent.Step{
				Iteration:   step,
				Thought:     fmt.Sprintf("Completed sub-goal '%s': %s", goalID, o.progress.Summary()),
				Action:      action,
				Observation: resp.Result,
			})
			s.logger.Info("all sub-goals completed", zap.String("run", o.runID))
			s.finish(ctx, o, step, EventComplete, answer)
			return agent.Success(answer, o.steps, nil, agent.Complete(0.98)), true
		}
	case agent.OutcomeFailure:
		o.progress.MarkFailed(goalID, resp.Error)
	case agent.OutcomeTimeout:
		o.progress.MarkFailed(goalID, resp.PartialResult)
	}

	s.logger.Info("agent result", zap.String("agent", name), zap.String("result", summary))
	s.publish(ctx, o, &RunEvent{Kind: EventResult, Step: step, Agent: name, SubGoalID: goalID, Payload: summary})

	remaining := s.cfg.MaxSteps - step - 1
	o.messages = append(o.messages,
		provider.Message{Role: provider.RoleAssistant, Content: echo},
		provider.Message{Role: provider.RoleUser, Content: resultMessage(name, summary, remaining, o.progress.Detail())})
	o.steps = append(o.steps, agent.Step{Iteration: step, Thought: d.Thought, Action: action, Observation: summary})
	return agent.Response{}, false
}

// gate validates resp against the agent's handoff contract. Without a
// registered contract resp passes unchanged. rejected means the failure was
// recorded and the step is over.
func (s *Supervisor) gate(ctx context.Context, o *orchestration, step int, d SupervisorDecision, goalID, echo string, resp agent.Response) (agent.Response, bool) {
	name := d.AgentToInvoke
	contractName := handoff.ContractName(name)
	contract, ok := s.coordinator.Get(contractName)
	if !ok {
		return resp, false
	}
	if resp.IsSuccess() {
		s.logger.Debug("agent returned", zap.String("agent", name), zap.String("result", resp.Result))
	}

	v := s.coordinator.Validate(contractName, resp)
	if v.Valid {
		s.logger.Info("handoff validation passed", zap.String("agent", name))
		for _, w := range v.Warnings {
			s.logger.Warn("handoff validation warning", zap.String("agent", name), zap.String("warning", w))
		}
		resp.Metadata = handoff.EnrichMetadata(resp.Metadata, v, contract.Schema.SchemaVersion)
		return resp, false
	}

	lines := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		lines[i] = e.Field + ": " + e.Message
	}
	joined := strings.Join(lines, ", ")
	s.logger.Error("handoff validation failed", zap.String("agent", name), zap.Strings("errors", lines))
	s.metrics.ObserveSupervisorStep("validation_failed")

	o.progress.MarkFailed(goalID, "Validation failed: "+joined)
	o.steps = append(o.steps, agent.Step{
		Iteration:   step,
		Thought:     fmt.Sprintf("Agent '%s' output validation failed", name),
		Action:      name + ":" + *d.AgentTask,
		Observation: "VALIDATION FAILED: " + joined,
	})
	o.messages = append(o.messages,
		provider.Message{Role: provider.RoleAssistant, Content: echo},
		provider.Message{Role: provider.RoleUser, Content: validationFailedMessage(name, lines)})
	s.publish(ctx, o, &RunEvent{Kind: EventValidationFailed, Step: step, Agent: name, SubGoalID: goalID, Payload: joined})
	return resp, true
}

// echo renders the decision as the assistant turn, without the plan.
func (s *Supervisor) echo(d SupervisorDecision, goalID string) string {
	out := d
	out.SubGoals = nil
	out.SubGoalID = goalID
	out.IsFinal = false
	out.FinalAnswer = nil
	data, err := json.Marshal(out)
	if err != nil {
		return "Invoking " + d.AgentToInvoke
	}
	return string(data)
}

func (s *Supervisor) finish(ctx context.Context, o *orchestration, step int, kind EventKind, payload string) {
	s.metrics.ObserveSupervisorStep(string(kind))
	s.publish(ctx, o, &RunEvent{Kind: kind, Step: step, Payload: payload})
}

func (s *Supervisor) publish(ctx context.Context, o *orchestration, ev *RunEvent) {
	ev.RunID = o.runID
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish run event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

func (s *Supervisor) sortedAgents() []Executor {
	names := s.Agents()
	out := make([]Executor, len(names))
	for i, n := range names {
		out[i] = s.agents[n]
	}
	return out
}

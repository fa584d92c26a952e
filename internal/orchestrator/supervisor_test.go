package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/nidhogg/taskforce/internal/agent"
	"github.com/nidhogg/taskforce/internal/handoff"
	"github.com/nidhogg/taskforce/internal/provider"
	"github.com/nidhogg/taskforce/internal/tool"
	"go.uber.org/zap"
)

// scripted replays canned completions and records every conversation it saw.
type scripted struct {
	mu      sync.Mutex
	replies []string
	calls   [][]provider.Message
}

func script(replies ...string) *scripted {
	return &scripted{replies: replies}
}

func (s *scripted) Chat(ctx context.Context, messages []provider.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]provider.Message(nil), messages...))
	if len(s.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func (s *scripted) lastUserMessage(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		t.Fatal("no calls recorded")
	}
	msgs := s.calls[len(s.calls)-1]
	return msgs[len(msgs)-1].Content
}

// fakeAgent returns queued responses and records what it was asked.
type fakeAgent struct {
	name      string
	responses []agent.Response
	tasks     []string
	contexts  []json.RawMessage
}

func (f *fakeAgent) Name() string        { return f.name }
func (f *fakeAgent) Description() string { return "fake " + f.name }

func (f *fakeAgent) ExecuteWithContext(ctx context.Context, task string, data json.RawMessage, maxIterations int) agent.Response {
	f.tasks = append(f.tasks, task)
	f.contexts = append(f.contexts, data)
	if len(f.responses) == 0 {
		return agent.Failure("no response queued", nil, nil, agent.Failed("no response queued", false))
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r
}

func succeed(result string) agent.Response {
	return agent.Success(result, nil, nil, agent.Complete(1.0))
}

func taskOf(s string) *string { return &s }

func decision(t *testing.T, d SupervisorDecision) string {
	t.Helper()
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal decision: %v", err)
	}
	return string(data)
}

func TestOrchestrateAutoCompletesDeclaredGoals(t *testing.T) {
	a := &fakeAgent{name: "alpha", responses: []agent.Response{succeed("first done")}}
	b := &fakeAgent{name: "beta", responses: []agent.Response{succeed("second done")}}
	llm := script(
		decision(t, SupervisorDecision{
			Thought:       "plan",
			SubGoals:      []SubGoalSpec{{ID: "goal_1", Description: "one"}, {ID: "goal_2", Description: "two"}},
			AgentToInvoke: "alpha",
			AgentTask:     taskOf("do one"),
			SubGoalID:     "goal_1",
		}),
		decision(t, SupervisorDecision{
			Thought:       "next",
			AgentToInvoke: "beta",
			AgentTask:     taskOf("do two"),
			SubGoalID:     "goal_2",
		}),
	)

	sup := NewSupervisor(llm, []Executor{a, b}, Config{}, zap.NewNop())
	resp := sup.Orchestrate(context.Background(), "two step task")

	if !resp.IsSuccess() {
		t.Fatalf("got outcome %s (%s), want success", resp.Outcome, resp.Error)
	}
	if len(llm.calls) != 2 {
		t.Errorf("got %d supervisor calls, want 2", len(llm.calls))
	}
	want := "Task completed successfully. All 2 sub-goals accomplished:\n\nfirst done\n\nsecond done"
	if resp.Result != want {
		t.Errorf("got result %q, want %q", resp.Result, want)
	}
	if resp.CompletionStatus == nil || resp.CompletionStatus.Confidence != 0.98 {
		t.Errorf("got status %+v, want complete 0.98", resp.CompletionStatus)
	}
	if got := resp.Steps[len(resp.Steps)-1].Action; got != "beta:do two" {
		t.Errorf("got action %q, want %q", got, "beta:do two")
	}
}

func TestOrchestratePassesEarlierOutputsAsContext(t *testing.T) {
	a := &fakeAgent{name: "alpha", responses: []agent.Response{succeed(`{"rows":[1,2]}`)}}
	b := &fakeAgent{name: "beta", responses: []agent.Response{succeed("plain text")}}
	llm := script(
		decision(t, SupervisorDecision{
			SubGoals:      []SubGoalSpec{{ID: "goal_1", Description: "fetch"}, {ID: "goal_2", Description: "use"}},
			AgentToInvoke: "alpha",
			AgentTask:     taskOf("fetch"),
			SubGoalID:     "goal_1",
		}),
		decision(t, SupervisorDecision{AgentToInvoke: "beta", AgentTask: taskOf("use rows"), SubGoalID: "goal_2"}),
	)

	sup := NewSupervisor(llm, []Executor{a, b}, Config{}, zap.NewNop())
	resp := sup.Orchestrate(context.Background(), "task")
	if !resp.IsSuccess() {
		t.Fatalf("got %s (%s), want success", resp.Outcome, resp.Error)
	}

	if a.contexts[0] != nil {
		t.Errorf("first agent got context %s, want none", a.contexts[0])
	}
	var ctxData map[string]any
	if err := json.Unmarshal(b.contexts[0], &ctxData); err != nil {
		t.Fatalf("decode context: %v", err)
	}
	out, ok := ctxData["alpha_output"].(map[string]any)
	if !ok {
		t.Fatalf("alpha_output = %#v, want object", ctxData["alpha_output"])
	}
	if rows, _ := out["rows"].([]any); len(rows) != 2 {
		t.Errorf("got rows %v, want 2 entries", out["rows"])
	}
}

func TestOrchestrateValidationFailureContinues(t *testing.T) {
	coord := handoff.NewCoordinator(nil, zap.NewNop())
	coord.Register("alpha_handoff", handoff.Contract{
		FromAgent: "alpha",
		Schema: handoff.OutputSchema{
			SchemaVersion:  "1.0",
			RequiredFields: []string{"data"},
		},
	})
	a := &fakeAgent{name: "alpha", responses: []agent.Response{succeed(`{"other":1}`)}}
	llm := script(
		decision(t, SupervisorDecision{
			SubGoals:      []SubGoalSpec{{ID: "goal_1", Description: "fetch data"}},
			AgentToInvoke: "alpha",
			AgentTask:     taskOf("fetch"),
			SubGoalID:     "goal_1",
		}),
		decision(t, SupervisorDecision{IsFinal: true, FinalAnswer: json.RawMessage(`"gave up"`)}),
	)

	sup := NewSupervisor(llm, []Executor{a}, Config{}, zap.NewNop()).WithCoordinator(coord)
	resp := sup.Orchestrate(context.Background(), "task")

	if !resp.IsSuccess() || resp.Result != "gave up" {
		t.Fatalf("got %s %q, want success %q", resp.Outcome, resp.Result, "gave up")
	}
	first := resp.Steps[0]
	if first.Thought != "Agent 'alpha' output validation failed" {
		t.Errorf("got thought %q", first.Thought)
	}
	if !strings.HasPrefix(first.Observation, "VALIDATION FAILED: data: Required field 'data' is missing") {
		t.Errorf("got observation %q", first.Observation)
	}
	msg := llm.lastUserMessage(t)
	if !strings.Contains(msg, "Agent 'alpha' completed but validation FAILED:") || !strings.Contains(msg, "✗ data:") {
		t.Errorf("feedback message missing validation details: %q", msg)
	}
}

func TestOrchestrateSkipsGateWithoutContract(t *testing.T) {
	coord := handoff.NewCoordinator(nil, zap.NewNop())
	a := &fakeAgent{name: "alpha", responses: []agent.Response{succeed("not json")}}
	llm := script(decision(t, SupervisorDecision{
		SubGoals:      []SubGoalSpec{{ID: "goal_1", Description: "only"}},
		AgentToInvoke: "alpha",
		AgentTask:     taskOf("go"),
		SubGoalID:     "goal_1",
	}))

	sup := NewSupervisor(llm, []Executor{a}, Config{}, zap.NewNop()).WithCoordinator(coord)
	resp := sup.Orchestrate(context.Background(), "task")
	if !resp.IsSuccess() {
		t.Fatalf("got %s (%s), want success", resp.Outcome, resp.Error)
	}
}

func TestOrchestrateAgentTaskPresence(t *testing.T) {
	a := &fakeAgent{name: "alpha", responses: []agent.Response{succeed("done")}}
	llm := script(
		`{"thought":"no task yet","agent_to_invoke":"alpha","agent_task":null,"is_final":false}`,
		`{"thought":"go","sub_goals":[{"id":"goal_1","description":"only"}],"agent_to_invoke":"alpha","agent_task":"","sub_goal_id":"goal_1","is_final":false}`,
		decision(t, SupervisorDecision{IsFinal: true}),
	)
	sup := NewSupervisor(llm, []Executor{a}, Config{}, zap.NewNop())
	resp := sup.Orchestrate(context.Background(), "task")

	if !resp.IsSuccess() {
		t.Fatalf("got %s (%s), want success", resp.Outcome, resp.Error)
	}
	if len(a.tasks) != 1 || a.tasks[0] != "" {
		t.Errorf("got agent tasks %q, want one empty task", a.tasks)
	}
	if resp.Steps[0].Observation != noDecisionWarning {
		t.Errorf("null agent_task should not invoke, got step %+v", resp.Steps[0])
	}
	if resp.Steps[1].Action != "alpha:" {
		t.Errorf("got action %q", resp.Steps[1].Action)
	}
}

func TestOrchestrateWithoutModel(t *testing.T) {
	sup := NewSupervisor(nil, nil, Config{}, zap.NewNop())
	resp := sup.Orchestrate(context.Background(), "task")
	if resp.Outcome != agent.OutcomeFailure || resp.CompletionStatus.Kind != agent.CompletionBlocked {
		t.Errorf("got %+v", resp)
	}
}

func TestOrchestrateUnknownAgent(t *testing.T) {
	llm := script(
		decision(t, SupervisorDecision{Thought: "try ghost", AgentToInvoke: "ghost", AgentTask: taskOf("boo"), SubGoalID: "goal_1"}),
		decision(t, SupervisorDecision{IsFinal: true}),
	)
	sup := NewSupervisor(llm, nil, Config{}, zap.NewNop())
	resp := sup.Orchestrate(context.Background(), "task")

	if !resp.IsSuccess() || resp.Result != defaultFinalAnswer {
		t.Fatalf("got %s %q, want success %q", resp.Outcome, resp.Result, defaultFinalAnswer)
	}
	step := resp.Steps[0]
	if step.Action != "ghost" || step.Observation != "Agent 'ghost' not found" {
		t.Errorf("got step %+v", step)
	}
	if msg := llm.lastUserMessage(t); msg != "Error: Agent 'ghost' not found" {
		t.Errorf("got feedback %q", msg)
	}
}

func TestOrchestrateTimeout(t *testing.T) {
	llm := script("thinking...", "still thinking", "hmm")
	sup := NewSupervisor(llm, nil, Config{MaxSteps: 3}, zap.NewNop())
	resp := sup.Orchestrate(context.Background(), "task")

	if resp.Outcome != agent.OutcomeTimeout {
		t.Fatalf("got outcome %s, want timeout", resp.Outcome)
	}
	if len(resp.Steps) != 3 {
		t.Errorf("got %d steps, want 3", len(resp.Steps))
	}
	if resp.Steps[0].Thought != "thinking..." || resp.Steps[0].Observation != noDecisionWarning {
		t.Errorf("got step %+v", resp.Steps[0])
	}
	if !strings.HasPrefix(resp.PartialResult, "Supervisor reached max orchestration steps. Progress: 0/0") {
		t.Errorf("got partial %q", resp.PartialResult)
	}
	st := resp.CompletionStatus
	if st == nil || st.Kind != agent.CompletionPartial || len(st.NextSteps) != 2 {
		t.Fatalf("got status %+v", st)
	}
	if st.NextSteps[0] != "Increase max_orchestration_steps" {
		t.Errorf("got next step %q", st.NextSteps[0])
	}
}

func TestOrchestrateDecisionFailure(t *testing.T) {
	llm := provider.ChatFunc(func(ctx context.Context, messages []provider.Message) (string, error) {
		return "", errors.New("upstream down")
	})
	sup := NewSupervisor(llm, nil, Config{}, zap.NewNop())
	resp := sup.Orchestrate(context.Background(), "task")

	if resp.Outcome != agent.OutcomeFailure {
		t.Fatalf("got outcome %s, want failure", resp.Outcome)
	}
	if resp.Error != "Supervisor decision failed: upstream down" {
		t.Errorf("got error %q", resp.Error)
	}
	if st := resp.CompletionStatus; st == nil || !st.Recoverable {
		t.Errorf("got status %+v, want recoverable failure", st)
	}
}

func TestOrchestrateTruncatesSubGoalsAndSynthesizesIDs(t *testing.T) {
	a := &fakeAgent{name: "alpha", responses: []agent.Response{succeed("x"), succeed("y")}}
	llm := script(
		decision(t, SupervisorDecision{
			SubGoals: []SubGoalSpec{
				{ID: "goal_1", Description: "one"},
				{ID: "goal_2", Description: "two"},
				{ID: "goal_3", Description: "three"},
			},
			AgentToInvoke: "alpha",
			AgentTask:     taskOf("no id"),
		}),
		decision(t, SupervisorDecision{IsFinal: true, FinalAnswer: json.RawMessage(`"done"`)}),
	)
	sup := NewSupervisor(llm, []Executor{a}, Config{MaxSubGoals: 2}, zap.NewNop())
	resp := sup.Orchestrate(context.Background(), "task")
	if !resp.IsSuccess() {
		t.Fatalf("got %s, want success", resp.Outcome)
	}

	// goal_0 was added on the fly next to the two kept declarations.
	msg := llm.lastUserMessage(t)
	if !strings.Contains(msg, "Task Progress (1/3):") {
		t.Errorf("progress detail missing from feedback: %q", msg)
	}
	if strings.Contains(msg, "three") {
		t.Errorf("truncated sub-goal leaked into progress: %q", msg)
	}
	if !strings.Contains(msg, "[✓] no id") {
		t.Errorf("synthesized goal not completed: %q", msg)
	}
}

func TestOrchestrateFeedbackCarriesStepsRemaining(t *testing.T) {
	a := &fakeAgent{name: "alpha", responses: []agent.Response{
		agent.Failure("boom", nil, nil, agent.Failed("boom", true)),
	}}
	llm := script(
		decision(t, SupervisorDecision{AgentToInvoke: "alpha", AgentTask: taskOf("go"), SubGoalID: "goal_1"}),
		decision(t, SupervisorDecision{IsFinal: true, FinalAnswer: json.RawMessage(`{"ok":false}`)}),
	)
	sup := NewSupervisor(llm, []Executor{a}, Config{MaxSteps: 3}, zap.NewNop())
	resp := sup.Orchestrate(context.Background(), "task")

	msg := llm.lastUserMessage(t)
	if !strings.Contains(msg, "Result: FAILED (recoverable): boom") {
		t.Errorf("got feedback %q", msg)
	}
	if !strings.Contains(msg, "WARNING: Only 2 orchestration steps remaining!") {
		t.Errorf("missing urgency warning: %q", msg)
	}
	if !strings.Contains(msg, "[✗] go") {
		t.Errorf("failed goal not marked: %q", msg)
	}
	if !strings.Contains(resp.Result, `"ok": false`) {
		t.Errorf("structured final answer not rendered: %q", resp.Result)
	}
}

// inventory is a tiny shared store behind the data agent's tools.
type inventory struct {
	mu    sync.Mutex
	items map[string]int
}

func (inv *inventory) tools() []tool.Tool {
	add := &tool.Func{
		Meta: tool.Metadata{Name: "add_inventory", Description: "Add units of an item"},
		Fn: func(ctx context.Context, args json.RawMessage) (tool.Result, error) {
			var in struct {
				Item     string `json:"item"`
				Quantity int    `json:"quantity"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return tool.Result{}, err
			}
			inv.mu.Lock()
			defer inv.mu.Unlock()
			inv.items[in.Item] += in.Quantity
			return tool.Success(fmt.Sprintf(`{"item":%q,"quantity":%d}`, in.Item, inv.items[in.Item])), nil
		},
	}
	count := &tool.Func{
		Meta: tool.Metadata{Name: "count_inventory", Description: "Count all units"},
		Fn: func(ctx context.Context, args json.RawMessage) (tool.Result, error) {
			inv.mu.Lock()
			defer inv.mu.Unlock()
			total := 0
			for _, n := range inv.items {
				total += n
			}
			return tool.Success(fmt.Sprintf(`{"total":%d}`, total)), nil
		},
	}
	return []tool.Tool{add, count}
}

func percentTool() tool.Tool {
	return &tool.Func{
		Meta: tool.Metadata{Name: "percentage", Description: "Compute percent of value"},
		Fn: func(ctx context.Context, args json.RawMessage) (tool.Result, error) {
			var in struct {
				Value   float64 `json:"value"`
				Percent float64 `json:"percent"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return tool.Result{}, err
			}
			return tool.Success(fmt.Sprintf(`{"result":%g}`, in.Value*in.Percent/100)), nil
		},
	}
}

func TestOrchestrateInventoryAcrossDataAndMathAgents(t *testing.T) {
	logger := zap.NewNop()
	inv := &inventory{items: map[string]int{"Gadget": 50}}

	dataLLM := script(
		`{"thought":"add","action":{"tool":"add_inventory","input":{"item":"Widget","quantity":100}},"is_final":false,"final_answer":null}`,
		`{"thought":"done","action":null,"is_final":true,"final_answer":"Added 100 Widget"}`,
		`{"thought":"count","action":{"tool":"count_inventory","input":{}},"is_final":false,"final_answer":null}`,
		`{"thought":"done","action":null,"is_final":true,"final_answer":"ignored"}`,
	)
	mathLLM := script(
		`Let me compute. {"thought":"pct","action":{"tool":"percentage","input":{"value":150,"percent":25}},"is_final":false,"final_answer":null}`,
		`{"thought":"done","action":null,"is_final":true,"final_answer":"ignored"}`,
	)

	dataTools := inv.tools()
	data, err := agent.NewBuilder("data_agent").
		Description("Manages inventory records").
		Tool(dataTools[0]).
		Tool(dataTools[1]).
		ReturnToolOutput(true).
		Build(agent.Deps{LLM: dataLLM, Logger: logger})
	if err != nil {
		t.Fatalf("build data agent: %v", err)
	}
	math, err := agent.NewBuilder("math_agent").
		Description("Performs calculations").
		Tool(percentTool()).
		ReturnToolOutput(true).
		Build(agent.Deps{LLM: mathLLM, Logger: logger})
	if err != nil {
		t.Fatalf("build math agent: %v", err)
	}
	catalog := agent.NewCatalog(logger, data, math)

	supLLM := script(
		decision(t, SupervisorDecision{
			Thought: "three parts",
			SubGoals: []SubGoalSpec{
				{ID: "goal_1", Description: "Add widgets"},
				{ID: "goal_2", Description: "Count inventory"},
				{ID: "goal_3", Description: "Compute 25%"},
			},
			AgentToInvoke: "data_agent",
			AgentTask:     taskOf("Add 100 units of Widget"),
			SubGoalID:     "goal_1",
		}),
		decision(t, SupervisorDecision{AgentToInvoke: "data_agent", AgentTask: taskOf("Count total inventory"), SubGoalID: "goal_2"}),
		decision(t, SupervisorDecision{AgentToInvoke: "math_agent", AgentTask: taskOf(`Compute 25% of {"total":150}`), SubGoalID: "goal_3"}),
	)

	sup := NewSupervisor(supLLM, Executors(catalog), Config{}, logger)
	resp := sup.Orchestrate(context.Background(),
		"Add 100 units of Widget, then count inventory, then compute 25% of total")

	res := agent.ToResult(resp)
	if !res.Success {
		t.Fatalf("got failure: %s", res.Error)
	}
	if len(res.Steps) < 3 {
		t.Fatalf("got %d steps, want at least 3", len(res.Steps))
	}
	wantActions := []string{
		"data_agent:Add 100 units of Widget",
		"data_agent:Count total inventory",
		`math_agent:Compute 25% of {"total":150}`,
	}
	for i, want := range wantActions {
		if res.Steps[i].Action != want {
			t.Errorf("step %d action = %q, want %q", i, res.Steps[i].Action, want)
		}
	}
	if !strings.Contains(res.Result, `{"total":150}`) || !strings.Contains(res.Result, `{"result":37.5}`) {
		t.Errorf("got result %q", res.Result)
	}

	// The math agent saw both earlier outputs in its prompt.
	mathPrompt := mathLLM.calls[0][0].Content
	if !strings.Contains(mathPrompt, "data_agent_output") {
		t.Errorf("math agent prompt lacks context: %q", mathPrompt)
	}
}

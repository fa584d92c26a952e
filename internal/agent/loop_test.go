package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nidhogg/taskforce/internal/provider"
	"github.com/nidhogg/taskforce/internal/tool"
	"go.uber.org/zap"
)

// scripted replays canned LLM replies and records every conversation it saw.
// Once the script runs out it repeats the last reply.
type scripted struct {
	mu      sync.Mutex
	replies []string
	calls   [][]provider.Message
}

func script(replies ...string) *scripted { return &scripted{replies: replies} }

func (s *scripted) Chat(ctx context.Context, messages []provider.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]provider.Message(nil), messages...))
	i := len(s.calls) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], nil
}

func (s *scripted) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scripted) lastMessage(t *testing.T) provider.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		t.Fatal("no LLM calls recorded")
	}
	msgs := s.calls[len(s.calls)-1]
	return msgs[len(msgs)-1]
}

func echoTool(output string) *tool.Func {
	return &tool.Func{
		Meta: tool.Metadata{Name: "echo", Description: "Echo a fixed value"},
		Fn: func(ctx context.Context, args json.RawMessage) (tool.Result, error) {
			return tool.Success(output), nil
		},
	}
}

func newTestLoop(llm provider.Chatter, tools ...tool.Tool) *Loop {
	logger := zap.NewNop()
	exec := tool.NewExecutor(tool.Config{MaxRetries: 1}, nil, logger)
	return NewLoop(llm, tool.NewRegistry(tools...), exec, nil, logger)
}

const (
	callEcho = `{"thought":"need the value","action":{"tool":"echo","input":{}},"is_final":false,"final_answer":null}`
)

func final(answer string) string {
	data, _ := json.Marshal(answer)
	return `{"thought":"done","action":null,"is_final":true,"final_answer":` + string(data) + `}`
}

func TestLoopImmediateFinalAnswer(t *testing.T) {
	llm := script(final("hello"))
	resp := newTestLoop(llm).Run(context.Background(), "say hello", RunOptions{Name: "t", MaxIterations: 5})

	if !resp.IsSuccess() || resp.Result != "hello" {
		t.Fatalf("got %+v", resp)
	}
	if len(resp.Steps) != 1 || resp.Steps[0].Observation != "hello" {
		t.Errorf("got steps %+v", resp.Steps)
	}
	if resp.CompletionStatus.Kind != CompletionComplete || resp.CompletionStatus.Confidence != 1.0 {
		t.Errorf("got status %+v", resp.CompletionStatus)
	}
	if resp.Metadata == nil || resp.Metadata.AgentName != "t" {
		t.Errorf("got metadata %+v", resp.Metadata)
	}
}

func TestLoopFeedsObservationBack(t *testing.T) {
	llm := script(callEcho, final("The answer is 42"))
	resp := newTestLoop(llm, echoTool("42")).Run(context.Background(), "find the answer", RunOptions{MaxIterations: 10})

	if !resp.IsSuccess() || resp.Result != "The answer is 42" {
		t.Fatalf("got %+v", resp)
	}
	if len(resp.Steps) != 2 || resp.Steps[0].Action != "echo" || resp.Steps[0].Observation != "42" {
		t.Errorf("got steps %+v", resp.Steps)
	}
	feedback := llm.lastMessage(t).Content
	if !strings.HasPrefix(feedback, "Observation: 42") || !strings.Contains(feedback, "You have 9 iterations remaining.") {
		t.Errorf("got feedback %q", feedback)
	}
	if got := len(resp.Metadata.ToolCalls); got != 1 {
		t.Errorf("got %d tool calls in metadata, want 1", got)
	}
}

func TestLoopStopsAtMaxIterations(t *testing.T) {
	llm := script(callEcho)
	resp := newTestLoop(llm, echoTool("again")).Run(context.Background(), "loop forever", RunOptions{MaxIterations: 3})

	if resp.Outcome != OutcomeTimeout || resp.PartialResult != timeoutPartialResult {
		t.Fatalf("got %+v", resp)
	}
	if llm.callCount() != 3 || len(resp.Steps) != 3 {
		t.Errorf("got %d calls and %d steps, want 3 and 3", llm.callCount(), len(resp.Steps))
	}
	if resp.CompletionStatus.Kind != CompletionPartial || resp.CompletionStatus.Progress != 0.9 {
		t.Errorf("got status %+v", resp.CompletionStatus)
	}
	if !strings.Contains(llm.lastMessage(t).Content, "WARNING: Only 1 iterations remaining!") {
		t.Errorf("missing urgency in %q", llm.lastMessage(t).Content)
	}
	if got := ToResult(resp); got.Error != "Max iterations reached" || got.Result != timeoutPartialResult {
		t.Errorf("got result %+v", got)
	}
}

func TestLoopUnknownToolIsObserved(t *testing.T) {
	llm := script(`{"thought":"try","action":{"tool":"nope","input":{}},"is_final":false}`, final("gave up"))
	resp := newTestLoop(llm).Run(context.Background(), "x", RunOptions{MaxIterations: 4})

	if !resp.IsSuccess() {
		t.Fatalf("got %+v", resp)
	}
	if resp.Steps[0].Observation != "Tool 'nope' not found" {
		t.Errorf("got observation %q", resp.Steps[0].Observation)
	}
	if !strings.HasPrefix(llm.lastMessage(t).Content, "Observation: Error: Tool 'nope' not found") {
		t.Errorf("got feedback %q", llm.lastMessage(t).Content)
	}
}

func TestLoopToolFailureIsObserved(t *testing.T) {
	failing := &tool.Func{
		Meta: tool.Metadata{Name: "echo"},
		Fn: func(ctx context.Context, args json.RawMessage) (tool.Result, error) {
			return tool.Failure("validation: bad input"), nil
		},
	}
	llm := script(callEcho, final("could not"))
	resp := newTestLoop(llm, failing).Run(context.Background(), "x", RunOptions{MaxIterations: 4})

	if resp.Steps[0].Observation != "Tool failed: validation: bad input" {
		t.Errorf("got observation %q", resp.Steps[0].Observation)
	}
	if resp.Metadata.ToolCalls[0].Success {
		t.Error("tool call metadata should record the failure")
	}
}

func TestLoopWithoutActionOrProgress(t *testing.T) {
	llm := script("hmm, let me think", final("ok"))
	resp := newTestLoop(llm).Run(context.Background(), "x", RunOptions{MaxIterations: 4})

	if !resp.IsSuccess() || len(resp.Steps) != 2 {
		t.Fatalf("got %+v", resp)
	}
	if resp.Steps[0].Thought != "hmm, let me think" || resp.Steps[0].Observation != noProgressMessage {
		t.Errorf("got first step %+v", resp.Steps[0])
	}
}

func TestLoopImplicitCompletion(t *testing.T) {
	llm := script(callEcho, `{"thought":"the value is in","action":null,"is_final":false}`)
	resp := newTestLoop(llm, echoTool("7")).Run(context.Background(), "x", RunOptions{MaxIterations: 4})

	if !resp.IsSuccess() || resp.Result != "the value is in" {
		t.Fatalf("got %+v", resp)
	}
	if resp.CompletionStatus.Confidence != 0.8 {
		t.Errorf("got confidence %v, want 0.8", resp.CompletionStatus.Confidence)
	}
	if resp.Steps[1].Thought != implicitThought {
		t.Errorf("got thought %q", resp.Steps[1].Thought)
	}
}

func TestLoopEmptyToolOutputCountsAsProgress(t *testing.T) {
	llm := script(callEcho, `{"thought":"written","action":null,"is_final":false}`)
	resp := newTestLoop(llm, echoTool("")).Run(context.Background(), "x", RunOptions{MaxIterations: 4})

	if !resp.IsSuccess() || resp.Result != "written" {
		t.Fatalf("got %+v", resp)
	}
	if len(resp.Steps) != 2 || resp.Steps[1].Iteration != 1 {
		t.Fatalf("got steps %+v", resp.Steps)
	}
	for _, s := range resp.Steps {
		if s.Observation == noProgressMessage {
			t.Errorf("empty tool output treated as no progress: %+v", resp.Steps)
		}
	}
	if llm.callCount() != 2 {
		t.Errorf("got %d LLM calls, want 2", llm.callCount())
	}
}

func TestLoopTimeoutProgressCountsEmptyOutputs(t *testing.T) {
	llm := script(callEcho)
	resp := newTestLoop(llm, echoTool("")).Run(context.Background(), "x", RunOptions{MaxIterations: 4})

	if resp.Outcome != OutcomeTimeout {
		t.Fatalf("got %+v", resp)
	}
	if resp.CompletionStatus.Progress != 0.9 {
		t.Errorf("got progress %v, want 0.9", resp.CompletionStatus.Progress)
	}
}

func TestLoopLLMFailure(t *testing.T) {
	llm := provider.ChatFunc(func(ctx context.Context, messages []provider.Message) (string, error) {
		return "", errors.New("rate limited")
	})
	resp := newTestLoop(llm).Run(context.Background(), "x", RunOptions{MaxIterations: 4})

	if resp.Outcome != OutcomeFailure || resp.Error != "Failed to reason: rate limited" {
		t.Fatalf("got %+v", resp)
	}
	if !resp.CompletionStatus.Recoverable {
		t.Error("LLM failures should be recoverable")
	}
}

func TestReturnToolOutput(t *testing.T) {
	statusTool := &tool.Func{
		Meta: tool.Metadata{Name: "status"},
		Fn: func(ctx context.Context, args json.RawMessage) (tool.Result, error) {
			return tool.Success(`{"status":"ok"}`), nil
		},
	}
	replies := []string{
		`{"thought":"check","action":{"tool":"status","input":{}},"is_final":false}`,
		final("Done!"),
	}

	tests := []struct {
		name string
		raw  bool
		want string
	}{
		{"raw tool output", true, `{"status":"ok"}`},
		{"llm answer", false, "Done!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewBuilder("status_agent").
				Tool(statusTool).
				ReturnToolOutput(tt.raw).
				Build(Deps{LLM: script(replies...), Logger: zap.NewNop()})
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			resp := a.ExecuteTask(context.Background(), "check status", 5)
			if resp.Result != tt.want {
				t.Errorf("got %q, want %q", resp.Result, tt.want)
			}
		})
	}
}

func TestSystemPromptCarriesContextAndBound(t *testing.T) {
	llm := script(final("ok"))
	ctxData := json.RawMessage(`{"shell_agent_output":{"files":3}}`)
	newTestLoop(llm, echoTool("x")).Run(context.Background(), "use it", RunOptions{Context: ctxData, MaxIterations: 7})

	system := llm.calls[0][0]
	if system.Role != provider.RoleSystem {
		t.Fatalf("first message role %q", system.Role)
	}
	for _, want := range []string{
		genericPreamble,
		"Tool: echo",
		"CONTEXT DATA (use this in your tool calls):",
		`"files": 3`,
		"maximum of 7 iterations",
	} {
		if !strings.Contains(system.Content, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if got := llm.calls[0][1].Content; got != "Task: use it" {
		t.Errorf("got task message %q", got)
	}
}

package agent

import (
	"context"
	"strings"
	"testing"
)

func TestZeroResponseProjectsAsFailure(t *testing.T) {
	var zero Response
	if got := zero.Summary(); got != "FAILED: agent returned no outcome" {
		t.Errorf("got summary %q", got)
	}
	res := ToResult(zero)
	if res.Success || res.Error != "agent returned no outcome" {
		t.Errorf("got result %+v", res)
	}

	odd := Response{Outcome: "cancelled"}
	if got := ToResult(odd).Error; got != `agent returned unknown outcome "cancelled"` {
		t.Errorf("got %q", got)
	}
}

func TestSummaryVariants(t *testing.T) {
	tests := []struct {
		resp Response
		want string
	}{
		{Success("42", nil, nil, Complete(0.95)), "SUCCESS (confidence: 0.95): 42"},
		{Failure("boom", nil, nil, Failed("boom", true)), "FAILED (recoverable): boom"},
		{Timeout("half", nil, nil, Partial(0.5)), "TIMEOUT (progress: 50%): half"},
		{NoModel(), "FAILED (blocked: no chat model to reason with): No LLM provider configured"},
	}
	for _, tt := range tests {
		if got := tt.resp.Summary(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestLoopWithoutModelIsBlocked(t *testing.T) {
	resp := newTestLoop(nil).Run(context.Background(), "x", RunOptions{MaxIterations: 3})
	if resp.Outcome != OutcomeFailure {
		t.Fatalf("got %+v", resp)
	}
	status := resp.CompletionStatus
	if status == nil || status.Kind != CompletionBlocked || len(status.Needs) != 1 {
		t.Errorf("got status %+v", status)
	}
	if !strings.Contains(ToResult(resp).Error, "No LLM provider") {
		t.Errorf("got result %+v", ToResult(resp))
	}
}

package orchestrator

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nidhogg/taskforce/internal/agent"
	"go.uber.org/zap"
)

type echoRunner struct {
	active  atomic.Int32
	maxSeen atomic.Int32
	bound   atomic.Int32
}

func (r *echoRunner) Execute(ctx context.Context, task string, maxIterations int) agent.Response {
	r.bound.Store(int32(maxIterations))
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if n <= seen || r.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	if strings.HasPrefix(task, "fail") {
		return agent.Failure("cannot "+task, nil, nil, agent.Failed("cannot", false))
	}
	if strings.HasPrefix(task, "slow") {
		return agent.Timeout("half of "+task, nil, nil, agent.Partial(0.5))
	}
	return agent.Success("did "+task, nil, nil, agent.Complete(1.0))
}

func TestBatchRunnerKeepsInputOrder(t *testing.T) {
	r := &echoRunner{}
	b := NewBatchRunner(r, 2, 5, zap.NewNop())
	prompts := []string{"a", "fail b", "c", "slow d", "e", "f"}

	results := b.Run(context.Background(), prompts, 0)
	if len(results) != len(prompts) {
		t.Fatalf("got %d results, want %d", len(results), len(prompts))
	}
	if results[0].Result != "did a" || !results[0].Success {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Success || results[1].Error != "cannot fail b" {
		t.Errorf("results[1] = %+v", results[1])
	}
	if results[3].Result != "half of slow d" || results[3].Error != "Max iterations reached" {
		t.Errorf("results[3] = %+v", results[3])
	}
	if results[5].Result != "did f" {
		t.Errorf("results[5] = %+v", results[5])
	}
	if got := r.maxSeen.Load(); got > 2 {
		t.Errorf("saw %d concurrent tasks, limit is 2", got)
	}
	if len(b.Running()) != 0 {
		t.Error("tasks still tracked as running after Run")
	}
}

func TestBatchRunnerEmpty(t *testing.T) {
	b := NewBatchRunner(&echoRunner{}, 0, 5, zap.NewNop())
	if got := b.Run(context.Background(), nil, 0); len(got) != 0 {
		t.Errorf("got %d results, want 0", len(got))
	}
}

func TestBatchRunnerIterationBound(t *testing.T) {
	r := &echoRunner{}
	b := NewBatchRunner(r, 1, 5, zap.NewNop())

	b.Run(context.Background(), []string{"a"}, 0)
	if got := r.bound.Load(); got != 5 {
		t.Errorf("got bound %d, want configured 5", got)
	}
	b.Run(context.Background(), []string{"a"}, 2)
	if got := r.bound.Load(); got != 2 {
		t.Errorf("got bound %d, want per-call 2", got)
	}
}

package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/taskforce/internal/agent"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TaskStatus tracks execution state of a batch task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Task is one prompt of a batch.
type Task struct {
	ID          string     `json:"id"`
	Index       int        `json:"index"`
	Input       string     `json:"input"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Runner executes one independent task.
type Runner interface {
	Execute(ctx context.Context, task string, maxIterations int) agent.Response
}

// BatchRunner fans independent tasks out over a bounded pool.
type BatchRunner struct {
	runner        Runner
	concurrency   int
	maxIterations int
	mu            sync.RWMutex
	running       map[string]*Task
	logger        *zap.Logger
}

// NewBatchRunner creates a runner executing at most concurrency tasks at once.
func NewBatchRunner(runner Runner, concurrency, maxIterations int, logger *zap.Logger) *BatchRunner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &BatchRunner{
		runner:        runner,
		concurrency:   concurrency,
		maxIterations: maxIterations,
		running:       make(map[string]*Task),
		logger:        logger,
	}
}

// Run executes every prompt and returns results in input order. A task's
// failure never cancels its siblings. maxIterations <= 0 uses the runner's
// configured bound.
func (b *BatchRunner) Run(ctx context.Context, prompts []string, maxIterations int) []agent.Result {
	if maxIterations <= 0 {
		maxIterations = b.maxIterations
	}
	results := make([]agent.Result, len(prompts))
	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, p := range prompts {
		task := &Task{
			ID:        uuid.New().String(),
			Index:     i,
			Input:     p,
			Status:    TaskPending,
			CreatedAt: time.Now(),
		}
		g.Go(func() error {
			results[task.Index] = b.execute(ctx, task, maxIterations)
			return nil
		})
	}
	_ = g.Wait()

	b.logger.Info("batch finished",
		zap.Int("tasks", len(prompts)),
		zap.Int("concurrency", b.concurrency),
		zap.Int("max_iterations", maxIterations))
	return results
}

func (b *BatchRunner) execute(ctx context.Context, task *Task, maxIterations int) agent.Result {
	now := time.Now()
	task.StartedAt = &now
	task.Status = TaskRunning

	b.mu.Lock()
	b.running[task.ID] = task
	b.mu.Unlock()

	b.logger.Debug("executing batch task",
		zap.String("task", task.ID),
		zap.Int("index", task.Index))

	resp := b.runner.Execute(ctx, task.Input, maxIterations)

	b.mu.Lock()
	done := time.Now()
	task.CompletedAt = &done
	task.Status = TaskDone
	if !resp.IsSuccess() {
		task.Status = TaskFailed
	}
	delete(b.running, task.ID)
	b.mu.Unlock()

	if task.Status == TaskFailed {
		b.logger.Warn("batch task failed",
			zap.String("task", task.ID),
			zap.String("outcome", string(resp.Outcome)))
	}
	return agent.ToResult(resp)
}

// Running returns snapshots of the tasks currently executing, by input order.
func (b *BatchRunner) Running() []Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tasks := make([]Task, 0, len(b.running))
	for _, t := range b.running {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Index < tasks[j].Index })
	return tasks
}

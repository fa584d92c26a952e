package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/taskforce/internal/metrics"
	"go.uber.org/zap"
)

const (
	baseBackoff = 100 * time.Millisecond
	maxBackoff  = 5 * time.Second
)

// Executor wraps tool calls with bounded retries and exponential backoff.
// It never returns an error: every outcome is a Result.
type Executor struct {
	config  Config
	metrics *metrics.Recorder
	sleep   func(ctx context.Context, d time.Duration)
	logger  *zap.Logger
}

// NewExecutor creates an executor. A non-positive MaxRetries means one attempt.
func NewExecutor(cfg Config, rec *metrics.Recorder, logger *zap.Logger) *Executor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Executor{
		config:  cfg,
		metrics: rec,
		sleep:   sleepCtx,
		logger:  logger,
	}
}

// Execute runs t with args, retrying retryable failures up to MaxRetries attempts.
func (e *Executor) Execute(ctx context.Context, t Tool, args json.RawMessage) Result {
	name := t.Metadata().Name
	start := time.Now()
	defer func() { e.metrics.ObserveToolCall(name, time.Since(start)) }()

	var lastErr string
	for attempt := 0; attempt < e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(attempt)
			e.logger.Warn("retrying tool",
				zap.String("tool", name),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", e.config.MaxRetries),
				zap.Duration("backoff", delay))
			e.sleep(ctx, delay)
		}

		res, err := e.attempt(ctx, t, args)
		if err != nil {
			e.metrics.ObserveToolAttempt(name, false)
			lastErr = err.Error()
			continue
		}
		e.metrics.ObserveToolAttempt(name, res.Success)
		if res.Success {
			return res
		}
		if !ShouldRetry(res.Error) {
			return res
		}
		lastErr = res.Error
	}

	if lastErr == "" {
		lastErr = "Unknown error"
	}
	return Failure("Tool '%s' failed after %d attempts. Last error: %s", name, e.config.MaxRetries, lastErr)
}

func (e *Executor) attempt(ctx context.Context, t Tool, args json.RawMessage) (Result, error) {
	if v, ok := t.(Validator); ok {
		if err := v.Validate(args); err != nil {
			return Failure("validation failed: %v", err), nil
		}
	}
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}
	res, err := t.Execute(ctx, args)
	if err != nil {
		return Result{}, fmt.Errorf("execute %s: %w", t.Metadata().Name, err)
	}
	return res, nil
}

// Backoff is the delay before retry attempt k (k >= 1): min(5s, 100ms * 2^k).
func Backoff(attempt int) time.Duration {
	if attempt >= 16 {
		return maxBackoff
	}
	d := baseBackoff * time.Duration(1<<uint(attempt))
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// ShouldRetry classifies a tool failure message. Validation and permission
// problems are terminal; everything else is retried.
func ShouldRetry(msg string) bool {
	lower := strings.ToLower(msg)
	for _, s := range []string{"validation", "not allowed", "permission", "empty"} {
		if strings.Contains(lower, s) {
			return false
		}
	}
	for _, s := range []string{"timeout", "connection", "network"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

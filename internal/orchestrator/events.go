package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventKind names a supervisor lifecycle event.
type EventKind string

const (
	EventPlan             EventKind = "plan"
	EventInvoke           EventKind = "invoke"
	EventValidationFailed EventKind = "validation_failed"
	EventResult           EventKind = "result"
	EventComplete         EventKind = "complete"
	EventTimeout          EventKind = "timeout"
)

// RunEvent is one entry on a run's stream.
type RunEvent struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Kind      EventKind `json:"kind"`
	Step      int       `json:"step"`
	Agent     string    `json:"agent,omitempty"`
	SubGoalID string    `json:"sub_goal_id,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const streamPrefix = "taskforce:run:"

// EventBus publishes supervisor events to Redis Streams, one stream per run.
// A nil *EventBus accepts and drops every event.
type EventBus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewEventBus connects to redisURL.
func NewEventBus(ctx context.Context, redisURL string, logger *zap.Logger) (*EventBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &EventBus{rdb: rdb, logger: logger}, nil
}

// Publish appends ev to its run's stream.
func (b *EventBus) Publish(ctx context.Context, ev *RunEvent) error {
	if b == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	stream := streamPrefix + ev.RunID
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published run event",
		zap.String("run", ev.RunID),
		zap.String("kind", string(ev.Kind)),
		zap.Int("step", ev.Step))
	return nil
}

// Subscribe streams events of runID from the beginning of its stream.
// Cancel the context to stop.
func (b *EventBus) Subscribe(ctx context.Context, runID string) <-chan *RunEvent {
	ch := make(chan *RunEvent, 16)
	if b == nil {
		close(ch)
		return ch
	}
	stream := streamPrefix + runID

	go func() {
		defer close(ch)
		lastID := "0"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev RunEvent
					if json.Unmarshal([]byte(data), &ev) != nil {
						continue
					}
					select {
					case ch <- &ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (b *EventBus) Close() error {
	if b == nil {
		return nil
	}
	return b.rdb.Close()
}

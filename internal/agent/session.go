package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/nidhogg/taskforce/internal/provider"
	"github.com/nidhogg/taskforce/internal/store"
	"go.uber.org/zap"
)

const sessionPreamble = `You are an autonomous agent that can use tools OR respond directly to accomplish tasks.

DECISION GUIDELINES:
1. For conversational messages (greetings, questions about context, general chat):
   - Set "is_final": true immediately
   - Set "action": null (no tool needed)
   - Provide your answer in "final_answer"
2. For tasks requiring tools (file operations, shell commands, web requests):
   - Choose appropriate tool
   - Execute action
   - After getting the observation, set "is_final": true with "final_answer"

EXAMPLES:
User: "hi" → {"thought": "greeting", "action": null, "is_final": true, "final_answer": "Hello! How can I help you?"}
User: "list files" → {"thought": "need shell tool", "action": {"tool": "execute_shell", "input": {"command": "ls"}}, "is_final": false, "final_answer": null}`

// SessionReply is the outcome of one Send.
type SessionReply struct {
	Message   string `json:"message"`
	Steps     []Step `json:"steps"`
	Completed bool   `json:"completed"`
}

// Session is a conversation whose history persists across Send calls.
// Concurrent Send calls on one Session are serialized; two Session values
// for the same id are not coordinated.
type Session struct {
	id            string
	loop          *Loop
	storage       store.ConversationStorage
	compactor     *Compactor
	history       []store.Message
	maxIterations int
	mu            sync.Mutex
	logger        *zap.Logger
}

// OpenSession loads the stored history of id, starting empty when none exists.
func OpenSession(ctx context.Context, id string, storage store.ConversationStorage, deps Deps, maxIterations int) (*Session, error) {
	if err := store.ValidateSessionID(id); err != nil {
		return nil, err
	}
	history, err := storage.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", id, err)
	}
	logger := deps.Logger.With(zap.String("session", id))
	return &Session{
		id:            id,
		loop:          NewLoop(deps.LLM, deps.Tools, deps.Executor, deps.Metrics, logger),
		storage:       storage,
		compactor:     deps.Compactor,
		history:       history,
		maxIterations: maxIterations,
		logger:        logger,
	}, nil
}

func (s *Session) ID() string { return s.id }

// Send runs message against the conversation so far, then persists the
// exchange. Only the user message and the reply are kept in history, which
// is compacted once it outgrows the compactor's budget.
func (s *Session) Send(ctx context.Context, message string) (SessionReply, error) {
	return s.SendWithLimit(ctx, message, 0)
}

// SendWithLimit is Send bounded by maxIterations for this message only.
// A non-positive bound uses the session's own.
func (s *Session) SendWithLimit(ctx context.Context, message string, maxIterations int) (SessionReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxIterations <= 0 {
		maxIterations = s.maxIterations
	}

	prior := make([]provider.Message, 0, len(s.history))
	for _, m := range s.history {
		prior = append(prior, provider.Message{Role: m.Role, Content: m.Content})
	}

	resp := s.loop.Run(ctx, message, RunOptions{
		Name:          "session",
		SystemPrompt:  sessionPreamble,
		History:       prior,
		MaxIterations: maxIterations,
	})
	result := ToResult(resp)
	reply := SessionReply{Message: result.Result, Steps: resp.Steps, Completed: result.Success}
	if !result.Success && result.Result == "" {
		reply.Message = result.Error
	}

	s.history = append(s.history,
		store.Message{Role: provider.RoleUser, Content: message},
		store.Message{Role: provider.RoleAssistant, Content: reply.Message})
	s.history = s.compactor.Compact(ctx, s.history)
	if err := s.storage.Save(ctx, s.id, s.history); err != nil {
		return reply, fmt.Errorf("save session %s: %w", s.id, err)
	}
	s.logger.Debug("session turn saved", zap.Int("messages", len(s.history)))
	return reply, nil
}

// History returns a copy of the persisted turns.
func (s *Session) History() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Clear drops the history in memory and in storage.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	if err := s.storage.Delete(ctx, s.id); err != nil {
		return fmt.Errorf("clear session %s: %w", s.id, err)
	}
	return nil
}

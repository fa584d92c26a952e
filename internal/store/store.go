package store

import (
	"context"
	"fmt"
	"regexp"
)

// ErrSessionNotFound is returned when a session has no stored history.
var ErrSessionNotFound = fmt.Errorf("session not found")

// ErrInvalidSessionID is returned for ids that are not safe storage keys.
var ErrInvalidSessionID = fmt.Errorf("invalid session id")

// Message is one persisted conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationStorage persists conversation history per session id.
// Loading an unknown session yields an empty history, not an error.
type ConversationStorage interface {
	Save(ctx context.Context, sessionID string, history []Message) error
	Load(ctx context.Context, sessionID string) ([]Message, error)
	Delete(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, sessionID string) (bool, error)
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateSessionID rejects ids that could escape a storage namespace.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("%q: %w", id, ErrInvalidSessionID)
	}
	return nil
}

func cloneHistory(h []Message) []Message {
	out := make([]Message, len(h))
	copy(out, h)
	return out
}

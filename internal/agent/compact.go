package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/nidhogg/taskforce/internal/provider"
	"github.com/nidhogg/taskforce/internal/store"
	"go.uber.org/zap"
)

const summaryPrefix = "Summary of the earlier conversation:\n"

// Compactor keeps session history under a token budget by folding the
// older half into one summary message.
type Compactor struct {
	budget int
	llm    provider.Chatter
	logger *zap.Logger
}

// NewCompactor creates a compactor for budget tokens. llm may be nil, in
// which case the older half is dropped instead of summarized.
func NewCompactor(budget int, llm provider.Chatter, logger *zap.Logger) *Compactor {
	return &Compactor{budget: budget, llm: llm, logger: logger}
}

// Budget is the token limit for stored history.
func (c *Compactor) Budget() int { return c.budget }

// Compact returns history unchanged while it fits the budget. Otherwise the
// older half, rounded down to whole user/assistant pairs, is replaced.
func (c *Compactor) Compact(ctx context.Context, history []store.Message) []store.Message {
	if c == nil || c.budget <= 0 {
		return history
	}
	total := EstimateTokens(history)
	if total <= c.budget {
		return history
	}

	// An earlier summary is folded again so the cut stays on pair boundaries.
	lead := 0
	if isSummary(history[0]) {
		lead = 1
	}
	turns := history[lead:]
	if len(turns) <= 2 {
		return history
	}
	cut := len(turns) / 2
	cut -= cut % 2
	if cut == 0 {
		cut = 2
	}
	older, recent := history[:lead+cut], turns[cut:]

	summary, err := c.summarize(ctx, older)
	if err != nil {
		c.logger.Warn("history summarization failed, truncating", zap.Error(err))
		out := make([]store.Message, len(recent))
		copy(out, recent)
		return out
	}

	out := make([]store.Message, 0, len(recent)+1)
	out = append(out, store.Message{Role: provider.RoleSystem, Content: summaryPrefix + summary})
	out = append(out, recent...)
	c.logger.Debug("history compacted",
		zap.Int("tokens_before", total),
		zap.Int("tokens_after", EstimateTokens(out)),
		zap.Int("messages_folded", len(older)))
	return out
}

func (c *Compactor) summarize(ctx context.Context, msgs []store.Message) (string, error) {
	if c.llm == nil {
		return "", fmt.Errorf("no summarizer configured")
	}
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s]: %s\n", m.Role, m.Content)
	}
	reply, err := c.llm.Chat(ctx, []provider.Message{{
		Role:    provider.RoleUser,
		Content: "Condense the following conversation into a short summary that keeps names, decisions, file paths and open requests:\n\n" + b.String(),
	}})
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("empty summary")
	}
	return reply, nil
}

func isSummary(m store.Message) bool {
	return m.Role == provider.RoleSystem && strings.HasPrefix(m.Content, summaryPrefix)
}

// EstimateTokens approximates token usage at four bytes per token.
func EstimateTokens(msgs []store.Message) int {
	total := 0
	for _, m := range msgs {
		if n := len(m.Content); n > 0 {
			total += (n + 3) / 4
		}
	}
	return total
}

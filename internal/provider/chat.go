package provider

import (
	"context"
	"fmt"
)

// Chatter is the single-completion interface agents reason through.
// Errors are fatal to the caller's current decision step; no retry happens here.
type Chatter interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// ChatFunc adapts a function into a Chatter.
type ChatFunc func(ctx context.Context, messages []Message) (string, error)

func (f ChatFunc) Chat(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// ChatOptions are the fixed generation settings of a routed Chatter.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

type routedChatter struct {
	router *Router
	agent  string
	opts   ChatOptions
}

// Chatter returns a Chatter that routes completions for agent through r.
func (r *Router) Chatter(agent string, opts ChatOptions) Chatter {
	return &routedChatter{router: r, agent: agent, opts: opts}
}

func (c *routedChatter) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.router.Route(ctx, c.agent, &ChatRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		JSONMode:    c.opts.JSONMode,
	})
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", fmt.Errorf("empty completion from provider")
	}
	return resp.Content, nil
}

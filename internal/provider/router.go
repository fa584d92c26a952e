package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nidhogg/taskforce/internal/metrics"
	"go.uber.org/zap"
)

// Router picks a provider per routing key and walks a fallback chain when
// the chosen provider fails. Routing keys are chatter names such as
// "taskforce" or "taskforce_summarizer".
type Router struct {
	providers map[string]Provider
	bindings  map[string]string   // routing key -> provider ID
	fallbacks map[string][]string // routing key -> fallback provider IDs
	defaults  string
	metrics   *metrics.Recorder
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// WithMetrics records request outcomes and token usage per provider.
func (r *Router) WithMetrics(rec *metrics.Recorder) *Router {
	r.metrics = rec
	return r
}

// Register adds a provider. The first registered provider becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

func (r *Router) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// Bind pins a routing key to one provider instead of the default.
func (r *Router) Bind(key, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[key] = providerID
}

// SetFallbacks sets the providers tried, in order, after the primary fails.
func (r *Router) SetFallbacks(key string, providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[key] = providerIDs
}

// Route sends req to the primary provider for key, then to each fallback
// until one answers. The last error is returned when all of them fail.
func (r *Router) Route(ctx context.Context, key string, req *ChatRequest) (*ChatResponse, error) {
	chain := r.chain(key)
	if len(chain) == 0 {
		return nil, fmt.Errorf("route %s: %w", key, ErrNoProvider)
	}

	var lastErr error
	for i, p := range chain {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			r.metrics.ObserveLLMCall(p.ID(), nil, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			if i > 0 {
				r.logger.Info("fallback provider answered", zap.String("key", key), zap.String("provider", p.ID()))
			}
			return resp, nil
		}
		r.metrics.ObserveLLMCall(p.ID(), err, 0, 0)
		lastErr = err
		if i < len(chain)-1 {
			r.logger.Warn("provider failed, trying next",
				zap.String("key", key), zap.String("provider", p.ID()), zap.Error(err))
		}
	}
	if len(chain) == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("all %d providers failed for %s: %w", len(chain), key, lastErr)
}

// chain resolves the primary provider for key followed by its known,
// distinct fallbacks.
func (r *Router) chain(key string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Provider
	seen := make(map[string]bool)
	add := func(id string) {
		if p, ok := r.providers[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	if pid, ok := r.bindings[key]; ok {
		add(pid)
	}
	if len(out) == 0 {
		add(r.defaults)
	}
	if len(out) == 0 {
		return nil
	}
	for _, id := range r.fallbacks[key] {
		add(id)
	}
	return out
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ListProviders returns all registered providers sorted by ID.
func (r *Router) ListProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

package agent

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// GeneralName labels runs of the untargeted agent.
const GeneralName = "agent"

// Agent runs tasks with the generic autonomous-agent prompt over every
// registered tool.
type Agent struct {
	loop   *Loop
	logger *zap.Logger
}

// New creates a general agent.
func New(deps Deps) *Agent {
	return &Agent{
		loop:   NewLoop(deps.LLM, deps.Tools, deps.Executor, deps.Metrics, deps.Logger),
		logger: deps.Logger,
	}
}

// Execute runs task for at most maxIterations think/act/observe cycles.
func (a *Agent) Execute(ctx context.Context, task string, maxIterations int) Response {
	return a.loop.Run(ctx, task, RunOptions{Name: GeneralName, MaxIterations: maxIterations})
}

// Catalog is the set of specialized agents addressable by name.
type Catalog struct {
	agents map[string]*SpecializedAgent
	order  []string
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewCatalog creates a catalog holding agents.
func NewCatalog(logger *zap.Logger, agents ...*SpecializedAgent) *Catalog {
	c := &Catalog{agents: make(map[string]*SpecializedAgent), logger: logger}
	for _, a := range agents {
		c.Register(a)
	}
	return c
}

// Register adds or replaces an agent.
func (c *Catalog) Register(a *SpecializedAgent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.agents[a.Name()]; !exists {
		c.order = append(c.order, a.Name())
	}
	c.agents[a.Name()] = a
	c.logger.Info("registered agent",
		zap.String("name", a.Name()),
		zap.Strings("tools", a.ToolNames()))
}

// Get returns the agent with the given name.
func (c *Catalog) Get(name string) (*SpecializedAgent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[name]
	return a, ok
}

// List returns agents in registration order.
func (c *Catalog) List() []*SpecializedAgent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*SpecializedAgent, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.agents[name])
	}
	return out
}

// Names returns agent names sorted alphabetically.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.agents))
	for name := range c.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports how many agents are registered.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.agents)
}

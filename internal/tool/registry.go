package tool

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrToolNotFound is returned when a tool name is not registered.
var ErrToolNotFound = fmt.Errorf("tool not found")

// Registry maps tool names to implementations. Populate it at startup;
// lookups are safe from many goroutines.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool under its metadata name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Metadata().Name] = t
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns metadata for every tool, sorted by name.
func (r *Registry) List() []Metadata {
	names := r.Names()
	out := make([]Metadata, 0, len(names))
	for _, n := range names {
		if t, ok := r.Get(n); ok {
			out = append(out, t.Metadata())
		}
	}
	return out
}

// Subset builds a new registry containing only the named tools.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	sub := NewRegistry()
	for _, n := range names {
		t, ok := r.Get(n)
		if !ok {
			return nil, fmt.Errorf("subset %s: %w", n, ErrToolNotFound)
		}
		sub.Register(t)
	}
	return sub, nil
}

// Description renders the tool catalog embedded into system prompts.
func (r *Registry) Description() string {
	metas := r.List()
	parts := make([]string, 0, len(metas))
	for _, m := range metas {
		parts = append(parts, Describe(m))
	}
	return strings.Join(parts, "\n\n")
}

// Describe renders one catalog entry.
func Describe(m Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool: %s\nDescription: %s\nParameters:", m.Name, m.Description)
	for _, p := range m.Parameters {
		req := "optional"
		if p.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "\n  - %s (%s): %s [%s]", p.Name, p.Type, p.Description, req)
	}
	return b.String()
}

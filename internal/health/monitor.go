// Package health tracks liveness of long-lived collaborators such as LLM
// providers and MCP servers through heartbeats.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PingFunc actively checks a collaborator. A nil error counts as a heartbeat.
type PingFunc func(ctx context.Context) error

// ResetFunc brings a stale collaborator back.
type ResetFunc func(ctx context.Context) error

// Status of a watched collaborator.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusStale   Status = "stale"
)

// Config controls beat and check cadence.
type Config struct {
	HeartbeatInterval time.Duration
	Timeout           time.Duration
	CheckInterval     time.Duration
	AutoRestart       bool
}

// DefaultConfig returns 5s heartbeats, 30s timeout and 10s checks.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Second,
		Timeout:           30 * time.Second,
		CheckInterval:     10 * time.Second,
		AutoRestart:       true,
	}
}

// Entry is the public view of a watched collaborator.
type Entry struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	LastBeat  time.Time `json:"last_beat"`
	Restarts  int       `json:"restarts"`
	LastError string    `json:"last_error,omitempty"`
}

type watched struct {
	entry Entry
	ping  PingFunc
	reset ResetFunc
}

// Monitor records heartbeats and marks collaborators stale when they stop.
type Monitor struct {
	cfg     Config
	entries map[string]*watched
	mu      sync.Mutex
	now     func() time.Time
	logger  *zap.Logger
}

// NewMonitor creates a monitor. Zero durations take their defaults.
func NewMonitor(cfg Config, logger *zap.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	return &Monitor{
		cfg:     cfg,
		entries: make(map[string]*watched),
		now:     time.Now,
		logger:  logger,
	}
}

// Register starts watching name. ping and reset may be nil; without a ping
// the collaborator must call Beat itself.
func (m *Monitor) Register(name string, ping PingFunc, reset ResetFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = &watched{
		entry: Entry{Name: name, Status: StatusHealthy, LastBeat: m.now()},
		ping:  ping,
		reset: reset,
	}
	m.logger.Info("watching collaborator", zap.String("name", name))
}

// Beat records a heartbeat from name.
func (m *Monitor) Beat(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.entries[name]
	if !ok {
		return
	}
	w.entry.LastBeat = m.now()
	w.entry.LastError = ""
	if w.entry.Status != StatusHealthy {
		m.logger.Info("collaborator recovered", zap.String("name", name))
		w.entry.Status = StatusHealthy
	}
}

// PingAll runs every registered ping once and records the successes.
func (m *Monitor) PingAll(ctx context.Context) {
	m.mu.Lock()
	pings := make(map[string]PingFunc, len(m.entries))
	for name, w := range m.entries {
		if w.ping != nil {
			pings[name] = w.ping
		}
	}
	m.mu.Unlock()

	for name, ping := range pings {
		pctx, cancel := context.WithTimeout(ctx, m.cfg.HeartbeatInterval)
		err := ping(pctx)
		cancel()
		if err != nil {
			m.logger.Debug("ping failed", zap.String("name", name), zap.Error(err))
			m.recordError(name, err)
			continue
		}
		m.Beat(name)
	}
}

func (m *Monitor) recordError(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.entries[name]; ok {
		w.entry.LastError = err.Error()
	}
}

// Check marks entries without a heartbeat inside the timeout as stale and,
// when auto restart is on, resets them. It returns the names found stale.
func (m *Monitor) Check(ctx context.Context) []string {
	now := m.now()
	m.mu.Lock()
	var stale []string
	resets := make(map[string]ResetFunc)
	for name, w := range m.entries {
		if now.Sub(w.entry.LastBeat) <= m.cfg.Timeout {
			continue
		}
		if w.entry.Status != StatusStale {
			m.logger.Warn("collaborator stale",
				zap.String("name", name),
				zap.Duration("silent_for", now.Sub(w.entry.LastBeat)))
		}
		w.entry.Status = StatusStale
		stale = append(stale, name)
		if m.cfg.AutoRestart && w.reset != nil {
			resets[name] = w.reset
		}
	}
	m.mu.Unlock()
	sort.Strings(stale)

	for name, reset := range resets {
		if err := reset(ctx); err != nil {
			m.logger.Error("reset failed", zap.String("name", name), zap.Error(err))
			m.recordError(name, err)
			continue
		}
		m.mu.Lock()
		if w, ok := m.entries[name]; ok {
			w.entry.Restarts++
			w.entry.Status = StatusHealthy
			w.entry.LastBeat = m.now()
			w.entry.LastError = ""
		}
		m.mu.Unlock()
		m.logger.Info("collaborator reset", zap.String("name", name))
	}
	return stale
}

// Run pings and checks on their intervals until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	beat := time.NewTicker(m.cfg.HeartbeatInterval)
	defer beat.Stop()
	check := time.NewTicker(m.cfg.CheckInterval)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-beat.C:
			m.PingAll(ctx)
		case <-check.C:
			m.Check(ctx)
		}
	}
}

// Snapshot returns every entry sorted by name.
func (m *Monitor) Snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, w := range m.entries {
		out = append(out, w.entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether no entry is stale.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.entries {
		if w.entry.Status != StatusHealthy {
			return false
		}
	}
	return true
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/taskforce/internal/health"
	"github.com/nidhogg/taskforce/internal/orchestrator"
	"github.com/nidhogg/taskforce/internal/provider"
	"github.com/nidhogg/taskforce/internal/store"
	"github.com/nidhogg/taskforce/internal/tool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ToolPolicy is the retry and timeout policy for tool calls.
func (c *Config) ToolPolicy() tool.Config {
	return tool.Config{
		Timeout:    secs(c.Tools.TimeoutSecs),
		MaxRetries: c.Tools.MaxRetries,
		Sandbox:    c.Tools.Sandbox,
	}
}

// BuiltinOptions configures the builtin tool set. With sandbox off the
// shell whitelist is ignored.
func (c *Config) BuiltinOptions() tool.BuiltinOptions {
	opts := tool.BuiltinOptions{
		ShellTimeout: secs(c.Tools.TimeoutSecs),
		MaxFileBytes: c.Tools.MaxFileBytes,
		FileRoots:    c.Tools.FileRoots,
		HTTPTimeout:  secs(c.Tools.HTTPTimeoutSecs),
		HTTPDomains:  c.Tools.HTTPDomains,
	}
	if c.Tools.Sandbox {
		opts.ShellWhitelist = c.Tools.ShellWhitelist
	}
	return opts
}

func (c *Config) SupervisorConfig() orchestrator.Config {
	return orchestrator.Config{
		MaxSteps:      c.Agent.MaxOrchestrationSteps,
		MaxSubGoals:   c.Agent.MaxSubGoals,
		MaxIterations: c.Agent.MaxIterations,
		AgentTimeout:  time.Duration(c.Validation.AgentTimeoutMs) * time.Millisecond,
	}
}

func (c *Config) HealthConfig() health.Config {
	return health.Config{
		HeartbeatInterval: ms(c.System.HeartbeatIntervalMs),
		Timeout:           ms(c.System.HeartbeatTimeoutMs),
		CheckInterval:     ms(c.System.CheckIntervalMs),
		AutoRestart:       c.System.AutoRestart,
	}
}

func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:     c.Storage.Backend,
		Dir:         c.Storage.Dir,
		PostgresDSN: c.Database.Postgres.DSN,
		RedisURL:    c.Database.Redis.URL,
		RedisTTL:    secs(c.Database.Redis.SessionTTLSecs),
		CacheSize:   c.Storage.CacheSize,
	}
}

// ChatOptions are the generation settings agents reason with.
func (c *Config) ChatOptions() provider.ChatOptions {
	return provider.ChatOptions{
		Model:       c.LLM.Model,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
		JSONMode:    true,
	}
}

// ProviderConfigs converts the provider entries.
func (c *Config) ProviderConfigs() []provider.ProviderConfig {
	out := make([]provider.ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		out = append(out, provider.ProviderConfig{
			ID:         p.ID,
			Type:       p.Type,
			Name:       p.Name,
			Endpoint:   p.Endpoint,
			APIKey:     p.APIKey,
			Models:     p.Models,
			Timeout:    secs(p.TimeoutSecs),
			MaxRetries: p.MaxRetries,
		})
	}
	return out
}

// NewLogger builds a production zap logger at level (debug, info, warn, error).
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

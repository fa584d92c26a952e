package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	t.Setenv("TF_PG_DSN", "postgres://u:p@db/tf")
	path := writeFile(t, "taskforce.yaml", `
agent:
  max_iterations: 5
storage:
  backend: postgres
database:
  postgres:
    dsn: ${TF_PG_DSN}
providers:
  - id: claude
    type: anthropic
    api_key: ${TF_MISSING_KEY:fallback-key}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("got max_iterations %d, want 5", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.MaxOrchestrationSteps != 20 || cfg.Agent.MaxSubGoals != 10 {
		t.Errorf("defaults lost: %+v", cfg.Agent)
	}
	if cfg.Database.Postgres.DSN != "postgres://u:p@db/tf" {
		t.Errorf("got dsn %q", cfg.Database.Postgres.DSN)
	}
	if cfg.Providers[0].APIKey != "fallback-key" {
		t.Errorf("got api key %q, want fallback-key", cfg.Providers[0].APIKey)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "taskforce.json", `{
  "server": {"port": 9090},
  "tools": {"timeout_secs": 5, "max_retries": 2, "sandbox": true, "shell_whitelist": ["ls"]},
  "system": {"heartbeat_timeout_ms": 1500}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("got port %d, want 9090", cfg.Server.Port)
	}
	policy := cfg.ToolPolicy()
	if policy.Timeout != 5*time.Second || policy.MaxRetries != 2 {
		t.Errorf("got policy %+v", policy)
	}
	if got := cfg.BuiltinOptions().ShellWhitelist; len(got) != 1 || got[0] != "ls" {
		t.Errorf("got whitelist %v", got)
	}
	if got := cfg.HealthConfig().Timeout; got != 1500*time.Millisecond {
		t.Errorf("got heartbeat timeout %v", got)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }},
		{"negative steps", func(c *Config) { c.Agent.MaxOrchestrationSteps = -1 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"unknown provider", func(c *Config) {
			c.Providers = []ProviderConfig{{ID: "x", Type: "llama"}}
		}},
		{"unknown mcp transport", func(c *Config) {
			c.MCP.Servers = []MCPServerConfig{{Name: "x", Type: "ws"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoadFromEnvMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromEnv("configs/taskforce.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Type != "openai" || cfg.Providers[0].APIKey != "sk-test" {
		t.Errorf("got providers %+v", cfg.Providers)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("got default provider %q", cfg.LLM.Provider)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger("debug"); err != nil {
		t.Errorf("debug: %v", err)
	}
	if _, err := NewLogger("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

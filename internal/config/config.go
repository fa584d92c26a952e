package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	LLM        LLMConfig        `json:"llm" yaml:"llm"`
	Providers  []ProviderConfig `json:"providers" yaml:"providers"`
	Agent      AgentConfig      `json:"agent" yaml:"agent"`
	Validation ValidationConfig `json:"validation" yaml:"validation"`
	Tools      ToolsConfig      `json:"tools" yaml:"tools"`
	System     SystemConfig     `json:"system" yaml:"system"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	MCP        MCPConfig        `json:"mcp" yaml:"mcp"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
}

// LLMConfig holds generation settings shared by every agent.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider"`
	Model       string  `json:"model" yaml:"model"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// SummaryProvider serves session history summaries. Empty means the default provider.
	SummaryProvider string `json:"summary_provider,omitempty" yaml:"summary_provider,omitempty"`
}

type ProviderConfig struct {
	ID          string   `json:"id" yaml:"id"`
	Type        string   `json:"type" yaml:"type"`
	Name        string   `json:"name" yaml:"name"`
	Endpoint    string   `json:"endpoint" yaml:"endpoint"`
	APIKey      string   `json:"api_key" yaml:"api_key"`
	Models      []string `json:"models,omitempty" yaml:"models,omitempty"`
	TimeoutSecs int      `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty"`
	MaxRetries  int      `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

type AgentConfig struct {
	MaxIterations         int `json:"max_iterations" yaml:"max_iterations"`
	MaxOrchestrationSteps int `json:"max_orchestration_steps" yaml:"max_orchestration_steps"`
	MaxSubGoals           int `json:"max_sub_goals" yaml:"max_sub_goals"`
	BatchConcurrency      int `json:"batch_concurrency" yaml:"batch_concurrency"`

	// HistoryTokens caps stored session history. Zero disables compaction.
	HistoryTokens int `json:"history_tokens" yaml:"history_tokens"`
}

type ValidationConfig struct {
	AgentTimeoutMs int64 `json:"agent_timeout_ms" yaml:"agent_timeout_ms"`

	// ContractsFile names a YAML file of extra handoff contracts.
	ContractsFile string `json:"contracts_file,omitempty" yaml:"contracts_file,omitempty"`
}

type ToolsConfig struct {
	TimeoutSecs     int      `json:"timeout_secs" yaml:"timeout_secs"`
	MaxRetries      int      `json:"max_retries" yaml:"max_retries"`
	Sandbox         bool     `json:"sandbox" yaml:"sandbox"`
	ShellWhitelist  []string `json:"shell_whitelist,omitempty" yaml:"shell_whitelist,omitempty"`
	FileRoots       []string `json:"file_roots,omitempty" yaml:"file_roots,omitempty"`
	HTTPDomains     []string `json:"http_domains,omitempty" yaml:"http_domains,omitempty"`
	MaxFileBytes    int64    `json:"max_file_bytes" yaml:"max_file_bytes"`
	HTTPTimeoutSecs int      `json:"http_timeout_secs" yaml:"http_timeout_secs"`
}

type SystemConfig struct {
	HeartbeatIntervalMs int  `json:"heartbeat_interval_ms" yaml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMs  int  `json:"heartbeat_timeout_ms" yaml:"heartbeat_timeout_ms"`
	CheckIntervalMs     int  `json:"check_interval_ms" yaml:"check_interval_ms"`
	AutoRestart         bool `json:"auto_restart" yaml:"auto_restart"`

	// RunEvents publishes supervisor events to Redis Streams.
	RunEvents bool `json:"run_events" yaml:"run_events"`
}

type StorageConfig struct {
	Backend   string `json:"backend" yaml:"backend"`
	Dir       string `json:"dir,omitempty" yaml:"dir,omitempty"`
	CacheSize int    `json:"cache_size" yaml:"cache_size"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

type RedisConfig struct {
	URL            string `json:"url" yaml:"url"`
	SessionTTLSecs int    `json:"session_ttl_secs,omitempty" yaml:"session_ttl_secs,omitempty"`
}

type MCPConfig struct {
	Servers []MCPServerConfig `json:"servers" yaml:"servers"`
}

type MCPServerConfig struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Command     string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args        []string `json:"args,omitempty" yaml:"args,omitempty"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   2000,
			Temperature: 0.7,
		},
		Agent: AgentConfig{
			MaxIterations:         10,
			MaxOrchestrationSteps: 20,
			MaxSubGoals:           10,
			BatchConcurrency:      4,
			HistoryTokens:         8000,
		},
		Validation: ValidationConfig{AgentTimeoutMs: 30000},
		Tools: ToolsConfig{
			TimeoutSecs:     30,
			MaxRetries:      3,
			Sandbox:         true,
			MaxFileBytes:    10 << 20,
			HTTPTimeoutSecs: 30,
		},
		System: SystemConfig{
			HeartbeatIntervalMs: 5000,
			HeartbeatTimeoutMs:  30000,
			CheckIntervalMs:     10000,
			AutoRestart:         true,
		},
		Storage: StorageConfig{Backend: "memory", Dir: "data/sessions", CacheSize: 128},
		Logging: LoggingConfig{Level: "info"},
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

func substituteEnv(data []byte) []byte {
	return envVarRe.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envVarRe.FindSubmatch(match)
		if v := os.Getenv(string(parts[1])); v != "" {
			return []byte(v)
		}
		return parts[2]
	})
}

// Load reads a JSON or YAML config file (chosen by extension) over the
// defaults, substituting environment variable references first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := decode(path, substituteEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by CONFIG_PATH, or fallback when unset.
// A missing file yields the defaults.
func LoadFromEnv(fallback string) (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = fallback
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}
	return cfg, err
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// applyEnv synthesizes an OpenAI provider from OPENAI_API_KEY when none is configured.
func (c *Config) applyEnv() {
	if len(c.Providers) > 0 {
		return
	}
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return
	}
	c.Providers = append(c.Providers, ProviderConfig{
		ID:       "openai",
		Type:     "openai",
		Name:     "OpenAI",
		Endpoint: os.Getenv("OPENAI_BASE_URL"),
		APIKey:   key,
		Models:   []string{c.LLM.Model},
	})
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
}

// Validate rejects settings the runtime cannot work with.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxOrchestrationSteps <= 0 {
		return fmt.Errorf("agent.max_orchestration_steps must be positive, got %d", c.Agent.MaxOrchestrationSteps)
	}
	if c.Agent.MaxSubGoals <= 0 {
		return fmt.Errorf("agent.max_sub_goals must be positive, got %d", c.Agent.MaxSubGoals)
	}
	if c.Agent.BatchConcurrency <= 0 {
		return fmt.Errorf("agent.batch_concurrency must be positive, got %d", c.Agent.BatchConcurrency)
	}
	switch c.Storage.Backend {
	case "memory", "file", "postgres", "redis":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("storage backend postgres requires database.postgres.dsn")
	}
	if c.Storage.Backend == "redis" && c.Database.Redis.URL == "" {
		return fmt.Errorf("storage backend redis requires database.redis.url")
	}
	for _, p := range c.Providers {
		switch p.Type {
		case "openai", "anthropic":
		default:
			return fmt.Errorf("provider %s: unknown type %q", p.ID, p.Type)
		}
	}
	for _, s := range c.MCP.Servers {
		switch s.Type {
		case "stdio", "sse":
		default:
			return fmt.Errorf("mcp server %s: unknown type %q", s.Name, s.Type)
		}
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

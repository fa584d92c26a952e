package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Parameter describes one argument a tool accepts.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Metadata is the catalog entry for a tool.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

func (m Metadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Result is the typed outcome of one tool invocation.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Success builds a successful result.
func Success(output string) Result {
	return Result{Success: true, Output: output}
}

// Failure builds a failed result.
func Failure(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Tool is a named capability the reasoning loop can invoke. Implementations
// must be safe for concurrent use; registries are shared across runs.
type Tool interface {
	Metadata() Metadata
	Execute(ctx context.Context, args json.RawMessage) (Result, error)
}

// Validator is implemented by tools that check arguments before executing.
type Validator interface {
	Validate(args json.RawMessage) error
}

// Config bounds how tools are executed.
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	Sandbox    bool
}

// DefaultConfig returns 30s timeout, 3 attempts, sandbox on.
func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Sandbox:    true,
	}
}

// Func adapts a plain function into a Tool.
type Func struct {
	Meta Metadata
	Fn   func(ctx context.Context, args json.RawMessage) (Result, error)
}

func (f *Func) Metadata() Metadata { return f.Meta }

func (f *Func) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	return f.Fn(ctx, args)
}

// decodeArgs unmarshals tool input, treating empty input as an empty object.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("validation: invalid arguments: %w", err)
	}
	return nil
}

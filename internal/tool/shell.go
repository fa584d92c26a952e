package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellTool runs a command through sh -c.
type ShellTool struct {
	timeout time.Duration
	allowed []string
}

// NewShellTool creates a shell tool. An empty whitelist allows every command.
func NewShellTool(timeout time.Duration, whitelist ...string) *ShellTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShellTool{timeout: timeout, allowed: whitelist}
}

type shellArgs struct {
	Command string `json:"command"`
}

func (s *ShellTool) Metadata() Metadata {
	return Metadata{
		Name:        "execute_shell",
		Description: "Execute a shell command and return its output. Use for running system commands, scripts, or CLI tools.",
		Parameters: []Parameter{
			{Name: "command", Type: "string", Description: "The shell command to execute", Required: true},
		},
	}
}

func (s *ShellTool) Validate(args json.RawMessage) error {
	var a shellArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	if strings.TrimSpace(a.Command) == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if !s.commandAllowed(a.Command) {
		return fmt.Errorf("command '%s' is not allowed", a.Command)
	}
	return nil
}

func (s *ShellTool) commandAllowed(command string) bool {
	if len(s.allowed) == 0 {
		return true
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	for _, a := range s.allowed {
		if a == fields[0] {
			return true
		}
	}
	return false
}

func (s *ShellTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	var a shellArgs
	if err := decodeArgs(args, &a); err != nil {
		return Failure("%v", err), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", a.Command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Failure("Command timed out after %d seconds", int(s.timeout.Seconds())), nil
	}
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		return Failure("Command failed with exit code %d\nstdout: %s\nstderr: %s",
			exitErr.ExitCode(), stdout.String(), stderr.String()), nil
	case err != nil:
		return Failure("Failed to execute command: %v", err), nil
	}

	if stderr.Len() == 0 {
		return Success(stdout.String()), nil
	}
	return Success(fmt.Sprintf("stdout:\n%s\nstderr:\n%s", stdout.String(), stderr.String())), nil
}

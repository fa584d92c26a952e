package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

const closeTimeout = 5 * time.Second

// stdioTransport runs the server as a child process exchanging
// newline-delimited JSON-RPC frames over stdin/stdout.
type stdioTransport struct {
	command string
	args    []string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	done    chan struct{}
	writeMu sync.Mutex
	logger  *zap.Logger
}

// NewStdioClient creates a client for an MCP server launched as a subprocess.
func NewStdioClient(name, command string, args []string, logger *zap.Logger) *Client {
	return newClient(name, &stdioTransport{
		command: command,
		args:    args,
		logger:  logger,
	}, logger)
}

func (t *stdioTransport) start(ctx context.Context, dispatch func([]byte)) error {
	cmd := exec.CommandContext(ctx, t.command, t.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", t.command, err)
	}
	done := make(chan struct{})
	t.writeMu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.done = done
	t.writeMu.Unlock()

	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			frame := make([]byte, len(line))
			copy(frame, line)
			dispatch(frame)
		}
		if err := scanner.Err(); err != nil {
			t.logger.Warn("mcp stdio read failed", zap.String("command", t.command), zap.Error(err))
		}
		// Reap the child once its stdout is drained.
		if err := cmd.Wait(); err != nil {
			t.logger.Debug("mcp stdio server exited", zap.String("command", t.command), zap.Error(err))
		}
	}()
	return nil
}

func (t *stdioTransport) send(_ context.Context, frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.stdin == nil {
		return fmt.Errorf("transport not started")
	}
	if _, err := t.stdin.Write(append(frame, '\n')); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (t *stdioTransport) close() error {
	t.writeMu.Lock()
	cmd, stdin, done := t.cmd, t.stdin, t.done
	t.cmd, t.stdin, t.done = nil, nil, nil
	t.writeMu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(closeTimeout):
			t.logger.Warn("mcp stdio server did not exit", zap.String("command", t.command))
		}
	}
	return nil
}

// running reports whether a child process is attached.
func (t *stdioTransport) running() bool {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.cmd != nil
}

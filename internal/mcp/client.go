package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	protocolVersion = "2024-11-05"
	rpcTimeout      = 30 * time.Second
)

// ToolInfo describes a tool exposed by an MCP server.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// CallResult is the flattened outcome of tools/call.
type CallResult struct {
	Text    string
	IsError bool
}

// transport moves JSON-RPC frames to and from a server. Incoming frames
// are handed to the dispatch callback passed to start.
type transport interface {
	start(ctx context.Context, dispatch func([]byte)) error
	send(ctx context.Context, frame []byte) error
	close() error
}

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	result json.RawMessage
	err    error
}

// Client speaks MCP over a transport: it performs the initialize handshake,
// discovers tools and calls them.
type Client struct {
	name      string
	transport transport
	tools     []ToolInfo
	pending   map[int64]chan rpcResponse
	nextID    atomic.Int64
	mu        sync.Mutex
	cancel    context.CancelFunc
	logger    *zap.Logger
}

func newClient(name string, t transport, logger *zap.Logger) *Client {
	return &Client{
		name:      name,
		transport: t,
		pending:   make(map[int64]chan rpcResponse),
		logger:    logger,
	}
}

// Name returns the server name.
func (c *Client) Name() string { return c.name }

// ListTools returns the tools discovered at connect time.
func (c *Client) ListTools() []ToolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ToolInfo, len(c.tools))
	copy(out, c.tools)
	return out
}

// Connect starts the transport, runs initialize and fetches the tool list.
// A failed handshake stops the transport again before returning.
func (c *Client) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if err := c.transport.start(runCtx, c.dispatch); err != nil {
		cancel()
		return fmt.Errorf("mcp %s start: %w", c.name, err)
	}
	if err := c.handshake(ctx); err != nil {
		if cerr := c.Close(); cerr != nil {
			c.logger.Warn("mcp close after failed connect", zap.String("name", c.name), zap.Error(cerr))
		}
		return err
	}
	c.logger.Info("MCP tools discovered", zap.String("name", c.name), zap.Int("count", len(c.ListTools())))
	return nil
}

func (c *Client) handshake(ctx context.Context) error {
	if _, err := c.call(ctx, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]string{
			"name":    "taskforce",
			"version": "1.0.0",
		},
	}); err != nil {
		return fmt.Errorf("mcp %s initialize: %w", c.name, err)
	}
	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		return fmt.Errorf("mcp %s initialized notification: %w", c.name, err)
	}
	if err := c.fetchTools(ctx); err != nil {
		return fmt.Errorf("mcp %s list tools: %w", c.name, err)
	}
	return nil
}

// Ping checks the server is still answering.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", nil)
	return err
}

// dispatch routes a response frame to its waiting caller.
func (c *Client) dispatch(frame []byte) {
	var envelope struct {
		ID     *int64          `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil || envelope.ID == nil {
		c.logger.Debug("mcp: ignoring non-response frame", zap.String("name", c.name))
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[*envelope.ID]
	if ok {
		delete(c.pending, *envelope.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if envelope.Error != nil {
		ch <- rpcResponse{err: envelope.Error}
		return
	}
	ch <- rpcResponse{result: envelope.Result}
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	frame, err := json.Marshal(struct {
		JSONRPC string      `json:"jsonrpc"`
		ID      int64       `json:"id"`
		Method  string      `json:"method"`
		Params  interface{} `json:"params,omitempty"`
	}{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("marshal rpc: %w", err)
	}
	if err := c.transport.send(ctx, frame); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("send rpc: %w", err)
	}

	timer := time.NewTimer(rpcTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("mcp client closed")
		}
		return resp.result, resp.err
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-timer.C:
		c.forget(id)
		return nil, fmt.Errorf("mcp rpc timeout for %s", method)
	}
}

func (c *Client) notify(ctx context.Context, method string) error {
	frame, err := json.Marshal(map[string]string{"jsonrpc": "2.0", "method": method})
	if err != nil {
		return err
	}
	return c.transport.send(ctx, frame)
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) fetchTools(ctx context.Context) error {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}
	var resp struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return fmt.Errorf("parse tools/list: %w", err)
	}
	c.mu.Lock()
	c.tools = resp.Tools
	c.mu.Unlock()
	return nil
}

// CallTool invokes a server tool and joins its text content blocks.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (CallResult, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	result, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return CallResult{}, fmt.Errorf("mcp call %s: %w", name, err)
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &resp); err != nil || len(resp.Content) == 0 {
		return CallResult{Text: string(result), IsError: resp.IsError}, nil
	}
	texts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	return CallResult{Text: strings.Join(texts, "\n"), IsError: resp.IsError}, nil
}

// Close stops the transport and fails pending calls.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return c.transport.close()
}

// Reconnect restarts the transport and repeats the handshake. Tools bound to
// this client keep working once it returns.
func (c *Client) Reconnect(ctx context.Context) error {
	if err := c.Close(); err != nil {
		c.logger.Warn("mcp close before reconnect", zap.String("name", c.name), zap.Error(err))
	}
	return c.Connect(ctx)
}

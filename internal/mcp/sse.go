package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// sseTransport receives responses on a server-sent event stream and posts
// requests to the endpoint announced by the first "endpoint" event.
type sseTransport struct {
	sseURL string
	rpcURL string
	client *http.Client
	body   io.ReadCloser
	logger *zap.Logger
}

// NewSSEClient creates a client for an MCP server reachable over HTTP+SSE.
func NewSSEClient(name, sseURL string, logger *zap.Logger) *Client {
	return newClient(name, &sseTransport{
		sseURL: sseURL,
		client: http.DefaultClient,
		logger: logger,
	}, logger)
}

func (t *sseTransport) start(ctx context.Context, dispatch func([]byte)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.sseURL, nil)
	if err != nil {
		return fmt.Errorf("create sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sse connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("sse status %d", resp.StatusCode)
	}
	t.body = resp.Body

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	endpoint, err := readEvent(scanner, "endpoint")
	if err != nil {
		resp.Body.Close()
		return fmt.Errorf("endpoint event: %w", err)
	}
	t.rpcURL, err = resolveURL(t.sseURL, endpoint)
	if err != nil {
		resp.Body.Close()
		return err
	}
	t.logger.Info("MCP endpoint discovered", zap.String("rpc", t.rpcURL))

	go func() {
		defer resp.Body.Close()
		var event string
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				if event == "" || event == "message" {
					dispatch([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))))
				}
				event = ""
			}
		}
	}()
	return nil
}

// readEvent scans until an event of the wanted type and returns its data.
func readEvent(scanner *bufio.Scanner, want string) (string, error) {
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") && event == want {
			return strings.TrimSpace(strings.TrimPrefix(line, "data:")), nil
		}
	}
	return "", fmt.Errorf("SSE stream ended without %s event", want)
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse sse url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	return b.ResolveReference(r).String(), nil
}

func (t *sseTransport) send(ctx context.Context, frame []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.rpcURL, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("rpc post status %d", resp.StatusCode)
	}
	return nil
}

func (t *sseTransport) close() error {
	if t.body != nil {
		return t.body.Close()
	}
	return nil
}

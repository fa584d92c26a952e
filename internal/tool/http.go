package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxHTTPBody = 1 << 20

// HTTPTool issues HTTP requests.
type HTTPTool struct {
	client  *http.Client
	timeout time.Duration
	domains []string
}

// NewHTTPTool creates an HTTP tool. An empty domain list allows every host.
func NewHTTPTool(timeout time.Duration, domains ...string) *HTTPTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTool{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		domains: domains,
	}
}

type httpArgs struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (t *HTTPTool) Metadata() Metadata {
	return Metadata{
		Name:        "http_request",
		Description: "Make an HTTP request to fetch web content or call an API.",
		Parameters: []Parameter{
			{Name: "url", Type: "string", Description: "The URL to request", Required: true},
			{Name: "method", Type: "string", Description: "HTTP method: GET, POST, PUT or DELETE (default GET)"},
			{Name: "body", Type: "string", Description: "Request body for POST or PUT"},
			{Name: "headers", Type: "object", Description: "Extra request headers"},
		},
	}
}

func (t *HTTPTool) Validate(args json.RawMessage) error {
	var a httpArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	if a.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}
	u, err := url.Parse(a.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("url must be an absolute http or https URL")
	}
	if !t.domainAllowed(u.Hostname()) {
		return fmt.Errorf("access to domain in '%s' is not allowed", a.URL)
	}
	switch strings.ToUpper(a.Method) {
	case "", http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return fmt.Errorf("method %s is not allowed", a.Method)
	}
	return nil
}

func (t *HTTPTool) domainAllowed(host string) bool {
	if len(t.domains) == 0 {
		return true
	}
	for _, d := range t.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (t *HTTPTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	var a httpArgs
	if err := decodeArgs(args, &a); err != nil {
		return Failure("%v", err), nil
	}
	method := strings.ToUpper(a.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if a.Body != "" && (method == http.MethodPost || method == http.MethodPut) {
		body = strings.NewReader(a.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.URL, body)
	if err != nil {
		return Failure("Request failed: %v", err), nil
	}
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Failure("Request timed out after %d seconds", int(t.timeout.Seconds())), nil
		}
		return Failure("Request failed: connection error: %v", err), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return Failure("Request failed: read body: %v", err), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Failure("HTTP error: %s\n\n%s", resp.Status, string(data)), nil
	}
	return Success(fmt.Sprintf("Status: %s\n\n%s", resp.Status, string(data))), nil
}

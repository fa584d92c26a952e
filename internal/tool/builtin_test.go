package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/taskforce/internal/mcp"
)

func args(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestShellTool(t *testing.T) {
	ctx := context.Background()
	sh := NewShellTool(5*time.Second, "echo", "sh")

	res, _ := sh.Execute(ctx, args(t, map[string]string{"command": "echo hello"}))
	if !res.Success || res.Output != "hello\n" {
		t.Errorf("got %+v", res)
	}

	res, _ = sh.Execute(ctx, args(t, map[string]string{"command": "sh -c 'echo oops >&2; exit 3'"}))
	if res.Success || !strings.HasPrefix(res.Error, "Command failed with exit code 3") || !strings.Contains(res.Error, "oops") {
		t.Errorf("got %+v", res)
	}

	if err := sh.Validate(args(t, map[string]string{"command": "curl example.com"})); err == nil || !strings.Contains(err.Error(), "not allowed") {
		t.Errorf("whitelist not enforced: %v", err)
	}
	if err := sh.Validate(args(t, map[string]string{"command": "  "})); err == nil {
		t.Error("empty command accepted")
	}
}

func TestShellToolTimeout(t *testing.T) {
	sh := NewShellTool(50 * time.Millisecond)
	res, _ := sh.Execute(context.Background(), args(t, map[string]string{"command": "sleep 5"}))
	if res.Success || !strings.HasPrefix(res.Error, "Command timed out") {
		t.Errorf("got %+v", res)
	}
}

func TestFileTools(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, "notes", "todo.txt")

	write := NewWriteFileTool(0, root)
	appendTool := NewAppendFileTool(0, root)
	read := NewReadFileTool(0, root)

	if res, _ := write.Execute(ctx, args(t, fileArgs{Path: path, Content: "one\n"})); !res.Success {
		t.Fatalf("write: %+v", res)
	}
	if res, _ := appendTool.Execute(ctx, args(t, fileArgs{Path: path, Content: "two\n"})); !res.Success {
		t.Fatalf("append: %+v", res)
	}
	res, _ := read.Execute(ctx, args(t, fileArgs{Path: path}))
	if !res.Success || res.Output != "one\ntwo\n" {
		t.Errorf("read: %+v", res)
	}

	res, _ = read.Execute(ctx, args(t, fileArgs{Path: filepath.Join(root, "missing.txt")}))
	if res.Success || !strings.HasPrefix(res.Error, "File does not exist") {
		t.Errorf("got %+v", res)
	}
}

func TestFileToolsSandbox(t *testing.T) {
	root := t.TempDir()
	read := NewReadFileTool(0, root)

	outside := filepath.Join(filepath.Dir(root), "elsewhere.txt")
	for _, p := range []string{outside, filepath.Join(root, "..", "x"), root + "-sibling/x"} {
		if err := read.Validate(args(t, fileArgs{Path: p})); err == nil || !strings.Contains(err.Error(), "not allowed") {
			t.Errorf("%s: got %v", p, err)
		}
	}
	if err := read.Validate(args(t, fileArgs{Path: filepath.Join(root, "a", "b")})); err != nil {
		t.Errorf("path inside root rejected: %v", err)
	}
	if err := read.Validate(args(t, fileArgs{})); err == nil {
		t.Error("empty path accepted")
	}
}

func TestFileSizeLimits(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	big := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(big, []byte(strings.Repeat("x", 64)), 0o644); err != nil {
		t.Fatal(err)
	}

	res, _ := NewReadFileTool(16).Execute(ctx, args(t, fileArgs{Path: big}))
	if res.Success || !strings.Contains(res.Error, "exceeds limit of 16 bytes") {
		t.Errorf("got %+v", res)
	}
	err := NewWriteFileTool(16).Validate(args(t, fileArgs{Path: big, Content: strings.Repeat("y", 17)}))
	if err == nil || !strings.Contains(err.Error(), "exceeds limit") {
		t.Errorf("got %v", err)
	}
}

func TestHTTPTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/echo":
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprintf(w, "%s %s", r.Method, r.Header.Get("X-Token"))
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	tool := NewHTTPTool(5*time.Second, u.Hostname())
	ctx := context.Background()

	res, _ := tool.Execute(ctx, args(t, httpArgs{URL: srv.URL + "/echo", Method: "post", Body: "x", Headers: map[string]string{"X-Token": "abc"}}))
	if !res.Success || res.Output != "Status: 200 OK\n\nPOST abc" {
		t.Errorf("got %+v", res)
	}

	res, _ = tool.Execute(ctx, args(t, httpArgs{URL: srv.URL + "/missing"}))
	if res.Success || !strings.HasPrefix(res.Error, "HTTP error: 404 Not Found") {
		t.Errorf("got %+v", res)
	}
}

func TestHTTPToolValidate(t *testing.T) {
	tool := NewHTTPTool(time.Second, "example.com")
	tests := []struct {
		in      httpArgs
		wantErr bool
	}{
		{httpArgs{URL: "https://example.com/a"}, false},
		{httpArgs{URL: "https://api.example.com/a", Method: "DELETE"}, false},
		{httpArgs{URL: "https://evil.com/a"}, true},
		{httpArgs{URL: "https://notexample.com"}, true},
		{httpArgs{URL: "ftp://example.com"}, true},
		{httpArgs{URL: "https://example.com", Method: "PATCH"}, true},
		{httpArgs{}, true},
	}
	for _, tt := range tests {
		err := tool.Validate(args(t, tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("%+v: got %v", tt.in, err)
		}
	}
}

type fakeMCP struct {
	calls []string
	res   mcp.CallResult
}

func (f *fakeMCP) Name() string { return "docs" }

func (f *fakeMCP) CallTool(ctx context.Context, name string, args json.RawMessage) (mcp.CallResult, error) {
	f.calls = append(f.calls, name+" "+string(args))
	return f.res, nil
}

func TestMCPTool(t *testing.T) {
	client := &fakeMCP{res: mcp.CallResult{Text: "found 3 pages"}}
	info := mcp.ToolInfo{
		Name:        "search",
		Description: "Search the docs",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string", "description": "Search terms"},
				"limit": map[string]interface{}{"type": "integer"},
			},
			"required": []interface{}{"query"},
		},
	}
	mt := NewMCPTool(client, info)

	meta := mt.Metadata()
	if meta.Name != "docs_search" || len(meta.Parameters) != 2 {
		t.Fatalf("got %+v", meta)
	}
	if p := meta.Parameters[1]; p.Name != "query" || !p.Required || p.Description != "Search terms" {
		t.Errorf("got %+v", p)
	}

	res, err := mt.Execute(context.Background(), json.RawMessage(`{"query":"retry"}`))
	if err != nil || !res.Success || res.Output != "found 3 pages" {
		t.Errorf("got %+v, %v", res, err)
	}
	if client.calls[0] != `search {"query":"retry"}` {
		t.Errorf("got call %q", client.calls[0])
	}

	client.res = mcp.CallResult{Text: "index offline", IsError: true}
	if res, _ := mt.Execute(context.Background(), nil); res.Success || res.Error != "index offline" {
		t.Errorf("got %+v", res)
	}
}

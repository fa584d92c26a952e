package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileBytes caps reads and writes at 10 MiB.
const DefaultMaxFileBytes = 10 << 20

type fileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// fileAccess holds the size limit and optional root sandbox shared by file tools.
type fileAccess struct {
	maxBytes int64
	roots    []string
}

func newFileAccess(maxBytes int64, roots []string) fileAccess {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			clean = append(clean, abs)
		}
	}
	return fileAccess{maxBytes: maxBytes, roots: clean}
}

func (f fileAccess) allowed(path string) bool {
	if len(f.roots) == 0 {
		return true
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, r := range f.roots {
		if abs == r || strings.HasPrefix(abs, r+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (f fileAccess) validate(args json.RawMessage, needContent bool) error {
	var a fileArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	if a.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if needContent && int64(len(a.Content)) > f.maxBytes {
		return fmt.Errorf("content size %d exceeds limit of %d bytes", len(a.Content), f.maxBytes)
	}
	if !f.allowed(a.Path) {
		return fmt.Errorf("access to path '%s' is not allowed", a.Path)
	}
	return nil
}

var pathParam = Parameter{Name: "path", Type: "string", Description: "The file path", Required: true}

// ReadFileTool returns file contents.
type ReadFileTool struct{ access fileAccess }

// NewReadFileTool creates a read tool limited to maxBytes and, if given, the root directories.
func NewReadFileTool(maxBytes int64, roots ...string) *ReadFileTool {
	return &ReadFileTool{access: newFileAccess(maxBytes, roots)}
}

func (t *ReadFileTool) Metadata() Metadata {
	return Metadata{
		Name:        "read_file",
		Description: "Read the contents of a file from the filesystem.",
		Parameters:  []Parameter{pathParam},
	}
}

func (t *ReadFileTool) Validate(args json.RawMessage) error { return t.access.validate(args, false) }

func (t *ReadFileTool) Execute(_ context.Context, args json.RawMessage) (Result, error) {
	var a fileArgs
	if err := decodeArgs(args, &a); err != nil {
		return Failure("%v", err), nil
	}
	info, err := os.Stat(a.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Failure("File does not exist: %s", a.Path), nil
	}
	if err != nil {
		return Failure("Failed to read file metadata: %v", err), nil
	}
	if info.Size() > t.access.maxBytes {
		return Failure("File size %d exceeds limit of %d bytes", info.Size(), t.access.maxBytes), nil
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return Failure("Failed to read file: %v", err), nil
	}
	return Success(string(data)), nil
}

// WriteFileTool creates or truncates a file.
type WriteFileTool struct{ access fileAccess }

// NewWriteFileTool creates a write tool limited to maxBytes and, if given, the root directories.
func NewWriteFileTool(maxBytes int64, roots ...string) *WriteFileTool {
	return &WriteFileTool{access: newFileAccess(maxBytes, roots)}
}

func (t *WriteFileTool) Metadata() Metadata {
	return Metadata{
		Name:        "write_file",
		Description: "Write content to a file, creating parent directories and replacing existing content.",
		Parameters: []Parameter{
			pathParam,
			{Name: "content", Type: "string", Description: "The content to write", Required: true},
		},
	}
}

func (t *WriteFileTool) Validate(args json.RawMessage) error { return t.access.validate(args, true) }

func (t *WriteFileTool) Execute(_ context.Context, args json.RawMessage) (Result, error) {
	var a fileArgs
	if err := decodeArgs(args, &a); err != nil {
		return Failure("%v", err), nil
	}
	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return Failure("Failed to create directory: %v", err), nil
	}
	if err := os.WriteFile(a.Path, []byte(a.Content), 0o644); err != nil {
		return Failure("Failed to write file: %v", err), nil
	}
	return Success(fmt.Sprintf("Successfully wrote %d bytes to %s", len(a.Content), a.Path)), nil
}

// AppendFileTool appends to a file, creating it when missing.
type AppendFileTool struct{ access fileAccess }

// NewAppendFileTool creates an append tool limited to maxBytes and, if given, the root directories.
func NewAppendFileTool(maxBytes int64, roots ...string) *AppendFileTool {
	return &AppendFileTool{access: newFileAccess(maxBytes, roots)}
}

func (t *AppendFileTool) Metadata() Metadata {
	return Metadata{
		Name:        "append_file",
		Description: "Append content to the end of a file, creating it if it does not exist.",
		Parameters: []Parameter{
			pathParam,
			{Name: "content", Type: "string", Description: "The content to append", Required: true},
		},
	}
}

func (t *AppendFileTool) Validate(args json.RawMessage) error { return t.access.validate(args, true) }

func (t *AppendFileTool) Execute(_ context.Context, args json.RawMessage) (Result, error) {
	var a fileArgs
	if err := decodeArgs(args, &a); err != nil {
		return Failure("%v", err), nil
	}
	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return Failure("Failed to create directory: %v", err), nil
	}
	f, err := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Failure("Failed to open file: %v", err), nil
	}
	defer f.Close()
	if _, err := f.WriteString(a.Content); err != nil {
		return Failure("Failed to append to file: %v", err), nil
	}
	return Success(fmt.Sprintf("Successfully appended %d bytes to %s", len(a.Content), a.Path)), nil
}

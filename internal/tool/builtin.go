package tool

import "time"

// BuiltinOptions configures the default tool set.
type BuiltinOptions struct {
	ShellTimeout   time.Duration
	ShellWhitelist []string
	MaxFileBytes   int64
	FileRoots      []string
	HTTPTimeout    time.Duration
	HTTPDomains    []string
}

// Builtins returns the shell, file and HTTP tools.
func Builtins(opts BuiltinOptions) []Tool {
	return []Tool{
		NewShellTool(opts.ShellTimeout, opts.ShellWhitelist...),
		NewReadFileTool(opts.MaxFileBytes, opts.FileRoots...),
		NewWriteFileTool(opts.MaxFileBytes, opts.FileRoots...),
		NewAppendFileTool(opts.MaxFileBytes, opts.FileRoots...),
		NewHTTPTool(opts.HTTPTimeout, opts.HTTPDomains...),
	}
}

// NewDefaultRegistry returns a registry holding the builtin tools.
func NewDefaultRegistry(opts BuiltinOptions) *Registry {
	return NewRegistry(Builtins(opts)...)
}

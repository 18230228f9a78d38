package core

import (
	"context"
	"time"
)

// ToolInput is the named-parameter map a tool receives. The registry always
// injects the caller-supplied working directory under WorkingDirKey,
// overriding anything the model put there.
type ToolInput map[string]interface{}

// WorkingDirKey is the reserved parameter name for the sandbox directory.
const WorkingDirKey = "working_directory"

// WorkingDir returns the injected working directory.
func (in ToolInput) WorkingDir() string {
	s, _ := in[WorkingDirKey].(string)
	return s
}

// ToolHandler executes a tool invocation.
type ToolHandler func(ctx context.Context, input ToolInput) (*ToolResult, error)

// ParamSpec describes one input parameter of a tool.
type ParamSpec struct {
	Name        string
	Type        string // string, int, bool, object
	Description string
	Required    bool
}

// ToolDefinition describes a callable tool. IDs are dotted slugs such as
// "file.read" and are matched case-insensitively.
type ToolDefinition struct {
	ID                   string
	Name                 string
	Description          string
	Parameters           []ParamSpec
	Categories           []string
	RequiresConfirmation bool
	Handler              ToolHandler
}

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	Success  bool
	Output   string
	Error    string
	Duration time.Duration
}

// ToolOK builds a successful result.
func ToolOK(output string) *ToolResult {
	return &ToolResult{Success: true, Output: output}
}

// ToolFail builds a failed result.
func ToolFail(errMsg string) *ToolResult {
	return &ToolResult{Success: false, Error: errMsg}
}

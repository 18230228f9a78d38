package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/index"
	"github.com/aura-dev/aura/internal/proc"
	"github.com/aura-dev/aura/internal/workspace"
)

// maxReadBytes caps file.read output; a model never needs more than this in
// one observation.
const maxReadBytes = 128 * 1024

// Builtins wires the standard tool set into a registry.
type Builtins struct {
	Gateway *proc.Gateway
	Store   core.IndexStore
	Graph   *index.Graph

	// ResolveWorkspace maps a working directory to the workspace ID whose
	// index should serve code queries. Worktrees map to their origin
	// workspace; the default derives the ID from the directory itself.
	ResolveWorkspace func(ctx context.Context, dir string) (string, error)
}

func (b *Builtins) workspaceID(ctx context.Context, dir string) (string, error) {
	if b.ResolveWorkspace != nil {
		return b.ResolveWorkspace(ctx, dir)
	}
	canonical, err := workspace.Canonicalize(dir)
	if err != nil {
		return "", err
	}
	return workspace.GenerateID(canonical), nil
}

// Register adds every builtin tool to the registry.
func (b *Builtins) Register(reg *ToolRegistry) error {
	defs := []*core.ToolDefinition{
		b.fileRead(),
		b.fileWrite(),
		b.fileList(),
		b.shellExecute(),
	}
	if b.Store != nil {
		defs = append(defs, b.codeSearch())
	}
	if b.Graph != nil {
		defs = append(defs, b.codeFindNodes(), b.codeTypeMembers())
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// resolvePath joins a relative path under the working directory and rejects
// escapes; tools only see the sandbox.
func resolvePath(workingDir, rel string) (string, error) {
	if workingDir == "" {
		return "", core.ErrValidation(core.CodeInvalidArgument, "no working directory provided")
	}
	abs := filepath.Clean(filepath.Join(workingDir, filepath.FromSlash(rel)))
	root := filepath.Clean(workingDir)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", core.ErrValidation(core.CodeInvalidArgument, "path escapes working directory: "+rel)
	}
	return abs, nil
}

func (b *Builtins) fileRead() *core.ToolDefinition {
	return &core.ToolDefinition{
		ID:          "file.read",
		Name:        "Read File",
		Description: "Read a file relative to the working directory.",
		Parameters: []core.ParamSpec{
			{Name: "path", Type: "string", Description: "Relative file path", Required: true},
		},
		Categories: []string{"filesystem"},
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			rel, _ := input["path"].(string)
			abs, err := resolvePath(input.WorkingDir(), rel)
			if err != nil {
				return core.ToolFail(err.Error()), nil
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return core.ToolFail("cannot read " + rel + ": " + err.Error()), nil
			}
			if len(data) > maxReadBytes {
				data = data[:maxReadBytes]
			}
			return core.ToolOK(string(data)), nil
		},
	}
}

func (b *Builtins) fileWrite() *core.ToolDefinition {
	return &core.ToolDefinition{
		ID:          "file.write",
		Name:        "Write File",
		Description: "Write content to a file relative to the working directory, creating parent directories.",
		Parameters: []core.ParamSpec{
			{Name: "path", Type: "string", Description: "Relative file path", Required: true},
			{Name: "content", Type: "string", Description: "File content", Required: true},
		},
		Categories: []string{"filesystem"},
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			rel, _ := input["path"].(string)
			content, _ := input["content"].(string)
			abs, err := resolvePath(input.WorkingDir(), rel)
			if err != nil {
				return core.ToolFail(err.Error()), nil
			}
			if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
				return core.ToolFail("cannot create directories for " + rel + ": " + err.Error()), nil
			}
			if err := os.WriteFile(abs, []byte(content), 0o640); err != nil {
				return core.ToolFail("cannot write " + rel + ": " + err.Error()), nil
			}
			return core.ToolOK(fmt.Sprintf("wrote %d bytes to %s", len(content), rel)), nil
		},
	}
}

func (b *Builtins) fileList() *core.ToolDefinition {
	return &core.ToolDefinition{
		ID:          "file.list",
		Name:        "List Files",
		Description: "List directory entries relative to the working directory.",
		Parameters: []core.ParamSpec{
			{Name: "path", Type: "string", Description: "Relative directory, defaults to .", Required: false},
		},
		Categories: []string{"filesystem"},
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			rel, _ := input["path"].(string)
			if rel == "" {
				rel = "."
			}
			abs, err := resolvePath(input.WorkingDir(), rel)
			if err != nil {
				return core.ToolFail(err.Error()), nil
			}
			entries, err := os.ReadDir(abs)
			if err != nil {
				return core.ToolFail("cannot list " + rel + ": " + err.Error()), nil
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return core.ToolOK(strings.Join(names, "\n")), nil
		},
	}
}

func (b *Builtins) shellExecute() *core.ToolDefinition {
	return &core.ToolDefinition{
		ID:          "shell.execute",
		Name:        "Execute Shell Command",
		Description: "Run a shell command in the working directory.",
		Parameters: []core.ParamSpec{
			{Name: "command", Type: "string", Description: "Command line to run", Required: true},
		},
		Categories:           []string{"process"},
		RequiresConfirmation: true,
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			command, _ := input["command"].(string)
			res, err := b.Gateway.RunShell(ctx, command, proc.Request{
				Dir: input.WorkingDir(),
			})
			output := ""
			if res != nil {
				output = combineOutput(res.Stdout, res.Stderr)
			}
			if err != nil {
				result := core.ToolFail(err.Error())
				result.Output = output
				return result, nil
			}
			return core.ToolOK(output), nil
		},
	}
}

func combineOutput(stdout, stderr string) string {
	stdout, stderr = strings.TrimSpace(stdout), strings.TrimSpace(stderr)
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n--- stderr ---\n" + stderr
	}
}

func (b *Builtins) codeSearch() *core.ToolDefinition {
	return &core.ToolDefinition{
		ID:          "code.search",
		Name:        "Search Code Index",
		Description: "Search indexed code and docs of the current workspace.",
		Parameters: []core.ParamSpec{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "max_results", Type: "int", Description: "Result cap, default 5", Required: false},
		},
		Categories: []string{"index"},
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			query, _ := input["query"].(string)
			k, _ := input["max_results"].(int)
			if k <= 0 {
				k = 5
			}
			wsID, err := b.workspaceID(ctx, input.WorkingDir())
			if err != nil {
				return core.ToolFail("cannot resolve workspace: " + err.Error()), nil
			}
			hits, err := b.Store.SearchChunks(ctx, query, []string{wsID}, k, nil)
			if err != nil {
				return core.ToolFail("search failed: " + err.Error()), nil
			}
			if len(hits) == 0 {
				return core.ToolOK("no results"), nil
			}
			var sb strings.Builder
			for _, hit := range hits {
				fmt.Fprintf(&sb, "%s:%d-%d", hit.Chunk.SourcePath, hit.Chunk.StartLine, hit.Chunk.EndLine)
				if hit.Chunk.SymbolName != "" {
					fmt.Fprintf(&sb, " (%s)", hit.Chunk.SymbolName)
				}
				sb.WriteString("\n")
				sb.WriteString(truncate(hit.Chunk.Text, 600))
				sb.WriteString("\n\n")
			}
			return core.ToolOK(strings.TrimSpace(sb.String())), nil
		},
	}
}

func (b *Builtins) codeFindNodes() *core.ToolDefinition {
	return &core.ToolDefinition{
		ID:          "code.find_nodes",
		Name:        "Find Code Nodes",
		Description: "Find types, methods and fields by name in the code graph.",
		Parameters: []core.ParamSpec{
			{Name: "name", Type: "string", Description: "Symbol name, case-insensitive", Required: true},
			{Name: "type", Type: "string", Description: "Optional node type filter", Required: false},
		},
		Categories: []string{"index"},
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			name, _ := input["name"].(string)
			nodeType, _ := input["type"].(string)
			wsID, err := b.workspaceID(ctx, input.WorkingDir())
			if err != nil {
				return core.ToolFail("cannot resolve workspace: " + err.Error()), nil
			}
			nodes, err := b.Graph.FindNodes(ctx, core.NodeFilter{
				Name:        name,
				NodeType:    core.NodeType(strings.ToLower(nodeType)),
				WorkspaceID: wsID,
			})
			if err != nil {
				return core.ToolFail("graph query failed: " + err.Error()), nil
			}
			return core.ToolOK(renderNodes(nodes)), nil
		},
	}
}

func (b *Builtins) codeTypeMembers() *core.ToolDefinition {
	return &core.ToolDefinition{
		ID:          "code.type_members",
		Name:        "List Type Members",
		Description: "List the methods and fields of a type, or the implementations of an interface.",
		Parameters: []core.ParamSpec{
			{Name: "name", Type: "string", Description: "Type name, case-insensitive", Required: true},
		},
		Categories: []string{"index"},
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			name, _ := input["name"].(string)
			wsID, err := b.workspaceID(ctx, input.WorkingDir())
			if err != nil {
				return core.ToolFail("cannot resolve workspace: " + err.Error()), nil
			}
			nodes, err := b.Graph.FindNodes(ctx, core.NodeFilter{Name: name, WorkspaceID: wsID})
			if err != nil {
				return core.ToolFail("graph query failed: " + err.Error()), nil
			}
			if len(nodes) == 0 {
				return core.ToolOK("no matching type"), nil
			}
			var sb strings.Builder
			for _, node := range nodes {
				if node.NodeType == core.NodeMethod || node.NodeType == core.NodeField {
					continue
				}
				var related []core.CodeNode
				var label string
				if node.NodeType == core.NodeInterface {
					label = "implementations"
					related, err = b.Graph.FindImplementations(ctx, node.ID)
				} else {
					label = "members"
					related, err = b.Graph.TypeMembers(ctx, node.ID)
				}
				if err != nil {
					return core.ToolFail("graph query failed: " + err.Error()), nil
				}
				fmt.Fprintf(&sb, "%s %s, %s:\n%s\n", node.NodeType, node.FQN, label, renderNodes(related))
			}
			if sb.Len() == 0 {
				return core.ToolOK("no matching type"), nil
			}
			return core.ToolOK(strings.TrimSpace(sb.String())), nil
		},
	}
}

func renderNodes(nodes []core.CodeNode) string {
	if len(nodes) == 0 {
		return "none"
	}
	var sb strings.Builder
	for _, n := range nodes {
		sig := n.Signature
		if sig == "" {
			sig = n.Name
		}
		fmt.Fprintf(&sb, "%-10s %s (%s:%d)\n", n.NodeType, sig, n.FilePath, n.Line)
	}
	return strings.TrimSpace(sb.String())
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

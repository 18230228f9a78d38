package agent

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
)

// ToolRegistry holds callable tools and executes them with the sandbox
// working directory forced into the input.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]*core.ToolDefinition
	logger *logging.Logger
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry(logger *logging.Logger) *ToolRegistry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ToolRegistry{tools: make(map[string]*core.ToolDefinition), logger: logger}
}

// Register adds a tool. Re-registering an ID replaces it.
func (r *ToolRegistry) Register(def *core.ToolDefinition) error {
	if def.ID == "" || def.Handler == nil {
		return core.ErrValidation(core.CodeInvalidArgument, "tool needs an ID and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[strings.ToLower(def.ID)] = def
	return nil
}

// Get resolves a tool by ID, case-insensitive.
func (r *ToolRegistry) Get(id string) (*core.ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.tools[strings.ToLower(id)]; ok {
		return def, nil
	}
	return nil, core.ErrNotFound("tool", id).WithDetail("code", core.CodeToolNotFound)
}

// List returns all tools sorted by ID.
func (r *ToolRegistry) List() []*core.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.ToolDefinition, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Execute runs a tool. The working directory always comes from workingDir,
// never from the model's input; a model cannot escape its sandbox by writing
// its own working_directory parameter. Handler panics become failed results
// instead of crashing the agent loop.
func (r *ToolRegistry) Execute(ctx context.Context, id string, input core.ToolInput, workingDir string) (result *core.ToolResult, err error) {
	def, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	if input == nil {
		input = core.ToolInput{}
	}
	coerceParams(def, input)
	input[core.WorkingDirKey] = workingDir

	if missing := missingParams(def, input); len(missing) > 0 {
		return nil, core.ErrValidation(core.CodeInvalidArgument,
			fmt.Sprintf("tool %s missing required parameters: %s", def.ID, strings.Join(missing, ", ")))
	}

	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", def.ID, "panic", rec)
			result = core.ToolFail(fmt.Sprintf("tool %s panicked: %v", def.ID, rec))
			result.Duration = time.Since(started)
			err = nil
		}
	}()

	result, err = def.Handler(ctx, input)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = core.ToolFail("tool returned no result")
	}
	result.Duration = time.Since(started)
	return result, nil
}

// coerceParams converts inputs toward declared parameter types. Models hand
// back numbers as strings and booleans as "true" often enough that strict
// typing would fail half of all calls.
func coerceParams(def *core.ToolDefinition, input core.ToolInput) {
	for _, spec := range def.Parameters {
		raw, ok := input[spec.Name]
		if !ok {
			continue
		}
		switch spec.Type {
		case "int":
			input[spec.Name] = coerceInt(raw)
		case "bool":
			input[spec.Name] = coerceBool(raw)
		case "string":
			if s, ok := raw.(string); ok {
				input[spec.Name] = s
			} else {
				input[spec.Name] = fmt.Sprintf("%v", raw)
			}
		}
	}
}

func coerceInt(raw interface{}) interface{} {
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return raw
}

func coerceBool(raw interface{}) interface{} {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return raw
}

func missingParams(def *core.ToolDefinition, input core.ToolInput) []string {
	var missing []string
	for _, spec := range def.Parameters {
		if !spec.Required {
			continue
		}
		v, ok := input[spec.Name]
		if !ok || v == nil || v == "" {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
)

func echoTool() *core.ToolDefinition {
	return &core.ToolDefinition{
		ID:   "test.echo",
		Name: "Echo",
		Parameters: []core.ParamSpec{
			{Name: "message", Type: "string", Required: true},
			{Name: "count", Type: "int"},
			{Name: "loud", Type: "bool"},
		},
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			msg, _ := input["message"].(string)
			return core.ToolOK(msg), nil
		},
	}
}

func TestRegisterRequiresIDAndHandler(t *testing.T) {
	r := NewToolRegistry(logging.NewNop())
	err := r.Register(&core.ToolDefinition{ID: "no.handler"})
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestGetCaseInsensitiveTool(t *testing.T) {
	r := NewToolRegistry(logging.NewNop())
	require.NoError(t, r.Register(echoTool()))

	def, err := r.Get("TEST.Echo")
	require.NoError(t, err)
	assert.Equal(t, "test.echo", def.ID)

	_, err = r.Get("test.missing")
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

func TestExecuteInjectsWorkingDir(t *testing.T) {
	r := NewToolRegistry(logging.NewNop())
	var seenDir string
	require.NoError(t, r.Register(&core.ToolDefinition{
		ID: "dir.probe",
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			seenDir = input.WorkingDir()
			return core.ToolOK(""), nil
		},
	}))

	// The model's own working_directory never survives.
	input := core.ToolInput{core.WorkingDirKey: "/etc"}
	_, err := r.Execute(context.Background(), "dir.probe", input, "/sandbox")
	require.NoError(t, err)
	assert.Equal(t, "/sandbox", seenDir)
}

func TestExecuteCoercesParams(t *testing.T) {
	r := NewToolRegistry(logging.NewNop())
	var got core.ToolInput
	def := echoTool()
	def.Handler = func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
		got = input
		return core.ToolOK(""), nil
	}
	require.NoError(t, r.Register(def))

	_, err := r.Execute(context.Background(), "test.echo", core.ToolInput{
		"message": 42,
		"count":   "7",
		"loud":    "true",
	}, "/tmp")
	require.NoError(t, err)

	assert.Equal(t, "42", got["message"])
	assert.Equal(t, 7, got["count"])
	assert.Equal(t, true, got["loud"])
}

func TestExecuteMissingRequiredParam(t *testing.T) {
	r := NewToolRegistry(logging.NewNop())
	require.NoError(t, r.Register(echoTool()))

	_, err := r.Execute(context.Background(), "test.echo", core.ToolInput{}, "/tmp")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestExecuteRecoversPanic(t *testing.T) {
	r := NewToolRegistry(logging.NewNop())
	require.NoError(t, r.Register(&core.ToolDefinition{
		ID: "boom.tool",
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			panic("kaboom")
		},
	}))

	result, err := r.Execute(context.Background(), "boom.tool", nil, "/tmp")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "kaboom")
}

func TestExecutePropagatesHandlerError(t *testing.T) {
	r := NewToolRegistry(logging.NewNop())
	handlerErr := errors.New("disk on fire")
	require.NoError(t, r.Register(&core.ToolDefinition{
		ID: "fail.tool",
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			return nil, handlerErr
		},
	}))

	_, err := r.Execute(context.Background(), "fail.tool", nil, "/tmp")
	assert.ErrorIs(t, err, handlerErr)
}

func TestExecuteNilResultBecomesFailure(t *testing.T) {
	r := NewToolRegistry(logging.NewNop())
	require.NoError(t, r.Register(&core.ToolDefinition{
		ID: "nil.tool",
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			return nil, nil
		},
	}))

	result, err := r.Execute(context.Background(), "nil.tool", nil, "/tmp")
	require.NoError(t, err)
	assert.False(t, result.Success)
}

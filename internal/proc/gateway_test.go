package proc

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix shell utilities")
	}
}

func TestRunCapturesOutput(t *testing.T) {
	skipOnWindows(t)
	gw := New(logging.NewNop())

	res, err := gw.Run(context.Background(), Request{Name: "echo", Args: []string{"hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Zero(t, res.ExitCode)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestRunRequiresName(t *testing.T) {
	gw := New(logging.NewNop())
	_, err := gw.Run(context.Background(), Request{})
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestRunStdin(t *testing.T) {
	skipOnWindows(t)
	gw := New(logging.NewNop())

	res, err := gw.Run(context.Background(), Request{Name: "cat", Stdin: "piped in"})
	require.NoError(t, err)
	assert.Equal(t, "piped in", res.Stdout)
}

func TestRunEnvOverlay(t *testing.T) {
	skipOnWindows(t)
	gw := New(logging.NewNop())

	res, err := gw.RunShell(context.Background(), "echo $AURA_TEST_VAR", Request{
		Env: map[string]string{"AURA_TEST_VAR": "overlay"},
	})
	require.NoError(t, err)
	assert.Equal(t, "overlay\n", res.Stdout)
}

func TestRunNonzeroExit(t *testing.T) {
	skipOnWindows(t)
	gw := New(logging.NewNop())

	res, err := gw.RunShell(context.Background(), "echo oops >&2; exit 3", Request{})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatExecution))
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops\n", res.Stderr)

	var domErr *core.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, core.CodeNonzeroExit, domErr.Code)
}

func TestRunTimeout(t *testing.T) {
	skipOnWindows(t)
	gw := New(logging.NewNop(), WithGracePeriod(100*time.Millisecond))

	start := time.Now()
	res, err := gw.Run(context.Background(), Request{
		Name:    "sleep",
		Args:    []string{"10"},
		Timeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatTimeout))
	require.NotNil(t, res)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunCancellation(t *testing.T) {
	skipOnWindows(t)
	gw := New(logging.NewNop(), WithGracePeriod(100*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := gw.Run(ctx, Request{Name: "sleep", Args: []string{"10"}, Timeout: time.Minute})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatCancelled))
}

func TestRunSpawnFailure(t *testing.T) {
	gw := New(logging.NewNop())
	_, err := gw.Run(context.Background(), Request{Name: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatExecution))
}

func TestRunShellRequiresCommand(t *testing.T) {
	gw := New(logging.NewNop())
	_, err := gw.RunShell(context.Background(), "   ", Request{})
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestRunWorkingDirectory(t *testing.T) {
	skipOnWindows(t)
	gw := New(logging.NewNop())
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	res, err := gw.Run(context.Background(), Request{Name: "pwd", Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, resolved, strings.TrimSpace(res.Stdout))
}

package agent

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/proc"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix shell utilities")
	}
}

func TestNewCLIProviderValidation(t *testing.T) {
	gw := proc.New(logging.NewNop())

	_, err := NewCLIProvider("", "cat", nil, 0, gw, nil)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))

	_, err = NewCLIProvider("p", "", nil, 0, gw, nil)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestCLIProviderGenerateEchoesStdout(t *testing.T) {
	skipOnWindows(t)
	gw := proc.New(logging.NewNop())
	p, err := NewCLIProvider("catbot", "cat", nil, 10*time.Second, gw, logging.NewNop())
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), "m", "hello model", 0.5)
	require.NoError(t, err)
	assert.Equal(t, "hello model", resp.Content)
	assert.Greater(t, resp.TokensUsed, 0)
}

func TestCLIProviderChatRendersTranscript(t *testing.T) {
	skipOnWindows(t)
	gw := proc.New(logging.NewNop())
	p, err := NewCLIProvider("catbot", "cat", nil, 10*time.Second, gw, logging.NewNop())
	require.NoError(t, err)

	resp, err := p.Chat(context.Background(), "m", []core.Message{
		{Role: core.RoleSystem, Content: "be brief"},
		{Role: core.RoleUser, Content: "hi"},
	}, 0)
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "[system]\nbe brief")
	assert.Contains(t, resp.Content, "[user]\nhi")
}

func TestCLIProviderEmptyCompletion(t *testing.T) {
	skipOnWindows(t)
	gw := proc.New(logging.NewNop())
	p, err := NewCLIProvider("silent", "true", nil, 10*time.Second, gw, logging.NewNop())
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "m", "prompt", 0)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatExecution))
}

func TestCLIProviderMissingClient(t *testing.T) {
	gw := proc.New(logging.NewNop())
	p, err := NewCLIProvider("ghost", "definitely-not-a-real-binary-xyz", nil, 10*time.Second, gw, logging.NewNop())
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "m", "prompt", 0)
	require.Error(t, err)
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("ab"))
	assert.Equal(t, 3, estimateTokens("twelve chars"))
}

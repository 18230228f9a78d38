package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/testutil"
)

func TestProviderRegistryDefault(t *testing.T) {
	r := NewProviderRegistry()

	_, err := r.Get("")
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))

	r.Register(testutil.NewScriptedProvider("first"))
	r.Register(testutil.NewScriptedProvider("second"))

	// The first registration is the default until overridden.
	p, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "first", p.ID())

	require.NoError(t, r.SetDefault("SECOND"))
	p, err = r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "second", p.ID())

	assert.Error(t, r.SetDefault("ghost"))
}

func TestProviderRegistryUnknownIDFallsBackToDefault(t *testing.T) {
	r := NewProviderRegistry()
	r.Register(testutil.NewScriptedProvider("claude"))

	p, err := r.Get("ghost")
	require.NoError(t, err)
	assert.Equal(t, "claude", p.ID())

	// Without any provider there is nothing to fall back to.
	empty := NewProviderRegistry()
	_, err = empty.Get("ghost")
	assert.True(t, core.IsCategory(err, core.ErrCatExecution))
}

func fastRetry(inner core.LLMProvider) *RetryingProvider {
	r := WithRetry(inner, logging.NewNop())
	r.policy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return r
}

func TestRetryingProviderRetriesRateLimits(t *testing.T) {
	inner := testutil.NewScriptedProvider("flaky").
		Fail(core.ErrRateLimit("slow down")).
		Fail(core.ErrRateLimit("slow down")).
		Reply("finally", 3)

	resp, err := fastRetry(inner).Generate(context.Background(), "m", "p", 0)
	require.NoError(t, err)
	assert.Equal(t, "finally", resp.Content)
	assert.Len(t, inner.Calls(), 3)
}

func TestRetryingProviderStopsOnPermanentError(t *testing.T) {
	inner := testutil.NewScriptedProvider("broken").
		Fail(core.ErrValidation(core.CodeInvalidArgument, "bad prompt"))

	_, err := fastRetry(inner).Chat(context.Background(), "m", nil, 0)
	require.Error(t, err)
	assert.Len(t, inner.Calls(), 1, "non-retryable errors fail immediately")
}

func TestRetryingProviderGivesUpAfterMaxAttempts(t *testing.T) {
	inner := testutil.NewScriptedProvider("hopeless").
		Fail(core.ErrRateLimit("nope")).
		Fail(core.ErrRateLimit("nope")).
		Fail(core.ErrRateLimit("nope"))

	_, err := fastRetry(inner).Generate(context.Background(), "m", "p", 0)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatRateLimit))
	assert.Len(t, inner.Calls(), 3)
}

func TestRetryPolicyDelayBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, p.delay(1))
	assert.Equal(t, 2*time.Second, p.delay(2))
	assert.Equal(t, 3*time.Second, p.delay(3), "capped at MaxDelay")
}

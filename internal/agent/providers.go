package agent

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
)

// ProviderRegistry maps provider IDs to LLM providers. Agents name their
// provider; agents that do not fall back to the configured default.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]core.LLMProvider
	defaultID string
}

// NewProviderRegistry creates an empty provider registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]core.LLMProvider)}
}

// Register adds a provider. The first registered provider becomes the
// default until SetDefault overrides it.
func (r *ProviderRegistry) Register(p core.LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := strings.ToLower(p.ID())
	r.providers[id] = p
	if r.defaultID == "" {
		r.defaultID = id
	}
}

// SetDefault selects the default provider.
func (r *ProviderRegistry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id = strings.ToLower(id)
	if _, ok := r.providers[id]; !ok {
		return core.ErrNotFound("provider", id)
	}
	r.defaultID = id
	return nil
}

// Get resolves a provider by ID. An empty ID resolves to the default, and so
// does an unknown ID; agent files name providers the operator may not have
// configured, and a wrong name must not strand the agent. With no default
// configured the call fails with NO_DEFAULT_PROVIDER.
func (r *ProviderRegistry) Get(id string) (core.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == "" {
		if r.defaultID == "" {
			return nil, core.ErrValidation(core.CodeNoDefaultProvider, "no default LLM provider configured")
		}
		id = r.defaultID
	}
	p, ok := r.providers[strings.ToLower(id)]
	if !ok && r.defaultID != "" {
		p, ok = r.providers[r.defaultID]
	}
	if !ok {
		return nil, core.ErrExecution(core.CodeProviderUnavailable, "provider not registered: "+id)
	}
	return p, nil
}

// RetryPolicy controls retry behavior for provider calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay randomized, 0..1
}

// DefaultRetryPolicy retries rate limits twice more with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// delay computes the backoff before the given 1-based attempt.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.Jitter > 0 {
		jitter := time.Duration(float64(d) * p.Jitter * (rand.Float64()*2 - 1))
		d += jitter
	}
	if d < 0 {
		d = 0
	}
	return d
}

// RetryingProvider wraps a provider with retry on retryable failures, which
// in practice means rate limits and transient transport errors.
type RetryingProvider struct {
	inner  core.LLMProvider
	policy RetryPolicy
	logger *logging.Logger
}

// WithRetry wraps a provider in the default retry policy.
func WithRetry(inner core.LLMProvider, logger *logging.Logger) *RetryingProvider {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RetryingProvider{inner: inner, policy: DefaultRetryPolicy(), logger: logger}
}

func (r *RetryingProvider) ID() string { return r.inner.ID() }

// Chat calls the wrapped provider, retrying retryable failures.
func (r *RetryingProvider) Chat(ctx context.Context, model string, messages []core.Message, temperature float64) (*core.LLMResponse, error) {
	var resp *core.LLMResponse
	err := r.retry(ctx, func() error {
		var callErr error
		resp, callErr = r.inner.Chat(ctx, model, messages, temperature)
		return callErr
	})
	return resp, err
}

// Generate calls the wrapped provider, retrying retryable failures.
func (r *RetryingProvider) Generate(ctx context.Context, model, prompt string, temperature float64) (*core.LLMResponse, error) {
	var resp *core.LLMResponse
	err := r.retry(ctx, func() error {
		var callErr error
		resp, callErr = r.inner.Generate(ctx, model, prompt, temperature)
		return callErr
	})
	return resp, err
}

func (r *RetryingProvider) retry(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.policy.delay(attempt - 1)
			r.logger.Warn("retrying provider call",
				"provider", r.inner.ID(), "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return core.ErrCancelled("provider retry").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !core.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

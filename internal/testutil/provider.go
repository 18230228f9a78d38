// Package testutil provides fakes shared by tests: a scripted LLM provider
// and a fixed-vector embedder.
package testutil

import (
	"context"
	"sync"

	"github.com/aura-dev/aura/internal/core"
)

// ProviderCall records one provider invocation.
type ProviderCall struct {
	Model       string
	Messages    []core.Message
	Temperature float64
}

type scriptEntry struct {
	content string
	tokens  int
	err     error
}

// ScriptedProvider replays a fixed sequence of responses. Calls beyond the
// script fail, which keeps runaway loops visible in tests.
type ScriptedProvider struct {
	id string

	mu     sync.Mutex
	script []scriptEntry
	calls  []ProviderCall
}

var _ core.LLMProvider = (*ScriptedProvider)(nil)

// NewScriptedProvider creates an empty scripted provider.
func NewScriptedProvider(id string) *ScriptedProvider {
	return &ScriptedProvider{id: id}
}

// Reply enqueues a successful response.
func (p *ScriptedProvider) Reply(content string, tokens int) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, scriptEntry{content: content, tokens: tokens})
	return p
}

// Fail enqueues a failing response.
func (p *ScriptedProvider) Fail(err error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, scriptEntry{err: err})
	return p
}

// ID returns the provider identifier.
func (p *ScriptedProvider) ID() string { return p.id }

// Chat pops the next scripted response.
func (p *ScriptedProvider) Chat(ctx context.Context, model string, messages []core.Message, temperature float64) (*core.LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, ProviderCall{Model: model, Messages: messages, Temperature: temperature})
	if len(p.script) == 0 {
		return nil, core.ErrExecution(core.CodeGenerationFailed, p.id+" script exhausted")
	}
	next := p.script[0]
	p.script = p.script[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &core.LLMResponse{Content: next.content, TokensUsed: next.tokens}, nil
}

// Generate behaves like Chat with a single user message.
func (p *ScriptedProvider) Generate(ctx context.Context, model, prompt string, temperature float64) (*core.LLMResponse, error) {
	return p.Chat(ctx, model, []core.Message{{Role: core.RoleUser, Content: prompt}}, temperature)
}

// Calls returns a copy of all recorded invocations.
func (p *ScriptedProvider) Calls() []ProviderCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProviderCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Remaining reports how many scripted responses are left unconsumed.
func (p *ScriptedProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.script)
}

// StaticEmbedder returns the same vector for every text.
type StaticEmbedder struct {
	Vector []float32
	Err    error
}

var _ core.EmbeddingProvider = (*StaticEmbedder)(nil)

// Embed returns the configured vector or error.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Vector, nil
}

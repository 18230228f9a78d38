package agent

import (
	"context"
	"regexp"
	"strings"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
)

// defaultReflectionPrompt is used when reflection is enabled without a
// custom prompt.
const defaultReflectionPrompt = `Review your previous answer critically. ` +
	`If it fully and correctly addresses the request, reply with exactly APPROVED. ` +
	`Otherwise reply with a corrected, complete answer.`

// defaultReflectionTemperature keeps the review pass conservative.
const defaultReflectionTemperature = 0.3

// approvalMarker is the exact reply that keeps the draft unchanged.
const approvalMarker = "APPROVED"

var placeholderPattern = regexp.MustCompile(`\{\{context\.([a-zA-Z0-9_.-]+)\}\}`)

// ConfigurableAgent executes one markdown-defined agent: it renders the
// system prompt against the invocation context, runs the chat and optionally
// a reflection pass.
type ConfigurableAgent struct {
	def       *core.AgentDefinition
	providers *ProviderRegistry
	logger    *logging.Logger
}

// NewConfigurableAgent binds a definition to the provider registry.
func NewConfigurableAgent(def *core.AgentDefinition, providers *ProviderRegistry, logger *logging.Logger) *ConfigurableAgent {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ConfigurableAgent{def: def, providers: providers, logger: logger}
}

// Definition returns the underlying agent definition.
func (a *ConfigurableAgent) Definition() *core.AgentDefinition {
	return a.def
}

// Execute runs the agent once: system prompt, history, then the user prompt.
// When reflection is enabled the draft is reviewed by the same (or the
// configured) model; a review failure degrades to the draft rather than
// failing the run.
func (a *ConfigurableAgent) Execute(ctx context.Context, agentCtx *core.AgentContext) (*core.AgentOutput, error) {
	provider, err := a.providers.Get(a.def.Provider)
	if err != nil {
		return nil, err
	}

	messages := a.composeMessages(agentCtx)
	resp, err := provider.Chat(ctx, a.def.Model, messages, a.def.Temperature)
	if err != nil {
		return nil, err
	}

	output := &core.AgentOutput{Content: resp.Content, TokensUsed: resp.TokensUsed}
	if a.def.Reflection.Enabled {
		a.reflect(ctx, provider, messages, output)
	}
	return output, nil
}

// composeMessages builds [system, ...history, user].
func (a *ConfigurableAgent) composeMessages(agentCtx *core.AgentContext) []core.Message {
	messages := make([]core.Message, 0, len(agentCtx.History)+2)
	messages = append(messages, core.Message{
		Role:    core.RoleSystem,
		Content: RenderPrompt(a.def.SystemPrompt, agentCtx),
	})
	messages = append(messages, agentCtx.History...)
	messages = append(messages, core.Message{Role: core.RoleUser, Content: agentCtx.Prompt})
	return messages
}

// reflect runs the self-review pass, replacing the draft unless the reviewer
// answers exactly APPROVED (after trimming whitespace).
func (a *ConfigurableAgent) reflect(ctx context.Context, provider core.LLMProvider, conversation []core.Message, output *core.AgentOutput) {
	prompt := a.def.Reflection.Prompt
	if prompt == "" {
		prompt = defaultReflectionPrompt
	}
	model := a.def.Reflection.Model
	if model == "" {
		model = a.def.Model
	}
	temperature := a.def.Reflection.Temperature
	if temperature == 0 {
		temperature = defaultReflectionTemperature
	}

	review := append(append([]core.Message{}, conversation...),
		core.Message{Role: core.RoleAssistant, Content: output.Content},
		core.Message{Role: core.RoleUser, Content: prompt},
	)

	resp, err := provider.Chat(ctx, model, review, temperature)
	if err != nil {
		a.logger.Warn("reflection pass failed, keeping draft", "agent", a.def.ID, "error", err)
		return
	}
	output.TokensUsed += resp.TokensUsed

	if strings.TrimSpace(resp.Content) == approvalMarker {
		return
	}
	output.Content = resp.Content
}

// RenderPrompt substitutes {{context.<key>}} placeholders. Missing keys
// render as empty strings so a template never leaks its own syntax.
func RenderPrompt(template string, agentCtx *core.AgentContext) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		switch key {
		case "workspace_path":
			return agentCtx.WorkspacePath
		case "prompt":
			return agentCtx.Prompt
		default:
			return agentCtx.Property(key)
		}
	})
}

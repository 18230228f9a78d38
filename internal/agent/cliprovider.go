package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/proc"
)

// DefaultProviderTimeout applies when a CLIProvider is built without one.
const DefaultProviderTimeout = 2 * time.Minute

// CLIProvider adapts a command-line model client to the provider contract.
// The rendered prompt goes to the child on stdin and the completion comes
// back on stdout. Token usage is estimated from byte counts since most CLI
// clients report nothing.
type CLIProvider struct {
	id      string
	command string
	args    []string
	timeout time.Duration
	gw      *proc.Gateway
	logger  *logging.Logger
}

// NewCLIProvider creates a provider that shells out to command.
func NewCLIProvider(id, command string, args []string, timeout time.Duration, gw *proc.Gateway, logger *logging.Logger) (*CLIProvider, error) {
	if id == "" {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "provider ID cannot be empty")
	}
	if command == "" {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "provider "+id+" has no command")
	}
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CLIProvider{
		id:      id,
		command: command,
		args:    args,
		timeout: timeout,
		gw:      gw,
		logger:  logger,
	}, nil
}

// ID returns the provider identifier.
func (p *CLIProvider) ID() string { return p.id }

// Chat renders the conversation into a single transcript and generates from
// it. CLI clients are stateless, so every call carries the full history.
func (p *CLIProvider) Chat(ctx context.Context, model string, messages []core.Message, temperature float64) (*core.LLMResponse, error) {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			b.WriteString("[system]\n")
		case core.RoleAssistant:
			b.WriteString("[assistant]\n")
		default:
			b.WriteString("[user]\n")
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("[assistant]\n")
	return p.Generate(ctx, model, b.String(), temperature)
}

// Generate sends the prompt to the CLI client and returns its stdout.
func (p *CLIProvider) Generate(ctx context.Context, model, prompt string, temperature float64) (*core.LLMResponse, error) {
	args := make([]string, 0, len(p.args))
	for _, a := range p.args {
		a = strings.ReplaceAll(a, "{model}", model)
		a = strings.ReplaceAll(a, "{temperature}", fmt.Sprintf("%.2f", temperature))
		args = append(args, a)
	}

	res, err := p.gw.Run(ctx, proc.Request{
		Name:    p.command,
		Args:    args,
		Stdin:   prompt,
		Timeout: p.timeout,
	})
	if err != nil {
		return nil, p.classify(err, res)
	}

	content := strings.TrimSpace(res.Stdout)
	if content == "" {
		return nil, core.ErrExecution(core.CodeGenerationFailed,
			p.id+" returned an empty completion")
	}
	return &core.LLMResponse{
		Content:    content,
		TokensUsed: estimateTokens(prompt) + estimateTokens(content),
	}, nil
}

// classify maps gateway failures to the provider error kinds. Rate limiting
// is recognized from stderr because CLI clients only signal it textually.
func (p *CLIProvider) classify(err error, res *proc.Result) error {
	if core.IsCategory(err, core.ErrCatTimeout) || core.IsCategory(err, core.ErrCatCancelled) {
		return err
	}

	stderr := ""
	if res != nil {
		stderr = res.Stderr
	}
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429"):
		return core.ErrRateLimit(p.id + " rate limited").WithCause(err)
	case strings.Contains(lower, "command not found") || strings.Contains(lower, "executable file not found"):
		return core.ErrExecution(core.CodeProviderUnavailable,
			p.id+": client "+p.command+" is not installed").WithCause(err)
	}

	derr := core.ErrExecution(core.CodeGenerationFailed,
		fmt.Sprintf("%s generation failed: %v", p.id, err)).WithCause(err)
	if stderr != "" {
		derr = derr.WithDetail("stderr", truncateForLog(stderr, 2000))
	}
	return derr
}

// estimateTokens approximates usage at four bytes per token.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

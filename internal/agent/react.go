package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
)

// DefaultMaxSteps bounds one ReAct attempt.
const DefaultMaxSteps = 10

// DefaultMaxRetries is how many fresh attempts follow a failed one.
const DefaultMaxRetries = 1

// subagentAction is handled by the executor itself rather than the tool
// registry, so subagent token usage lands in the parent tracker.
const subagentAction = "spawn_subagent"

// defaultSubagentBudget caps a nested run when the parent has plenty left.
const defaultSubagentBudget = 25000

// RetryClassifier decides whether a failed attempt deserves another one.
// A nil classifier retries every failure.
type RetryClassifier func(failure string) bool

// BuildErrorsOnly retries only failures that look like compiler or test
// output; everything else is assumed deterministic and not worth repeating.
func BuildErrorsOnly(failure string) bool {
	lower := strings.ToLower(failure)
	for _, marker := range []string{"build failed", "compile", "syntax error", "test failed", "undefined:", "cannot find"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Executor runs the ReAct loop for an agent: think, act, observe, repeat.
type Executor struct {
	providers *ProviderRegistry
	tools     *ToolRegistry
	logger    *logging.Logger

	MaxSteps   int
	MaxRetries int
	// Classifier gates retries; nil retries all failures.
	Classifier RetryClassifier
	// SubagentBudget caps nested runs; the parent's remaining budget caps
	// it further.
	SubagentBudget int
}

// NewExecutor creates a ReAct executor.
func NewExecutor(providers *ProviderRegistry, tools *ToolRegistry, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		providers:      providers,
		tools:          tools,
		logger:         logger,
		MaxSteps:       DefaultMaxSteps,
		MaxRetries:     DefaultMaxRetries,
		SubagentBudget: defaultSubagentBudget,
	}
}

// RunRequest is one ReAct invocation.
type RunRequest struct {
	Agent      *core.AgentDefinition
	Context    *core.AgentContext
	Tracker    *TokenTracker
	Validation *ValidationTracker
	// Subagents resolves agents for spawn_subagent; nil disables spawning.
	Subagents *Registry
}

// Run executes the loop with retries. Steps from every attempt are kept in
// the result; a retried run starts fresh but remembers why the previous
// attempt failed.
func (e *Executor) Run(ctx context.Context, req RunRequest) (*core.ReActResult, error) {
	if req.Agent == nil || req.Context == nil || req.Tracker == nil {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "agent, context and tracker are required")
	}

	result := &core.ReActResult{}
	prompt := req.Context.Prompt
	maxAttempts := 1 + e.MaxRetries

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		failure := e.runAttempt(ctx, req, prompt, result)
		if failure == "" {
			result.Success = true
			result.TokensUsed = req.Tracker.Used()
			return result, nil
		}
		result.Error = failure

		if ctx.Err() != nil {
			break
		}
		if e.Classifier != nil && !e.Classifier(failure) {
			e.logger.Info("failure not retryable by policy", "agent", req.Agent.ID, "failure", failure)
			break
		}
		if attempt < maxAttempts {
			e.logger.Warn("attempt failed, retrying", "agent", req.Agent.ID, "attempt", attempt, "failure", failure)
			prompt = req.Context.Prompt + "\n\nPrevious Attempt Failed\n" +
				"Your previous attempt did not complete the task:\n" + failure +
				"\nStart over and avoid repeating the same mistake."
		}
	}

	result.TokensUsed = req.Tracker.Used()
	return result, nil
}

// runAttempt runs one attempt, appending its steps to result. It returns an
// empty string on success, otherwise the failure description.
func (e *Executor) runAttempt(ctx context.Context, req RunRequest, prompt string, result *core.ReActResult) string {
	provider, err := e.providers.Get(req.Agent.Provider)
	if err != nil {
		return err.Error()
	}

	messages := []core.Message{
		{Role: core.RoleSystem, Content: e.systemPrompt(req)},
	}
	messages = append(messages, req.Context.History...)
	messages = append(messages, core.Message{Role: core.RoleUser, Content: prompt})

	for step := 1; step <= e.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "cancelled"
		}
		if req.Tracker.Exhausted() {
			return fmt.Sprintf("token budget exhausted (%d/%d)", req.Tracker.Used(), req.Tracker.Budget())
		}

		resp, err := provider.Chat(ctx, req.Agent.Model, messages, req.Agent.Temperature)
		if err != nil {
			return "provider call failed: " + err.Error()
		}
		req.Tracker.Add(resp.TokensUsed)

		parsed, parseErr := parseReAct(resp.Content)
		record := core.ReActStep{
			StepNumber:       len(result.Steps) + 1,
			CumulativeTokens: req.Tracker.Used(),
		}

		if parseErr != nil {
			// Malformed output becomes an observation; models usually
			// recover when told what went wrong.
			record.Observation = "Could not parse your response: " + parseErr.Error() +
				". Reply with Thought, Action and Action Input lines, or a Final Answer."
			result.Steps = append(result.Steps, record)
			messages = append(messages,
				core.Message{Role: core.RoleAssistant, Content: resp.Content},
				core.Message{Role: core.RoleUser, Content: "Observation: " + record.Observation})
			continue
		}

		record.Thought = parsed.thought
		record.Action = parsed.action
		record.ActionInput = parsed.rawInput

		if parsed.finished {
			record.Observation = "done"
			result.Steps = append(result.Steps, record)
			result.FinalAnswer = parsed.finalAnswer
			return ""
		}

		observation := e.act(ctx, req, parsed)
		record.Observation = observation
		result.Steps = append(result.Steps, record)

		messages = append(messages,
			core.Message{Role: core.RoleAssistant, Content: resp.Content},
			core.Message{Role: core.RoleUser, Content: "Observation: " + observation})

		switch req.Tracker.Recommend() {
		case BudgetCompleteNow:
			messages = append(messages, core.Message{Role: core.RoleUser,
				Content: "Your token budget is nearly gone. Give your Final Answer now."})
		case BudgetSummarize:
			messages = append(messages, core.Message{Role: core.RoleUser,
				Content: "Budget note: be brief from here on."})
		}
	}

	return fmt.Sprintf("step limit reached after %d steps without a final answer", e.MaxSteps)
}

// act executes one parsed action and renders the observation.
func (e *Executor) act(ctx context.Context, req RunRequest, parsed *parsedResponse) string {
	if strings.EqualFold(parsed.action, subagentAction) {
		return e.spawnSubagent(ctx, req, parsed.input)
	}

	result, err := e.tools.Execute(ctx, parsed.action, parsed.input, req.Context.WorkspacePath)
	if err != nil {
		return "tool error: " + err.Error()
	}
	if req.Validation != nil && result.Success && strings.EqualFold(parsed.action, "file.write") {
		if path, ok := parsed.input["path"].(string); ok {
			req.Validation.TrackFile(path)
		}
	}
	if !result.Success {
		out := "tool failed: " + result.Error
		if result.Output != "" {
			out += "\n" + result.Output
		}
		return out
	}
	if result.Output == "" {
		return "ok"
	}
	return result.Output
}

// subagentSummary is the JSON shape spawn_subagent reports back.
type subagentSummary struct {
	Success    bool   `json:"success"`
	Summary    string `json:"summary"`
	StepsUsed  int    `json:"steps_used"`
	TokensUsed int    `json:"tokens_used"`
	Error      string `json:"error,omitempty"`
}

// spawnSubagent runs a nested ReAct loop on a sub-budget carved out of the
// parent's remaining tokens. The nested usage is charged to the parent.
func (e *Executor) spawnSubagent(ctx context.Context, req RunRequest, input core.ToolInput) string {
	if req.Subagents == nil {
		return "tool error: subagents are not available here"
	}
	prompt, _ := input["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return "tool error: spawn_subagent requires a prompt"
	}

	var def *core.AgentDefinition
	var err error
	if agentID, _ := input["agent_id"].(string); agentID != "" {
		def, err = req.Subagents.Get(agentID)
	} else if capability, _ := input["capability"].(string); capability != "" {
		def, err = req.Subagents.BestForCapability(core.Capability(strings.ToLower(capability)), "")
	} else {
		return "tool error: spawn_subagent requires agent_id or capability"
	}
	if err != nil {
		return "tool error: " + err.Error()
	}

	budget := e.SubagentBudget
	if remaining := req.Tracker.Remaining(); remaining < budget {
		budget = remaining
	}
	if budget <= 0 {
		return "tool error: no token budget left for a subagent"
	}
	subTracker, err := NewTokenTracker(budget)
	if err != nil {
		return "tool error: " + err.Error()
	}

	// Subagents may not spawn further subagents; one level is enough.
	subResult, err := e.Run(ctx, RunRequest{
		Agent: def,
		Context: &core.AgentContext{
			Prompt:        prompt,
			WorkspacePath: req.Context.WorkspacePath,
			Properties:    req.Context.Properties,
		},
		Tracker:    subTracker,
		Validation: req.Validation,
	})
	summary := subagentSummary{}
	if err != nil {
		summary.Error = err.Error()
	} else {
		summary.Success = subResult.Success
		summary.Summary = subResult.FinalAnswer
		summary.StepsUsed = len(subResult.Steps)
		summary.TokensUsed = subResult.TokensUsed
		summary.Error = subResult.Error
	}
	req.Tracker.Add(subTracker.Used())

	data, _ := json.Marshal(summary)
	return string(data)
}

// systemPrompt renders the agent prompt plus the tool list and the loop
// format contract.
func (e *Executor) systemPrompt(req RunRequest) string {
	var sb strings.Builder
	sb.WriteString(RenderPrompt(req.Agent.SystemPrompt, req.Context))
	sb.WriteString("\n\nYou work step by step. Each reply must use this format:\n")
	sb.WriteString("Thought: your reasoning\n")
	sb.WriteString("Action: one tool name from the list below\n")
	sb.WriteString("Action Input: a JSON object with the tool parameters\n")
	sb.WriteString("\nWhen the task is done, reply instead with:\n")
	sb.WriteString("Final Answer: your complete answer\n")
	sb.WriteString("\nAvailable tools:\n")

	allowed := make(map[string]bool, len(req.Agent.Tools))
	for _, id := range req.Agent.Tools {
		allowed[strings.ToLower(id)] = true
	}
	for _, def := range e.tools.List() {
		if len(allowed) > 0 && !allowed[strings.ToLower(def.ID)] {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s", def.ID, def.Description)
		for _, p := range def.Parameters {
			mark := ""
			if p.Required {
				mark = ", required"
			}
			fmt.Fprintf(&sb, "\n    %s (%s%s): %s", p.Name, p.Type, mark, p.Description)
		}
		sb.WriteString("\n")
	}
	if req.Subagents != nil {
		sb.WriteString("- spawn_subagent: delegate a subtask to another agent\n")
		sb.WriteString("    prompt (string, required): the subtask\n")
		sb.WriteString("    agent_id (string): specific agent to use\n")
		sb.WriteString("    capability (string): or pick the best agent for this capability\n")
	}
	return sb.String()
}

// parsedResponse is one parsed model reply.
type parsedResponse struct {
	thought     string
	action      string
	rawInput    string
	input       core.ToolInput
	finished    bool
	finalAnswer string
}

var (
	finalAnswerPattern = regexp.MustCompile(`(?is)final\s+answer\s*:\s*(.*)$`)
	thoughtPattern     = regexp.MustCompile(`(?is)thought\s*:\s*(.*?)(?:\n\s*action\s*:|\z)`)
	actionPattern      = regexp.MustCompile(`(?im)^\s*action\s*:\s*(.+)$`)
	actionInputPattern = regexp.MustCompile(`(?is)action\s+input\s*:\s*(.*)$`)
	fencePattern       = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// parseReAct extracts thought, action and input from model output. It is
// deliberately tolerant: labels are case-insensitive, narration around the
// labels is ignored, and action input may be fenced, multiline or absent.
func parseReAct(content string) (*parsedResponse, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty response")
	}

	p := &parsedResponse{}

	if m := thoughtPattern.FindStringSubmatch(content); m != nil {
		p.thought = strings.TrimSpace(m[1])
	}

	if m := finalAnswerPattern.FindStringSubmatch(content); m != nil {
		p.finished = true
		p.finalAnswer = strings.TrimSpace(m[1])
		return p, nil
	}

	m := actionPattern.FindStringSubmatch(content)
	if m == nil {
		return nil, fmt.Errorf("no Action or Final Answer found")
	}
	p.action = strings.Trim(strings.TrimSpace(m[1]), "`\"'")

	if im := actionInputPattern.FindStringSubmatch(content); im != nil {
		p.rawInput = strings.TrimSpace(im[1])
	}
	p.input = parseActionInput(p.rawInput)

	if strings.EqualFold(p.action, "finish") || strings.EqualFold(p.action, "done") {
		p.finished = true
		p.finalAnswer = finalAnswerFromInput(p.rawInput, p.input)
	}
	return p, nil
}

// parseActionInput accepts a JSON object, a fenced JSON object, or free text
// which becomes {"input": text}.
func parseActionInput(raw string) core.ToolInput {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.ToolInput{}
	}
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		raw = strings.TrimSpace(m[1])
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return core.ToolInput(obj)
	}
	// Models sometimes emit almost-JSON with trailing prose; try the first
	// balanced object.
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := lastBalancedBrace(raw, start); end > start {
			if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err == nil {
				return core.ToolInput(obj)
			}
		}
	}
	return core.ToolInput{"input": raw}
}

func lastBalancedBrace(s string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '"':
			if i == 0 || s[i-1] != '\\' {
				inString = !inString
			}
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

func finalAnswerFromInput(raw string, input core.ToolInput) string {
	for _, key := range []string{"answer", "final_answer", "result", "summary", "input"} {
		if s, ok := input[key].(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(raw)
}

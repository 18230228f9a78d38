package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/testutil"
)

func TestParseReActFinalAnswer(t *testing.T) {
	p, err := parseReAct("Thought: I am done here.\nFinal Answer: 42 is the answer.")
	require.NoError(t, err)
	assert.True(t, p.finished)
	assert.Equal(t, "I am done here.", p.thought)
	assert.Equal(t, "42 is the answer.", p.finalAnswer)
}

func TestParseReActActionWithFencedInput(t *testing.T) {
	content := "Thought: need to read the file\n" +
		"Action: `file.read`\n" +
		"Action Input:\n```json\n{\"path\": \"main.go\"}\n```"
	p, err := parseReAct(content)
	require.NoError(t, err)
	assert.False(t, p.finished)
	assert.Equal(t, "file.read", p.action)
	assert.Equal(t, "main.go", p.input["path"])
}

func TestParseReActFinishAction(t *testing.T) {
	p, err := parseReAct("Action: finish\nAction Input: {\"answer\": \"all good\"}")
	require.NoError(t, err)
	assert.True(t, p.finished)
	assert.Equal(t, "all good", p.finalAnswer)
}

func TestParseReActFreeTextInput(t *testing.T) {
	p, err := parseReAct("Action: shell.run\nAction Input: ls -la")
	require.NoError(t, err)
	assert.Equal(t, "ls -la", p.input["input"])
}

func TestParseReActAlmostJSONInput(t *testing.T) {
	p, err := parseReAct("Action: file.read\nAction Input: here you go {\"path\": \"x.go\"} hope that helps")
	require.NoError(t, err)
	assert.Equal(t, "x.go", p.input["path"])
}

func TestParseReActMalformed(t *testing.T) {
	_, err := parseReAct("I would love to help but cannot decide what to do.")
	require.Error(t, err)

	_, err = parseReAct("")
	require.Error(t, err)
}

func TestBuildErrorsOnly(t *testing.T) {
	assert.True(t, BuildErrorsOnly("Build FAILED: undefined: foo"))
	assert.True(t, BuildErrorsOnly("3 tests failed, test failed output"))
	assert.False(t, BuildErrorsOnly("step limit reached after 10 steps"))
}

func testExecutor(t *testing.T, provider core.LLMProvider) (*Executor, *ToolRegistry) {
	t.Helper()
	providers := NewProviderRegistry()
	providers.Register(provider)
	tools := NewToolRegistry(logging.NewNop())
	return NewExecutor(providers, tools, logging.NewNop()), tools
}

func runRequest(tracker *TokenTracker) RunRequest {
	return RunRequest{
		Agent:   &core.AgentDefinition{ID: "tester", SystemPrompt: "You test things.", Temperature: 0.2},
		Context: &core.AgentContext{Prompt: "do the task", WorkspacePath: "/tmp/ws"},
		Tracker: tracker,
	}
}

func TestExecutorRunToolThenAnswer(t *testing.T) {
	provider := testutil.NewScriptedProvider("fake").
		Reply("Thought: check\nAction: test.echo\nAction Input: {\"message\": \"hi\"}", 10).
		Reply("Final Answer: echoed fine", 5)
	e, tools := testExecutor(t, provider)
	require.NoError(t, tools.Register(&core.ToolDefinition{
		ID: "test.echo",
		Handler: func(ctx context.Context, input core.ToolInput) (*core.ToolResult, error) {
			msg, _ := input["message"].(string)
			return core.ToolOK("echo: " + msg), nil
		},
	}))

	tracker, err := NewTokenTracker(1000)
	require.NoError(t, err)

	result, err := e.Run(context.Background(), runRequest(tracker))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "echoed fine", result.FinalAnswer)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 15, result.TokensUsed)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "echo: hi", result.Steps[0].Observation)
	assert.Equal(t, "done", result.Steps[1].Observation)
	assert.Zero(t, provider.Remaining())
}

func TestExecutorMalformedReplyBecomesObservation(t *testing.T) {
	provider := testutil.NewScriptedProvider("fake").
		Reply("total nonsense with no labels", 5).
		Reply("Final Answer: recovered", 5)
	e, _ := testExecutor(t, provider)

	tracker, err := NewTokenTracker(1000)
	require.NoError(t, err)

	result, err := e.Run(context.Background(), runRequest(tracker))
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Steps, 2)
	assert.Contains(t, result.Steps[0].Observation, "Could not parse")
}

func TestExecutorRetriesAfterStepLimit(t *testing.T) {
	provider := testutil.NewScriptedProvider("fake").
		Reply("Action: missing.tool\nAction Input: {}", 5).
		Reply("Final Answer: second attempt wins", 5)
	e, _ := testExecutor(t, provider)
	e.MaxSteps = 1

	tracker, err := NewTokenTracker(1000)
	require.NoError(t, err)

	result, err := e.Run(context.Background(), runRequest(tracker))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, "second attempt wins", result.FinalAnswer)
	// Steps from the failed attempt stay in the record.
	require.Len(t, result.Steps, 2)

	// The retry prompt carries the previous failure.
	calls := provider.Calls()
	require.Len(t, calls, 2)
	last := calls[1].Messages[len(calls[1].Messages)-1]
	assert.Contains(t, last.Content, "Previous Attempt Failed")
}

func TestExecutorClassifierBlocksRetry(t *testing.T) {
	provider := testutil.NewScriptedProvider("fake").
		Reply("Action: missing.tool\nAction Input: {}", 5)
	e, _ := testExecutor(t, provider)
	e.MaxSteps = 1
	e.Classifier = BuildErrorsOnly

	tracker, err := NewTokenTracker(1000)
	require.NoError(t, err)

	result, err := e.Run(context.Background(), runRequest(tracker))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Contains(t, result.Error, "step limit")
}

func TestExecutorBudgetExhaustion(t *testing.T) {
	provider := testutil.NewScriptedProvider("fake").
		Reply("Action: missing.tool\nAction Input: {}", 100).
		Reply("unused", 0)
	e, _ := testExecutor(t, provider)
	e.MaxRetries = 0

	tracker, err := NewTokenTracker(100)
	require.NoError(t, err)

	result, err := e.Run(context.Background(), runRequest(tracker))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "token budget exhausted")
}

func TestExecutorSpawnSubagent(t *testing.T) {
	// Script order: parent delegates, subagent answers, parent concludes.
	provider := testutil.NewScriptedProvider("fake").
		Reply("Action: spawn_subagent\nAction Input: {\"agent_id\": \"helper\", \"prompt\": \"sub task\"}", 10).
		Reply("Final Answer: subtask complete", 20).
		Reply("Final Answer: all done", 5)
	e, _ := testExecutor(t, provider)

	dir := t.TempDir()
	writeAgent(t, dir, "helper", agentMarkdown("Helper", 10, []string{"chat"}, nil))
	subagents := loadedRegistry(t, dir)

	tracker, err := NewTokenTracker(1000)
	require.NoError(t, err)

	req := runRequest(tracker)
	req.Subagents = subagents

	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "all done", result.FinalAnswer)
	require.Len(t, result.Steps, 2)
	assert.Contains(t, result.Steps[0].Observation, "subtask complete")
	// Subagent usage lands in the parent tracker.
	assert.Equal(t, 35, result.TokensUsed)
}

func TestExecutorSubagentsDisabled(t *testing.T) {
	provider := testutil.NewScriptedProvider("fake").
		Reply("Action: spawn_subagent\nAction Input: {\"agent_id\": \"helper\", \"prompt\": \"x\"}", 5).
		Reply("Final Answer: fine without help", 5)
	e, _ := testExecutor(t, provider)

	tracker, err := NewTokenTracker(1000)
	require.NoError(t, err)

	result, err := e.Run(context.Background(), runRequest(tracker))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Steps[0].Observation, "subagents are not available")
}

func TestExecutorRequiresTracker(t *testing.T) {
	e, _ := testExecutor(t, testutil.NewScriptedProvider("fake"))
	_, err := e.Run(context.Background(), RunRequest{
		Agent:   &core.AgentDefinition{ID: "a", SystemPrompt: "x"},
		Context: &core.AgentContext{Prompt: "y"},
	})
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowHappyPath(t *testing.T) {
	w := NewWorkflow("wf-1", "ws-1", "title", "desc")
	assert.Equal(t, WorkflowStatusCreated, w.Status)
	assert.Equal(t, AutomationStructured, w.Mode)

	for _, next := range []WorkflowStatus{
		WorkflowStatusAnalyzing,
		WorkflowStatusAnalyzed,
		WorkflowStatusPlanning,
		WorkflowStatusPlanned,
		WorkflowStatusExecuting,
		WorkflowStatusCompleted,
	} {
		require.NoError(t, w.Transition(next))
	}
	assert.True(t, w.IsTerminal())
	assert.NotNil(t, w.CompletedAt)
}

func TestWorkflowIllegalTransitions(t *testing.T) {
	w := NewWorkflow("wf-1", "ws-1", "t", "")

	err := w.Transition(WorkflowStatusExecuting)
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrCatState))

	// Self transitions are never legal.
	assert.Error(t, w.Transition(WorkflowStatusCreated))

	require.NoError(t, w.Transition(WorkflowStatusAnalyzing))
	assert.Error(t, w.Transition(WorkflowStatusCreated), "no going backwards")
}

func TestWorkflowExecutingSelfLoop(t *testing.T) {
	// Step dispatch keeps the workflow in Executing without a formal
	// transition; a self edge is rejected like any other.
	assert.False(t, CanTransition(WorkflowStatusExecuting, WorkflowStatusExecuting))
}

func TestWorkflowFailFromAnyNonTerminal(t *testing.T) {
	for _, from := range []WorkflowStatus{
		WorkflowStatusCreated, WorkflowStatusAnalyzing, WorkflowStatusAnalyzed,
		WorkflowStatusPlanning, WorkflowStatusPlanned, WorkflowStatusExecuting,
	} {
		assert.True(t, CanTransition(from, WorkflowStatusFailed), "from %s", from)
		assert.True(t, CanTransition(from, WorkflowStatusCancelled), "from %s", from)
	}
	for _, from := range []WorkflowStatus{
		WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled,
	} {
		assert.False(t, CanTransition(from, WorkflowStatusFailed), "from %s", from)
		assert.False(t, CanTransition(from, WorkflowStatusCancelled), "from %s", from)
	}
}

func TestWorkflowFailRecordsReason(t *testing.T) {
	w := NewWorkflow("wf-1", "ws-1", "t", "")
	require.NoError(t, w.Fail("agent gave up"))
	assert.Equal(t, WorkflowStatusFailed, w.Status)
	assert.Equal(t, "agent gave up", w.Error)

	assert.Error(t, w.Fail("again"), "terminal workflows cannot fail twice")
}

func TestWorkflowStepAccessors(t *testing.T) {
	w := NewWorkflow("wf-1", "ws-1", "t", "")
	w.Steps = []*Step{
		{ID: "s1", Order: 1, Status: StepStatusSucceeded},
		{ID: "s2", Order: 2, Status: StepStatusRunning},
		{ID: "s3", Order: 3, Status: StepStatusPending},
		{ID: "s4", Order: 4, Status: StepStatusPending},
	}

	step, ok := w.StepByID("s3")
	require.True(t, ok)
	assert.Equal(t, 3, step.Order)

	_, ok = w.StepByID("nope")
	assert.False(t, ok)

	assert.Equal(t, "s2", w.RunningStep().ID)

	pending := w.PendingSteps()
	require.Len(t, pending, 2)
	assert.Equal(t, "s3", pending[0].ID)
}

func TestAllStepsDone(t *testing.T) {
	w := NewWorkflow("wf-1", "ws-1", "t", "")
	assert.False(t, w.AllStepsDone(), "no steps means nothing is done")

	w.Steps = []*Step{
		{ID: "s1", Order: 1, Status: StepStatusSucceeded},
		{ID: "s2", Order: 2, Status: StepStatusSkipped},
	}
	assert.True(t, w.AllStepsDone())

	w.Steps = append(w.Steps, &Step{ID: "s3", Order: 3, Status: StepStatusFailed})
	assert.False(t, w.AllStepsDone())
}

func TestWorkflowValidate(t *testing.T) {
	w := NewWorkflow("wf-1", "ws-1", "t", "")
	require.NoError(t, w.Validate())

	w.Steps = []*Step{
		{ID: "s1", Order: 1, Status: StepStatusPending},
		{ID: "s2", Order: 3, Status: StepStatusPending},
	}
	err := w.Validate()
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrCatValidation))

	w.Steps[1].Order = 2
	w.Steps[0].Status = StepStatusRunning
	w.Steps[1].Status = StepStatusRunning
	err = w.Validate()
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrCatState))

	w.ID = ""
	assert.Error(t, w.Validate())
}

func TestStepLifecycle(t *testing.T) {
	s := &Step{ID: "s1", Order: 1, Status: StepStatusPending}

	require.NoError(t, s.Start())
	assert.Equal(t, StepStatusRunning, s.Status)
	assert.NotNil(t, s.StartedAt)

	assert.Error(t, s.Start(), "only pending steps start")

	s.Succeed(json.RawMessage(`{"answer":"ok"}`))
	assert.Equal(t, StepStatusSucceeded, s.Status)
	assert.Empty(t, s.Error)
	assert.True(t, s.IsDone())
}

func TestStepRetryThenFail(t *testing.T) {
	s := &Step{ID: "s1", Order: 1, Status: StepStatusRunning}

	s.RecordFailure("transient", 2)
	assert.Equal(t, StepStatusPending, s.Status, "attempts remain, back to pending")
	assert.Equal(t, 1, s.Attempts)
	assert.Equal(t, "transient", s.Error)

	require.NoError(t, s.Start())
	s.RecordFailure("fatal", 2)
	assert.Equal(t, StepStatusFailed, s.Status)
	assert.Equal(t, 2, s.Attempts)
	assert.True(t, s.IsDone())
	assert.NotNil(t, s.CompletedAt)
}

func TestStepSkip(t *testing.T) {
	s := &Step{ID: "s1", Order: 1, Status: StepStatusPending}
	s.Skip()
	assert.Equal(t, StepStatusSkipped, s.Status)
	assert.True(t, s.IsDone())
}

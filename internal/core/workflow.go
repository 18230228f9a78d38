package core

import (
	"time"
)

// WorkflowID uniquely identifies a workflow.
type WorkflowID string

// WorkflowStatus represents the current state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusCreated   WorkflowStatus = "created"
	WorkflowStatusAnalyzing WorkflowStatus = "analyzing"
	WorkflowStatusAnalyzed  WorkflowStatus = "analyzed"
	WorkflowStatusPlanning  WorkflowStatus = "planning"
	WorkflowStatusPlanned   WorkflowStatus = "planned"
	WorkflowStatusExecuting WorkflowStatus = "executing"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// AutomationMode controls how much human confirmation a workflow requires.
type AutomationMode string

const (
	AutomationStructured AutomationMode = "structured"
	AutomationAutonomous AutomationMode = "autonomous"
)

// legalTransitions is the workflow state machine. Failure and cancellation
// edges are handled separately: any non-terminal state may fail, and any
// non-terminal state may be cancelled.
var legalTransitions = map[WorkflowStatus][]WorkflowStatus{
	WorkflowStatusCreated:   {WorkflowStatusAnalyzing},
	WorkflowStatusAnalyzing: {WorkflowStatusAnalyzed},
	WorkflowStatusAnalyzed:  {WorkflowStatusPlanning},
	WorkflowStatusPlanning:  {WorkflowStatusPlanned},
	WorkflowStatusPlanned:   {WorkflowStatusExecuting},
	WorkflowStatusExecuting: {WorkflowStatusCompleted},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to WorkflowStatus) bool {
	if from == to {
		return false
	}
	if to == WorkflowStatusFailed || to == WorkflowStatusCancelled {
		return !isTerminal(from)
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func isTerminal(s WorkflowStatus) bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// Workflow is the durable unit of automated work. It operates inside an
// isolated git worktree so concurrent workflows never share a checkout.
type Workflow struct {
	ID              WorkflowID
	Title           string
	Description     string
	IssueRef        string
	WorkspaceID     string
	WorktreePath    string
	Branch          string
	Status          WorkflowStatus
	Mode            AutomationMode
	AnalyzedContext string
	Steps           []*Step
	MaxAttempts     int
	Error           string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// DefaultMaxAttempts bounds retries of a single step.
const DefaultMaxAttempts = 2

// NewWorkflow creates a workflow in the Created state.
func NewWorkflow(id WorkflowID, workspaceID, title, description string) *Workflow {
	return &Workflow{
		ID:          id,
		Title:       title,
		Description: description,
		WorkspaceID: workspaceID,
		Status:      WorkflowStatusCreated,
		Mode:        AutomationStructured,
		MaxAttempts: DefaultMaxAttempts,
		Steps:       make([]*Step, 0),
		CreatedAt:   time.Now(),
	}
}

// Transition moves the workflow to a new status, enforcing the state machine.
func (w *Workflow) Transition(to WorkflowStatus) error {
	if !CanTransition(w.Status, to) {
		return ErrInvalidTransition(string(w.Status), string(to))
	}
	w.Status = to
	if isTerminal(to) {
		now := time.Now()
		w.CompletedAt = &now
	}
	return nil
}

// Fail moves the workflow to Failed with the given reason.
func (w *Workflow) Fail(reason string) error {
	if err := w.Transition(WorkflowStatusFailed); err != nil {
		return err
	}
	w.Error = reason
	return nil
}

// IsTerminal returns true if the workflow can no longer advance.
func (w *Workflow) IsTerminal() bool {
	return isTerminal(w.Status)
}

// StepByID returns the step with the given ID.
func (w *Workflow) StepByID(id string) (*Step, bool) {
	for _, s := range w.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// RunningStep returns the currently running step, if any. The state machine
// allows at most one.
func (w *Workflow) RunningStep() *Step {
	for _, s := range w.Steps {
		if s.Status == StepStatusRunning {
			return s
		}
	}
	return nil
}

// PendingSteps returns pending steps in execution order.
func (w *Workflow) PendingSteps() []*Step {
	var pending []*Step
	for _, s := range w.Steps {
		if s.Status == StepStatusPending {
			pending = append(pending, s)
		}
	}
	return pending
}

// AllStepsDone reports whether every step succeeded or was skipped.
func (w *Workflow) AllStepsDone() bool {
	if len(w.Steps) == 0 {
		return false
	}
	for _, s := range w.Steps {
		if s.Status != StepStatusSucceeded && s.Status != StepStatusSkipped {
			return false
		}
	}
	return true
}

// Validate checks workflow invariants.
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return ErrValidation("WORKFLOW_ID_REQUIRED", "workflow ID cannot be empty")
	}
	if w.WorkspaceID == "" {
		return ErrValidation("WORKSPACE_ID_REQUIRED", "workflow must reference a workspace")
	}
	running := 0
	for i, s := range w.Steps {
		if s.Order != i+1 {
			return ErrValidation("STEP_ORDER_GAP", "step order must be contiguous from 1")
		}
		if s.Status == StepStatusRunning {
			running++
		}
	}
	if running > 1 {
		return ErrState(CodeStepRunning, "at most one step may be running")
	}
	return nil
}

package events

// Event type constants for workflow events.
const (
	TypeWorkflowTransition = "workflow_transition"
	TypeWorkflowCompleted  = "workflow_completed"
	TypeWorkflowFailed     = "workflow_failed"
	TypeWorkflowCancelled  = "workflow_cancelled"
)

// WorkflowTransitionEvent is emitted on every successful status change.
type WorkflowTransitionEvent struct {
	BaseEvent
	From string `json:"from"`
	To   string `json:"to"`
}

// NewWorkflowTransitionEvent creates a new workflow transition event.
func NewWorkflowTransitionEvent(workflowID, from, to string) WorkflowTransitionEvent {
	return WorkflowTransitionEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowTransition, workflowID),
		From:      from,
		To:        to,
	}
}

// WorkflowCompletedEvent is emitted when a workflow finishes successfully.
// Emitted at most once per workflow, as a priority event.
type WorkflowCompletedEvent struct {
	BaseEvent
	Branch string `json:"branch"`
	PRURL  string `json:"pr_url,omitempty"`
}

// NewWorkflowCompletedEvent creates a new workflow completed event.
func NewWorkflowCompletedEvent(workflowID, branch, prURL string) WorkflowCompletedEvent {
	return WorkflowCompletedEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowCompleted, workflowID),
		Branch:    branch,
		PRURL:     prURL,
	}
}

// WorkflowFailedEvent is emitted when a workflow fails. Priority event.
type WorkflowFailedEvent struct {
	BaseEvent
	Status string `json:"status"`
	Error  string `json:"error"`
}

// NewWorkflowFailedEvent creates a new workflow failed event.
func NewWorkflowFailedEvent(workflowID, status string, err error) WorkflowFailedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return WorkflowFailedEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowFailed, workflowID),
		Status:    status,
		Error:     errStr,
	}
}

// WorkflowCancelledEvent is emitted when a workflow is cancelled.
type WorkflowCancelledEvent struct {
	BaseEvent
	Reason string `json:"reason,omitempty"`
}

// NewWorkflowCancelledEvent creates a new workflow cancelled event.
func NewWorkflowCancelledEvent(workflowID, reason string) WorkflowCancelledEvent {
	return WorkflowCancelledEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowCancelled, workflowID),
		Reason:    reason,
	}
}

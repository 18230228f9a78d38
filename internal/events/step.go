package events

// Event type constants for step events.
const (
	TypeStepStarted   = "step_started"
	TypeStepSucceeded = "step_succeeded"
	TypeStepFailed    = "step_failed"
	TypeStepRetrying  = "step_retrying"
)

// StepStartedEvent is emitted when a step begins executing.
type StepStartedEvent struct {
	BaseEvent
	StepID string `json:"step_id"`
	Name   string `json:"name"`
	Agent  string `json:"agent"`
}

// NewStepStartedEvent creates a new step started event.
func NewStepStartedEvent(workflowID, stepID, name, agent string) StepStartedEvent {
	return StepStartedEvent{
		BaseEvent: NewBaseEvent(TypeStepStarted, workflowID),
		StepID:    stepID,
		Name:      name,
		Agent:     agent,
	}
}

// StepSucceededEvent is emitted when a step succeeds.
type StepSucceededEvent struct {
	BaseEvent
	StepID     string `json:"step_id"`
	Name       string `json:"name"`
	TokensUsed int    `json:"tokens_used"`
}

// NewStepSucceededEvent creates a new step succeeded event.
func NewStepSucceededEvent(workflowID, stepID, name string, tokensUsed int) StepSucceededEvent {
	return StepSucceededEvent{
		BaseEvent:  NewBaseEvent(TypeStepSucceeded, workflowID),
		StepID:     stepID,
		Name:       name,
		TokensUsed: tokensUsed,
	}
}

// StepFailedEvent is emitted when a step fails terminally.
type StepFailedEvent struct {
	BaseEvent
	StepID   string `json:"step_id"`
	Name     string `json:"name"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// NewStepFailedEvent creates a new step failed event.
func NewStepFailedEvent(workflowID, stepID, name string, attempts int, err error) StepFailedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return StepFailedEvent{
		BaseEvent: NewBaseEvent(TypeStepFailed, workflowID),
		StepID:    stepID,
		Name:      name,
		Attempts:  attempts,
		Error:     errStr,
	}
}

// StepRetryingEvent is emitted when a failed attempt leaves retries available.
type StepRetryingEvent struct {
	BaseEvent
	StepID  string `json:"step_id"`
	Name    string `json:"name"`
	Attempt int    `json:"attempt"`
}

// NewStepRetryingEvent creates a new step retrying event.
func NewStepRetryingEvent(workflowID, stepID, name string, attempt int) StepRetryingEvent {
	return StepRetryingEvent{
		BaseEvent: NewBaseEvent(TypeStepRetrying, workflowID),
		StepID:    stepID,
		Name:      name,
		Attempt:   attempt,
	}
}

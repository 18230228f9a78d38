package core

import (
	"encoding/json"
	"time"
)

// StepStatus represents the state of a single workflow step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Step is one ordered sub-task of a workflow, dispatched to a single agent.
type Step struct {
	ID          string
	WorkflowID  WorkflowID
	Order       int // 1-based, contiguous within the workflow
	Name        string
	Description string
	Capability  Capability
	AgentID     string // optional pin; empty means select by capability
	Status      StepStatus
	Attempts    int
	Output      json.RawMessage
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Start marks the step running.
func (s *Step) Start() error {
	if s.Status != StepStatusPending {
		return ErrState(CodeInvalidTransition, "step is not pending: "+string(s.Status))
	}
	s.Status = StepStatusRunning
	now := time.Now()
	s.StartedAt = &now
	return nil
}

// Succeed marks the step succeeded with its structured output.
func (s *Step) Succeed(output json.RawMessage) {
	s.Status = StepStatusSucceeded
	s.Output = output
	s.Error = ""
	now := time.Now()
	s.CompletedAt = &now
}

// RecordFailure increments the attempt counter. When attempts remain the step
// returns to Pending for retry; otherwise it becomes Failed.
func (s *Step) RecordFailure(reason string, maxAttempts int) {
	s.Attempts++
	s.Error = reason
	if s.Attempts < maxAttempts {
		s.Status = StepStatusPending
		return
	}
	s.Status = StepStatusFailed
	now := time.Now()
	s.CompletedAt = &now
}

// Skip marks the step skipped.
func (s *Step) Skip() {
	s.Status = StepStatusSkipped
	now := time.Now()
	s.CompletedAt = &now
}

// IsDone reports whether the step reached a terminal status.
func (s *Step) IsDone() bool {
	return s.Status == StepStatusSucceeded || s.Status == StepStatusFailed || s.Status == StepStatusSkipped
}

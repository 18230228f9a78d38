package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatExecution  ErrorCategory = "execution"  // Runtime failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatRateLimit  ErrorCategory = "rate_limit" // Provider rate limited
	ErrCatState      ErrorCategory = "state"      // Illegal state transition
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // Concurrent modification or duplicate
	ErrCatCancelled  ErrorCategory = "cancelled"  // Cooperative cancellation
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      CodeProcessTimeout,
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      "RATE_LIMITED",
		Message:   message,
		Retryable: true,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrInvalidTransition creates an illegal workflow transition error.
func ErrInvalidTransition(from, to string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      CodeInvalidTransition,
		Message:   fmt.Sprintf("cannot transition from %s to %s", from, to),
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrAlreadyExists creates a duplicate-resource error.
func ErrAlreadyExists(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      CodeAlreadyExists,
		Message:   fmt.Sprintf("%s already exists: %s", resource, id),
		Retryable: false,
	}
}

// ErrConflict creates a concurrent-modification error.
func ErrConflict(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      "CONFLICT",
		Message:   message,
		Retryable: true,
	}
}

// ErrCancelled creates a cancellation error.
func ErrCancelled(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatCancelled,
		Code:      "CANCELLED",
		Message:   message,
		Retryable: false,
	}
}

// ErrInternal creates an internal error.
func ErrInternal(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatInternal,
		Code:      "INTERNAL",
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeInvalidArgument   = "INVALID_ARGUMENT"

	// Process gateway error codes
	CodeSpawnFailed    = "SPAWN_FAILED"
	CodeProcessTimeout = "PROCESS_TIMEOUT"
	CodeNonzeroExit    = "NONZERO_EXIT"

	// LLM provider error codes
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeGenerationFailed    = "GENERATION_FAILED"

	// Index error codes
	CodeIndexRequired         = "INDEX_REQUIRED"
	CodeIngestFailed          = "INGEST_FAILED_FOR_FILE"
	CodeEmbeddingUnavailable  = "EMBEDDING_UNAVAILABLE"
	CodeInconsistentWorkspace = "INCONSISTENT_WORKSPACE"

	// Agent runtime error codes
	CodeAgentNotFound     = "AGENT_NOT_FOUND"
	CodeToolNotFound      = "TOOL_NOT_FOUND"
	CodeNoDefaultProvider = "NO_DEFAULT_PROVIDER"
	CodeStepsExhausted    = "STEPS_EXHAUSTED"

	// Workflow error codes
	CodeWorkflowNotFound = "WORKFLOW_NOT_FOUND"
	CodeStepNotFound     = "STEP_NOT_FOUND"
	CodeStepRunning      = "STEP_ALREADY_RUNNING"
	CodeWorktreeExists   = "WORKTREE_EXISTS"
	CodeNothingToCommit  = "NOTHING_TO_COMMIT"
)

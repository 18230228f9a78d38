package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormatting(t *testing.T) {
	err := ErrValidation(CodeInvalidArgument, "bad input")
	assert.Equal(t, "[validation] INVALID_ARGUMENT: bad input", err.Error())

	wrapped := err.WithCause(errors.New("root"))
	assert.Contains(t, wrapped.Error(), "(root)")
}

func TestDomainErrorUnwrapAndIs(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrExecution(CodeIngestFailed, "cannot write index").WithCause(cause)

	assert.ErrorIs(t, err, cause)

	var domErr *DomainError
	require.True(t, errors.As(fmt.Errorf("outer: %w", err), &domErr))
	assert.Equal(t, CodeIngestFailed, domErr.Code)

	// Is matches on category and code, not message.
	assert.ErrorIs(t, err, ErrExecution(CodeIngestFailed, "different message"))
	assert.NotErrorIs(t, err, ErrExecution(CodeGenerationFailed, "cannot write index"))
}

func TestWithDetail(t *testing.T) {
	err := ErrExecution(CodeGenerationFailed, "boom").
		WithDetail("stderr", "trace").
		WithDetail("exit", 2)
	assert.Equal(t, "trace", err.Details["stderr"])
	assert.Equal(t, 2, err.Details["exit"])
}

func TestCategoryHelpers(t *testing.T) {
	assert.True(t, IsCategory(ErrNotFound("thing", "x"), ErrCatNotFound))
	assert.True(t, IsCategory(fmt.Errorf("wrapped: %w", ErrConflict("busy")), ErrCatConflict))
	assert.Equal(t, ErrCatInternal, GetCategory(errors.New("plain")))

	assert.True(t, IsRetryable(ErrRateLimit("slow down")))
	assert.True(t, IsRetryable(ErrTimeout("too long")))
	assert.False(t, IsRetryable(ErrValidation("X", "y")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/core"
)

func TestTrackFileIgnoresNonCode(t *testing.T) {
	v := NewValidationTracker()

	v.TrackFile("README.md")
	v.TrackFile("assets/logo.png")
	v.TrackFile("   ")
	v.TrackFile("")
	assert.False(t, v.NeedsValidation())

	v.TrackFile("internal/app/main.go")
	v.TrackFile("web/App.TSX")
	assert.True(t, v.NeedsValidation())
	assert.Equal(t, []string{"internal/app/main.go", "web/App.TSX"}, v.ModifiedFiles())
}

func TestTrackFileIdempotent(t *testing.T) {
	v := NewValidationTracker()
	v.TrackFile("a.go")
	v.TrackFile("a.go")
	assert.Len(t, v.ModifiedFiles(), 1)
}

func TestRecordSuccessResets(t *testing.T) {
	v := NewValidationTracker()
	v.TrackFile("a.go")
	require.NoError(t, v.RecordFailure())
	require.Equal(t, 1, v.Failures())

	v.RecordSuccess()
	assert.False(t, v.NeedsValidation())
	assert.Zero(t, v.Failures())
}

func TestRecordFailureExhaustsAtCap(t *testing.T) {
	v := NewValidationTracker()
	for i := 0; i < DefaultMaxValidationFailures-1; i++ {
		require.NoError(t, v.RecordFailure())
	}
	err := v.RecordFailure()
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatExecution))
}

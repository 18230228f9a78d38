package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/events"
)

func TestQueueEnqueueCoalesces(t *testing.T) {
	store := openTestStore(t)
	q := NewQueue(newTestPipeline(t, store), nil, nil)
	ws := writeWorkspace(t, map[string]string{"doc.md": "content\n"})

	// Worker not started, so the first job stays queued.
	first, err := q.Enqueue(ws)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, first.Status)

	second, err := q.Enqueue(ws)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestQueueGetUnknownJob(t *testing.T) {
	store := openTestStore(t)
	q := NewQueue(newTestPipeline(t, store), nil, nil)

	_, err := q.Get("nope")
	require.Error(t, err)
}

func TestQueueRunNow(t *testing.T) {
	store := openTestStore(t)
	q := NewQueue(newTestPipeline(t, store), nil, nil)
	ws := writeWorkspace(t, map[string]string{"doc.md": "# Title\n\nbody text\n"})

	stats, err := q.RunNow(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Greater(t, stats.ChunksCreated, 0)

	has, err := store.HasIndex(context.Background(), ws.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestQueueWorkerRunsJob(t *testing.T) {
	store := openTestStore(t)
	bus := events.New(64)
	defer bus.Close()
	q := NewQueue(newTestPipeline(t, store), bus, nil)
	ws := writeWorkspace(t, map[string]string{"doc.md": "queued content\n"})

	done := bus.Subscribe(events.TypeIndexJobCompleted, events.TypeIndexJobFailed)

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	job, err := q.Enqueue(ws)
	require.NoError(t, err)

	select {
	case ev := <-done:
		assert.Equal(t, events.TypeIndexJobCompleted, ev.EventType())
	case <-time.After(10 * time.Second):
		t.Fatal("job did not finish")
	}

	got, err := q.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, got.Status)
	assert.Equal(t, 1, got.Processed)

	// A finished job no longer coalesces.
	next, err := q.Enqueue(ws)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, next.ID)

	cancel()
	q.Wait()
}

package index

import (
	"context"
	"sync"
	"time"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/events"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// JobStatus tracks a background ingestion job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one ingestion run for one workspace.
type Job struct {
	ID          string
	WorkspaceID string
	Status      JobStatus
	Processed   int
	Total       int
	Failed      int
	Error       string
	EnqueuedAt  time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

type queueItem struct {
	job *Job
	ws  *core.Workspace
}

// progressStride throttles progress events to one per this many files.
const progressStride = 25

// Queue runs ingestion jobs one at a time in FIFO order. Enqueueing a
// workspace that already has a queued or running job returns that job
// instead of creating a second one.
type Queue struct {
	pipeline *Pipeline
	bus      *events.Bus
	logger   *logging.Logger

	mu      sync.Mutex
	pending map[string]*Job // workspace ID -> active job
	jobs    map[string]*Job // job ID -> job
	ch      chan queueItem
	started bool

	sf singleflight.Group
	wg sync.WaitGroup
}

// NewQueue creates an ingestion job queue.
func NewQueue(pipeline *Pipeline, bus *events.Bus, logger *logging.Logger) *Queue {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Queue{
		pipeline: pipeline,
		bus:      bus,
		logger:   logger,
		pending:  make(map[string]*Job),
		jobs:     make(map[string]*Job),
		ch:       make(chan queueItem, 64),
	}
}

// Start launches the worker. It runs until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case item := <-q.ch:
				q.run(ctx, item)
			}
		}
	}()
}

// Wait blocks until the worker has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Enqueue schedules an ingestion run. A workspace with an active job gets
// the existing job back, so repeated triggers coalesce.
func (q *Queue) Enqueue(ws *core.Workspace) (*Job, error) {
	q.mu.Lock()
	if existing, ok := q.pending[ws.ID]; ok {
		q.mu.Unlock()
		return existing, nil
	}
	job := &Job{
		ID:          uuid.NewString(),
		WorkspaceID: ws.ID,
		Status:      JobQueued,
		EnqueuedAt:  time.Now(),
	}
	q.pending[ws.ID] = job
	q.jobs[job.ID] = job
	q.mu.Unlock()

	select {
	case q.ch <- queueItem{job: job, ws: ws}:
	default:
		q.mu.Lock()
		delete(q.pending, ws.ID)
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		return nil, core.ErrExecution("QUEUE_FULL", "ingestion queue is full")
	}

	q.publish(events.TypeIndexJobQueued, job, nil)
	return job, nil
}

// Get returns a snapshot of a job by ID.
func (q *Queue) Get(jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, core.ErrNotFound("index job", jobID)
	}
	snapshot := *job
	return &snapshot, nil
}

func (q *Queue) run(ctx context.Context, item queueItem) {
	job, ws := item.job, item.ws

	q.mu.Lock()
	job.Status = JobRunning
	job.StartedAt = time.Now()
	q.mu.Unlock()
	q.publish(events.TypeIndexJobStarted, job, nil)

	stats, err := q.runCoalesced(ctx, ws, job)

	q.mu.Lock()
	job.FinishedAt = time.Now()
	delete(q.pending, ws.ID)
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
	} else {
		job.Status = JobCompleted
		job.Processed = stats.Processed
		job.Total = stats.Processed
		job.Failed = stats.Failed
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Error("ingestion job failed", "job", job.ID, "workspace", ws.ID, "error", err)
		q.publish(events.TypeIndexJobFailed, job, err)
		return
	}
	q.logger.Info("ingestion job completed",
		"job", job.ID, "workspace", ws.ID,
		"files", stats.Processed, "failed", stats.Failed,
		"chunks", stats.ChunksCreated, "nodes", stats.NodesCreated,
		"duration", stats.Duration)
	q.publish(events.TypeIndexJobCompleted, job, nil)
}

// runCoalesced funnels concurrent runs for one workspace through a single
// pipeline execution; a synchronous RunNow overlapping the worker shares
// the same result.
func (q *Queue) runCoalesced(ctx context.Context, ws *core.Workspace, job *Job) (*RunStats, error) {
	v, err, _ := q.sf.Do(ws.ID, func() (interface{}, error) {
		return q.pipeline.Run(ctx, ws, func(processed, total, failed int) {
			q.mu.Lock()
			job.Processed = processed
			job.Total = total
			job.Failed = failed
			q.mu.Unlock()
			if processed%progressStride == 0 || processed == total {
				q.publish(events.TypeIndexJobProgress, job, nil)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return v.(*RunStats), nil
}

// RunNow runs ingestion synchronously, sharing in-flight runs with the
// queue worker through the same singleflight key.
func (q *Queue) RunNow(ctx context.Context, ws *core.Workspace) (*RunStats, error) {
	v, err, _ := q.sf.Do(ws.ID, func() (interface{}, error) {
		return q.pipeline.Run(ctx, ws, nil)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RunStats), nil
}

func (q *Queue) publish(eventType string, job *Job, err error) {
	if q.bus == nil {
		return
	}
	q.mu.Lock()
	processed, total, failed := job.Processed, job.Total, job.Failed
	jobID, wsID := job.ID, job.WorkspaceID
	q.mu.Unlock()
	q.bus.Publish(events.NewIndexJobEvent(eventType, jobID, wsID, processed, total, failed, err))
}

package events

// Event type constants for indexing events.
const (
	TypeIndexJobQueued    = "index_job_queued"
	TypeIndexJobStarted   = "index_job_started"
	TypeIndexJobProgress  = "index_job_progress"
	TypeIndexJobCompleted = "index_job_completed"
	TypeIndexJobFailed    = "index_job_failed"
)

// IndexJobEvent carries the state of a background ingestion job.
type IndexJobEvent struct {
	BaseEvent
	JobID     string `json:"job_id"`
	Workspace string `json:"workspace_id"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// NewIndexJobEvent creates an index job event of the given type.
func NewIndexJobEvent(eventType, jobID, workspaceID string, processed, total, failed int, err error) IndexJobEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return IndexJobEvent{
		BaseEvent: NewBaseEvent(eventType, ""),
		JobID:     jobID,
		Workspace: workspaceID,
		Processed: processed,
		Total:     total,
		Failed:    failed,
		Error:     errStr,
	}
}

// Package orchestrator drives workflows through their lifecycle: analysis,
// planning, step execution in an isolated worktree, and completion as a
// pull request.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aura-dev/aura/internal/core"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	description      TEXT,
	issue_ref        TEXT,
	workspace_id     TEXT NOT NULL,
	worktree_path    TEXT,
	branch           TEXT,
	status           TEXT NOT NULL,
	mode             TEXT NOT NULL,
	analyzed_context TEXT,
	max_attempts     INTEGER NOT NULL DEFAULT 2,
	error            TEXT,
	created_at       TIMESTAMP NOT NULL,
	completed_at     TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_workflows_workspace ON workflows(workspace_id);
CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);

CREATE TABLE IF NOT EXISTS workflow_steps (
	id           TEXT PRIMARY KEY,
	workflow_id  TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	step_order   INTEGER NOT NULL,
	name         TEXT NOT NULL,
	description  TEXT,
	capability   TEXT,
	agent_id     TEXT,
	status       TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	output       TEXT,
	error        TEXT,
	started_at   TIMESTAMP,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_steps_workflow ON workflow_steps(workflow_id, step_order);
`

// Store is the sqlite-backed workflow store. Saves rewrite the workflow and
// all its steps in one transaction; a reader never sees half a save.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ core.WorkflowStore = (*Store)(nil)

// OpenStore opens (creating if needed) the workflow database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening workflow store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying workflow schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveWorkflow upserts a workflow and replaces its steps.
func (s *Store) SaveWorkflow(ctx context.Context, w *core.Workflow) error {
	if err := w.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workflows
			(id, title, description, issue_ref, workspace_id, worktree_path, branch,
			 status, mode, analyzed_context, max_attempts, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			issue_ref = excluded.issue_ref,
			worktree_path = excluded.worktree_path,
			branch = excluded.branch,
			status = excluded.status,
			mode = excluded.mode,
			analyzed_context = excluded.analyzed_context,
			max_attempts = excluded.max_attempts,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		string(w.ID), w.Title, w.Description, w.IssueRef, w.WorkspaceID, w.WorktreePath, w.Branch,
		string(w.Status), string(w.Mode), w.AnalyzedContext, w.MaxAttempts, w.Error,
		w.CreatedAt, nullableTime(w.CompletedAt)); err != nil {
		return fmt.Errorf("saving workflow: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM workflow_steps WHERE workflow_id = ?", string(w.ID)); err != nil {
		return fmt.Errorf("clearing steps: %w", err)
	}
	for _, step := range w.Steps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_steps
				(id, workflow_id, step_order, name, description, capability, agent_id,
				 status, attempts, output, error, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			step.ID, string(w.ID), step.Order, step.Name, step.Description,
			string(step.Capability), step.AgentID, string(step.Status), step.Attempts,
			nullableString(string(step.Output)), step.Error,
			nullableTime(step.StartedAt), nullableTime(step.CompletedAt)); err != nil {
			return fmt.Errorf("saving step %s: %w", step.ID, err)
		}
	}
	return tx.Commit()
}

// LoadWorkflow loads a workflow with its steps.
func (s *Store) LoadWorkflow(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, issue_ref, workspace_id, worktree_path, branch,
			status, mode, analyzed_context, max_attempts, error, created_at, completed_at
		FROM workflows WHERE id = ?`, string(id))
	w, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("workflow", string(id)).WithDetail("code", core.CodeWorkflowNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadSteps(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// ListWorkflows returns workflows, newest first, optionally filtered by
// workspace.
func (s *Store) ListWorkflows(ctx context.Context, workspaceID string) ([]*core.Workflow, error) {
	q := `SELECT id, title, description, issue_ref, workspace_id, worktree_path, branch,
			status, mode, analyzed_context, max_attempts, error, created_at, completed_at
		FROM workflows`
	var args []interface{}
	if workspaceID != "" {
		q += " WHERE workspace_id = ?"
		args = append(args, workspaceID)
	}
	q += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*core.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, w := range workflows {
		if err := s.loadSteps(ctx, w); err != nil {
			return nil, err
		}
	}
	return workflows, nil
}

// DeleteWorkflow removes a workflow; steps cascade.
func (s *Store) DeleteWorkflow(ctx context.Context, id core.WorkflowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound("workflow", string(id)).WithDetail("code", core.CodeWorkflowNotFound)
	}
	return nil
}

func (s *Store) loadSteps(ctx context.Context, w *core.Workflow) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, step_order, name, description, capability, agent_id,
			status, attempts, output, error, started_at, completed_at
		FROM workflow_steps WHERE workflow_id = ? ORDER BY step_order ASC`, string(w.ID))
	if err != nil {
		return fmt.Errorf("loading steps: %w", err)
	}
	defer rows.Close()

	w.Steps = make([]*core.Step, 0)
	for rows.Next() {
		var (
			step        core.Step
			capability  sql.NullString
			agentID     sql.NullString
			output      sql.NullString
			errText     sql.NullString
			startedAt   sql.NullTime
			completedAt sql.NullTime
			status      string
		)
		if err := rows.Scan(&step.ID, &step.Order, &step.Name, &step.Description,
			&capability, &agentID, &status, &step.Attempts, &output, &errText,
			&startedAt, &completedAt); err != nil {
			return err
		}
		step.WorkflowID = w.ID
		step.Capability = core.Capability(capability.String)
		step.AgentID = agentID.String
		step.Status = core.StepStatus(status)
		step.Error = errText.String
		if output.Valid && output.String != "" {
			step.Output = []byte(output.String)
		}
		if startedAt.Valid {
			t := startedAt.Time
			step.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			step.CompletedAt = &t
		}
		w.Steps = append(w.Steps, &step)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*core.Workflow, error) {
	var (
		w           core.Workflow
		id          string
		status      string
		mode        string
		description sql.NullString
		issueRef    sql.NullString
		worktree    sql.NullString
		branch      sql.NullString
		analyzed    sql.NullString
		errText     sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(&id, &w.Title, &description, &issueRef, &w.WorkspaceID, &worktree,
		&branch, &status, &mode, &analyzed, &w.MaxAttempts, &errText, &w.CreatedAt,
		&completedAt); err != nil {
		return nil, err
	}
	w.ID = core.WorkflowID(id)
	w.Description = description.String
	w.IssueRef = issueRef.String
	w.WorktreePath = worktree.String
	w.Branch = branch.String
	w.Status = core.WorkflowStatus(status)
	w.Mode = core.AutomationMode(mode)
	w.AnalyzedContext = analyzed.String
	w.Error = errText.String
	if completedAt.Valid {
		t := completedAt.Time
		w.CompletedAt = &t
	}
	return &w, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

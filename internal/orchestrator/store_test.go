package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "workflows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleWorkflow(id, workspaceID string) *core.Workflow {
	w := core.NewWorkflow(core.WorkflowID(id), workspaceID, "Add caching", "cache hot paths")
	w.IssueRef = "#42"
	w.Branch = "aura/add-caching"
	w.WorktreePath = "/tmp/worktrees/add-caching"
	w.Steps = []*core.Step{
		{
			ID: id + "-s1", WorkflowID: w.ID, Order: 1, Name: "analyze",
			Capability: core.CapAnalysis, Status: core.StepStatusSucceeded,
			Output: json.RawMessage(`{"final_answer":"ok"}`),
		},
		{
			ID: id + "-s2", WorkflowID: w.ID, Order: 2, Name: "implement",
			Capability: core.CapCoding, Status: core.StepStatusPending,
		},
	}
	return w
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	w := sampleWorkflow("wf-1", "ws-1")
	now := time.Now()
	w.Steps[0].StartedAt = &now
	require.NoError(t, store.SaveWorkflow(ctx, w))

	got, err := store.LoadWorkflow(ctx, "wf-1")
	require.NoError(t, err)

	assert.Equal(t, w.Title, got.Title)
	assert.Equal(t, w.IssueRef, got.IssueRef)
	assert.Equal(t, w.Branch, got.Branch)
	assert.Equal(t, w.WorktreePath, got.WorktreePath)
	assert.Equal(t, core.WorkflowStatusCreated, got.Status)
	assert.Equal(t, core.AutomationStructured, got.Mode)

	require.Len(t, got.Steps, 2)
	assert.Equal(t, "analyze", got.Steps[0].Name)
	assert.Equal(t, core.CapAnalysis, got.Steps[0].Capability)
	assert.JSONEq(t, `{"final_answer":"ok"}`, string(got.Steps[0].Output))
	assert.NotNil(t, got.Steps[0].StartedAt)
	assert.Nil(t, got.Steps[1].StartedAt)
	assert.Equal(t, w.ID, got.Steps[0].WorkflowID)
}

func TestSaveWorkflowUpsertsAndReplacesSteps(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	w := sampleWorkflow("wf-1", "ws-1")
	require.NoError(t, store.SaveWorkflow(ctx, w))

	w.Title = "Add caching v2"
	w.Steps = w.Steps[:1]
	require.NoError(t, store.SaveWorkflow(ctx, w))

	got, err := store.LoadWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Add caching v2", got.Title)
	assert.Len(t, got.Steps, 1)
}

func TestSaveWorkflowRejectsInvalid(t *testing.T) {
	store := openTestStore(t)

	w := sampleWorkflow("wf-1", "ws-1")
	w.Steps[1].Order = 5
	err := store.SaveWorkflow(context.Background(), w)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestLoadWorkflowNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LoadWorkflow(context.Background(), "ghost")
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

func TestListWorkflowsFilterAndOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := sampleWorkflow("wf-old", "ws-1")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := sampleWorkflow("wf-new", "ws-1")
	other := sampleWorkflow("wf-other", "ws-2")
	for _, w := range []*core.Workflow{older, newer, other} {
		require.NoError(t, store.SaveWorkflow(ctx, w))
	}

	all, err := store.ListWorkflows(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ws1, err := store.ListWorkflows(ctx, "ws-1")
	require.NoError(t, err)
	require.Len(t, ws1, 2)
	assert.Equal(t, core.WorkflowID("wf-new"), ws1[0].ID, "newest first")
	assert.Equal(t, core.WorkflowID("wf-old"), ws1[1].ID)
}

func TestDeleteWorkflowCascades(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveWorkflow(ctx, sampleWorkflow("wf-1", "ws-1")))
	require.NoError(t, store.DeleteWorkflow(ctx, "wf-1"))

	_, err := store.LoadWorkflow(ctx, "wf-1")
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

	err = store.DeleteWorkflow(ctx, "wf-1")
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

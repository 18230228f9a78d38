package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aura-dev/aura/internal/agent"
	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/events"
	"github.com/aura-dev/aura/internal/gitx"
	"github.com/google/uuid"
)

// stepOutput is what a succeeded step persists.
type stepOutput struct {
	FinalAnswer string `json:"final_answer"`
	Agent       string `json:"agent"`
	Steps       int    `json:"steps"`
	Attempts    int    `json:"attempts"`
	TokensUsed  int    `json:"tokens_used"`
}

// ExecuteStep runs one pending step inside the workflow worktree.
func (o *Orchestrator) ExecuteStep(ctx context.Context, id core.WorkflowID, stepID string) (*core.Workflow, error) {
	unlock, err := o.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	runCtx, done := o.cancellableRun(ctx, id)
	defer done()

	w, err := o.store.LoadWorkflow(runCtx, id)
	if err != nil {
		return nil, err
	}
	if err := o.executeStepLocked(runCtx, w, stepID); err != nil {
		return w, err
	}
	return w, nil
}

// ExecuteAllPending runs pending steps in order until all are done or one
// fails terminally.
func (o *Orchestrator) ExecuteAllPending(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	unlock, err := o.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	runCtx, done := o.cancellableRun(ctx, id)
	defer done()

	w, err := o.store.LoadWorkflow(runCtx, id)
	if err != nil {
		return nil, err
	}

	for {
		if err := runCtx.Err(); err != nil {
			return w, core.ErrCancelled("workflow execution interrupted").WithCause(err)
		}
		pending := w.PendingSteps()
		if len(pending) == 0 {
			return w, nil
		}
		if err := o.executeStepLocked(runCtx, w, pending[0].ID); err != nil {
			return w, err
		}
		if w.IsTerminal() {
			return w, nil
		}
	}
}

func (o *Orchestrator) executeStepLocked(ctx context.Context, w *core.Workflow, stepID string) error {
	switch w.Status {
	case core.WorkflowStatusPlanned:
		if err := o.transition(ctx, w, core.WorkflowStatusExecuting); err != nil {
			return err
		}
	case core.WorkflowStatusExecuting:
	default:
		return core.ErrState(core.CodeInvalidTransition,
			"step execution requires a planned or executing workflow, status is "+string(w.Status))
	}

	step, ok := w.StepByID(stepID)
	if !ok {
		return core.ErrNotFound("step", stepID).WithDetail("code", core.CodeStepNotFound)
	}
	if running := w.RunningStep(); running != nil {
		return core.ErrState(core.CodeStepRunning, "step "+running.ID+" is already running")
	}

	def, err := o.agentForStep(step)
	if err != nil {
		return err
	}

	if err := step.Start(); err != nil {
		return err
	}
	if err := o.store.SaveWorkflow(ctx, w); err != nil {
		return err
	}
	if o.bus != nil {
		o.bus.Publish(events.NewStepStartedEvent(string(w.ID), step.ID, step.Name, def.ID))
	}

	result, runErr := o.runStep(ctx, w, step, def)
	if ctx.Err() != nil && (runErr != nil || result == nil || !result.Success) {
		return o.abortCancelledStep(ctx, w, step)
	}
	switch {
	case runErr == nil && result.Success:
		out, _ := json.Marshal(stepOutput{
			FinalAnswer: result.FinalAnswer,
			Agent:       def.ID,
			Steps:       len(result.Steps),
			Attempts:    result.Attempts,
			TokensUsed:  result.TokensUsed,
		})
		step.Succeed(out)
		if o.bus != nil {
			o.bus.Publish(events.NewStepSucceededEvent(string(w.ID), step.ID, step.Name, result.TokensUsed))
		}
	default:
		reason := "step execution failed"
		if runErr != nil {
			reason = runErr.Error()
		} else if result.Error != "" {
			reason = result.Error
		}
		step.RecordFailure(reason, w.MaxAttempts)
		if step.Status == core.StepStatusPending {
			if o.bus != nil {
				o.bus.Publish(events.NewStepRetryingEvent(string(w.ID), step.ID, step.Name, step.Attempts))
			}
		} else {
			if o.bus != nil {
				o.bus.Publish(events.NewStepFailedEvent(string(w.ID), step.ID, step.Name, step.Attempts, errors.New(reason)))
			}
			o.fail(ctx, w, fmt.Sprintf("step %q failed after %d attempts: %s", step.Name, step.Attempts, reason))
			return o.store.SaveWorkflow(ctx, w)
		}
	}

	return o.store.SaveWorkflow(ctx, w)
}

// abortCancelledStep records the interrupt on the running step, persisting
// outside the cancelled context. The workflow stays in Executing so the
// canceller can move it to Cancelled.
func (o *Orchestrator) abortCancelledStep(ctx context.Context, w *core.Workflow, step *core.Step) error {
	step.RecordFailure("cancelled", step.Attempts+1)
	if err := o.store.SaveWorkflow(context.WithoutCancel(ctx), w); err != nil {
		o.logger.Error("cannot persist interrupted step", "workflow", w.ID, "step", step.ID, "error", err)
	}
	if o.bus != nil {
		o.bus.Publish(events.NewStepFailedEvent(string(w.ID), step.ID, step.Name, step.Attempts, errors.New("cancelled")))
	}
	return core.ErrCancelled("step " + step.Name + " interrupted")
}

func (o *Orchestrator) agentForStep(step *core.Step) (*core.AgentDefinition, error) {
	if step.AgentID != "" {
		return o.agents.Get(step.AgentID)
	}
	capability := step.Capability
	if capability == "" {
		capability = core.CapCoding
	}
	return o.agents.BestForCapability(capability, "")
}

func (o *Orchestrator) runStep(ctx context.Context, w *core.Workflow, step *core.Step, def *core.AgentDefinition) (*core.ReActResult, error) {
	tracker, err := agent.NewTokenTracker(o.opts.TokenBudget)
	if err != nil {
		return nil, err
	}

	prompt := step.Name
	if step.Description != "" {
		prompt += "\n\n" + step.Description
	}
	if w.AnalyzedContext != "" {
		prompt += "\n\nContext from analysis:\n" + w.AnalyzedContext
	}

	return o.executor.Run(ctx, agent.RunRequest{
		Agent: def,
		Context: &core.AgentContext{
			Prompt:        prompt,
			WorkspacePath: w.WorktreePath,
			Properties: map[string]string{
				"workflow_title": w.Title,
				"step_name":      step.Name,
			},
		},
		Tracker:    tracker,
		Validation: agent.NewValidationTracker(),
		Subagents:  o.agents,
	})
}

// Complete commits the worktree, squashes the branch to a single commit,
// pushes and opens a pull request. Requires every step done.
func (o *Orchestrator) Complete(ctx context.Context, id core.WorkflowID, prTitle, prBody string) (*core.Workflow, string, error) {
	unlock, err := o.lock(id)
	if err != nil {
		return nil, "", err
	}
	defer unlock()

	w, err := o.store.LoadWorkflow(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if w.Status != core.WorkflowStatusExecuting {
		return nil, "", core.ErrState(core.CodeInvalidTransition,
			"completion requires an executing workflow, status is "+string(w.Status))
	}
	if !w.AllStepsDone() {
		return nil, "", core.ErrState(core.CodeInvalidTransition, "not all steps are done")
	}

	prURL, err := o.publish(ctx, w, prTitle, prBody)
	if err != nil {
		o.fail(ctx, w, "publishing failed: "+err.Error())
		return w, "", err
	}

	if err := o.transition(ctx, w, core.WorkflowStatusCompleted); err != nil {
		return nil, "", err
	}
	if o.bus != nil {
		o.bus.PublishPriority(events.NewWorkflowCompletedEvent(string(w.ID), w.Branch, prURL))
	}
	o.logger.WithWorkflow(string(w.ID)).Info("workflow completed", "branch", w.Branch, "pr", prURL)
	return w, prURL, nil
}

func (o *Orchestrator) publish(ctx context.Context, w *core.Workflow, prTitle, prBody string) (string, error) {
	ws, err := o.workspaces.Get(ctx, w.WorkspaceID)
	if err != nil {
		return "", err
	}
	client, err := gitx.NewClient(o.gw, w.WorktreePath, o.logger)
	if err != nil {
		return "", err
	}

	commitMsg := w.Title
	if w.IssueRef != "" {
		commitMsg += "\n\nRefs: " + w.IssueRef
	}
	if _, err := client.CommitAll(ctx, commitMsg, true); err != nil {
		var domErr *core.DomainError
		if !(errors.As(err, &domErr) && domErr.Code == core.CodeNothingToCommit) {
			return "", err
		}
	}

	origin, err := gitx.NewClient(o.gw, ws.Path, o.logger)
	if err != nil {
		return "", err
	}
	base, err := origin.DefaultBranch(ctx)
	if err != nil {
		return "", err
	}
	if _, err := client.SquashSince(ctx, base, commitMsg); err != nil {
		return "", err
	}
	if err := client.Push(ctx, true, true, o.opts.GitHubToken); err != nil {
		return "", err
	}

	if prTitle == "" {
		prTitle = w.Title
	}
	if prBody == "" {
		prBody = w.Description
		if w.IssueRef != "" {
			prBody = strings.TrimSpace(prBody + "\n\nRefs: " + w.IssueRef)
		}
	}
	gh := gitx.NewGitHub(o.gw, w.WorktreePath, o.logger)
	return gh.CreatePullRequest(ctx, gitx.PullRequestOptions{
		Title:  prTitle,
		Body:   prBody,
		Base:   base,
		Draft:  o.opts.DraftPRs,
		Labels: []string{"automated"},
		Token:  o.opts.GitHubToken,
	})
}

// Cancel stops a workflow: an in-flight step run is interrupted through its
// context and fails with "cancelled", the worktree is removed by force, and
// the workflow lands in Cancelled. Cancel blocks until the interrupted run
// releases the workflow instead of reporting a conflict.
func (o *Orchestrator) Cancel(ctx context.Context, id core.WorkflowID, reason string) (*core.Workflow, error) {
	o.interruptRun(id)
	unlock := o.lockWait(id)
	defer unlock()

	w, err := o.store.LoadWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.IsTerminal() {
		return nil, core.ErrState(core.CodeInvalidTransition,
			"workflow is already terminal: "+string(w.Status))
	}

	if running := w.RunningStep(); running != nil {
		running.RecordFailure("cancelled", running.Attempts+1)
	}

	o.removeWorktree(ctx, w)

	from := w.Status
	if err := w.Transition(core.WorkflowStatusCancelled); err != nil {
		return nil, err
	}
	w.Error = reason
	if err := o.store.SaveWorkflow(ctx, w); err != nil {
		return nil, err
	}
	if o.bus != nil {
		o.bus.Publish(events.NewWorkflowTransitionEvent(string(w.ID), string(from), string(w.Status)))
		o.bus.PublishPriority(events.NewWorkflowCancelledEvent(string(w.ID), reason))
	}
	return w, nil
}

// removeWorktree force-removes the workflow worktree; failure is logged,
// never fatal, since cancellation must always succeed.
func (o *Orchestrator) removeWorktree(ctx context.Context, w *core.Workflow) {
	if w.WorktreePath == "" {
		return
	}
	ws, err := o.workspaces.Get(ctx, w.WorkspaceID)
	if err != nil {
		o.logger.Warn("cannot resolve workspace for worktree removal", "workflow", w.ID, "error", err)
		return
	}
	client, err := gitx.NewClient(o.gw, ws.Path, o.logger)
	if err != nil {
		o.logger.Warn("cannot open repo for worktree removal", "workflow", w.ID, "error", err)
		return
	}
	if err := gitx.NewWorktreeManager(client).Remove(ctx, w.WorktreePath, true); err != nil {
		o.logger.Warn("worktree removal failed", "workflow", w.ID, "path", w.WorktreePath, "error", err)
		// Leftover directories are annoying but harmless; try the blunt way.
		if rmErr := os.RemoveAll(w.WorktreePath); rmErr != nil {
			o.logger.Warn("worktree directory cleanup failed", "path", w.WorktreePath, "error", rmErr)
		}
	}
}

// UpdatePlan replaces the not-yet-executed tail of the plan. Succeeded and
// failed steps are history and stay untouched; pending steps are replaced by
// the new list, renumbered to stay contiguous.
func (o *Orchestrator) UpdatePlan(ctx context.Context, id core.WorkflowID, newSteps []*core.Step) (*core.Workflow, error) {
	unlock, err := o.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	w, err := o.store.LoadWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.IsTerminal() {
		return nil, core.ErrState(core.CodeInvalidTransition,
			"cannot update the plan of a terminal workflow")
	}
	if running := w.RunningStep(); running != nil {
		return nil, core.ErrState(core.CodeStepRunning, "cannot update the plan while a step runs")
	}

	var kept []*core.Step
	for _, s := range w.Steps {
		if s.IsDone() {
			kept = append(kept, s)
		}
	}
	for _, s := range newSteps {
		s.WorkflowID = w.ID
		s.Status = core.StepStatusPending
		s.Attempts = 0
		if s.ID == "" {
			s.ID = newStepID()
		}
		kept = append(kept, s)
	}
	for i, s := range kept {
		s.Order = i + 1
	}
	w.Steps = kept

	if err := o.store.SaveWorkflow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func newStepID() string {
	return uuid.NewString()
}

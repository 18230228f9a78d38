package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/aura-dev/aura/internal/agent"
	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/events"
	"github.com/aura-dev/aura/internal/gitx"
	"github.com/aura-dev/aura/internal/index"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/proc"
	"github.com/aura-dev/aura/internal/workspace"
	"github.com/google/uuid"
)

// DefaultBranchPrefix namespaces workflow branches.
const DefaultBranchPrefix = "aura/"

// DefaultTokenBudget is the per-step ReAct token budget.
const DefaultTokenBudget = 100000

// Options configures the orchestrator.
type Options struct {
	BranchPrefix string
	DraftPRs     bool
	TokenBudget  int
	// GitHubToken, when set, is injected into pushes and gh calls.
	GitHubToken string
}

// Orchestrator owns the workflow lifecycle. One mutex per workflow
// serializes operations; a second caller touching the same workflow gets a
// CONFLICT instead of a queue.
type Orchestrator struct {
	store      *Store
	workspaces *workspace.Registry
	agents     *agent.Registry
	executor   *agent.Executor
	freshness  *index.FreshnessChecker
	enricher   *index.Enricher
	gw         *proc.Gateway
	bus        *events.Bus
	logger     *logging.Logger
	opts       Options

	mu         sync.Mutex
	locks      map[core.WorkflowID]*sync.Mutex
	runCancels map[core.WorkflowID]context.CancelFunc
}

// New creates an orchestrator.
func New(store *Store, workspaces *workspace.Registry, agents *agent.Registry,
	executor *agent.Executor, freshness *index.FreshnessChecker, enricher *index.Enricher,
	gw *proc.Gateway, bus *events.Bus, logger *logging.Logger, opts Options) *Orchestrator {

	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.BranchPrefix == "" {
		opts.BranchPrefix = DefaultBranchPrefix
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = DefaultTokenBudget
	}
	return &Orchestrator{
		store:      store,
		workspaces: workspaces,
		agents:     agents,
		executor:   executor,
		freshness:  freshness,
		enricher:   enricher,
		gw:         gw,
		bus:        bus,
		logger:     logger,
		opts:       opts,
		locks:      make(map[core.WorkflowID]*sync.Mutex),
		runCancels: make(map[core.WorkflowID]context.CancelFunc),
	}
}

// lock acquires the per-workflow mutex without blocking. Concurrent
// operations on one workflow are a caller bug, not a queueing problem.
func (o *Orchestrator) lock(id core.WorkflowID) (func(), error) {
	o.mu.Lock()
	m, ok := o.locks[id]
	if !ok {
		m = &sync.Mutex{}
		o.locks[id] = m
	}
	o.mu.Unlock()

	if !m.TryLock() {
		return nil, core.ErrConflict("workflow " + string(id) + " is busy")
	}
	return m.Unlock, nil
}

// lockWait acquires the per-workflow mutex, blocking until the holder
// releases it. Cancel uses it to wait out the run it just interrupted.
func (o *Orchestrator) lockWait(id core.WorkflowID) func() {
	o.mu.Lock()
	m, ok := o.locks[id]
	if !ok {
		m = &sync.Mutex{}
		o.locks[id] = m
	}
	o.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// cancellableRun derives a context that Cancel can reach while step
// execution holds the workflow lock. The returned cleanup deregisters the
// handle and releases the context.
func (o *Orchestrator) cancellableRun(ctx context.Context, id core.WorkflowID) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.runCancels[id] = cancel
	o.mu.Unlock()

	return runCtx, func() {
		o.mu.Lock()
		delete(o.runCancels, id)
		o.mu.Unlock()
		cancel()
	}
}

// interruptRun cancels the in-flight run of the workflow, if any.
func (o *Orchestrator) interruptRun(id core.WorkflowID) {
	o.mu.Lock()
	cancel, ok := o.runCancels[id]
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

// Create registers a new workflow in the Created state and prepares its
// isolated worktree and branch.
func (o *Orchestrator) Create(ctx context.Context, workspaceRef, title, description, issueRef string, mode core.AutomationMode) (*core.Workflow, error) {
	if strings.TrimSpace(title) == "" {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "workflow title cannot be empty")
	}

	ids, err := o.workspaces.Resolve(ctx, []string{workspaceRef})
	if err != nil {
		return nil, err
	}
	ws, err := o.workspaces.Get(ctx, ids[0])
	if err != nil {
		return nil, err
	}

	w := core.NewWorkflow(core.WorkflowID(uuid.NewString()), ws.ID, title, description)
	w.IssueRef = issueRef
	if mode != "" {
		w.Mode = mode
	}
	w.Branch = o.opts.BranchPrefix + gitx.SanitizeBranch(title)

	client, err := gitx.NewClient(o.gw, ws.Path, o.logger)
	if err != nil {
		return nil, err
	}
	base, err := client.DefaultBranch(ctx)
	if err != nil {
		return nil, err
	}
	wt, err := gitx.NewWorktreeManager(client).Create(ctx, w.Branch, base, "")
	if err != nil {
		return nil, err
	}
	w.WorktreePath = wt.Path
	w.Branch = wt.Branch

	if err := o.store.SaveWorkflow(ctx, w); err != nil {
		return nil, err
	}
	o.logger.WithWorkflow(string(w.ID)).Info("workflow created",
		"workspace", ws.ID, "branch", w.Branch, "worktree", w.WorktreePath)
	return w, nil
}

// Get loads a workflow.
func (o *Orchestrator) Get(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	return o.store.LoadWorkflow(ctx, id)
}

// List lists workflows, optionally per workspace.
func (o *Orchestrator) List(ctx context.Context, workspaceID string) ([]*core.Workflow, error) {
	return o.store.ListWorkflows(ctx, workspaceID)
}

// transition moves the workflow and persists before announcing.
func (o *Orchestrator) transition(ctx context.Context, w *core.Workflow, to core.WorkflowStatus) error {
	from := w.Status
	if err := w.Transition(to); err != nil {
		return err
	}
	if err := o.store.SaveWorkflow(ctx, w); err != nil {
		return err
	}
	if o.bus != nil {
		o.bus.Publish(events.NewWorkflowTransitionEvent(string(w.ID), string(from), string(to)))
	}
	return nil
}

// fail moves the workflow to Failed, persists and announces with priority.
func (o *Orchestrator) fail(ctx context.Context, w *core.Workflow, reason string) {
	from := w.Status
	if err := w.Fail(reason); err != nil {
		o.logger.Error("cannot fail workflow", "workflow", w.ID, "error", err)
		return
	}
	if err := o.store.SaveWorkflow(ctx, w); err != nil {
		o.logger.Error("cannot persist failed workflow", "workflow", w.ID, "error", err)
	}
	if o.bus != nil {
		o.bus.Publish(events.NewWorkflowTransitionEvent(string(w.ID), string(from), string(w.Status)))
		o.bus.PublishPriority(events.NewWorkflowFailedEvent(string(w.ID), string(w.Status), fmt.Errorf("%s", reason)))
	}
}

// Analyze enriches the workflow description with index context. The
// workspace must be indexed first; an unindexed workspace is a hard error so
// agents never plan blind.
func (o *Orchestrator) Analyze(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	unlock, err := o.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	w, err := o.store.LoadWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != core.WorkflowStatusCreated {
		return nil, core.ErrState(core.CodeInvalidTransition,
			"analysis requires a freshly created workflow, status is "+string(w.Status))
	}

	ws, err := o.workspaces.Get(ctx, w.WorkspaceID)
	if err != nil {
		return nil, err
	}
	fresh, err := o.freshness.Check(ctx, ws)
	if err != nil {
		return nil, err
	}
	if fresh.IndexedAt.IsZero() {
		return nil, core.ErrValidation(core.CodeIndexRequired,
			"workspace "+ws.ID+" has no index; run indexing first")
	}
	if !fresh.Fresh {
		o.logger.Warn("index is stale, analysis continues on old data",
			"workspace", ws.ID, "commits_behind", fresh.CommitsBehind)
	}

	if err := o.transition(ctx, w, core.WorkflowStatusAnalyzing); err != nil {
		return nil, err
	}

	analyzed, err := o.runAnalysis(ctx, w, ws)
	if err != nil {
		o.fail(ctx, w, "analysis failed: "+err.Error())
		return w, err
	}
	w.AnalyzedContext = analyzed

	if err := o.transition(ctx, w, core.WorkflowStatusAnalyzed); err != nil {
		return nil, err
	}
	return w, nil
}

func (o *Orchestrator) runAnalysis(ctx context.Context, w *core.Workflow, ws *core.Workspace) (string, error) {
	def, err := o.agents.BestForCapability(core.CapAnalysis, "")
	if err != nil {
		return "", err
	}

	prompt := "Analyze the following task against the codebase and summarize " +
		"the relevant components, risks and constraints.\n\nTask: " + w.Title
	if w.Description != "" {
		prompt += "\n\n" + w.Description
	}
	if o.enricher != nil {
		if enriched := o.enricher.Enrich(ctx, ws.ID, prompt); enriched != "" {
			prompt += "\n\n" + enriched
		}
	}

	tracker, err := agent.NewTokenTracker(o.opts.TokenBudget)
	if err != nil {
		return "", err
	}
	result, err := o.executor.Run(ctx, agent.RunRequest{
		Agent: def,
		Context: &core.AgentContext{
			Prompt:        prompt,
			WorkspacePath: ws.Path,
			Properties:    map[string]string{"workflow_title": w.Title},
		},
		Tracker:   tracker,
		Subagents: o.agents,
	})
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", core.ErrExecution(core.CodeGenerationFailed, "analysis agent failed: "+result.Error)
	}
	return result.FinalAnswer, nil
}

// plannedStep is the JSON shape the planner agent must produce.
type plannedStep struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Capability  string `json:"capability"`
	AgentID     string `json:"agent_id,omitempty"`
}

// Plan asks the planner agent for an ordered step list.
func (o *Orchestrator) Plan(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	unlock, err := o.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	w, err := o.store.LoadWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != core.WorkflowStatusAnalyzed {
		return nil, core.ErrState(core.CodeInvalidTransition,
			"planning requires an analyzed workflow, status is "+string(w.Status))
	}
	ws, err := o.workspaces.Get(ctx, w.WorkspaceID)
	if err != nil {
		return nil, err
	}

	if err := o.transition(ctx, w, core.WorkflowStatusPlanning); err != nil {
		return nil, err
	}

	steps, err := o.runPlanning(ctx, w, ws)
	if err != nil {
		o.fail(ctx, w, "planning failed: "+err.Error())
		return w, err
	}
	w.Steps = steps

	if err := o.transition(ctx, w, core.WorkflowStatusPlanned); err != nil {
		return nil, err
	}
	return w, nil
}

func (o *Orchestrator) runPlanning(ctx context.Context, w *core.Workflow, ws *core.Workspace) ([]*core.Step, error) {
	def, err := o.agents.BestForCapability(core.CapAnalysis, "")
	if err != nil {
		return nil, err
	}

	prompt := "Break the following task into an ordered list of executable steps. " +
		"Answer with a JSON array of objects with fields name, description, capability " +
		"(one of: coding, review, documentation, analysis, fixing) and optional agent_id.\n\n" +
		"Task: " + w.Title
	if w.AnalyzedContext != "" {
		prompt += "\n\nAnalysis:\n" + w.AnalyzedContext
	}

	tracker, err := agent.NewTokenTracker(o.opts.TokenBudget)
	if err != nil {
		return nil, err
	}
	result, err := o.executor.Run(ctx, agent.RunRequest{
		Agent: def,
		Context: &core.AgentContext{
			Prompt:        prompt,
			WorkspacePath: ws.Path,
		},
		Tracker: tracker,
	})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, core.ErrExecution(core.CodeGenerationFailed, "planner agent failed: "+result.Error)
	}

	planned, err := parsePlan(result.FinalAnswer)
	if err != nil {
		return nil, err
	}

	steps := make([]*core.Step, 0, len(planned))
	for i, p := range planned {
		steps = append(steps, &core.Step{
			ID:          uuid.NewString(),
			WorkflowID:  w.ID,
			Order:       i + 1,
			Name:        p.Name,
			Description: p.Description,
			Capability:  core.Capability(strings.ToLower(p.Capability)),
			AgentID:     p.AgentID,
			Status:      core.StepStatusPending,
		})
	}
	return steps, nil
}

// parsePlan extracts the step array from planner output, tolerating fences
// and surrounding prose.
func parsePlan(answer string) ([]plannedStep, error) {
	raw := strings.TrimSpace(answer)
	if m := fenceBlock(raw); m != "" {
		raw = m
	}
	if start := strings.Index(raw, "["); start >= 0 {
		if end := strings.LastIndex(raw, "]"); end > start {
			raw = raw[start : end+1]
		}
	}
	var planned []plannedStep
	if err := json.Unmarshal([]byte(raw), &planned); err != nil {
		return nil, core.ErrExecution(core.CodeGenerationFailed,
			"planner did not produce a parseable step list").WithCause(err)
	}
	if len(planned) == 0 {
		return nil, core.ErrExecution(core.CodeGenerationFailed, "planner produced an empty plan")
	}
	for i, p := range planned {
		if strings.TrimSpace(p.Name) == "" {
			return nil, core.ErrValidation(core.CodeInvalidArgument,
				fmt.Sprintf("planned step %d has no name", i+1))
		}
		if !core.Capability(strings.ToLower(p.Capability)).IsValid() {
			planned[i].Capability = string(core.CapCoding)
		}
	}
	return planned, nil
}

func fenceBlock(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/aura-dev/aura/internal/agent"
	"github.com/aura-dev/aura/internal/config"
	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/diagnostics"
	"github.com/aura-dev/aura/internal/events"
	"github.com/aura-dev/aura/internal/index"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/orchestrator"
	"github.com/aura-dev/aura/internal/proc"
	"github.com/aura-dev/aura/internal/workspace"
)

const eventBufferSize = 256

// App holds the wired dependency graph shared by all commands. Commands
// build it on demand and close it when they finish.
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Bus        *events.Bus
	Gateway    *proc.Gateway
	Workspaces *workspace.Registry
	IndexStore *index.Store
	Pipeline   *index.Pipeline
	Queue      *index.Queue
	Graph      *index.Graph
	Enricher   *index.Enricher
	Freshness  *index.FreshnessChecker
	Agents     *agent.Registry
	Providers  *agent.ProviderRegistry
	Tools      *agent.ToolRegistry
	Executor   *agent.Executor
	Workflows  *orchestrator.Store
	Orch       *orchestrator.Orchestrator
}

// initApp loads configuration and wires every subsystem.
func initApp() (*App, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	bus := events.New(eventBufferSize)

	gwOpts := []proc.Option{proc.WithGracePeriod(cfg.Process.GracePeriod)}
	if cfg.Process.Preflight {
		gwOpts = append(gwOpts, proc.WithPreflight(diagnostics.NewChecker()))
	}
	gw := proc.New(logger, gwOpts...)

	workspaces, err := workspace.Open(filepath.Join(cfg.State.Dir, "workspaces.db"))
	if err != nil {
		return nil, err
	}

	indexStore, err := index.OpenStore(filepath.Join(cfg.State.Dir, "index.db"))
	if err != nil {
		_ = workspaces.Close()
		return nil, err
	}

	chunker := index.NewChunker(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	dispatcher := index.NewDispatcher(
		index.NewGoIngestor(chunker),
		index.NewTextIngestor(chunker),
		index.NewFallbackIngestor(),
	)
	pipeline := index.NewPipeline(indexStore, dispatcher, gw, logger,
		index.WithParallelism(cfg.Index.Parallelism),
		index.WithExcludes(cfg.Index.ExcludeGlobs),
	)
	queue := index.NewQueue(pipeline, bus, logger)
	graph := index.NewGraph(indexStore)
	enricher := index.NewEnricher(graph, logger)
	freshness := index.NewFreshnessChecker(gw, indexStore, logger)
	if cfg.Index.StaleAfter > 0 {
		freshness.StaleAfter = cfg.Index.StaleAfter
	}

	agents := agent.NewRegistry(agent.NewLoader(logger), cfg.Agents.Dirs, bus, logger)
	if err := agents.Load(); err != nil {
		logger.Warn("agent registry load incomplete", "error", err)
	}

	providers := agent.NewProviderRegistry()
	for _, spec := range cfg.LLM.Providers {
		p, perr := agent.NewCLIProvider(spec.ID, spec.Command, spec.Args, cfg.LLM.Timeout, gw, logger)
		if perr != nil {
			_ = indexStore.Close()
			_ = workspaces.Close()
			return nil, perr
		}
		providers.Register(agent.WithRetry(p, logger))
	}
	if cfg.Agents.DefaultProvider != "" {
		if err := providers.SetDefault(cfg.Agents.DefaultProvider); err != nil {
			logger.Warn("default provider not registered", "provider", cfg.Agents.DefaultProvider)
		}
	}

	tools := agent.NewToolRegistry(logger)
	builtins := &agent.Builtins{
		Gateway:          gw,
		Store:            indexStore,
		Graph:            graph,
		ResolveWorkspace: workspace.NewDirResolver(workspaces, gw, logger),
	}
	if err := builtins.Register(tools); err != nil {
		_ = indexStore.Close()
		_ = workspaces.Close()
		return nil, err
	}

	executor := agent.NewExecutor(providers, tools, logger)
	if cfg.LLM.MaxSteps > 0 {
		executor.MaxSteps = cfg.LLM.MaxSteps
	}

	workflows, err := orchestrator.OpenStore(filepath.Join(cfg.State.Dir, "workflows.db"))
	if err != nil {
		_ = indexStore.Close()
		_ = workspaces.Close()
		return nil, err
	}

	orch := orchestrator.New(workflows, workspaces, agents, executor, freshness, enricher,
		gw, bus, logger, orchestrator.Options{
			BranchPrefix: cfg.Workflow.BranchPrefix,
			DraftPRs:     cfg.Workflow.DraftPRs,
			TokenBudget:  cfg.LLM.MaxBudget,
			GitHubToken:  os.Getenv("GITHUB_TOKEN"),
		})

	return &App{
		Config:     cfg,
		Logger:     logger,
		Bus:        bus,
		Gateway:    gw,
		Workspaces: workspaces,
		IndexStore: indexStore,
		Pipeline:   pipeline,
		Queue:      queue,
		Graph:      graph,
		Enricher:   enricher,
		Freshness:  freshness,
		Agents:     agents,
		Providers:  providers,
		Tools:      tools,
		Executor:   executor,
		Workflows:  workflows,
		Orch:       orch,
	}, nil
}

// Close releases stores and the event bus.
func (a *App) Close() {
	_ = a.Workflows.Close()
	_ = a.IndexStore.Close()
	_ = a.Workspaces.Close()
	a.Bus.Close()
}

// resolveWorkspace turns a --workspace flag value into a workspace record.
// An empty ref means the default workspace.
func (a *App) resolveWorkspace(ctx context.Context, ref string) (*core.Workspace, error) {
	if strings.TrimSpace(ref) == "" {
		return a.Workspaces.Default(ctx)
	}
	ids, err := a.Workspaces.Resolve(ctx, []string{ref})
	if err != nil {
		return nil, err
	}
	return a.Workspaces.Get(ctx, ids[0])
}

// outputJSON writes the given value to stdout as indented JSON.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncateString removes newlines and truncates the string to maxLen.
func truncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}

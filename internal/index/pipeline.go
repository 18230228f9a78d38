package index

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/gitx"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/proc"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds concurrent file ingestion.
const DefaultParallelism = 4

// skipDirs are never descended into when walking non-git workspaces.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"bin":          true,
	"obj":          true,
	"dist":         true,
	"target":       true,
}

// RunStats summarizes one ingestion run.
type RunStats struct {
	Processed     int
	Failed        int
	ChunksCreated int
	NodesCreated  int
	CommitSHA     string
	Duration      time.Duration
}

// Pipeline ingests a whole workspace: enumerate files, dispatch ingestors,
// replace rows per file, then resolve cross-file implements edges and stamp
// the metadata.
type Pipeline struct {
	store       *Store
	dispatcher  *Dispatcher
	fallback    Ingestor
	gw          *proc.Gateway
	embedder    core.EmbeddingProvider
	logger      *logging.Logger
	parallelism int
	excludes    []string
}

// PipelineOption configures a pipeline.
type PipelineOption func(*Pipeline)

// WithParallelism sets the concurrent file limit.
func WithParallelism(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// WithExcludes sets glob patterns matched against workspace-relative paths.
func WithExcludes(globs []string) PipelineOption {
	return func(p *Pipeline) { p.excludes = globs }
}

// WithEmbedder attaches an optional embedding provider for chunk vectors.
func WithEmbedder(e core.EmbeddingProvider) PipelineOption {
	return func(p *Pipeline) { p.embedder = e }
}

// NewPipeline creates an ingestion pipeline. The dispatcher's ingestors
// should include a fallback; files nothing accepts are skipped.
func NewPipeline(store *Store, dispatcher *Dispatcher, gw *proc.Gateway, logger *logging.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pipeline{
		store:       store,
		dispatcher:  dispatcher,
		fallback:    NewFallbackIngestor(),
		gw:          gw,
		logger:      logger,
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests the workspace from scratch or incrementally; both look the
// same because ReplaceFile is idempotent per file. Per-file failures are
// counted, logged and skipped; only infrastructure failures abort the run.
// progress, when non-nil, receives running counters outside any lock.
func (p *Pipeline) Run(ctx context.Context, ws *core.Workspace, progress func(processed, total, failed int)) (*RunStats, error) {
	started := time.Now()

	files, commitSHA, err := p.enumerate(ctx, ws)
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		processed int
		failed    int
		chunks    int
		allNodes  []core.CodeNode
		allEdges  []core.CodeEdge
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	for _, relPath := range files {
		relPath := relPath
		g.Go(func() error {
			fi, err := p.ingestFile(gctx, ws, relPath)

			mu.Lock()
			processed++
			if err != nil {
				failed++
				p.logger.Warn("file ingestion failed", "workspace", ws.ID, "file", relPath, "error", err)
			} else if fi != nil {
				chunks += len(fi.Chunks)
				allNodes = append(allNodes, fi.Nodes...)
				allEdges = append(allEdges, fi.Edges...)
			}
			done, bad := processed, failed
			mu.Unlock()

			if progress != nil {
				progress(done, len(files), bad)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, core.ErrCancelled("ingestion run").WithCause(err)
	}

	if err := p.pruneRemoved(ctx, ws.ID, files); err != nil {
		return nil, err
	}
	if err := p.resolveImplements(ctx, ws.ID, allNodes, allEdges); err != nil {
		return nil, err
	}

	now := time.Now()
	for _, it := range []core.IndexType{core.IndexRAG, core.IndexGraph} {
		items := chunks
		if it == core.IndexGraph {
			items = len(allNodes)
		}
		if err := p.store.SaveMetadata(ctx, core.IndexMetadata{
			WorkspaceID:      ws.ID,
			IndexType:        it,
			IndexedCommitSHA: commitSHA,
			IndexedAt:        now,
			ItemsCreated:     items,
		}); err != nil {
			return nil, err
		}
	}

	return &RunStats{
		Processed:     processed,
		Failed:        failed,
		ChunksCreated: chunks,
		NodesCreated:  len(allNodes),
		CommitSHA:     commitSHA,
		Duration:      time.Since(started),
	}, nil
}

// IngestFile ingests a single file, for watch-driven incremental updates.
func (p *Pipeline) IngestFile(ctx context.Context, ws *core.Workspace, relPath string) error {
	_, err := p.ingestFile(ctx, ws, relPath)
	return err
}

func (p *Pipeline) ingestFile(ctx context.Context, ws *core.Workspace, relPath string) (*FileIndex, error) {
	absPath := filepath.Join(ws.Path, filepath.FromSlash(relPath))
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, core.ErrExecution(core.CodeIngestFailed, "reading "+relPath).WithCause(err)
	}
	if bytes.IndexByte(content, 0) >= 0 {
		// Binary file; drop whatever an earlier text version left behind.
		if err := p.store.DeleteFile(ctx, ws.ID, relPath); err != nil {
			return nil, err
		}
		return &FileIndex{}, nil
	}

	ing := p.dispatcher.For(relPath)
	if ing == nil {
		return &FileIndex{}, nil
	}

	fi, err := ing.Ingest(ctx, ws.ID, relPath, content)
	if err != nil {
		// A parse failure downgrades the file to the fallback ingestor so
		// the text stays searchable.
		if ing.ID() == p.fallback.ID() {
			return nil, err
		}
		p.logger.Debug("ingestor failed, using fallback", "ingestor", ing.ID(), "file", relPath, "error", err)
		fi, err = p.fallback.Ingest(ctx, ws.ID, relPath, content)
		if err != nil {
			return nil, err
		}
	}

	if p.embedder != nil {
		p.embedChunks(ctx, fi.Chunks)
	}

	if err := p.store.ReplaceFile(ctx, ws.ID, relPath, fi.Chunks, fi.Nodes, fi.Edges); err != nil {
		return nil, err
	}
	return fi, nil
}

// embedChunks fills embeddings best-effort; a failing provider leaves the
// chunk rows with NULL embeddings.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []core.Chunk) {
	for i := range chunks {
		vec, err := p.embedder.Embed(ctx, chunks[i].Text)
		if err != nil {
			p.logger.Debug("embedding failed", "chunk", chunks[i].ContentID, "error", err)
			return
		}
		chunks[i].Embedding = vec
	}
}

// enumerate lists workspace-relative files to ingest. Git workspaces use
// ls-files so ignore rules apply for free; others walk the tree.
func (p *Pipeline) enumerate(ctx context.Context, ws *core.Workspace) ([]string, string, error) {
	var files []string
	var commitSHA string

	client, err := gitx.NewClient(p.gw, ws.Path, p.logger)
	if err == nil {
		files, err = client.TrackedFiles(ctx)
		if err != nil {
			return nil, "", err
		}
		if sha, err := client.HeadCommit(ctx); err == nil {
			commitSHA = sha
		}
	} else {
		err := filepath.WalkDir(ws.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if skipDirs[name] || (strings.HasPrefix(name, ".") && path != ws.Path) {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(ws.Path, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, "", core.ErrExecution(core.CodeInconsistentWorkspace, "walking workspace "+ws.Path).WithCause(err)
		}
	}

	return p.applyExcludes(files), commitSHA, nil
}

func (p *Pipeline) applyExcludes(files []string) []string {
	if len(p.excludes) == 0 {
		return files
	}
	kept := files[:0]
	for _, f := range files {
		excluded := false
		for _, glob := range p.excludes {
			if ok, _ := filepath.Match(glob, f); ok {
				excluded = true
				break
			}
			if ok, _ := filepath.Match(glob, filepath.Base(f)); ok {
				excluded = true
				break
			}
		}
		if !excluded {
			kept = append(kept, f)
		}
	}
	return kept
}

// pruneRemoved drops index rows for files no longer in the tree.
func (p *Pipeline) pruneRemoved(ctx context.Context, workspaceID string, current []string) error {
	indexed, err := p.store.IndexedFiles(ctx, workspaceID)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(current))
	for _, f := range current {
		present[f] = true
	}
	for _, f := range indexed {
		if !present[f] {
			if err := p.store.DeleteFile(ctx, workspaceID, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveImplements recomputes implements edges across the whole run, so an
// interface in one file is matched by types in another. It rewrites the
// workspace's implements edges wholesale.
func (p *Pipeline) resolveImplements(ctx context.Context, workspaceID string, nodes []core.CodeNode, edges []core.CodeEdge) error {
	byID := make(map[string]*core.CodeNode, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	// interface ID -> method names; type ID -> method name set
	ifaceMethods := make(map[string][]string)
	typeMethods := make(map[string]map[string]bool)

	for _, e := range edges {
		if e.EdgeType != core.EdgeContains {
			continue
		}
		parent, target := byID[e.SourceID], byID[e.TargetID]
		if parent == nil || target == nil || target.NodeType != core.NodeMethod {
			continue
		}
		switch parent.NodeType {
		case core.NodeInterface:
			ifaceMethods[parent.ID] = append(ifaceMethods[parent.ID], target.Name)
		case core.NodeStruct, core.NodeClass, core.NodeRecord:
			if typeMethods[parent.ID] == nil {
				typeMethods[parent.ID] = make(map[string]bool)
			}
			typeMethods[parent.ID][target.Name] = true
		}
	}

	var implements []core.CodeEdge
	for ifaceID, methods := range ifaceMethods {
		if len(methods) == 0 {
			continue
		}
		for typeID, set := range typeMethods {
			satisfied := true
			for _, m := range methods {
				if !set[m] {
					satisfied = false
					break
				}
			}
			if satisfied {
				implements = append(implements, core.CodeEdge{
					ID:       edgeID(core.EdgeImplements, typeID, ifaceID),
					EdgeType: core.EdgeImplements,
					SourceID: typeID,
					TargetID: ifaceID,
				})
			}
		}
	}

	return p.store.ReplaceEdgesByType(ctx, workspaceID, core.EdgeImplements, implements)
}

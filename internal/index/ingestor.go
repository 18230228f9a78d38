// Package index builds and queries the per-workspace retrieval and code
// graph indices. Ingestion is pluggable per file type; storage is sqlite.
package index

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aura-dev/aura/internal/core"
)

// FileIndex is everything one ingestor produced for one file.
type FileIndex struct {
	Chunks []core.Chunk
	Nodes  []core.CodeNode
	Edges  []core.CodeEdge
}

// Ingestor turns one source file into chunks and graph elements.
type Ingestor interface {
	// ID names the ingestor in logs and metadata.
	ID() string
	// Priority orders dispatch; lower wins when several ingestors accept
	// the same file.
	Priority() int
	// CanIngest reports whether the ingestor handles the given path.
	CanIngest(path string) bool
	// Ingest produces the file's index. relPath is workspace-relative.
	Ingest(ctx context.Context, workspaceID, relPath string, content []byte) (*FileIndex, error)
}

// Dispatcher routes files to the best-matching ingestor.
type Dispatcher struct {
	ingestors []Ingestor
}

// NewDispatcher creates a dispatcher over the given ingestors, sorted by
// priority. Registration order breaks priority ties.
func NewDispatcher(ingestors ...Ingestor) *Dispatcher {
	d := &Dispatcher{ingestors: append([]Ingestor(nil), ingestors...)}
	sort.SliceStable(d.ingestors, func(i, j int) bool {
		return d.ingestors[i].Priority() < d.ingestors[j].Priority()
	})
	return d
}

// For returns the ingestor that will handle path, or nil when none accepts
// it and no fallback is registered.
func (d *Dispatcher) For(path string) Ingestor {
	for _, ing := range d.ingestors {
		if ing.CanIngest(path) {
			return ing
		}
	}
	return nil
}

// chunkContentID builds the deterministic chunk identity
// <workspace>:<path>:<index> so re-ingestion overwrites instead of appending.
func chunkContentID(workspaceID, relPath string, idx int) string {
	return workspaceID + ":" + filepath.ToSlash(relPath) + ":" + strconv.Itoa(idx)
}

// nodeID builds the deterministic graph node identity <workspace>:<fqn>.
func nodeID(workspaceID, fqn string) string {
	return workspaceID + ":" + fqn
}

// edgeID builds the deterministic edge identity.
func edgeID(edgeType core.EdgeType, sourceID, targetID string) string {
	return string(edgeType) + ":" + sourceID + ">" + targetID
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

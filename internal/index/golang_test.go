package index

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/core"
)

const goSample = `package store

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

type Saver interface {
	Save(name string) error
}

type FileStore struct {
	Dir string
}

func (s *FileStore) Save(name string) error {
	return nil
}

func Helper() int {
	return 42
}
`

func ingestGo(t *testing.T, src string) *FileIndex {
	t.Helper()
	fi, err := NewGoIngestor(NewChunker(0, 0)).Ingest(context.Background(), "ws1", "store/store.go", []byte(src))
	require.NoError(t, err)
	return fi
}

func TestGoIngestorChunksPerDeclaration(t *testing.T) {
	fi := ingestGo(t, goSample)

	symbols := make(map[string]core.Chunk)
	for _, ch := range fi.Chunks {
		symbols[ch.SymbolName] = ch
		assert.Equal(t, core.ContentCode, ch.ContentType)
		assert.Equal(t, "go", ch.Language)
		assert.Equal(t, "ws1", ch.WorkspaceID)
	}

	require.Contains(t, symbols, "FileStore")
	require.Contains(t, symbols, "Save")
	require.Contains(t, symbols, "Helper")
	assert.Equal(t, "store.FileStore.Save", symbols["Save"].FQN)
	assert.Equal(t, "store.Helper", symbols["Helper"].FQN)
}

func TestGoIngestorChunkIdentityDeterministic(t *testing.T) {
	a := ingestGo(t, goSample)
	b := ingestGo(t, goSample)

	require.Equal(t, len(a.Chunks), len(b.Chunks))
	for i := range a.Chunks {
		assert.Equal(t, a.Chunks[i].ContentID, b.Chunks[i].ContentID)
		assert.Equal(t, "ws1:store/store.go:"+strconv.Itoa(i), a.Chunks[i].ContentID)
	}
}

func TestGoIngestorGraphNodes(t *testing.T) {
	fi := ingestGo(t, goSample)

	byFQN := make(map[string]core.CodeNode)
	for _, n := range fi.Nodes {
		byFQN[n.FQN] = n
	}

	require.Contains(t, byFQN, "store.FileStore")
	assert.Equal(t, core.NodeStruct, byFQN["store.FileStore"].NodeType)

	require.Contains(t, byFQN, "store.Saver")
	assert.Equal(t, core.NodeInterface, byFQN["store.Saver"].NodeType)

	require.Contains(t, byFQN, "store.FileStore.Dir")
	assert.Equal(t, core.NodeField, byFQN["store.FileStore.Dir"].NodeType)

	require.Contains(t, byFQN, "store.Status.StatusOpen")
	assert.Equal(t, core.NodeEnum, byFQN["store.Status.StatusOpen"].NodeType)
}

func TestGoIngestorSameFileImplements(t *testing.T) {
	fi := ingestGo(t, goSample)

	var implements []core.CodeEdge
	for _, e := range fi.Edges {
		if e.EdgeType == core.EdgeImplements {
			implements = append(implements, e)
		}
	}
	require.Len(t, implements, 1)
	assert.Equal(t, "ws1:store.FileStore", implements[0].SourceID)
	assert.Equal(t, "ws1:store.Saver", implements[0].TargetID)
}

func TestGoIngestorContainsEdges(t *testing.T) {
	fi := ingestGo(t, goSample)

	found := false
	for _, e := range fi.Edges {
		if e.EdgeType == core.EdgeContains &&
			e.SourceID == "ws1:store.FileStore" && e.TargetID == "ws1:store.FileStore.Save" {
			found = true
		}
	}
	assert.True(t, found, "struct contains its receiver method")
}

func TestGoIngestorParseError(t *testing.T) {
	_, err := NewGoIngestor(NewChunker(0, 0)).Ingest(context.Background(), "ws1", "bad.go", []byte("not go at all {"))
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatExecution))
}

func TestDispatcherPriorityOrder(t *testing.T) {
	chunker := NewChunker(0, 0)
	d := NewDispatcher(NewFallbackIngestor(), NewTextIngestor(chunker), NewGoIngestor(chunker))

	assert.Equal(t, "go", d.For("main.go").ID())
	assert.Equal(t, "text", d.For("README.md").ID())
	assert.Equal(t, "fallback", d.For("image.png").ID())
}

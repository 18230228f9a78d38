package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testChunk(ws, path string, idx int, text string) core.Chunk {
	return core.Chunk{
		ContentID:   chunkContentID(ws, path, idx),
		SourcePath:  path,
		WorkspaceID: ws,
		ChunkIndex:  idx,
		Text:        text,
		ContentType: core.ContentCode,
		Language:    "go",
		StartLine:   1,
		EndLine:     5,
	}
}

func TestReplaceFileSwapsRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := []core.Chunk{
		testChunk("ws1", "a.go", 0, "old content one"),
		testChunk("ws1", "a.go", 1, "old content two"),
	}
	require.NoError(t, store.ReplaceFile(ctx, "ws1", "a.go", old, nil, nil))

	replacement := []core.Chunk{testChunk("ws1", "a.go", 0, "new content")}
	require.NoError(t, store.ReplaceFile(ctx, "ws1", "a.go", replacement, nil, nil))

	hits, err := store.SearchChunks(ctx, "content", []string{"ws1"}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new content", hits[0].Chunk.Text)
}

func TestReplaceFileRemovesNodeEdges(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	node := core.CodeNode{
		ID: "ws1:pkg.T", WorkspaceID: "ws1", NodeType: core.NodeStruct,
		Name: "T", FQN: "pkg.T", FilePath: "a.go", Line: 1,
	}
	member := core.CodeNode{
		ID: "ws1:pkg.T.M", WorkspaceID: "ws1", NodeType: core.NodeMethod,
		Name: "M", FQN: "pkg.T.M", FilePath: "a.go", Line: 3,
	}
	edge := core.CodeEdge{
		ID:       edgeID(core.EdgeContains, node.ID, member.ID),
		EdgeType: core.EdgeContains, SourceID: node.ID, TargetID: member.ID,
	}
	require.NoError(t, store.ReplaceFile(ctx, "ws1", "a.go", nil,
		[]core.CodeNode{node, member}, []core.CodeEdge{edge}))

	// Re-ingesting the file with nothing drops nodes and their edges.
	require.NoError(t, store.DeleteFile(ctx, "ws1", "a.go"))

	nodes, err := store.FindNodes(ctx, core.NodeFilter{WorkspaceID: "ws1"})
	require.NoError(t, err)
	assert.Empty(t, nodes)

	edges, err := store.OutboundEdges(ctx, node.ID, "")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestSearchChunksLexicalRanking(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	chunks := []core.Chunk{
		testChunk("ws1", "a.go", 0, "parse the workflow state machine"),
		testChunk("ws1", "b.go", 0, "unrelated helper for file paths"),
		testChunk("ws1", "c.go", 0, "workflow transitions and state"),
	}
	for _, c := range chunks {
		require.NoError(t, store.ReplaceFile(ctx, "ws1", c.SourcePath, []core.Chunk{c}, nil, nil))
	}

	hits, err := store.SearchChunks(ctx, "workflow state", []string{"ws1"}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, hit := range hits {
		assert.Contains(t, hit.Chunk.Text, "workflow")
		assert.Greater(t, hit.LexicalScore, 0.0)
	}
}

func TestSearchChunksFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	goChunk := testChunk("ws1", "a.go", 0, "alpha beta")
	goChunk.FQN = "pkg.Alpha"
	mdChunk := testChunk("ws1", "doc.md", 0, "alpha beta")
	mdChunk.ContentType = core.ContentSection
	mdChunk.Language = ""

	require.NoError(t, store.ReplaceFile(ctx, "ws1", "a.go", []core.Chunk{goChunk}, nil, nil))
	require.NoError(t, store.ReplaceFile(ctx, "ws1", "doc.md", []core.Chunk{mdChunk}, nil, nil))

	hits, err := store.SearchChunks(ctx, "alpha", []string{"ws1"}, 10,
		&core.ChunkFilter{ContentTypes: []core.ContentType{core.ContentCode}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.go", hits[0].Chunk.SourcePath)

	hits, err = store.SearchChunks(ctx, "alpha", []string{"ws1"}, 10,
		&core.ChunkFilter{FQNPrefix: "pkg."})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = store.SearchChunks(ctx, "alpha", []string{"ws1"}, 10,
		&core.ChunkFilter{Language: "rust"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchChunksNoWorkspaces(t *testing.T) {
	store := openTestStore(t)
	hits, err := store.SearchChunks(context.Background(), "anything", nil, 5, nil)
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestFindNodesCaseInsensitive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	node := core.CodeNode{
		ID: "ws1:pkg.Parser", WorkspaceID: "ws1", NodeType: core.NodeStruct,
		Name: "Parser", FQN: "pkg.Parser", FilePath: "p.go", Line: 1,
	}
	require.NoError(t, store.ReplaceFile(ctx, "ws1", "p.go", nil, []core.CodeNode{node}, nil))

	nodes, err := store.FindNodes(ctx, core.NodeFilter{Name: "parser", WorkspaceID: "ws1"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Parser", nodes[0].Name)
}

func TestMetadataRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.LoadMetadata(ctx, "ws1", core.IndexRAG)
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

	meta := core.IndexMetadata{
		WorkspaceID:      "ws1",
		IndexType:        core.IndexRAG,
		IndexedCommitSHA: "abc123",
		IndexedAt:        time.Now().UTC().Truncate(time.Second),
		ItemsCreated:     7,
	}
	require.NoError(t, store.SaveMetadata(ctx, meta))

	got, err := store.LoadMetadata(ctx, "ws1", core.IndexRAG)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.IndexedCommitSHA)
	assert.Equal(t, 7, got.ItemsCreated)

	// Upsert replaces, never duplicates.
	meta.IndexedCommitSHA = "def456"
	require.NoError(t, store.SaveMetadata(ctx, meta))
	got, err = store.LoadMetadata(ctx, "ws1", core.IndexRAG)
	require.NoError(t, err)
	assert.Equal(t, "def456", got.IndexedCommitSHA)

	has, err := store.HasIndex(ctx, "ws1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDeleteWorkspace(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceFile(ctx, "ws1", "a.go",
		[]core.Chunk{testChunk("ws1", "a.go", 0, "text")}, nil, nil))
	require.NoError(t, store.SaveMetadata(ctx, core.IndexMetadata{
		WorkspaceID: "ws1", IndexType: core.IndexRAG, IndexedAt: time.Now(),
	}))

	require.NoError(t, store.DeleteWorkspace(ctx, "ws1"))

	has, err := store.HasIndex(ctx, "ws1")
	require.NoError(t, err)
	assert.False(t, has)

	files, err := store.IndexedFiles(ctx, "ws1")
	require.NoError(t, err)
	assert.Empty(t, files)
}

package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aura-dev/aura/internal/core"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	content_id   TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	source_path  TEXT NOT NULL,
	chunk_index  INTEGER NOT NULL,
	text         TEXT NOT NULL,
	content_type TEXT NOT NULL,
	language     TEXT,
	embedding    BLOB,
	symbol_name  TEXT,
	fqn          TEXT,
	start_line   INTEGER NOT NULL DEFAULT 0,
	end_line     INTEGER NOT NULL DEFAULT 0,
	metadata     TEXT
);
CREATE INDEX IF NOT EXISTS idx_chunks_workspace ON chunks(workspace_id);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(workspace_id, source_path);

CREATE TABLE IF NOT EXISTS code_nodes (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	node_type    TEXT NOT NULL,
	name         TEXT NOT NULL,
	fqn          TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	line         INTEGER NOT NULL DEFAULT 0,
	signature    TEXT,
	modifiers    TEXT
);
CREATE INDEX IF NOT EXISTS idx_nodes_workspace ON code_nodes(workspace_id);
CREATE INDEX IF NOT EXISTS idx_nodes_name ON code_nodes(workspace_id, name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_nodes_file ON code_nodes(workspace_id, file_path);

CREATE TABLE IF NOT EXISTS code_edges (
	id        TEXT PRIMARY KEY,
	edge_type TEXT NOT NULL,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON code_edges(source_id, edge_type);
CREATE INDEX IF NOT EXISTS idx_edges_target ON code_edges(target_id, edge_type);

CREATE TABLE IF NOT EXISTS index_metadata (
	workspace_id  TEXT NOT NULL,
	index_type    TEXT NOT NULL,
	commit_sha    TEXT,
	indexed_at    TIMESTAMP NOT NULL,
	items_created INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (workspace_id, index_type)
);
`

// Store is the sqlite-backed index store.
type Store struct {
	db       *sql.DB
	mu       sync.Mutex
	embedder core.EmbeddingProvider
}

var _ core.IndexStore = (*Store)(nil)

// OpenStore opens (creating if needed) the index database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening index store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying index schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetEmbedder attaches an optional embedding provider. With one set, search
// adds a cosine tie-break component; without one, ranking is purely lexical.
func (s *Store) SetEmbedder(e core.EmbeddingProvider) {
	s.embedder = e
}

// ReplaceFile swaps all rows for one (workspace, file) pair in a single
// transaction: old chunks, nodes and their edges go, new ones come in. A
// failure rolls back to the previous state of the file.
func (s *Store) ReplaceFile(ctx context.Context, workspaceID, sourcePath string, chunks []core.Chunk, nodes []core.CodeNode, edges []core.CodeEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE workspace_id = ? AND source_path = ?", workspaceID, sourcePath); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM code_edges WHERE source_id IN
			(SELECT id FROM code_nodes WHERE workspace_id = ? AND file_path = ?)
		OR target_id IN
			(SELECT id FROM code_nodes WHERE workspace_id = ? AND file_path = ?)`,
		workspaceID, sourcePath, workspaceID, sourcePath); err != nil {
		return fmt.Errorf("deleting old edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM code_nodes WHERE workspace_id = ? AND file_path = ?", workspaceID, sourcePath); err != nil {
		return fmt.Errorf("deleting old nodes: %w", err)
	}

	for _, c := range chunks {
		embedding, err := encodeEmbedding(c.Embedding)
		if err != nil {
			return err
		}
		metadata, err := encodeMetadata(c.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO chunks
				(content_id, workspace_id, source_path, chunk_index, text, content_type,
				 language, embedding, symbol_name, fqn, start_line, end_line, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ContentID, c.WorkspaceID, c.SourcePath, c.ChunkIndex, c.Text, string(c.ContentType),
			c.Language, embedding, c.SymbolName, c.FQN, c.StartLine, c.EndLine, metadata); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ContentID, err)
		}
	}
	for _, n := range nodes {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO code_nodes
				(id, workspace_id, node_type, name, fqn, file_path, line, signature, modifiers)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.WorkspaceID, string(n.NodeType), n.Name, n.FQN, n.FilePath, n.Line,
			n.Signature, n.Modifiers); err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
	}
	for _, e := range edges {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO code_edges (id, edge_type, source_id, target_id)
			VALUES (?, ?, ?, ?)`,
			e.ID, string(e.EdgeType), e.SourceID, e.TargetID); err != nil {
			return fmt.Errorf("inserting edge %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// ReplaceEdgesByType rewrites all edges of one type whose source belongs to
// the workspace. The cross-file implements pass uses this after every run.
func (s *Store) ReplaceEdgesByType(ctx context.Context, workspaceID string, edgeType core.EdgeType, edges []core.CodeEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM code_edges WHERE edge_type = ? AND source_id IN
			(SELECT id FROM code_nodes WHERE workspace_id = ?)`,
		string(edgeType), workspaceID); err != nil {
		return fmt.Errorf("deleting %s edges: %w", edgeType, err)
	}
	for _, e := range edges {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO code_edges (id, edge_type, source_id, target_id)
			VALUES (?, ?, ?, ?)`,
			e.ID, string(e.EdgeType), e.SourceID, e.TargetID); err != nil {
			return fmt.Errorf("inserting edge %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteFile drops all rows for one file, for files removed from the tree.
func (s *Store) DeleteFile(ctx context.Context, workspaceID, sourcePath string) error {
	return s.ReplaceFile(ctx, workspaceID, sourcePath, nil, nil, nil)
}

// DeleteWorkspace drops every index row of a workspace.
func (s *Store) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM code_edges WHERE source_id IN
			(SELECT id FROM code_nodes WHERE workspace_id = ?)`, workspaceID); err != nil {
		return fmt.Errorf("deleting edges: %w", err)
	}
	for _, stmt := range []string{
		"DELETE FROM code_nodes WHERE workspace_id = ?",
		"DELETE FROM chunks WHERE workspace_id = ?",
		"DELETE FROM index_metadata WHERE workspace_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, workspaceID); err != nil {
			return fmt.Errorf("deleting workspace rows: %w", err)
		}
	}
	return tx.Commit()
}

// SearchChunks loads workspace candidates matching the filter and ranks them
// in memory; corpora here are workspace-sized, not web-sized.
func (s *Store) SearchChunks(ctx context.Context, query string, workspaceIDs []string, k int, filter *core.ChunkFilter) ([]core.ScoredChunk, error) {
	if len(workspaceIDs) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}

	q := `SELECT content_id, workspace_id, source_path, chunk_index, text, content_type,
			language, embedding, symbol_name, fqn, start_line, end_line, metadata
		FROM chunks WHERE workspace_id IN (` + placeholders(len(workspaceIDs)) + `)`
	args := make([]interface{}, 0, len(workspaceIDs)+4)
	for _, id := range workspaceIDs {
		args = append(args, id)
	}
	if filter != nil {
		if len(filter.ContentTypes) > 0 {
			q += " AND content_type IN (" + placeholders(len(filter.ContentTypes)) + ")"
			for _, ct := range filter.ContentTypes {
				args = append(args, string(ct))
			}
		}
		if filter.Language != "" {
			q += " AND language = ?"
			args = append(args, filter.Language)
		}
		if filter.FQNPrefix != "" {
			q += " AND fqn LIKE ?"
			args = append(args, filter.FQNPrefix+"%")
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var candidates []core.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var queryEmbedding []float32
	if s.embedder != nil {
		// Embedding failures degrade search to lexical-only, never fail it.
		if vec, err := s.embedder.Embed(ctx, query); err == nil {
			queryEmbedding = vec
		}
	}

	return rankChunks(query, queryEmbedding, candidates, k), nil
}

// FindNodes queries graph nodes. Name matching is case-insensitive exact.
func (s *Store) FindNodes(ctx context.Context, filter core.NodeFilter) ([]core.CodeNode, error) {
	q := `SELECT id, workspace_id, node_type, name, fqn, file_path, line, signature, modifiers
		FROM code_nodes WHERE 1=1`
	var args []interface{}
	if filter.WorkspaceID != "" {
		q += " AND workspace_id = ?"
		args = append(args, filter.WorkspaceID)
	}
	if filter.Name != "" {
		q += " AND name = ? COLLATE NOCASE"
		args = append(args, filter.Name)
	}
	if filter.NodeType != "" {
		q += " AND node_type = ?"
		args = append(args, string(filter.NodeType))
	}
	q += " ORDER BY fqn ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []core.CodeNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, rows.Err()
}

// NodeByID loads one node.
func (s *Store) NodeByID(ctx context.Context, id string) (*core.CodeNode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, node_type, name, fqn, file_path, line, signature, modifiers
		FROM code_nodes WHERE id = ?`, id)
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("node", id)
	}
	return node, err
}

// OutboundEdges returns edges leaving a node, optionally filtered by type.
func (s *Store) OutboundEdges(ctx context.Context, nodeID string, edgeType core.EdgeType) ([]core.CodeEdge, error) {
	return s.edges(ctx, "source_id", nodeID, edgeType)
}

// InboundEdges returns edges entering a node, optionally filtered by type.
func (s *Store) InboundEdges(ctx context.Context, nodeID string, edgeType core.EdgeType) ([]core.CodeEdge, error) {
	return s.edges(ctx, "target_id", nodeID, edgeType)
}

func (s *Store) edges(ctx context.Context, column, nodeID string, edgeType core.EdgeType) ([]core.CodeEdge, error) {
	q := "SELECT id, edge_type, source_id, target_id FROM code_edges WHERE " + column + " = ?"
	args := []interface{}{nodeID}
	if edgeType != "" {
		q += " AND edge_type = ?"
		args = append(args, string(edgeType))
	}
	q += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	var edges []core.CodeEdge
	for rows.Next() {
		var e core.CodeEdge
		var et string
		if err := rows.Scan(&e.ID, &et, &e.SourceID, &e.TargetID); err != nil {
			return nil, err
		}
		e.EdgeType = core.EdgeType(et)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// SaveMetadata upserts the index metadata row for (workspace, index type).
func (s *Store) SaveMetadata(ctx context.Context, meta core.IndexMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_metadata (workspace_id, index_type, commit_sha, indexed_at, items_created)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, index_type) DO UPDATE SET
			commit_sha = excluded.commit_sha,
			indexed_at = excluded.indexed_at,
			items_created = excluded.items_created`,
		meta.WorkspaceID, string(meta.IndexType), meta.IndexedCommitSHA, meta.IndexedAt, meta.ItemsCreated)
	if err != nil {
		return fmt.Errorf("saving index metadata: %w", err)
	}
	return nil
}

// LoadMetadata returns the metadata row, or NOT_FOUND when never indexed.
func (s *Store) LoadMetadata(ctx context.Context, workspaceID string, indexType core.IndexType) (*core.IndexMetadata, error) {
	var meta core.IndexMetadata
	var it string
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, index_type, commit_sha, indexed_at, items_created
		FROM index_metadata WHERE workspace_id = ? AND index_type = ?`,
		workspaceID, string(indexType)).
		Scan(&meta.WorkspaceID, &it, &meta.IndexedCommitSHA, &meta.IndexedAt, &meta.ItemsCreated)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("index metadata", workspaceID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading index metadata: %w", err)
	}
	meta.IndexType = core.IndexType(it)
	return &meta, nil
}

// HasIndex reports whether the workspace was ever indexed.
func (s *Store) HasIndex(ctx context.Context, workspaceID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM index_metadata WHERE workspace_id = ?", workspaceID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking index presence: %w", err)
	}
	return n > 0, nil
}

// IndexedFiles lists the distinct source paths currently indexed, so the
// pipeline can delete rows for files that disappeared from the tree.
func (s *Store) IndexedFiles(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT source_path FROM chunks WHERE workspace_id = ? ORDER BY source_path", workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing indexed files: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func scanChunk(rows *sql.Rows) (*core.Chunk, error) {
	var (
		c          core.Chunk
		ct         string
		language   sql.NullString
		embedding  []byte
		symbolName sql.NullString
		fqn        sql.NullString
		metadata   sql.NullString
	)
	if err := rows.Scan(&c.ContentID, &c.WorkspaceID, &c.SourcePath, &c.ChunkIndex, &c.Text, &ct,
		&language, &embedding, &symbolName, &fqn, &c.StartLine, &c.EndLine, &metadata); err != nil {
		return nil, err
	}
	c.ContentType = core.ContentType(ct)
	c.Language = language.String
	c.SymbolName = symbolName.String
	c.FQN = fqn.String
	if len(embedding) > 0 {
		if err := json.Unmarshal(embedding, &c.Embedding); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", c.ContentID, err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", c.ContentID, err)
		}
	}
	return &c, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*core.CodeNode, error) {
	var (
		n         core.CodeNode
		nt        string
		signature sql.NullString
		modifiers sql.NullString
	)
	if err := row.Scan(&n.ID, &n.WorkspaceID, &nt, &n.Name, &n.FQN, &n.FilePath, &n.Line,
		&signature, &modifiers); err != nil {
		return nil, err
	}
	n.NodeType = core.NodeType(nt)
	n.Signature = signature.String
	n.Modifiers = modifiers.String
	return &n, nil
}

// encodeEmbedding serializes an embedding as JSON, NULL when absent.
func encodeEmbedding(embedding []float32) (interface{}, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("encoding embedding: %w", err)
	}
	return data, nil
}

func encodeMetadata(metadata map[string]string) (interface{}, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return string(data), nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}

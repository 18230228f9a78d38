// Package workspace maps stable workspace IDs to filesystem paths and keeps
// the registry durable in sqlite.
package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aura-dev/aura/internal/core"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL UNIQUE,
	alias      TEXT,
	tags       TEXT NOT NULL DEFAULT '[]',
	is_default INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_workspaces_alias
	ON workspaces(lower(alias)) WHERE alias IS NOT NULL;
`

// Registry persists the workspace mapping. A single writer mutex serializes
// mutations; reads go straight through database/sql.
type Registry struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the registry database at dbPath.
func Open(dbPath string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening workspace registry: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying workspace schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Add registers a new workspace path. Duplicate paths and taken aliases fail
// with ALREADY_EXISTS without mutating state.
func (r *Registry) Add(ctx context.Context, path, alias string, tags []string) (*core.Workspace, error) {
	canonical, err := Canonicalize(path)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "cannot canonicalize path: "+path).WithCause(err)
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "workspace path is not a directory: "+path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ws := &core.Workspace{
		ID:        GenerateID(canonical),
		Path:      canonical,
		Alias:     alias,
		Tags:      tags,
		CreatedAt: time.Now(),
	}

	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workspaces").Scan(&count); err != nil {
		return nil, fmt.Errorf("counting workspaces: %w", err)
	}
	ws.IsDefault = count == 0

	tagsJSON, err := json.Marshal(ws.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshaling tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, path, alias, tags, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ws.ID, ws.Path, nullable(ws.Alias), string(tagsJSON), boolToInt(ws.IsDefault), ws.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			if r.aliasTaken(ctx, alias) {
				return nil, core.ErrAlreadyExists("alias", alias)
			}
			return nil, core.ErrAlreadyExists("workspace", canonical)
		}
		return nil, fmt.Errorf("inserting workspace: %w", err)
	}

	return ws, nil
}

func (r *Registry) aliasTaken(ctx context.Context, alias string) bool {
	if alias == "" {
		return false
	}
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workspaces WHERE lower(alias) = lower(?)", alias).Scan(&n)
	return err == nil && n > 0
}

// Get returns a workspace by ID.
func (r *Registry) Get(ctx context.Context, id string) (*core.Workspace, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, path, alias, tags, is_default, created_at
		FROM workspaces WHERE id = ?`, id)
	ws, err := scanWorkspace(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("workspace", id)
	}
	return ws, err
}

// GetByPath returns the workspace registered at the given path, if any.
func (r *Registry) GetByPath(ctx context.Context, path string) (*core.Workspace, error) {
	canonical, err := Canonicalize(path)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "cannot canonicalize path: "+path).WithCause(err)
	}
	return r.Get(ctx, GenerateID(canonical))
}

// List returns every registered workspace, oldest first.
func (r *Registry) List(ctx context.Context) ([]*core.Workspace, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, path, alias, tags, is_default, created_at
		FROM workspaces ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	defer rows.Close()

	var result []*core.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ws)
	}
	return result, rows.Err()
}

// Resolve maps a list of references (IDs, aliases, "*" wildcard) to a
// deduplicated list of workspace IDs, preserving first-seen order.
func (r *Registry) Resolve(ctx context.Context, refs []string) ([]string, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, ref := range refs {
		if ref == "*" {
			for _, ws := range all {
				add(ws.ID)
			}
			continue
		}
		matched := false
		for _, ws := range all {
			if ws.ID == ref || (ws.Alias != "" && strings.EqualFold(ws.Alias, ref)) {
				add(ws.ID)
				matched = true
				break
			}
		}
		if !matched {
			return nil, core.ErrNotFound("workspace", ref)
		}
	}
	return ids, nil
}

// Default returns the default workspace: the one explicitly flagged, else the
// first registered.
func (r *Registry) Default(ctx context.Context) (*core.Workspace, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, path, alias, tags, is_default, created_at
		FROM workspaces ORDER BY is_default DESC, created_at ASC LIMIT 1`)
	ws, err := scanWorkspace(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("workspace", "default")
	}
	return ws, err
}

// SetDefault flags a workspace as the default.
func (r *Registry) SetDefault(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workspaces WHERE id = ?", id).Scan(&n); err != nil {
		return fmt.Errorf("looking up workspace: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound("workspace", id)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE workspaces SET is_default = (id = ?)", id); err != nil {
		return fmt.Errorf("setting default workspace: %w", err)
	}
	return tx.Commit()
}

// Remove deletes a workspace from the registry. Index rows are cascaded by
// the caller; workflows keep their workspace reference for history.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, "DELETE FROM workspaces WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("removing workspace: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound("workspace", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkspace(row rowScanner) (*core.Workspace, error) {
	var (
		ws        core.Workspace
		alias     sql.NullString
		tagsJSON  string
		isDefault int
	)
	if err := row.Scan(&ws.ID, &ws.Path, &alias, &tagsJSON, &isDefault, &ws.CreatedAt); err != nil {
		return nil, err
	}
	ws.Alias = alias.String
	ws.IsDefault = isDefault != 0
	if err := json.Unmarshal([]byte(tagsJSON), &ws.Tags); err != nil {
		return nil, fmt.Errorf("unmarshaling tags: %w", err)
	}
	return &ws, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

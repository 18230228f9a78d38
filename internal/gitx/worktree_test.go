package gitx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/core"
)

func TestSanitizeBranch(t *testing.T) {
	cases := map[string]string{
		"feature/login":        "feature-login",
		"Fix issue #42!":       "Fix-issue-42",
		"already-clean_name":   "already-clean_name",
		"--leading/trailing--": "leading-trailing",
		"///":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeBranch(in), "input %q", in)
	}
}

func TestParseWorktreeList(t *testing.T) {
	porcelain := `worktree /repos/demo
HEAD aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
branch refs/heads/main

worktree /repos/demo-feature
HEAD bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb
branch refs/heads/feature
locked

worktree /repos/demo-detached
HEAD cccccccccccccccccccccccccccccccccccccccc
detached
`
	worktrees := parseWorktreeList(porcelain)
	require.Len(t, worktrees, 3)

	assert.True(t, worktrees[0].IsMain)
	assert.Equal(t, "main", worktrees[0].Branch)

	assert.False(t, worktrees[1].IsMain)
	assert.Equal(t, "feature", worktrees[1].Branch)
	assert.True(t, worktrees[1].Locked)

	assert.True(t, worktrees[2].Detached)
	assert.Empty(t, worktrees[2].Branch)
}

func TestParseWorktreeListSkipsBare(t *testing.T) {
	porcelain := `worktree /repos/demo.git
bare

worktree /repos/demo-main
HEAD aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
branch refs/heads/main
`
	worktrees := parseWorktreeList(porcelain)
	require.Len(t, worktrees, 1)
	assert.Equal(t, "/repos/demo-main", worktrees[0].Path)
	assert.True(t, worktrees[0].IsMain)
}

func TestWorktreeCreateAndRemove(t *testing.T) {
	c := newTestRepo(t)
	m := NewWorktreeManager(c)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "wt")
	wt, err := m.Create(ctx, "feature/login", "", path)
	require.NoError(t, err)
	assert.Equal(t, "feature-login", wt.Branch)
	assert.Equal(t, path, wt.Path)

	// The new worktree starts from the main branch content.
	_, err = os.Stat(filepath.Join(path, "README.md"))
	require.NoError(t, err)

	worktrees, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, worktrees, 2)
	assert.True(t, worktrees[0].IsMain)
	assert.Equal(t, "feature-login", worktrees[1].Branch)

	require.NoError(t, m.Remove(ctx, path, false))
	worktrees, err = m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, worktrees, 1)
}

func TestWorktreeCreateExistingBranch(t *testing.T) {
	c := newTestRepo(t)
	m := NewWorktreeManager(c)
	ctx := context.Background()

	_, err := c.run(ctx, "branch", "existing")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "wt")
	wt, err := m.Create(ctx, "existing", "", path)
	require.NoError(t, err)
	assert.Equal(t, "existing", wt.Branch)
}

func TestWorktreeCreateRejectsExistingPath(t *testing.T) {
	c := newTestRepo(t)
	m := NewWorktreeManager(c)

	path := t.TempDir()
	_, err := m.Create(context.Background(), "feature", "", path)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatState))
}

func TestWorktreeCreateRejectsEmptyBranch(t *testing.T) {
	c := newTestRepo(t)
	m := NewWorktreeManager(c)

	_, err := m.Create(context.Background(), "///", "", "")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestDefaultWorktreePath(t *testing.T) {
	c := newTestRepo(t)
	m := NewWorktreeManager(c)

	path := m.DefaultWorktreePath("feature/login")
	assert.Equal(t, filepath.Dir(c.RepoPath()), filepath.Dir(path))
	assert.Equal(t, filepath.Base(c.RepoPath())+"-feature-login", filepath.Base(path))
}

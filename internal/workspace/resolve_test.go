package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/proc"
)

func runGit(t *testing.T, gw *proc.Gateway, dir string, args ...string) {
	t.Helper()
	_, err := gw.Run(context.Background(), proc.Request{Name: "git", Args: args, Dir: dir})
	require.NoError(t, err, "git %v", args)
}

func TestDirResolverWorktreeResolvesToOrigin(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	reg := openTestRegistry(t)
	gw := proc.New(logging.NewNop())
	ctx := context.Background()

	repo := t.TempDir()
	runGit(t, gw, repo, "init", "-b", "main")
	runGit(t, gw, repo, "config", "user.email", "dev@example.com")
	runGit(t, gw, repo, "config", "user.name", "Dev")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.txt"), []byte("a\n"), 0o640))
	runGit(t, gw, repo, "add", ".")
	runGit(t, gw, repo, "commit", "-m", "init")

	ws, err := reg.Add(ctx, repo, "origin", nil)
	require.NoError(t, err)

	resolve := NewDirResolver(reg, gw, logging.NewNop())

	id, err := resolve(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, ws.ID, id, "registered path resolves directly")

	wt := filepath.Join(t.TempDir(), "wt")
	runGit(t, gw, repo, "worktree", "add", wt, "-b", "feature")

	id, err = resolve(ctx, wt)
	require.NoError(t, err)
	assert.Equal(t, ws.ID, id, "worktree resolves to the origin workspace")
}

func TestDirResolverUnregisteredDirectory(t *testing.T) {
	reg := openTestRegistry(t)
	gw := proc.New(logging.NewNop())
	dir := t.TempDir()

	resolve := NewDirResolver(reg, gw, nil)
	id, err := resolve(context.Background(), dir)
	require.NoError(t, err)

	canonical, err := Canonicalize(dir)
	require.NoError(t, err)
	assert.Equal(t, GenerateID(canonical), id, "unknown directories get the derived path ID")
}

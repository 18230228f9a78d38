package index

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/proc"
)

func newFreshnessChecker(t *testing.T, store *Store) *FreshnessChecker {
	t.Helper()
	return NewFreshnessChecker(proc.New(logging.NewNop()), store, logging.NewNop())
}

func TestFreshnessNeverIndexed(t *testing.T) {
	store := openTestStore(t)
	checker := newFreshnessChecker(t, store)
	ws := &core.Workspace{ID: "ws1", Path: t.TempDir()}

	fr, err := checker.Check(context.Background(), ws)
	require.NoError(t, err)
	assert.False(t, fr.Fresh)
	assert.True(t, fr.IndexedAt.IsZero())
}

func TestFreshnessNonGitWorkspaceByAge(t *testing.T) {
	store := openTestStore(t)
	checker := newFreshnessChecker(t, store)
	ws := &core.Workspace{ID: "ws1", Path: t.TempDir()}
	ctx := context.Background()

	require.NoError(t, store.SaveMetadata(ctx, core.IndexMetadata{
		WorkspaceID: ws.ID,
		IndexType:   core.IndexRAG,
		IndexedAt:   time.Now(),
	}))
	fr, err := checker.Check(ctx, ws)
	require.NoError(t, err)
	assert.True(t, fr.Fresh)

	require.NoError(t, store.SaveMetadata(ctx, core.IndexMetadata{
		WorkspaceID: ws.ID,
		IndexType:   core.IndexRAG,
		IndexedAt:   time.Now().Add(-2 * DefaultStaleAfter),
	}))
	fr, err = checker.Check(ctx, ws)
	require.NoError(t, err)
	assert.False(t, fr.Fresh)
}

// gitWorkspace initializes a single-commit repository and returns the
// workspace plus its HEAD commit.
func gitWorkspace(t *testing.T) (*core.Workspace, string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	gw := proc.New(logging.NewNop())
	git := func(args ...string) string {
		t.Helper()
		res, err := gw.Run(context.Background(), proc.Request{Name: "git", Args: args, Dir: dir})
		require.NoError(t, err, "git %v", args)
		return res.Stdout
	}

	git("init", "-b", "main")
	git("config", "user.email", "aura@example.com")
	git("config", "user.name", "Aura Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# demo\n"), 0o640))
	git("add", "-A")
	git("commit", "-m", "initial commit")

	head := strings.TrimSpace(git("rev-parse", "HEAD"))
	return &core.Workspace{ID: "wsgit", Path: dir}, head
}

func TestFreshnessGitWorkspace(t *testing.T) {
	store := openTestStore(t)
	checker := newFreshnessChecker(t, store)
	ws, head := gitWorkspace(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetadata(ctx, core.IndexMetadata{
		WorkspaceID:      ws.ID,
		IndexType:        core.IndexRAG,
		IndexedCommitSHA: head,
		IndexedAt:        time.Now(),
	}))

	fr, err := checker.Check(ctx, ws)
	require.NoError(t, err)
	assert.True(t, fr.Fresh)
	assert.Equal(t, head, fr.HeadSHA)
	assert.Equal(t, head, fr.IndexedSHA)

	// A new commit makes the index stale and counts commits behind.
	gw := proc.New(logging.NewNop())
	require.NoError(t, os.WriteFile(filepath.Join(ws.Path, "new.txt"), []byte("x\n"), 0o640))
	_, err = gw.Run(ctx, proc.Request{Name: "git", Args: []string{"add", "-A"}, Dir: ws.Path})
	require.NoError(t, err)
	_, err = gw.Run(ctx, proc.Request{Name: "git", Args: []string{"commit", "-m", "second"}, Dir: ws.Path})
	require.NoError(t, err)

	fr, err = checker.Check(ctx, ws)
	require.NoError(t, err)
	assert.False(t, fr.Fresh)
	assert.NotEqual(t, head, fr.HeadSHA)
	assert.Equal(t, 1, fr.CommitsBehind)
}

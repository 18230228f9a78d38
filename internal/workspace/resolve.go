package workspace

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/proc"
)

// NewDirResolver maps a working directory to the workspace ID whose index
// should serve queries from that directory. Registered paths resolve
// directly; a directory inside a linked git worktree resolves through the
// main repository, so agents running in workflow worktrees query the origin
// workspace index. Unregistered directories fall back to the derived path
// ID.
func NewDirResolver(reg *Registry, gw *proc.Gateway, logger *logging.Logger) func(context.Context, string) (string, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(ctx context.Context, dir string) (string, error) {
		if ws, err := reg.GetByPath(ctx, dir); err == nil {
			return ws.ID, nil
		}
		if repo, ok := mainRepoPath(ctx, gw, dir); ok {
			if ws, err := reg.GetByPath(ctx, repo); err == nil {
				logger.Debug("resolved worktree to origin workspace",
					"dir", dir, "repo", repo, "workspace", ws.ID)
				return ws.ID, nil
			}
		}
		canonical, err := Canonicalize(dir)
		if err != nil {
			return "", err
		}
		return GenerateID(canonical), nil
	}
}

// mainRepoPath returns the main repository root for a directory inside a
// git checkout. The common git dir points at the main .git even from a
// linked worktree.
func mainRepoPath(ctx context.Context, gw *proc.Gateway, dir string) (string, bool) {
	res, err := gw.Run(ctx, proc.Request{
		Name: "git",
		Args: []string{"rev-parse", "--path-format=absolute", "--git-common-dir"},
		Dir:  dir,
	})
	if err != nil || res.ExitCode != 0 {
		return "", false
	}
	gitDir := strings.TrimSpace(res.Stdout)
	if gitDir == "" {
		return "", false
	}
	return filepath.Dir(gitDir), true
}

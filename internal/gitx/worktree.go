package gitx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aura-dev/aura/internal/core"
)

// Worktree represents one git worktree.
type Worktree struct {
	Path     string
	Branch   string
	Commit   string
	IsMain   bool
	Detached bool
	Locked   bool
	Prunable bool
}

var branchSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SanitizeBranch reduces a branch name to [a-zA-Z0-9_-], collapsing runs of
// anything else into single dashes.
func SanitizeBranch(name string) string {
	s := branchSanitizer.ReplaceAllString(name, "-")
	return strings.Trim(s, "-")
}

// WorktreeManager creates and removes isolated worktrees for workflows.
type WorktreeManager struct {
	client *Client
}

// NewWorktreeManager creates a worktree manager over a git client.
func NewWorktreeManager(client *Client) *WorktreeManager {
	return &WorktreeManager{client: client}
}

// DefaultWorktreePath chooses <repo_parent>/<repo_name>-<sanitized_branch>.
func (m *WorktreeManager) DefaultWorktreePath(branch string) string {
	repo := m.client.RepoPath()
	return filepath.Join(filepath.Dir(repo), filepath.Base(repo)+"-"+SanitizeBranch(branch))
}

// Create adds a worktree for a branch. When the branch exists it is checked
// out; otherwise a new branch is created, optionally from base. Fails when
// the target path already exists.
func (m *WorktreeManager) Create(ctx context.Context, branch, base, path string) (*Worktree, error) {
	branch = SanitizeBranch(branch)
	if branch == "" {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "branch name cannot be empty after sanitizing")
	}
	if path == "" {
		path = m.DefaultWorktreePath(branch)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, core.ErrState(core.CodeWorktreeExists,
			fmt.Sprintf("worktree path %s already exists", path))
	}

	exists, err := m.client.BranchExists(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}

	var args []string
	if exists {
		args = []string{"worktree", "add", path, branch}
	} else {
		args = []string{"worktree", "add", "-b", branch, path}
		if base != "" {
			args = append(args, base)
		}
	}
	if _, err := m.client.run(ctx, args...); err != nil {
		return nil, fmt.Errorf("creating worktree: %w", err)
	}

	return &Worktree{Path: path, Branch: branch}, nil
}

// List returns all worktrees of the repository. The first porcelain entry is
// the main worktree; bare entries are skipped.
func (m *WorktreeManager) List(ctx context.Context) ([]Worktree, error) {
	output, err := m.client.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(output), nil
}

func parseWorktreeList(output string) []Worktree {
	worktrees := make([]Worktree, 0)
	var current *Worktree
	bare := false

	flush := func() {
		if current != nil && !bare {
			current.IsMain = len(worktrees) == 0
			worktrees = append(worktrees, *current)
		}
		current = nil
		bare = false
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case current == nil:
		case strings.HasPrefix(line, "HEAD "):
			current.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		case line == "bare":
			bare = true
		case line == "detached":
			current.Detached = true
		case line == "locked":
			current.Locked = true
		case line == "prunable":
			current.Prunable = true
		}
	}
	flush()

	return worktrees
}

// Remove removes a worktree. The command runs from the repository so git can
// locate the common git dir even after the worktree directory was deleted.
func (m *WorktreeManager) Remove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := m.client.run(ctx, args...)
	return err
}

// Prune drops stale administrative entries.
func (m *WorktreeManager) Prune(ctx context.Context) error {
	_, err := m.client.run(ctx, "worktree", "prune")
	return err
}

// Package gitx wraps git and gh invocations for one repository. Every call
// goes through the process gateway; nothing here touches the OS directly.
package gitx

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/proc"
)

// PushTimeout applies to git push; remote negotiation can be slow.
const PushTimeout = 60 * time.Second

// Client wraps git CLI operations for a repository.
type Client struct {
	gw       *proc.Gateway
	repoPath string
	logger   *logging.Logger
	timeout  time.Duration
}

// NewClient creates a git client rooted at repoPath.
func NewClient(gw *proc.Gateway, repoPath string, logger *logging.Logger) (*Client, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Client{
		gw:       gw,
		repoPath: absPath,
		logger:   logger,
		timeout:  proc.DefaultTimeout,
	}
	if _, err := c.run(context.Background(), "rev-parse", "--git-dir"); err != nil {
		return nil, core.ErrValidation("NOT_GIT_REPO", fmt.Sprintf("%s is not a git repository", absPath))
	}
	return c, nil
}

// RepoPath returns the repository path.
func (c *Client) RepoPath() string {
	return c.repoPath
}

// run executes a git command in the repository, recovering once from
// dubious-ownership errors by adding the path to safe.directory.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	return c.runTimeout(ctx, c.timeout, args...)
}

func (c *Client) runTimeout(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	out, err := c.runOnce(ctx, timeout, args...)
	if err != nil && strings.Contains(err.Error(), "dubious ownership") {
		c.logger.Warn("recovering from dubious ownership", "repo", c.repoPath)
		if _, addErr := c.runOnce(ctx, timeout, "config", "--global", "--add", "safe.directory", c.repoPath); addErr == nil {
			return c.runOnce(ctx, timeout, args...)
		}
	}
	return out, err
}

func (c *Client) runOnce(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	res, err := c.gw.Run(ctx, proc.Request{
		Name:    "git",
		Args:    args,
		Dir:     c.repoPath,
		Timeout: timeout,
	})
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = strings.TrimSpace(res.Stderr)
		}
		if stderr != "" {
			return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), stderr, err)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// CurrentBranch returns the current branch name.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// HeadCommit returns the current commit hash.
func (c *Client) HeadCommit(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "HEAD")
}

// IsClean reports whether the working tree has no changes.
func (c *Client) IsClean(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// ListBranches returns all local branches.
func (c *Client) ListBranches(ctx context.Context) ([]string, error) {
	output, err := c.run(ctx, "branch", "--list", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	branches := make([]string, 0)
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// BranchExists checks if a local branch exists.
func (c *Client) BranchExists(ctx context.Context, name string) (bool, error) {
	branches, err := c.ListBranches(ctx)
	if err != nil {
		return false, err
	}
	for _, b := range branches {
		if b == name {
			return true, nil
		}
	}
	return false, nil
}

// CommitAll stages every change and commits. Nothing to commit is reported as
// a non-fatal NOTHING_TO_COMMIT error so callers can treat it as a no-op.
func (c *Client) CommitAll(ctx context.Context, message string, skipHooks bool) (string, error) {
	if _, err := c.run(ctx, "add", "-A"); err != nil {
		return "", err
	}
	args := []string{"commit", "-m", message}
	if skipHooks {
		args = append(args, "--no-verify")
	}
	if _, err := c.run(ctx, args...); err != nil {
		if strings.Contains(err.Error(), "nothing to commit") {
			return "", core.ErrState(core.CodeNothingToCommit, "nothing to commit")
		}
		return "", err
	}
	return c.HeadCommit(ctx)
}

// Push pushes the current branch. When a token is supplied it is injected
// into the origin URL as x-access-token so automated pushes work without
// credential helpers; the token never appears in logs.
func (c *Client) Push(ctx context.Context, setUpstream, force bool, githubToken string) error {
	branch, err := c.CurrentBranch(ctx)
	if err != nil {
		return err
	}

	remote := "origin"
	if githubToken != "" {
		url, err := c.run(ctx, "remote", "get-url", "origin")
		if err != nil {
			return err
		}
		remote = injectToken(url, githubToken)
	}

	args := []string{"push"}
	if setUpstream {
		args = append(args, "--set-upstream")
	}
	if force {
		args = append(args, "--force-with-lease")
	}
	args = append(args, remote, branch)

	_, err = c.runTimeout(ctx, PushTimeout, args...)
	return err
}

// injectToken rewrites an https remote URL to carry an access token.
func injectToken(url, token string) string {
	if !strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://x-access-token:" + token + "@" + strings.TrimPrefix(url, "https://")
}

// MergeBase returns the merge base of HEAD and the given ref.
func (c *Client) MergeBase(ctx context.Context, ref string) (string, error) {
	return c.run(ctx, "merge-base", ref, "HEAD")
}

// CountCommitsSince counts commits in sha..HEAD.
func (c *Client) CountCommitsSince(ctx context.Context, sha string) (int, error) {
	out, err := c.run(ctx, "rev-list", "--count", sha+"..HEAD")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(out)
}

// SquashSince collapses all commits since the merge base with base into one.
// With one commit or fewer there is nothing to squash and HEAD is returned
// unchanged. The re-commit always skips hooks; they already ran once.
func (c *Client) SquashSince(ctx context.Context, base, message string) (string, error) {
	mergeBase, err := c.MergeBase(ctx, base)
	if err != nil {
		return "", err
	}
	count, err := c.CountCommitsSince(ctx, mergeBase)
	if err != nil {
		return "", err
	}
	if count <= 1 {
		return c.HeadCommit(ctx)
	}
	if _, err := c.run(ctx, "reset", "--soft", mergeBase); err != nil {
		return "", err
	}
	if _, err := c.run(ctx, "commit", "-m", message, "--no-verify"); err != nil {
		return "", err
	}
	return c.HeadCommit(ctx)
}

// CommitTimestamp returns the committer timestamp of a commit.
func (c *Client) CommitTimestamp(ctx context.Context, sha string) (time.Time, error) {
	out, err := c.run(ctx, "show", "-s", "--format=%cI", sha)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, out)
}

// TrackedFiles lists every file tracked by git, repo-relative.
func (c *Client) TrackedFiles(ctx context.Context) ([]string, error) {
	output, err := c.run(ctx, "ls-files")
	if err != nil {
		return nil, err
	}
	files := make([]string, 0)
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// DefaultBranch returns the default branch (main or master).
func (c *Client) DefaultBranch(ctx context.Context) (string, error) {
	output, err := c.run(ctx, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		return strings.TrimPrefix(output, "refs/remotes/origin/"), nil
	}

	branches, _ := c.ListBranches(ctx)
	for _, b := range branches {
		if b == "main" {
			return "main", nil
		}
	}
	for _, b := range branches {
		if b == "master" {
			return "master", nil
		}
	}
	return "main", nil
}

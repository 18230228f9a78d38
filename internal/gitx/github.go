package gitx

import (
	"context"
	"strings"
	"time"

	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/proc"
)

// LabelTimeout bounds gh label operations; they are best-effort.
const LabelTimeout = 15 * time.Second

// PRTimeout bounds gh pr create.
const PRTimeout = 60 * time.Second

// GitHub wraps gh CLI operations for a repository.
type GitHub struct {
	gw       *proc.Gateway
	repoPath string
	logger   *logging.Logger
}

// NewGitHub creates a gh wrapper rooted at repoPath.
func NewGitHub(gw *proc.Gateway, repoPath string, logger *logging.Logger) *GitHub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GitHub{gw: gw, repoPath: repoPath, logger: logger}
}

func (g *GitHub) run(ctx context.Context, timeout time.Duration, token string, args ...string) (*proc.Result, error) {
	req := proc.Request{
		Name:    "gh",
		Args:    args,
		Dir:     g.repoPath,
		Timeout: timeout,
	}
	if token != "" {
		req.Env = map[string]string{"GH_TOKEN": token}
	}
	return g.gw.Run(ctx, req)
}

// PullRequestOptions configures CreatePullRequest.
type PullRequestOptions struct {
	Title  string
	Body   string
	Base   string
	Draft  bool
	Labels []string
	Token  string
}

// CreatePullRequest opens a PR for the current branch and returns its URL.
// Requested labels are created best-effort first. When a PR for the branch
// already exists, its URL is returned instead of an error.
func (g *GitHub) CreatePullRequest(ctx context.Context, opts PullRequestOptions) (string, error) {
	for _, label := range opts.Labels {
		g.ensureLabel(ctx, label, opts.Token)
	}

	args := []string{"pr", "create", "--title", opts.Title}
	if opts.Body != "" {
		args = append(args, "--body", opts.Body)
	} else {
		args = append(args, "--body", "")
	}
	if opts.Base != "" {
		args = append(args, "--base", opts.Base)
	}
	if opts.Draft {
		args = append(args, "--draft")
	}
	for _, label := range opts.Labels {
		args = append(args, "--label", label)
	}

	res, err := g.run(ctx, PRTimeout, opts.Token, args...)
	if err != nil {
		combined := ""
		if res != nil {
			combined = res.Stdout + res.Stderr
		}
		if strings.Contains(combined, "already exists") {
			return g.existingPRURL(ctx, opts.Token)
		}
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// existingPRURL queries the URL of the PR already open for the branch.
func (g *GitHub) existingPRURL(ctx context.Context, token string) (string, error) {
	res, err := g.run(ctx, LabelTimeout, token, "pr", "view", "--json", "url", "--jq", ".url")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ensureLabel creates a label if missing. Failures only get logged; a missing
// label must not block the PR.
func (g *GitHub) ensureLabel(ctx context.Context, label, token string) {
	if _, err := g.run(ctx, LabelTimeout, token, "label", "create", label, "--force"); err != nil {
		g.logger.Debug("label ensure failed", "label", label, "error", err)
	}
}

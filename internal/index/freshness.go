package index

import (
	"context"
	"errors"
	"time"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/gitx"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/aura-dev/aura/internal/proc"
)

// DefaultStaleAfter bounds index age for workspaces without git history.
const DefaultStaleAfter = 24 * time.Hour

// FreshnessChecker decides whether a workspace index still matches the tree.
type FreshnessChecker struct {
	gw     *proc.Gateway
	store  *Store
	logger *logging.Logger

	// StaleAfter applies only to non-git workspaces, where commit
	// comparison is impossible.
	StaleAfter time.Duration
}

// NewFreshnessChecker creates a freshness checker.
func NewFreshnessChecker(gw *proc.Gateway, store *Store, logger *logging.Logger) *FreshnessChecker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FreshnessChecker{gw: gw, store: store, logger: logger, StaleAfter: DefaultStaleAfter}
}

// Check compares the indexed commit against HEAD. Git workspaces are fresh
// only when the SHAs match; non-git workspaces are fresh until the index is
// older than StaleAfter. A workspace never indexed is simply not fresh.
func (f *FreshnessChecker) Check(ctx context.Context, ws *core.Workspace) (*core.Freshness, error) {
	meta, err := f.store.LoadMetadata(ctx, ws.ID, core.IndexRAG)
	if err != nil {
		var domErr *core.DomainError
		if errors.As(err, &domErr) && domErr.Category == core.ErrCatNotFound {
			return &core.Freshness{Fresh: false}, nil
		}
		return nil, err
	}

	fr := &core.Freshness{
		IndexedSHA: meta.IndexedCommitSHA,
		IndexedAt:  meta.IndexedAt,
	}

	client, err := gitx.NewClient(f.gw, ws.Path, f.logger)
	if err != nil {
		fr.Fresh = time.Since(meta.IndexedAt) < f.StaleAfter
		return fr, nil
	}

	head, err := client.HeadCommit(ctx)
	if err != nil {
		return nil, err
	}
	fr.HeadSHA = head
	fr.Fresh = meta.IndexedCommitSHA != "" && meta.IndexedCommitSHA == head

	if !fr.Fresh && meta.IndexedCommitSHA != "" {
		if behind, err := client.CountCommitsSince(ctx, meta.IndexedCommitSHA); err == nil {
			fr.CommitsBehind = behind
		} else {
			f.logger.Debug("cannot count commits behind", "workspace", ws.ID, "error", err)
		}
	}
	return fr, nil
}

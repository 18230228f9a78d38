package agent

import (
	"sync/atomic"

	"github.com/aura-dev/aura/internal/core"
)

// BudgetRecommendation tells a running agent how to spend what is left.
type BudgetRecommendation string

const (
	BudgetContinue    BudgetRecommendation = "continue"
	BudgetSummarize   BudgetRecommendation = "summarize"
	BudgetSpawnAgent  BudgetRecommendation = "spawn_subagent"
	BudgetCompleteNow BudgetRecommendation = "complete_now"
)

// TokenTracker counts token usage against a budget. Safe for concurrent use;
// the ReAct loop and subagents feed it from multiple goroutines.
type TokenTracker struct {
	budget int64
	used   int64
}

// NewTokenTracker creates a tracker. The budget must be positive.
func NewTokenTracker(budget int) (*TokenTracker, error) {
	if budget <= 0 {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "token budget must be positive")
	}
	return &TokenTracker{budget: int64(budget)}, nil
}

// Add records used tokens. Negative amounts are ignored; providers
// occasionally report nonsense and the count must never go down.
func (t *TokenTracker) Add(tokens int) {
	if tokens <= 0 {
		return
	}
	atomic.AddInt64(&t.used, int64(tokens))
}

// Used returns the tokens consumed so far.
func (t *TokenTracker) Used() int {
	return int(atomic.LoadInt64(&t.used))
}

// Budget returns the configured budget.
func (t *TokenTracker) Budget() int {
	return int(t.budget)
}

// Remaining returns the unused budget, never negative.
func (t *TokenTracker) Remaining() int {
	rem := t.budget - atomic.LoadInt64(&t.used)
	if rem < 0 {
		return 0
	}
	return int(rem)
}

// UsagePercent returns usage as a percentage of the budget. It can exceed
// 100 when providers report more tokens than the budget allowed.
func (t *TokenTracker) UsagePercent() float64 {
	return float64(atomic.LoadInt64(&t.used)) / float64(t.budget) * 100
}

// IsAboveThreshold reports whether usage reached the given percentage of the
// budget.
func (t *TokenTracker) IsAboveThreshold(percent float64) bool {
	return t.UsagePercent() >= percent
}

// Exhausted reports whether usage reached the budget.
func (t *TokenTracker) Exhausted() bool {
	return atomic.LoadInt64(&t.used) >= t.budget
}

// Recommend maps usage to a strategy: keep going below half, summarize
// below 70%, hand off to a subagent below 90%, then wrap up immediately.
func (t *TokenTracker) Recommend() BudgetRecommendation {
	ratio := float64(atomic.LoadInt64(&t.used)) / float64(t.budget)
	switch {
	case ratio < 0.5:
		return BudgetContinue
	case ratio < 0.7:
		return BudgetSummarize
	case ratio < 0.9:
		return BudgetSpawnAgent
	default:
		return BudgetCompleteNow
	}
}

package pipeline

import (
	"time"

	"github.com/okian/pitchjudge/internal/domain/model"
)

// Policy is a stage's retry budget. Attempt counts the retries already made,
// so a stage runs at most MaxRetries+1 times.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// CanRetry reports whether another attempt is allowed after attempt failed.
func (p Policy) CanRetry(attempt int) bool {
	return attempt < p.MaxRetries
}

// Backoff is BaseDelay·2^attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.BaseDelay << uint(attempt) //nolint:gosec // attempt is bounded by MaxRetries
}

// DefaultPolicies returns the per-stage retry budgets.
func DefaultPolicies() map[model.Stage]Policy {
	return map[model.Stage]Policy{
		model.StageIngest:   {MaxRetries: 3, BaseDelay: 60 * time.Second},
		model.StageEvaluate: {MaxRetries: 5, BaseDelay: 120 * time.Second},
		model.StageScore:    {MaxRetries: 3, BaseDelay: 30 * time.Second},
		model.StageRank:     {MaxRetries: 3, BaseDelay: 60 * time.Second},
	}
}

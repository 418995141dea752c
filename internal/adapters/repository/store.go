// Package repository persists domains, submissions, evaluations, scores and metrics.
package repository

import (
	"context"
	"time"

	"github.com/okian/pitchjudge/internal/domain/model"
)

// SubmissionPatch carries optional fields written alongside a status change.
type SubmissionPatch struct {
	SlideDir     *string
	SlideCount   *int
	ErrorMessage *string
}

// Standing is one row of a domain leaderboard.
type Standing struct {
	SubmissionID    string   `json:"submission_id"`
	TeamName        string   `json:"team_name"`
	Rank            *int     `json:"rank"`
	Percentile      *float64 `json:"percentile"`
	WeightedTotal   float64  `json:"weighted_total"`
	NormalizedScore float64  `json:"normalized_score"`
	Grade           string   `json:"grade"`
}

// RankFunc orders the completed scores of one domain into placements.
type RankFunc func(scores []*model.Score) []model.Placement

// Store is the datastore behind the pipeline. Each write method commits
// atomically; multi-row writes run in one transaction.
type Store interface {
	SaveDomain(ctx context.Context, d *model.Domain) error
	GetDomain(ctx context.Context, id string) (*model.Domain, error)
	ListDomains(ctx context.Context) ([]*model.Domain, error)

	// CreateSubmission stores a new submission in status uploaded. It fails
	// with ErrNotFound or ErrInactive when the domain cannot accept entries.
	CreateSubmission(ctx context.Context, s *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)

	// TransitionStatus moves a submission to `to` only when its current status
	// is one of from. It returns ErrConflict when the status is elsewhere and
	// model.ErrInvalidTransition when the move is not in the state graph.
	TransitionStatus(ctx context.Context, id string, from []model.Status, to model.Status, patch SubmissionPatch) (*model.Submission, error)

	GetEvaluation(ctx context.Context, submissionID string) (*model.Evaluation, error)

	// CompleteEvaluation inserts e and moves its submission from evaluating
	// to evaluated. ErrDuplicate means an evaluation already exists.
	CompleteEvaluation(ctx context.Context, e *model.Evaluation) error

	// CompleteScore upserts sc without touching ranking fields, copies the
	// totals onto the submission, stamps completedAt and marks it completed.
	CompleteScore(ctx context.Context, sc *model.Score, completedAt time.Time) error
	GetScore(ctx context.Context, submissionID string) (*model.Score, error)

	// RecomputeRanking reads the scores of the domain's completed submissions
	// in evaluation order (completion time, then submission id), ranks them
	// with rank and writes rank and percentile onto each score, mirroring the
	// rank onto the submission. Read and write happen under one per-domain
	// lock, so concurrent recomputes of a domain apply one after the other and
	// each sees every submission completed before it started. An unknown
	// domain is ErrNotFound.
	RecomputeRanking(ctx context.Context, domainID string, rank RankFunc) ([]model.Placement, error)

	// Standings lists a domain's completed submissions ranked first.
	Standings(ctx context.Context, domainID string) ([]Standing, error)

	RecordMetric(ctx context.Context, m model.Metric) error
	ListMetrics(ctx context.Context, name string, limit int) ([]model.Metric, error)

	Close() error
}

func statusIn(s model.Status, set []model.Status) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

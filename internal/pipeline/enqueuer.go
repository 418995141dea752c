package pipeline

import (
	"context"
	"fmt"

	"github.com/okian/pitchjudge/internal/domain/dedupe"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/pkg/logger"
	"github.com/okian/pitchjudge/pkg/metrics"
)

// TaskQueue is the enqueue side of a stage queue.
type TaskQueue interface {
	Enqueue(ctx context.Context, t model.Task) error
}

// Enqueuer schedules the four stage operations onto their queues. Rank
// requests for a domain are coalesced while one is already pending.
type Enqueuer struct {
	queues  map[model.Stage]TaskQueue
	pending dedupe.Deduper
	logger  logger.Logger
}

// NewEnqueuer creates an Enqueuer. Every stage must have a queue.
func NewEnqueuer(queues map[model.Stage]TaskQueue, pending dedupe.Deduper) (*Enqueuer, error) {
	for _, st := range model.Stages {
		if queues[st] == nil {
			return nil, fmt.Errorf("no queue for stage %s", st)
		}
	}
	if pending == nil {
		pending = dedupe.NewInMemoryDeduper()
	}
	return &Enqueuer{
		queues:  queues,
		pending: pending,
		logger:  logger.Get().Named("enqueuer"),
	}, nil
}

// Ingest schedules rendering of a submission.
func (e *Enqueuer) Ingest(ctx context.Context, submissionID string) error {
	return e.enqueue(ctx, model.StageIngest, submissionID)
}

// Evaluate schedules judging of a submission.
func (e *Enqueuer) Evaluate(ctx context.Context, submissionID string) error {
	return e.enqueue(ctx, model.StageEvaluate, submissionID)
}

// Score schedules scoring of a submission.
func (e *Enqueuer) Score(ctx context.Context, submissionID string) error {
	return e.enqueue(ctx, model.StageScore, submissionID)
}

// Rank schedules a ranking recomputation for a domain unless one is pending.
func (e *Enqueuer) Rank(ctx context.Context, domainID string) error {
	if e.pending.SeenAndRecord(ctx, domainID) {
		metrics.RecordRankCoalesced()
		e.logger.Debug(ctx, "rank already pending", logger.String("domain_id", domainID))
		return nil
	}
	if err := e.enqueue(ctx, model.StageRank, domainID); err != nil {
		e.pending.Unrecord(ctx, domainID)
		return err
	}
	return nil
}

// RankStarted releases a domain so completions landing from now on schedule a
// fresh recomputation.
func (e *Enqueuer) RankStarted(ctx context.Context, domainID string) {
	e.pending.Unrecord(ctx, domainID)
}

func (e *Enqueuer) enqueue(ctx context.Context, stage model.Stage, subject string) error {
	if err := e.queues[stage].Enqueue(ctx, model.Task{Stage: stage, Subject: subject}); err != nil {
		return fmt.Errorf("enqueue %s %s: %w", stage, subject, err)
	}
	return nil
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/okian/pitchjudge/internal/adapters/mq/worker"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/domain/scoring"
	"github.com/okian/pitchjudge/pkg/logger"
	"github.com/okian/pitchjudge/pkg/metrics"
)

// Score computes the weighted result of an evaluated submission, completes it
// and schedules a ranking of its domain. Failures leave the status at
// evaluated so the evaluation is never discarded.
func (p *Pipeline) Score(ctx context.Context, t model.Task) worker.Outcome { //nolint:gocritic // hugeParam: tasks are passed by value
	fail := func(err error) worker.Outcome {
		return p.fail(ctx, failure{task: t, err: err})
	}

	sub, err := p.store.GetSubmission(ctx, t.Subject)
	if err != nil {
		return fail(err)
	}
	switch sub.Status {
	case model.StatusEvaluated, model.StatusCompleted:
	case model.StatusError, model.StatusEvaluationError:
		p.logger.Info(ctx, "score skipped",
			logger.String("submission_id", sub.ID),
			logger.String("status", string(sub.Status)),
		)
		return worker.Done()
	default:
		return fail(fmt.Errorf("%w: %s is %s", ErrNotReady, sub.ID, sub.Status))
	}

	eval, err := p.store.GetEvaluation(ctx, sub.ID)
	if err != nil {
		return fail(err)
	}
	domain, err := p.store.GetDomain(ctx, sub.DomainID)
	if err != nil {
		return fail(err)
	}
	if len(domain.Weights) == 0 {
		return fail(ErrMissingWeights)
	}

	if odd := scoring.OutOfRange(eval.CriteriaScores); len(odd) > 0 {
		p.logger.Warn(ctx, "criterion scores outside 1-10; normalized score is skewed",
			logger.String("submission_id", sub.ID),
			logger.Any("criteria", odd),
		)
		metrics.RecordErrorByComponent("scoring", "score_out_of_range")
	}

	res, err := p.scorer.Score(ctx, scoring.Input{
		CriteriaScores:    eval.CriteriaScores,
		Weights:           domain.Weights,
		FlowScore:         eval.PresentationFlowScore,
		CompletenessScore: eval.CompletenessScore,
		ConsistencyScore:  eval.ConsistencyScore,
	})
	if err != nil {
		return fail(err)
	}

	now := p.now().UTC()
	sc := &model.Score{
		SubmissionID:       sub.ID,
		DomainID:           sub.DomainID,
		CriteriaBreakdown:  res.CriteriaBreakdown,
		WeightedBreakdown:  res.WeightedBreakdown,
		RawTotal:           res.RawTotal,
		WeightedTotal:      res.WeightedTotal,
		NormalizedScore:    res.NormalizedScore,
		QualityBonus:       res.QualityBonus,
		ConsistencyPenalty: res.ConsistencyPenalty,
		Grade:              res.Grade,
		CalculatedAt:       now,
	}
	if err := p.store.CompleteScore(ctx, sc, now); err != nil {
		return fail(err)
	}
	metrics.RecordSubmissionTransition(string(model.StatusCompleted))

	p.logger.Info(ctx, "submission scored",
		logger.String("submission_id", sub.ID),
		logger.Float64("weighted_total", res.WeightedTotal),
		logger.Float64("normalized_score", res.NormalizedScore),
		logger.String("grade", res.Grade),
	)
	return p.chain(ctx, t, p.enqueue.Rank, sub.DomainID)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/pitchjudge/internal/adapters/mq/worker"
	"github.com/okian/pitchjudge/internal/adapters/repository"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/pkg/logger"
	"github.com/okian/pitchjudge/pkg/metrics"
)

// Evaluate sends a processed submission's slides to the judge, stores the
// validated Evaluation and schedules Score. A rate limiter denial reschedules
// the task without spending an attempt.
func (p *Pipeline) Evaluate(ctx context.Context, t model.Task) worker.Outcome { //nolint:gocritic // hugeParam: tasks are passed by value
	sub, err := p.store.GetSubmission(ctx, t.Subject)
	if err != nil {
		return p.fail(ctx, failure{task: t, err: err})
	}

	switch sub.Status {
	case model.StatusProcessed, model.StatusEvaluating:
	case model.StatusEvaluated:
		return p.chain(ctx, t, p.enqueue.Score, sub.ID)
	case model.StatusUploaded, model.StatusProcessing:
		return p.fail(ctx, failure{task: t, err: fmt.Errorf("%w: %s is %s", ErrNotReady, sub.ID, sub.Status)})
	default:
		p.logger.Info(ctx, "evaluate skipped",
			logger.String("submission_id", sub.ID),
			logger.String("status", string(sub.Status)),
		)
		return worker.Done()
	}

	fail := func(err error) worker.Outcome {
		return p.fail(ctx, failure{
			task:     t,
			err:      err,
			pre:      model.StatusProcessed,
			active:   model.StatusEvaluating,
			terminal: model.StatusEvaluationError,
		})
	}

	// A previous attempt may have stored the evaluation and then lost the
	// status update or the enqueue. The judge is never called twice.
	if _, err := p.store.GetEvaluation(ctx, sub.ID); err == nil {
		return p.finishEvaluation(ctx, t, sub)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fail(err)
	}

	domain, err := p.store.GetDomain(ctx, sub.DomainID)
	if err != nil {
		return fail(err)
	}
	images, err := p.renderer.Slides(sub.SlideDir)
	if err != nil {
		return fail(fmt.Errorf("list slides: %w", err))
	}
	if len(images) == 0 {
		return fail(ErrNoSlides)
	}

	if !p.limiter.Admit(ctx, p.limiterKey) {
		wait := max(p.limiter.WaitTime(ctx, p.limiterKey), minReschedule)
		p.logger.Info(ctx, "judge rate limited, rescheduling",
			logger.String("submission_id", sub.ID),
			logger.Duration("wait", wait),
		)
		return worker.Reschedule(wait)
	}

	if sub.Status == model.StatusProcessed {
		if _, err := p.transition(ctx, sub.ID, []model.Status{model.StatusProcessed}, model.StatusEvaluating, repository.SubmissionPatch{}); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				// Another worker claimed it.
				return worker.Done()
			}
			return fail(err)
		}
	}

	start := p.now()
	jctx, cancel := context.WithTimeout(ctx, p.judgeTimeout)
	judgment, err := p.judge.Analyze(jctx, images, domain)
	cancel()
	took := p.now().Sub(start)
	metrics.RecordJudgeLatency(float64(took.Milliseconds()))
	if err != nil {
		kind := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			kind = "timeout"
		}
		metrics.RecordJudgeError(kind)
		return fail(fmt.Errorf("judge: %w", err))
	}
	if err := judgment.Verdict.Validate(); err != nil {
		metrics.RecordJudgeError("contract")
		return fail(err)
	}

	eval := model.NewEvaluation(uuid.NewString(), sub.ID, judgment.Verdict, len(images), took, judgment.Raw)
	eval.CreatedAt = p.now().UTC()
	if err := p.store.CompleteEvaluation(ctx, eval); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return p.finishEvaluation(ctx, t, sub)
		}
		return fail(err)
	}
	metrics.RecordSubmissionTransition(string(model.StatusEvaluated))

	p.recordMetric(ctx, MetricEvaluationTime, took.Seconds(), "seconds", map[string]any{
		"submission_id": sub.ID,
		"domain_id":     sub.DomainID,
		"slide_count":   len(images),
	})
	p.logger.Info(ctx, "submission evaluated",
		logger.String("submission_id", sub.ID),
		logger.Int("slides", len(images)),
		logger.Duration("took", took),
	)
	return p.chain(ctx, t, p.enqueue.Score, sub.ID)
}

// finishEvaluation brings a submission whose evaluation already exists to
// evaluated and schedules Score.
func (p *Pipeline) finishEvaluation(ctx context.Context, t model.Task, sub *model.Submission) worker.Outcome { //nolint:gocritic // hugeParam: see Evaluate
	current, err := p.store.GetSubmission(ctx, sub.ID)
	if err != nil {
		return p.fail(ctx, failure{task: t, err: err})
	}

	var steps []model.Status
	switch current.Status {
	case model.StatusEvaluated:
	case model.StatusProcessed:
		steps = []model.Status{model.StatusEvaluating, model.StatusEvaluated}
	case model.StatusEvaluating:
		steps = []model.Status{model.StatusEvaluated}
	default:
		return worker.Done()
	}

	from := current.Status
	for _, to := range steps {
		if _, err := p.transition(ctx, sub.ID, []model.Status{from}, to, repository.SubmissionPatch{}); err != nil {
			return p.fail(ctx, failure{task: t, err: err})
		}
		from = to
	}
	return p.chain(ctx, t, p.enqueue.Score, sub.ID)
}

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/okian/pitchjudge/internal/adapters/mq/worker"
	"github.com/okian/pitchjudge/internal/adapters/repository"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/pkg/logger"
)

// Ingest renders a submission's document into slides, marks it processed and
// schedules Evaluate.
func (p *Pipeline) Ingest(ctx context.Context, t model.Task) worker.Outcome { //nolint:gocritic // hugeParam: tasks are passed by value
	sub, err := p.store.GetSubmission(ctx, t.Subject)
	if err != nil {
		return p.fail(ctx, failure{task: t, err: err})
	}

	switch sub.Status {
	case model.StatusUploaded:
		if _, err := p.transition(ctx, sub.ID, []model.Status{model.StatusUploaded}, model.StatusProcessing, repository.SubmissionPatch{}); err != nil {
			return p.fail(ctx, failure{task: t, err: err})
		}
	case model.StatusProcessing:
		// Redelivered after a crash mid-render; render again.
	case model.StatusProcessed:
		return p.chain(ctx, t, p.enqueue.Evaluate, sub.ID)
	default:
		p.logger.Info(ctx, "ingest skipped",
			logger.String("submission_id", sub.ID),
			logger.String("status", string(sub.Status)),
		)
		return worker.Done()
	}

	fail := func(err error) worker.Outcome {
		return p.fail(ctx, failure{
			task:     t,
			err:      err,
			pre:      model.StatusUploaded,
			active:   model.StatusProcessing,
			terminal: model.StatusError,
		})
	}

	if sub.DocumentLocation == "" {
		return fail(ErrNoDocument)
	}

	start := p.now()
	dir := filepath.Join(p.workDir, sub.ID)
	doc, err := p.fetcher.Fetch(ctx, sub.DocumentLocation, dir)
	if err != nil {
		return fail(fmt.Errorf("fetch document: %w", err))
	}
	images, err := p.renderer.Render(ctx, doc, dir)
	if err != nil {
		return fail(fmt.Errorf("render document: %w", err))
	}
	if len(images) == 0 {
		return fail(ErrNoSlides)
	}

	count := len(images)
	if _, err := p.transition(ctx, sub.ID, []model.Status{model.StatusProcessing}, model.StatusProcessed,
		repository.SubmissionPatch{SlideDir: &dir, SlideCount: &count}); err != nil {
		return fail(err)
	}

	took := p.now().Sub(start)
	p.recordMetric(ctx, MetricPDFProcessingTime, took.Seconds(), "seconds", map[string]any{
		"submission_id": sub.ID,
		"slide_count":   count,
	})
	p.logger.Info(ctx, "document rendered",
		logger.String("submission_id", sub.ID),
		logger.Int("slides", count),
		logger.Duration("took", took),
	)
	return p.chain(ctx, t, p.enqueue.Evaluate, sub.ID)
}

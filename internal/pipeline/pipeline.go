// Package pipeline implements the four evaluation stages and the submission
// state machine they drive. Each stage is a worker.Handler: it loads its own
// view of state, commits only the fields it owns and reports an Outcome that
// tells the worker whether to acknowledge, retry or reschedule the task.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/pitchjudge/internal/adapters/mq/worker"
	"github.com/okian/pitchjudge/internal/adapters/repository"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/domain/scoring"
	"github.com/okian/pitchjudge/pkg/logger"
	"github.com/okian/pitchjudge/pkg/metrics"
)

// Defaults for the evaluate stage.
const (
	DefaultLimiterKey   = "gemini_api"
	DefaultJudgeTimeout = 5 * time.Minute
	minReschedule       = time.Second
)

// Observability rows written to the datastore.
const (
	MetricPDFProcessingTime = "pdf_processing_time"
	MetricEvaluationTime    = "evaluation_time"
	MetricStageFailure      = "stage_failure"
)

// Fetcher makes a document available on local disk.
type Fetcher interface {
	Fetch(ctx context.Context, location, destDir string) (string, error)
}

// Renderer turns a document into ordered slide images.
type Renderer interface {
	// Render writes the slides of documentPath into outputDir and returns
	// their paths in page order. Zero pages is an error.
	Render(ctx context.Context, documentPath, outputDir string) ([]string, error)
	// Slides lists previously rendered images in outputDir in page order.
	Slides(outputDir string) ([]string, error)
}

// Judge is the external AI evaluator.
type Judge interface {
	Analyze(ctx context.Context, images []string, d *model.Domain) (model.Judgment, error)
}

// Limiter gates calls to the judge.
type Limiter interface {
	Admit(ctx context.Context, key string) bool
	WaitTime(ctx context.Context, key string) time.Duration
}

// Pipeline holds the collaborators shared by every stage.
type Pipeline struct {
	store    repository.Store
	fetcher  Fetcher
	renderer Renderer
	judge    Judge
	limiter  Limiter
	scorer   scoring.Scorer
	enqueue  *Enqueuer

	policies     map[model.Stage]Policy
	workDir      string
	limiterKey   string
	judgeTimeout time.Duration
	now          func() time.Time
	logger       logger.Logger
}

// Deps are the required collaborators.
type Deps struct {
	Store    repository.Store
	Fetcher  Fetcher
	Renderer Renderer
	Judge    Judge
	Limiter  Limiter
	Scorer   scoring.Scorer
	Enqueuer *Enqueuer
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithPolicy overrides the retry budget of one stage.
func WithPolicy(stage model.Stage, p Policy) Option {
	return func(pl *Pipeline) {
		if p.BaseDelay > 0 && p.MaxRetries >= 0 {
			pl.policies[stage] = p
		}
	}
}

// WithWorkDir sets the directory under which each submission gets its own
// rendering folder.
func WithWorkDir(dir string) Option {
	return func(pl *Pipeline) {
		if dir != "" {
			pl.workDir = dir
		}
	}
}

// WithLimiterKey sets the rate limiter key for judge calls.
func WithLimiterKey(key string) Option {
	return func(pl *Pipeline) {
		if key != "" {
			pl.limiterKey = key
		}
	}
}

// WithJudgeTimeout bounds each judge call.
func WithJudgeTimeout(d time.Duration) Option {
	return func(pl *Pipeline) {
		if d > 0 {
			pl.judgeTimeout = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) {
		if now != nil {
			pl.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(pl *Pipeline) {
		if log != nil {
			pl.logger = log
		}
	}
}

// New creates a Pipeline.
func New(deps Deps, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Fetcher == nil, deps.Renderer == nil:
		return nil, errors.New("pipeline: fetcher and renderer are required")
	case deps.Judge == nil, deps.Limiter == nil:
		return nil, errors.New("pipeline: judge and limiter are required")
	case deps.Scorer == nil:
		return nil, errors.New("pipeline: scorer is required")
	case deps.Enqueuer == nil:
		return nil, errors.New("pipeline: enqueuer is required")
	}
	p := &Pipeline{
		store:        deps.Store,
		fetcher:      deps.Fetcher,
		renderer:     deps.Renderer,
		judge:        deps.Judge,
		limiter:      deps.Limiter,
		scorer:       deps.Scorer,
		enqueue:      deps.Enqueuer,
		policies:     DefaultPolicies(),
		workDir:      "data/slides",
		limiterKey:   DefaultLimiterKey,
		judgeTimeout: DefaultJudgeTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("pipeline")
	}
	return p, nil
}

// Handler returns the worker.Handler for stage.
func (p *Pipeline) Handler(stage model.Stage) worker.Handler {
	switch stage {
	case model.StageIngest:
		return worker.HandlerFunc(p.Ingest)
	case model.StageEvaluate:
		return worker.HandlerFunc(p.Evaluate)
	case model.StageScore:
		return worker.HandlerFunc(p.Score)
	case model.StageRank:
		return worker.HandlerFunc(p.Rank)
	}
	return worker.HandlerFunc(func(_ context.Context, t model.Task) worker.Outcome {
		return worker.Fail(fmt.Errorf("no handler for stage %q", t.Stage))
	})
}

// Policy returns the retry budget of stage.
func (p *Pipeline) Policy(stage model.Stage) Policy {
	return p.policies[stage]
}

// transition moves a submission and records the new status.
func (p *Pipeline) transition(ctx context.Context, id string, from []model.Status, to model.Status, patch repository.SubmissionPatch) (*model.Submission, error) {
	sub, err := p.store.TransitionStatus(ctx, id, from, to, patch)
	if err != nil {
		return nil, err
	}
	metrics.RecordSubmissionTransition(string(to))
	p.logger.Debug(ctx, "submission transitioned",
		logger.String("submission_id", id),
		logger.String("status", string(to)),
	)
	return sub, nil
}

// failure decides between retry and terminal failure for a stage error.
// A retry rolls the submission back from active to pre; a terminal failure
// moves it to terminal. An empty active status leaves the status alone.
type failure struct {
	task     model.Task
	err      error
	pre      model.Status
	active   model.Status
	terminal model.Status
}

func (p *Pipeline) fail(ctx context.Context, f failure) worker.Outcome { //nolint:gocritic // hugeParam: failure is built per call
	class := classify(f.err)
	policy := p.policies[f.task.Stage]
	retry := class != classPermanent && policy.CanRetry(f.task.Attempt)

	p.recordMetric(ctx, MetricStageFailure, 1, "count", map[string]any{
		"stage":   string(f.task.Stage),
		"subject": f.task.Subject,
		"attempt": f.task.Attempt,
		"class":   string(class),
		"retry":   retry,
		"error":   f.err.Error(),
	})
	metrics.RecordErrorByType(string(class), severity(class))

	if retry {
		if f.active != "" {
			if _, err := p.transition(ctx, f.task.Subject, []model.Status{f.active}, f.pre, repository.SubmissionPatch{}); err != nil &&
				!errors.Is(err, repository.ErrConflict) {
				p.logger.Warn(ctx, "rollback failed",
					logger.String("submission_id", f.task.Subject),
					logger.String("to", string(f.pre)),
					logger.Error(err),
				)
			}
		}
		delay := policy.Backoff(f.task.Attempt)
		p.logger.Warn(ctx, "stage failed, retrying",
			logger.String("class", string(class)),
			logger.Duration("delay", delay),
			logger.Error(f.err),
		)
		return worker.Retry(delay, f.err)
	}

	if f.terminal != "" {
		msg := f.err.Error()
		from := []model.Status{f.pre}
		if f.active != "" {
			from = append(from, f.active)
		}
		if _, err := p.transition(ctx, f.task.Subject, from, f.terminal, repository.SubmissionPatch{ErrorMessage: &msg}); err != nil &&
			!errors.Is(err, repository.ErrNotFound) {
			p.logger.Error(ctx, "marking submission failed did not stick",
				logger.String("submission_id", f.task.Subject),
				logger.String("to", string(f.terminal)),
				logger.Error(err),
			)
		}
	}
	return worker.Fail(fmt.Errorf("%s %s after %d attempts: %w", f.task.Stage, f.task.Subject, f.task.Attempt+1, f.err))
}

func severity(c errorClass) string {
	switch c {
	case classPermanent:
		return "high"
	case classContract:
		return "medium"
	default:
		return "low"
	}
}

// recordMetric appends an observability row. Failures are logged only.
func (p *Pipeline) recordMetric(ctx context.Context, name string, value float64, unit string, fields map[string]any) {
	err := p.store.RecordMetric(ctx, model.Metric{
		Name:      name,
		Value:     value,
		Unit:      unit,
		Context:   fields,
		Timestamp: p.now().UTC(),
	})
	if err != nil {
		p.logger.Warn(ctx, "record metric failed", logger.String("metric", name), logger.Error(err))
	}
}

// chain enqueues the next stage. A failure retries the current stage, which
// finds its work committed and only re-enqueues.
func (p *Pipeline) chain(ctx context.Context, t model.Task, next func(context.Context, string) error, subject string) worker.Outcome { //nolint:gocritic // hugeParam: see fail
	if err := next(ctx, subject); err != nil {
		policy := p.policies[t.Stage]
		if policy.CanRetry(t.Attempt) {
			p.logger.Warn(ctx, "enqueue next stage failed, retrying", logger.Error(err))
			return worker.Retry(policy.Backoff(t.Attempt), err)
		}
		return worker.Fail(err)
	}
	return worker.Done()
}

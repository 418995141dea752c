// Package service assembles the evaluation pipeline and exposes the
// operations used by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/okian/pitchjudge/internal/adapters/mq/queue"
	"github.com/okian/pitchjudge/internal/adapters/mq/worker"
	"github.com/okian/pitchjudge/internal/adapters/repository"
	"github.com/okian/pitchjudge/internal/domain/dedupe"
	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/internal/domain/scoring"
	"github.com/okian/pitchjudge/internal/domain/types"
	"github.com/okian/pitchjudge/internal/pipeline"
	"github.com/okian/pitchjudge/internal/ratelimit"
	"github.com/okian/pitchjudge/pkg/logger"
	"github.com/okian/pitchjudge/pkg/metrics"
)

// ErrInvalidRequest is returned for submissions that fail validation.
var ErrInvalidRequest = errors.New("invalid request")

// Components are the adapters the Service runs on. Build assembles them from
// configuration; tests pass fakes.
type Components struct {
	Store    repository.Store
	Queues   map[model.Stage]queue.Queue
	Limiter  *ratelimit.Limiter
	Fetcher  pipeline.Fetcher
	Renderer pipeline.Renderer
	Judge    pipeline.Judge
	// Closers are released after the store on Stop, e.g. a redis client.
	Closers []io.Closer
}

// Service implements the API dependencies for the evaluation pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	queues   map[model.Stage]queue.Queue
	limiter  *ratelimit.Limiter
	enqueue  *pipeline.Enqueuer
	pipeline *pipeline.Pipeline
	pools    map[model.Stage]*worker.Pool
	closers  []io.Closer
	validate *validator.Validate

	// Configuration
	workers      map[model.Stage]int
	pipelineOpts []pipeline.Option
	dedupeSize   int
	limiterKey   string
	now          func() time.Time

	// State
	started bool
	stopped bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkers sets the pool size of one stage.
func WithWorkers(stage model.Stage, count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workers[stage] = count
		}
	}
}

// WithPipelineOptions forwards options to the pipeline.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(s *Service) {
		s.pipelineOpts = append(s.pipelineOpts, opts...)
	}
}

// WithDedupeSize bounds the rank coalescing set.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLimiterKey sets the key judge calls are counted under.
func WithLimiterKey(key string) Option {
	return func(s *Service) {
		if key != "" {
			s.limiterKey = key
		}
	}
}

// WithClock sets the time source for submission timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New wires the pipeline and one worker pool per stage. Nothing runs until Start.
func New(c Components, opts ...Option) (*Service, error) {
	s := &Service{
		store:      c.Store,
		queues:     c.Queues,
		limiter:    c.Limiter,
		closers:    c.Closers,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		workers:    make(map[model.Stage]int, len(model.Stages)),
		dedupeSize: 100_000,
		limiterKey: pipeline.DefaultLimiterKey,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if c.Limiter == nil {
		return nil, errors.New("service: limiter is required")
	}

	taskQueues := make(map[model.Stage]pipeline.TaskQueue, len(c.Queues))
	for st, q := range c.Queues {
		taskQueues[st] = q
	}
	pending := dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
		dedupe.WithOnEvict(func(key string) {
			metrics.RecordErrorByComponent("dedupe", "pending_key_evicted")
			s.logger.Warn(context.Background(), "pending rank key evicted; duplicate rank may run",
				logger.String("key", key))
		}),
	)
	enq, err := pipeline.NewEnqueuer(taskQueues, pending)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	s.enqueue = enq

	pipeOpts := append([]pipeline.Option{pipeline.WithLimiterKey(s.limiterKey)}, s.pipelineOpts...)
	p, err := pipeline.New(pipeline.Deps{
		Store:    c.Store,
		Fetcher:  c.Fetcher,
		Renderer: c.Renderer,
		Judge:    c.Judge,
		Limiter:  c.Limiter,
		Scorer:   scoring.NewEngine(),
		Enqueuer: enq,
	}, pipeOpts...)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	s.pipeline = p

	s.pools = make(map[model.Stage]*worker.Pool, len(model.Stages))
	for _, st := range model.Stages {
		s.pools[st] = worker.NewPool(st, s.workers[st], c.Queues[st], p.Handler(st),
			worker.WithLogger(logger.Named("worker-"+string(st))),
		)
	}
	return s, nil
}

// Start runs the worker pools.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return errors.New("service: already stopped")
	}
	s.logger.Info(ctx, "starting evaluation service...")
	for _, st := range model.Stages {
		s.pools[st].Start(ctx)
	}
	s.started = true

	fields := make([]logger.Field, 0, len(model.Stages))
	for _, st := range model.Stages {
		fields = append(fields, logger.Int(string(st)+"_workers", s.pools[st].Size()))
	}
	s.logger.Info(ctx, "evaluation service started", fields...)
	return nil
}

// Stop drains the worker pools, then closes queues, the store and the
// remaining resources. It is safe to call on a service that never started
// and to call more than once.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.logger.Info(ctx, "stopping evaluation service...")
	var errs []error
	if s.started {
		for _, st := range model.Stages {
			if err := s.pools[st].Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.started = false
	}
	for _, st := range model.Stages {
		if q := s.queues[st]; q != nil {
			if err := q.Close(); err != nil && !errors.Is(err, queue.ErrClosed) {
				errs = append(errs, fmt.Errorf("close %s queue: %w", st, err))
			}
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info(ctx, "evaluation service stopped")
	return errors.Join(errs...)
}

// Submit stores a new submission and schedules its ingestion.
func (s *Service) Submit(ctx context.Context, req types.SubmitRequest) (*model.Submission, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	now := s.now().UTC()
	sub := &model.Submission{
		ID:               uuid.NewString(),
		DomainID:         req.DomainID,
		TeamName:         req.TeamName,
		DocumentLocation: req.Document,
		Status:           model.StatusUploaded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return nil, err
	}
	metrics.RecordSubmissionTransition(string(model.StatusUploaded))

	if err := s.enqueue.Ingest(ctx, sub.ID); err != nil {
		msg := err.Error()
		if _, terr := s.store.TransitionStatus(ctx, sub.ID, []model.Status{model.StatusUploaded}, model.StatusError,
			repository.SubmissionPatch{ErrorMessage: &msg}); terr != nil {
			s.logger.Error(ctx, "marking unscheduled submission failed",
				logger.String("submission_id", sub.ID),
				logger.Error(terr),
			)
		}
		return nil, fmt.Errorf("schedule ingest: %w", err)
	}

	s.logger.Info(ctx, "submission accepted",
		logger.String("submission_id", sub.ID),
		logger.String("domain_id", sub.DomainID),
		logger.String("team", sub.TeamName),
	)
	return sub, nil
}

// Submission returns the state, score and feedback of one submission.
func (s *Service) Submission(ctx context.Context, id string) (types.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return types.Submission{}, err
	}
	view := types.Submission{
		ID:            sub.ID,
		DomainID:      sub.DomainID,
		TeamName:      sub.TeamName,
		Status:        string(sub.Status),
		SlideCount:    sub.SlideCount,
		TotalScore:    sub.TotalScore,
		WeightedScore: sub.WeightedScore,
		Rank:          sub.RankingPosition,
		ErrorMessage:  sub.ErrorMessage,
		CreatedAt:     sub.CreatedAt,
		UpdatedAt:     sub.UpdatedAt,
		CompletedAt:   sub.CompletedAt,
	}

	switch eval, err := s.store.GetEvaluation(ctx, id); {
	case err == nil:
		view.Evaluation = &types.EvaluationSummary{
			CriteriaScores:    eval.CriteriaScores,
			Strengths:         eval.Feedback.Strengths,
			Weaknesses:        eval.Feedback.Weaknesses,
			Suggestions:       eval.Feedback.Suggestions,
			ExecutiveSummary:  eval.ExecutiveSummary,
			ProcessingSeconds: eval.ProcessingTime.Seconds(),
		}
	case !errors.Is(err, repository.ErrNotFound):
		return types.Submission{}, err
	}

	switch sc, err := s.store.GetScore(ctx, id); {
	case err == nil:
		normalized := sc.NormalizedScore
		view.NormalizedScore = &normalized
		view.Grade = sc.Grade
		view.Percentile = sc.PercentileRank
	case !errors.Is(err, repository.ErrNotFound):
		return types.Submission{}, err
	}
	return view, nil
}

// Ranking lists a domain's completed submissions, ranked first.
func (s *Service) Ranking(ctx context.Context, domainID string) ([]types.Standing, error) {
	if _, err := s.store.GetDomain(ctx, domainID); err != nil {
		return nil, err
	}
	rows, err := s.store.Standings(ctx, domainID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Standing, len(rows))
	for i, r := range rows {
		out[i] = types.Standing{
			Rank:            r.Rank,
			SubmissionID:    r.SubmissionID,
			TeamName:        r.TeamName,
			WeightedTotal:   r.WeightedTotal,
			NormalizedScore: r.NormalizedScore,
			Percentile:      r.Percentile,
			Grade:           r.Grade,
		}
	}
	return out, nil
}

// RequestRank schedules a ranking recomputation. Requests for a domain whose
// recomputation is already pending are coalesced.
func (s *Service) RequestRank(ctx context.Context, domainID string) error {
	if _, err := s.store.GetDomain(ctx, domainID); err != nil {
		return err
	}
	return s.enqueue.Rank(ctx, domainID)
}

// RankNow recomputes a domain's ranking synchronously.
func (s *Service) RankNow(ctx context.Context, domainID string) ([]model.Placement, error) {
	return s.pipeline.RankDomain(ctx, domainID)
}

// Domains lists every domain.
func (s *Service) Domains(ctx context.Context) ([]*model.Domain, error) {
	return s.store.ListDomains(ctx)
}

// SeedDomains validates and upserts domains.
func (s *Service) SeedDomains(ctx context.Context, domains []*model.Domain) error {
	for _, d := range domains {
		if err := d.ValidateWeights(); err != nil {
			return err
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = s.now().UTC()
		}
		if err := s.store.SaveDomain(ctx, d); err != nil {
			return fmt.Errorf("seed domain %s: %w", d.ID, err)
		}
	}
	s.logger.Info(ctx, "domains seeded", logger.Int("count", len(domains)))
	return nil
}

// LimiterUsage reports every window of the judge rate limiter.
func (s *Service) LimiterUsage(ctx context.Context) ([]ratelimit.Usage, error) {
	return s.limiter.Usage(ctx, s.limiterKey)
}

// ResetLimiter clears the judge rate limiter.
func (s *Service) ResetLimiter(ctx context.Context) error {
	return s.limiter.Reset(ctx, s.limiterKey)
}

// Health reports the depth of every stage queue.
func (s *Service) Health(ctx context.Context) types.Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := types.Health{Status: "ok", Queues: make(map[string]int, len(model.Stages))}
	for _, st := range model.Stages {
		n := s.queues[st].Len(ctx)
		h.Queues[string(st)] = n
		metrics.UpdateQueueDepth(string(st), n)
	}
	if !s.started {
		h.Status = "stopped"
	}
	return h
}

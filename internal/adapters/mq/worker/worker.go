// Package worker runs stage handlers against a task queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/pkg/logger"
	"github.com/okian/pitchjudge/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Handler executes one stage for one task.
type Handler interface {
	Handle(ctx context.Context, t model.Task) Outcome
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t model.Task) Outcome

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, t model.Task) Outcome { //nolint:gocritic // hugeParam: tasks are passed by value
	return f(ctx, t)
}

// Queue is the part of queue.Queue a worker uses.
type Queue interface {
	Enqueue(ctx context.Context, t model.Task) error
	Dequeue(ctx context.Context) <-chan model.Task
	Ack(ctx context.Context, t model.Task) error
	Len(ctx context.Context) int
}

// Worker pulls tasks for one stage and applies the handler's Outcome.
type Worker struct {
	queue   Queue
	handler Handler
	stage   model.Stage
	name    string
	now     func() time.Time

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewWorker creates a worker for stage.
func NewWorker(stage model.Stage, queue Queue, handler Handler, opts ...Option) *Worker {
	w := &Worker{
		queue:    queue,
		handler:  handler,
		stage:    stage,
		name:     "worker",
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. A handler already running when shutdown is
// requested is allowed to finish.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	// Cancelling the dequeue context lets the queue take back a task it was
	// about to hand over.
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := w.queue.Dequeue(dctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			w.process(context.WithoutCancel(ctx), t)
		}
	}
}

// Shutdown stops the worker and waits for the current task.
func (w *Worker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs the handler and applies its outcome.
func (w *Worker) process(ctx context.Context, t model.Task) { //nolint:gocritic // hugeParam: see HandlerFunc
	stage := string(w.stage)
	ctx = logger.WithFields(ctx,
		logger.String("stage", stage),
		logger.String("subject", t.Subject),
		logger.String("task_id", t.ID),
		logger.Int("attempt", t.Attempt),
	)
	metrics.AddWorkersBusy(stage, 1)
	defer metrics.AddWorkersBusy(stage, -1)

	start := time.Now()
	out := w.handler.Handle(ctx, t)
	metrics.RecordStageLatency(stage, float64(time.Since(start).Milliseconds()))
	metrics.RecordStageOutcome(stage, string(out.Kind))

	switch out.Kind {
	case KindRetry:
		w.requeue(ctx, t, t.Attempt+1, out)
	case KindReschedule:
		w.requeue(ctx, t, t.Attempt, out)
	case KindFail:
		metrics.RecordErrorByComponent("worker", stage+"_failed")
		w.logger.Error(ctx, "task failed", logger.Error(out.Err))
		w.ack(ctx, t)
	default:
		w.ack(ctx, t)
	}
}

// requeue schedules the follow-up task before acknowledging the current one,
// so a crash in between yields a duplicate rather than a lost task.
func (w *Worker) requeue(ctx context.Context, t model.Task, attempt int, out Outcome) { //nolint:gocritic // hugeParam: see HandlerFunc
	next := model.Task{
		Stage:     t.Stage,
		Subject:   t.Subject,
		Attempt:   attempt,
		NotBefore: w.now().Add(out.Delay),
	}
	if err := w.queue.Enqueue(ctx, next); err != nil {
		metrics.RecordErrorByComponent("worker", "requeue_failed")
		w.logger.Error(ctx, "requeue failed", logger.Error(err))
		return
	}
	fields := []logger.Field{
		logger.Int("next_attempt", attempt),
		logger.Duration("delay", out.Delay),
	}
	if out.Err != nil {
		fields = append(fields, logger.Error(out.Err))
	}
	w.logger.Info(ctx, "task requeued", fields...)
	w.ack(ctx, t)
}

func (w *Worker) ack(ctx context.Context, t model.Task) { //nolint:gocritic // hugeParam: see HandlerFunc
	if err := w.queue.Ack(ctx, t); err != nil {
		w.logger.Warn(ctx, "ack failed", logger.Error(err))
	}
}

// Pool manages the workers of one stage.
type Pool struct {
	stage   model.Stage
	workers []*Worker
	queue   Queue

	shutdown chan struct{}
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers for stage. A count below one
// selects a multiple of the CPU count.
func NewPool(stage model.Stage, workerCount int, queue Queue, handler Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		stage:    stage,
		workers:  make([]*Worker, workerCount),
		queue:    queue,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName(string(stage) + "-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewWorker(stage, queue, handler, workerOpts...)
	}
	metrics.UpdateWorkersActive(string(stage), workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater refreshes the queue depth gauge while the pool runs.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.queue.Len(ctx)
		}
	}
}

// Shutdown stops every worker and waits for in-flight tasks, bounded by ctx
// and poolShutdownTimeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	select {
	case <-p.shutdown:
		return nil
	default:
		close(p.shutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out",
				logger.String("stage", string(p.stage)),
				logger.Int("worker_id", i),
			)
		}
	}
	metrics.UpdateWorkersActive(string(p.stage), 0)
	if timedOut > 0 {
		return fmt.Errorf("%d %s workers did not stop: %w", timedOut, p.stage, shutdownCtx.Err())
	}
	return nil
}

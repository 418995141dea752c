// Package queue defines the contract for enqueuing and consuming stage tasks.
//
// Each Queue instance serves a single stage. Tasks whose NotBefore lies in the
// future are held back until then. Delivery is at least once: a consumer
// acknowledges a task with Ack after handling it.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/pkg/logger"
	"github.com/okian/pitchjudge/pkg/metrics"
)

const defaultQueueCapacity = 100000

// Queue provides delayed enqueue and channel-based dequeue for one stage.
type Queue interface {
	// Enqueue adds a task. A task with a future NotBefore becomes visible to
	// consumers at that time.
	Enqueue(ctx context.Context, t model.Task) error

	// Dequeue returns a channel that receives ready tasks. The channel is
	// closed when ctx is done or the queue is closed.
	Dequeue(ctx context.Context) <-chan model.Task

	// Ack marks a dequeued task as handled.
	Ack(ctx context.Context, t model.Task) error

	// Len returns the number of tasks not yet handed to a consumer.
	Len(ctx context.Context) int

	// Close stops delivery. Enqueue fails with ErrClosed afterwards.
	Close() error
}

// prepare fills the identity fields of t and checks it belongs to stage.
func prepare(stage model.Stage, t model.Task, now time.Time) (model.Task, error) {
	if t.Stage != stage {
		return t, fmt.Errorf("%w: %s into %s", ErrStageMismatch, t.Stage, stage)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
	return t, nil
}

// InMemoryQueue implements Queue inside the process. Delayed tasks wait on
// timers and count against capacity while they wait.
type InMemoryQueue struct {
	stage    model.Stage
	capacity int
	logger   logger.Logger

	mu      sync.Mutex
	ready   []model.Task
	delayed map[string]*time.Timer
	closed  bool
	signal  chan struct{}
	done    chan struct{}
}

// NewInMemoryQueue creates an in-memory queue for stage.
func NewInMemoryQueue(stage model.Stage, opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		stage:    stage,
		capacity: defaultQueueCapacity,
		delayed:  make(map[string]*time.Timer),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = logger.Get().Named("queue")
	}
	metrics.UpdateQueueDepth(string(stage), 0)
	return q
}

// Enqueue adds a task, parking it on a timer when it is not ready yet.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t model.Task) error { //nolint:gocritic // hugeParam: tasks are passed by value through channels
	now := time.Now()
	t, err := prepare(q.stage, t, now)
	if err != nil {
		metrics.RecordQueueError(string(q.stage), "stage_mismatch")
		return err
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueError(string(q.stage), "context_cancelled")
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordQueueError(string(q.stage), "closed")
		return ErrClosed
	}
	if len(q.ready)+len(q.delayed) >= q.capacity {
		metrics.RecordQueueError(string(q.stage), "queue_full")
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return ErrFull
	}

	if !t.Ready(now) {
		id := t.ID
		q.delayed[id] = time.AfterFunc(t.NotBefore.Sub(now), func() { q.release(id, t) })
	} else {
		q.pushLocked(t)
	}
	metrics.RecordQueueEnqueue(string(q.stage))
	metrics.UpdateQueueDepth(string(q.stage), len(q.ready)+len(q.delayed))
	return nil
}

// release moves a delayed task onto the ready list once its timer fires.
func (q *InMemoryQueue) release(id string, t model.Task) { //nolint:gocritic // hugeParam: see Enqueue
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if _, ok := q.delayed[id]; !ok {
		return
	}
	delete(q.delayed, id)
	q.pushLocked(t)
}

// pushLocked must be called with q.mu held.
func (q *InMemoryQueue) pushLocked(t model.Task) { //nolint:gocritic // hugeParam: see Enqueue
	q.ready = append(q.ready, t)
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop takes the oldest ready task.
func (q *InMemoryQueue) pop() (model.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) == 0 {
		return model.Task{}, false
	}
	t := q.ready[0]
	q.ready[0] = model.Task{}
	q.ready = q.ready[1:]
	if len(q.ready) > 0 {
		// Wake another consumer for the remainder.
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	metrics.UpdateQueueDepth(string(q.stage), len(q.ready)+len(q.delayed))
	return t, true
}

// pushFront returns a task a consumer could not hand over.
func (q *InMemoryQueue) pushFront(t model.Task) { //nolint:gocritic // hugeParam: see Enqueue
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.ready = append([]model.Task{t}, q.ready...)
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Dequeue returns a channel that receives ready tasks in FIFO order.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Task {
	out := make(chan model.Task)
	go func() {
		defer close(out)
		for {
			t, ok := q.pop()
			if !ok {
				select {
				case <-q.signal:
					continue
				case <-q.done:
					return
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- t:
				metrics.RecordQueueDequeue(string(q.stage))
			case <-q.done:
				return
			case <-ctx.Done():
				q.pushFront(t)
				return
			}
		}
	}()
	return out
}

// Ack is a no-op: a task leaves the in-memory queue when it is dequeued.
func (q *InMemoryQueue) Ack(context.Context, model.Task) error { //nolint:gocritic // hugeParam: see Enqueue
	return nil
}

// Len returns the number of ready and delayed tasks.
func (q *InMemoryQueue) Len(context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.ready) + len(q.delayed)
	metrics.UpdateQueueDepth(string(q.stage), n)
	return n
}

// Close stops all consumers and drops tasks still waiting.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for id, timer := range q.delayed {
		timer.Stop()
		delete(q.delayed, id)
	}
	if dropped := len(q.ready); dropped > 0 {
		q.logger.Warn(context.Background(), "dropping queued tasks on close",
			logger.String("stage", string(q.stage)),
			logger.Int("count", dropped),
		)
	}
	q.ready = nil
	close(q.done)
	metrics.UpdateQueueDepth(string(q.stage), 0)
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

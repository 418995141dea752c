package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/pkg/logger"
	"github.com/okian/pitchjudge/pkg/metrics"
)

const (
	keyPrefix           = "pitchjudge:queue:"
	defaultPollInterval = 500 * time.Millisecond
	defaultLease        = 15 * time.Minute
)

// claimScript moves up to ARGV[3] ready tasks into the in-flight set.
//
// KEYS: ready zset, in-flight zset.
// ARGV: now_ms, lease deadline_ms, count.
var claimScript = redis.NewScript(`
	local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
	for _, id in ipairs(ids) do
		redis.call('ZREM', KEYS[1], id)
		redis.call('ZADD', KEYS[2], ARGV[2], id)
	end
	return ids
`)

// reapScript returns tasks with expired leases to the ready set.
//
// KEYS: ready zset, in-flight zset.
// ARGV: now_ms.
var reapScript = redis.NewScript(`
	local ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
	for _, id in ipairs(ids) do
		redis.call('ZREM', KEYS[2], id)
		redis.call('ZADD', KEYS[1], ARGV[1], id)
	end
	return #ids
`)

// RedisQueue implements Queue on Redis so tasks survive restarts and can be
// shared by several processes. Ready tasks live in a sorted set scored by the
// time they become visible; claimed tasks move to an in-flight set scored by
// lease deadline until acknowledged.
type RedisQueue struct {
	client       redis.UniversalClient
	stage        model.Stage
	pollInterval time.Duration
	lease        time.Duration
	now          func() time.Time
	logger       logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewRedisQueue creates a Redis-backed queue for stage.
func NewRedisQueue(client redis.UniversalClient, stage model.Stage, opts ...RedisOption) *RedisQueue {
	q := &RedisQueue{
		client:       client,
		stage:        stage,
		pollInterval: defaultPollInterval,
		lease:        defaultLease,
		now:          time.Now,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = logger.Get().Named("queue")
	}
	return q
}

func (q *RedisQueue) readyKey() string    { return keyPrefix + string(q.stage) }
func (q *RedisQueue) inflightKey() string { return q.readyKey() + ":inflight" }
func (q *RedisQueue) payloadKey() string  { return q.readyKey() + ":tasks" }

// Enqueue stores the task payload and schedules it at NotBefore.
func (q *RedisQueue) Enqueue(ctx context.Context, t model.Task) error { //nolint:gocritic // hugeParam: see InMemoryQueue.Enqueue
	if q.isClosed() {
		metrics.RecordQueueError(string(q.stage), "closed")
		return ErrClosed
	}
	now := q.now()
	t, err := prepare(q.stage, t, now)
	if err != nil {
		metrics.RecordQueueError(string(q.stage), "stage_mismatch")
		return err
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	readyAt := t.NotBefore
	if readyAt.Before(now) {
		readyAt = now
	}
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.payloadKey(), t.ID, payload)
		p.ZAdd(ctx, q.readyKey(), redis.Z{Score: float64(readyAt.UnixMilli()), Member: t.ID})
		return nil
	})
	if err != nil {
		metrics.RecordQueueError(string(q.stage), "store")
		return fmt.Errorf("enqueue %s task: %w", q.stage, err)
	}
	metrics.RecordQueueEnqueue(string(q.stage))
	return nil
}

// Dequeue polls for ready tasks and claims them one at a time. Expired leases
// are reaped on every poll.
func (q *RedisQueue) Dequeue(ctx context.Context) <-chan model.Task {
	out := make(chan model.Task)
	go func() {
		defer close(out)
		ticker := time.NewTicker(q.pollInterval)
		defer ticker.Stop()
		for {
			if _, err := q.Reap(ctx); err != nil && ctx.Err() == nil {
				q.logger.Warn(ctx, "reap leases failed",
					logger.String("stage", string(q.stage)),
					logger.Error(err),
				)
			}
			for {
				t, ok, err := q.claim(ctx)
				if err != nil {
					if ctx.Err() == nil {
						metrics.RecordQueueError(string(q.stage), "claim")
						q.logger.Warn(ctx, "claim task failed",
							logger.String("stage", string(q.stage)),
							logger.Error(err),
						)
					}
					break
				}
				if !ok {
					break
				}
				select {
				case out <- t:
					metrics.RecordQueueDequeue(string(q.stage))
				case <-q.done:
					return
				case <-ctx.Done():
					// The lease expires and the reaper returns the task.
					return
				}
			}
			select {
			case <-ticker.C:
			case <-q.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// claim moves one ready task into the in-flight set and loads its payload.
func (q *RedisQueue) claim(ctx context.Context) (model.Task, bool, error) {
	now := q.now()
	res, err := claimScript.Run(ctx, q.client,
		[]string{q.readyKey(), q.inflightKey()},
		now.UnixMilli(), now.Add(q.lease).UnixMilli(), 1,
	).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Task{}, false, nil
		}
		return model.Task{}, false, fmt.Errorf("claim script: %w", err)
	}
	if len(res) == 0 {
		return model.Task{}, false, nil
	}

	id := res[0]
	raw, err := q.client.HGet(ctx, q.payloadKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		q.logger.Warn(ctx, "task payload missing, discarding",
			logger.String("stage", string(q.stage)),
			logger.String("task_id", id),
		)
		q.client.ZRem(ctx, q.inflightKey(), id)
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, fmt.Errorf("load task %s: %w", id, err)
	}
	var t model.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return model.Task{}, false, fmt.Errorf("decode task %s: %w", id, err)
	}
	return t, true, nil
}

// Reap returns tasks whose lease expired to the ready set.
func (q *RedisQueue) Reap(ctx context.Context) (int, error) {
	n, err := reapScript.Run(ctx, q.client,
		[]string{q.readyKey(), q.inflightKey()},
		strconv.FormatInt(q.now().UnixMilli(), 10),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("reap script: %w", err)
	}
	if n > 0 {
		metrics.RecordLeaseRecovered(string(q.stage), n)
		q.logger.Info(ctx, "recovered expired leases",
			logger.String("stage", string(q.stage)),
			logger.Int("count", n),
		)
	}
	return n, nil
}

// Ack removes a claimed task and its payload.
func (q *RedisQueue) Ack(ctx context.Context, t model.Task) error { //nolint:gocritic // hugeParam: see InMemoryQueue.Enqueue
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.inflightKey(), t.ID)
		p.HDel(ctx, q.payloadKey(), t.ID)
		return nil
	})
	if err != nil {
		metrics.RecordQueueError(string(q.stage), "ack")
		return fmt.Errorf("ack %s task %s: %w", q.stage, t.ID, err)
	}
	return nil
}

// Len returns the number of tasks waiting in the ready set, including those
// scheduled for later.
func (q *RedisQueue) Len(ctx context.Context) int {
	n, err := q.client.ZCard(ctx, q.readyKey()).Result()
	if err != nil {
		q.logger.Warn(ctx, "queue length unavailable",
			logger.String("stage", string(q.stage)),
			logger.Error(err),
		)
		return 0
	}
	metrics.UpdateQueueDepth(string(q.stage), int(n))
	return int(n)
}

// InFlight returns the number of claimed but unacknowledged tasks.
func (q *RedisQueue) InFlight(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.inflightKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("in-flight count: %w", err)
	}
	return int(n), nil
}

// Close stops consumers. The Redis client is owned by the caller.
func (q *RedisQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

func (q *RedisQueue) isClosed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

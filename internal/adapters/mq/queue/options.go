package queue

import (
	"time"

	"github.com/okian/pitchjudge/pkg/logger"
)

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of ready and delayed tasks.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithMemoryLogger sets a custom logger.
func WithMemoryLogger(log logger.Logger) Option {
	return func(q *InMemoryQueue) {
		if log != nil {
			q.logger = log
		}
	}
}

// RedisOption applies a configuration option to the RedisQueue.
type RedisOption func(*RedisQueue)

// WithPollInterval sets how often an idle consumer checks for ready tasks.
func WithPollInterval(d time.Duration) RedisOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithLease sets how long a dequeued task may stay unacknowledged before the
// reaper hands it to another consumer.
func WithLease(d time.Duration) RedisOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.lease = d
		}
	}
}

// WithRedisClock sets the time source used for ready times and leases.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(q *RedisQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithRedisLogger sets a custom logger.
func WithRedisLogger(log logger.Logger) RedisOption {
	return func(q *RedisQueue) {
		if log != nil {
			q.logger = log
		}
	}
}

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// admitScript prunes and counts every window before recording into any of
// them, so a denial leaves no trace.
//
// KEYS: one sorted set per window.
// ARGV: now_ms, member, then size_ms and limit per window.
// Returns {1, 0} when admitted or {0, index} of the first full window.
var admitScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local member = ARGV[2]

	for i, key in ipairs(KEYS) do
		local size = tonumber(ARGV[1 + i * 2])
		local limit = tonumber(ARGV[2 + i * 2])
		redis.call('ZREMRANGEBYSCORE', key, '-inf', now - size)
		if redis.call('ZCARD', key) >= limit then
			return {0, i}
		end
	end

	for i, key in ipairs(KEYS) do
		local size = tonumber(ARGV[1 + i * 2])
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, size)
	end
	return {1, 0}
`)

// RedisStore shares limiter state across processes through Redis sorted sets.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Admit(ctx context.Context, key string, windows []Window, now time.Time, member string) (bool, *Window, error) {
	keys := make([]string, len(windows))
	args := make([]any, 0, 2+2*len(windows))
	args = append(args, now.UnixMilli(), member)
	for i, w := range windows {
		keys[i] = storageKey(key, w)
		args = append(args, w.Size.Milliseconds(), w.Limit)
	}

	result, err := admitScript.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		return false, nil, fmt.Errorf("rate limit script: %w", err)
	}

	res, ok := result.([]any)
	if !ok || len(res) < 2 {
		return false, nil, fmt.Errorf("%w: %v", ErrUnexpectedReply, result)
	}
	allowed, ok1 := res[0].(int64)
	index, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return false, nil, fmt.Errorf("%w: %v", ErrUnexpectedReply, res)
	}
	if allowed == 1 {
		return true, nil, nil
	}
	if index < 1 || int(index) > len(windows) {
		return false, nil, fmt.Errorf("%w: window index %d", ErrUnexpectedReply, index)
	}
	w := windows[index-1]
	return false, &w, nil
}

func (s *RedisStore) Stats(ctx context.Context, key string, w Window, now time.Time) (Stats, error) {
	k := storageKey(key, w)
	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", fmt.Sprint(now.Add(-w.Size).UnixMilli()))
		card = p.ZCard(ctx, k)
		oldest = p.ZRangeWithScores(ctx, k, 0, 0)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("rate limit stats: %w", err)
	}

	st := Stats{Count: int(card.Val())}
	if zs := oldest.Val(); len(zs) > 0 {
		st.Oldest = time.UnixMilli(int64(zs[0].Score))
	}
	return st, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string, windows []Window) error {
	keys := make([]string, len(windows))
	for i, w := range windows {
		keys[i] = storageKey(key, w)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}

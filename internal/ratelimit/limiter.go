package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/pitchjudge/pkg/logger"
	"github.com/okian/pitchjudge/pkg/metrics"
)

// Limiter decision labels recorded in metrics.
const (
	outcomeAdmitted = "admitted"
	outcomeDenied   = "denied"
	outcomeFailOpen = "fail_open"

	availabilityPollCap = 10 * time.Second
)

// Usage reports one window's state for a key.
type Usage struct {
	Window    string        `json:"window"`
	Current   int           `json:"current"`
	Limit     int           `json:"limit"`
	Remaining int           `json:"remaining"`
	ResetIn   time.Duration `json:"reset_in"`
}

// Limiter admits calls against one or more sliding windows held in a Store.
// When the store fails the limiter admits the call.
type Limiter struct {
	store   Store
	windows []Window
	now     func() time.Time
	logger  logger.Logger
}

// Option applies a configuration option to the Limiter.
type Option func(*Limiter)

// WithWindows replaces the default 10-per-minute window.
func WithWindows(windows ...Window) Option {
	return func(l *Limiter) {
		if len(windows) > 0 {
			l.windows = windows
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.logger = log
		}
	}
}

// New creates a Limiter over store.
func New(store Store, opts ...Option) (*Limiter, error) {
	l := &Limiter{
		store:   store,
		windows: DefaultWindows(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("ratelimit")
	}
	seen := make(map[string]bool, len(l.windows))
	for _, w := range l.windows {
		if err := w.validate(); err != nil {
			return nil, err
		}
		if seen[w.Name] {
			return nil, fmt.Errorf("%w: duplicate window %s", ErrInvalidWindow, w.Name)
		}
		seen[w.Name] = true
	}
	return l, nil
}

// Admit reports whether a call for key may proceed now, recording it if so.
func (l *Limiter) Admit(ctx context.Context, key string) bool {
	now := l.now()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	allowed, full, err := l.store.Admit(ctx, key, l.windows, now, member)
	if err != nil {
		l.logger.Warn(ctx, "rate limit store unavailable, admitting",
			logger.String("key", key),
			logger.Error(err),
		)
		metrics.RecordLimiterDecision(outcomeFailOpen)
		return true
	}
	if !allowed {
		name := ""
		if full != nil {
			name = full.Name
		}
		l.logger.Debug(ctx, "rate limit reached",
			logger.String("key", key),
			logger.String("window", name),
		)
		metrics.RecordLimiterDecision(outcomeDenied)
		return false
	}
	metrics.RecordLimiterDecision(outcomeAdmitted)
	return true
}

// WaitTime returns how long until a slot frees for key. With several windows
// it is the longest wait among the full ones; when none is full it is the
// first window's time until its oldest entry expires. Store errors yield zero.
func (l *Limiter) WaitTime(ctx context.Context, key string) time.Duration {
	now := l.now()
	var (
		first     time.Duration
		longest   time.Duration
		saturated bool
	)
	for i, w := range l.windows {
		st, err := l.store.Stats(ctx, key, w, now)
		if err != nil {
			l.logger.Warn(ctx, "rate limit stats unavailable",
				logger.String("key", key),
				logger.Error(err),
			)
			return 0
		}
		wait := untilFree(st, w, now)
		if i == 0 {
			first = wait
		}
		if st.Count >= w.Limit {
			saturated = true
			if wait > longest {
				longest = wait
			}
		}
	}
	if saturated {
		return longest
	}
	return first
}

// Usage reports every window's state for key.
func (l *Limiter) Usage(ctx context.Context, key string) ([]Usage, error) {
	now := l.now()
	out := make([]Usage, 0, len(l.windows))
	for _, w := range l.windows {
		st, err := l.store.Stats(ctx, key, w, now)
		if err != nil {
			return nil, err
		}
		remaining := w.Limit - st.Count
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, Usage{
			Window:    w.Name,
			Current:   st.Count,
			Limit:     w.Limit,
			Remaining: remaining,
			ResetIn:   untilFree(st, w, now),
		})
	}
	return out, nil
}

// Reset clears every window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.store.Reset(ctx, key, l.windows); err != nil {
		return err
	}
	l.logger.Info(ctx, "rate limit reset", logger.String("key", key))
	return nil
}

// WaitForAvailability blocks until key is admitted or maxWait elapses.
// It returns false on timeout and the context error on cancellation.
func (l *Limiter) WaitForAvailability(ctx context.Context, key string, maxWait time.Duration) (bool, error) {
	deadline := l.now().Add(maxWait)
	for {
		if l.Admit(ctx, key) {
			return true, nil
		}
		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			return false, nil
		}
		wait := l.WaitTime(ctx, key)
		if wait <= 0 {
			wait = time.Second
		}
		wait = min(wait, availabilityPollCap, remaining)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, fmt.Errorf("wait for rate limit: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// untilFree is the time until the oldest entry leaves the window.
func untilFree(st Stats, w Window, now time.Time) time.Duration {
	if st.Count == 0 || st.Oldest.IsZero() {
		return 0
	}
	wait := st.Oldest.Add(w.Size).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

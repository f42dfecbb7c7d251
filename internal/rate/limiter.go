package rate

import (
	"context"
	"errors"
	"time"
)

// Config holds the fixed-window budget shared by the identity and origin counters.
type Config struct {
	Points   int
	Duration time.Duration
	Prefix   string
}

// Keys names the two counters consumed by one attempt. Empty keys are skipped.
type Keys struct {
	Identity string
	Origin   string
}

// Outcome describes the more restrictive of the consumed counters.
type Outcome struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// CounterStore is an atomic increment-with-expiry primitive.
//
// Increment adds one to key, starting a window of the given length on the
// first hit, and returns the post-increment count and the time left in the
// window.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Delete(ctx context.Context, keys ...string) error
}

// Limiter enforces per-identity and per-origin attempt budgets.
type Limiter struct {
	store  CounterStore
	config Config
	now    func() time.Time
}

// New creates a Limiter over store.
func New(store CounterStore, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate limiter requires a counter store")
	}
	if cfg.Points <= 0 {
		return nil, errors.New("rate limiter points must be > 0")
	}
	if cfg.Duration <= 0 {
		return nil, errors.New("rate limiter duration must be > 0")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{store: store, config: cfg, now: time.Now}, nil
}

// Consume deducts one point from each counter. The attempt is allowed only
// if neither counter is exhausted.
//
// Both counters are always charged; the pair is not atomic, but a partial
// failure can only over-count, never under-count.
func (l *Limiter) Consume(ctx context.Context, keys Keys) (Outcome, error) {
	out := Outcome{Allowed: true, Limit: l.config.Points, Remaining: l.config.Points}
	now := l.now()

	for _, key := range l.keys(keys) {
		count, ttl, err := l.store.Increment(ctx, key, l.config.Duration)
		if err != nil {
			return Outcome{}, err
		}

		remaining := l.config.Points - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetAt := now.Add(ttl)

		if int(count) > l.config.Points {
			out.Allowed = false
		}
		if remaining < out.Remaining || (remaining == out.Remaining && resetAt.After(out.ResetAt)) {
			out.Remaining = remaining
			out.ResetAt = resetAt
		}
	}

	if out.ResetAt.IsZero() {
		out.ResetAt = now.Add(l.config.Duration)
	}
	return out, nil
}

// Reset clears both counters. Called after a successful login.
func (l *Limiter) Reset(ctx context.Context, keys Keys) error {
	k := l.keys(keys)
	if len(k) == 0 {
		return nil
	}
	return l.store.Delete(ctx, k...)
}

func (l *Limiter) keys(keys Keys) []string {
	out := make([]string, 0, 2)
	if keys.Identity != "" {
		out = append(out, identityKey(l.config.Prefix, keys.Identity))
	}
	if keys.Origin != "" {
		out = append(out, originKey(l.config.Prefix, keys.Origin))
	}
	return out
}

package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotMember is returned when an operation names a session id that is
	// not currently live for the account.
	ErrNotMember = errors.New("session not member")
	// ErrContention is returned when the compare-and-set loop gives up.
	ErrContention = errors.New("session list contention")
	// ErrRedisUnavailable wraps Redis failures from RedisStore.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const defaultMaxRetries = 16

// ListStore persists one session list per account.
//
// SwapSessions replaces the stored list with next only if it still equals
// old, and reports whether the swap happened. The comparison is element-wise
// and order-sensitive; an absent list equals an empty one.
type ListStore interface {
	LoadSessions(ctx context.Context, accountID string) ([]string, error)
	SwapSessions(ctx context.Context, accountID string, old, next []string) (bool, error)
}

// Config tunes a Registry.
type Config struct {
	Capacity   int
	MaxRetries int
	// NewID mints session ids. Defaults to random UUIDs.
	NewID func() string
	// OnEvict is called with ids dropped by Add to stay within Capacity.
	OnEvict func(accountID string, evicted []string)
}

// Registry maintains the bounded session list of each account.
//
// Every mutation is a read-modify-write retried under optimistic
// compare-and-set, so concurrent calls for the same account never lose
// updates. Calls for different accounts never contend.
type Registry struct {
	store  ListStore
	config Config
}

// NewRegistry returns a Registry over store.
func NewRegistry(store ListStore, cfg Config) *Registry {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Registry{store: store, config: cfg}
}

// Capacity returns the per-account bound.
func (r *Registry) Capacity() int {
	return r.config.Capacity
}

// Add creates a new session id for the account, evicting the oldest entry
// when the list is full.
func (r *Registry) Add(ctx context.Context, accountID string) (string, error) {
	id := r.config.NewID()
	var evicted []string
	err := r.mutate(ctx, accountID, func(l *List) (bool, error) {
		evicted = l.InsertEvictingOldest(id)
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if len(evicted) > 0 && r.config.OnEvict != nil {
		r.config.OnEvict(accountID, evicted)
	}
	return id, nil
}

// Remove deletes sessionID and reports whether it was live. Removing an
// absent id writes nothing.
func (r *Registry) Remove(ctx context.Context, accountID, sessionID string) (bool, error) {
	var removed bool
	err := r.mutate(ctx, accountID, func(l *List) (bool, error) {
		removed = l.Remove(sessionID)
		return removed, nil
	})
	return removed, err
}

// Reset clears every session of the account.
func (r *Registry) Reset(ctx context.Context, accountID string) error {
	return r.mutate(ctx, accountID, func(l *List) (bool, error) {
		if l.Len() == 0 {
			return false, nil
		}
		l.Clear()
		return true, nil
	})
}

// ResetIfMember clears every session of the account provided sessionID is
// live at the moment of the write. Otherwise it returns ErrNotMember.
func (r *Registry) ResetIfMember(ctx context.Context, accountID, sessionID string) error {
	return r.mutate(ctx, accountID, func(l *List) (bool, error) {
		if !l.Contains(sessionID) {
			return false, ErrNotMember
		}
		l.Clear()
		return true, nil
	})
}

// Rotate replaces sessionID with a fresh id in one atomic step. It returns
// ErrNotMember when sessionID is not live, so of several concurrent rotations
// of the same id exactly one succeeds.
func (r *Registry) Rotate(ctx context.Context, accountID, sessionID string) (string, error) {
	next := r.config.NewID()
	err := r.mutate(ctx, accountID, func(l *List) (bool, error) {
		if !l.Remove(sessionID) {
			return false, ErrNotMember
		}
		l.InsertEvictingOldest(next)
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// IsMember reports whether sessionID is live for the account.
func (r *Registry) IsMember(ctx context.Context, accountID, sessionID string) (bool, error) {
	ids, err := r.store.LoadSessions(ctx, accountID)
	if err != nil {
		return false, err
	}
	return NewList(r.config.Capacity, ids...).Contains(sessionID), nil
}

// Sessions returns the live ids, oldest first.
func (r *Registry) Sessions(ctx context.Context, accountID string) ([]string, error) {
	ids, err := r.store.LoadSessions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return NewList(r.config.Capacity, ids...).IDs(), nil
}

func (r *Registry) mutate(ctx context.Context, accountID string, fn func(*List) (bool, error)) error {
	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, err := r.store.LoadSessions(ctx, accountID)
		if err != nil {
			return err
		}

		list := NewList(r.config.Capacity, current...)
		changed, err := fn(list)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		swapped, err := r.store.SwapSessions(ctx, accountID, current, list.IDs())
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	return ErrContention
}

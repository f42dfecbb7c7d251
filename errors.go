package hecate

import (
	"errors"
	"fmt"
	"time"

	"github.com/giall/hecate/jwt"
)

var (
	// ErrInvalidToken is returned when a token fails signature, structure or expiry checks.
	ErrInvalidToken = jwt.ErrInvalidToken
	// ErrTokenTypeMismatch is returned when a valid token is presented where another type is expected.
	ErrTokenTypeMismatch = jwt.ErrTokenTypeMismatch
	// ErrInvalidCredentials is returned by Login and by operations that re-confirm the secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionNotMember is returned when a Refresh token names a session that is no longer live.
	ErrSessionNotMember = errors.New("session not member")
	// ErrRateLimited is matched by every *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrAlreadyConsumed is returned when a single-use token was already used or went stale.
	ErrAlreadyConsumed = errors.New("token already consumed")
	// ErrConflict is returned when a username or email is already registered.
	ErrConflict = errors.New("account conflict")
	// ErrPasswordPolicy is returned when a new secret violates the length bounds.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a password change keeps the same secret.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrInvalidInput is returned when a username or email fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionContention is returned when concurrent session updates could not be reconciled.
	ErrSessionContention = errors.New("session update contention")
	// ErrEngineNotReady is returned by methods called on an Engine not obtained from Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError reports a rejected login attempt and when it may be retried.
type RateLimitError struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter returns the wait relative to now, rounded up to whole seconds.
func (e *RateLimitError) RetryAfter(now time.Time) time.Duration {
	d := e.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

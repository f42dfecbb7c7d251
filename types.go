package hecate

import (
	"time"

	"github.com/giall/hecate/account"
)

// TokenPair is an Access plus Refresh token bound to one session.
type TokenPair struct {
	AccountID    string
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// Profile is the public view of an account. It never carries the credential hash.
type Profile struct {
	ID        string
	Username  string
	Email     string
	Verified  bool
	CreatedAt time.Time
}

// RateLimitStatus reports the budget left after an allowed login attempt.
type RateLimitStatus struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// LoginResult is returned by Login.
//
// RateLimit is nil when rate limiting is disabled.
type LoginResult struct {
	TokenPair
	Profile   Profile
	RateLimit *RateLimitStatus
}

func profileOf(a *account.Account) Profile {
	if a == nil {
		return Profile{}
	}
	return Profile{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Verified:  a.Verified,
		CreatedAt: a.CreatedAt,
	}
}

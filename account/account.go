// Package account defines the persisted account record and the storage contract
// the authentication engine runs against.
//
// Storage implementations live under store/ (memory, mongo, postgres). Every
// implementation must apply a [Patch] as one atomic conditional update: the
// engine relies on that for session-list compare-and-set and for the single-use
// gates (magic login, password reset, email verification).
package account

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound is returned by FindByID, Update and Delete when no account has the id.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned by Create and Update when a unique field collides.
	ErrDuplicate = errors.New("account already exists")
)

// Account is the stored identity record.
type Account struct {
	ID                string
	Username          string
	Email             string
	CredentialHash    string
	Verified          bool
	Sessions          []string
	MagicLoginAllowed bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone returns a deep copy so callers never share the Sessions backing array.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Sessions = slices.Clone(a.Sessions)
	return &out
}

// Field names a unique lookup key.
type Field string

const (
	FieldEmail    Field = "email"
	FieldUsername Field = "username"
)

// Store is the persistence contract.
//
// FindByField returns (nil, nil) when nothing matches. FindByID returns
// ErrNotFound. Update reports applied=false when the patch preconditions did
// not hold, and ErrNotFound when the id is unknown.
type Store interface {
	FindByField(ctx context.Context, field Field, value string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, acct *Account) error
	Update(ctx context.Context, id string, patch Patch) (bool, error)
	Delete(ctx context.Context, id string) error
}

// Patch is a partial update guarded by optional preconditions.
type Patch struct {
	Email             *string
	CredentialHash    *string
	Verified          *bool
	MagicLoginAllowed *bool
	// Sessions replaces the stored list when SetSessions is true.
	Sessions    []string
	SetSessions bool

	Where Condition
}

// Condition lists the field values that must hold for a Patch to apply.
// Nil fields are not checked.
type Condition struct {
	Email             *string
	CredentialHash    *string
	Verified          *bool
	MagicLoginAllowed *bool
	// Sessions is compared element-wise when MatchSessions is true.
	Sessions      []string
	MatchSessions bool
}

// Empty reports whether the condition checks nothing.
func (c Condition) Empty() bool {
	return c.Email == nil && c.CredentialHash == nil && c.Verified == nil &&
		c.MagicLoginAllowed == nil && !c.MatchSessions
}

// Matches evaluates the condition against a.
func (c Condition) Matches(a *Account) bool {
	if a == nil {
		return false
	}
	if c.Email != nil && *c.Email != a.Email {
		return false
	}
	if c.CredentialHash != nil && *c.CredentialHash != a.CredentialHash {
		return false
	}
	if c.Verified != nil && *c.Verified != a.Verified {
		return false
	}
	if c.MagicLoginAllowed != nil && *c.MagicLoginAllowed != a.MagicLoginAllowed {
		return false
	}
	if c.MatchSessions && !slices.Equal(c.Sessions, a.Sessions) {
		return false
	}
	return true
}

// Apply writes the patch fields into a. Preconditions are not evaluated.
func (p Patch) Apply(a *Account, now time.Time) {
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.CredentialHash != nil {
		a.CredentialHash = *p.CredentialHash
	}
	if p.Verified != nil {
		a.Verified = *p.Verified
	}
	if p.MagicLoginAllowed != nil {
		a.MagicLoginAllowed = *p.MagicLoginAllowed
	}
	if p.SetSessions {
		a.Sessions = slices.Clone(p.Sessions)
		if a.Sessions == nil {
			a.Sessions = []string{}
		}
	}
	a.UpdatedAt = now
}

// NewID returns a fresh lexically sortable account id.
func NewID() string {
	return ulid.Make().String()
}

// NormalizeEmail lower-cases and trims an address so lookups are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Ref returns a pointer to v, for building patches inline.
func Ref[T any](v T) *T {
	return &v
}

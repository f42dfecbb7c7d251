package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/giall/hecate/account"
	"github.com/giall/hecate/internal/rate"
	"github.com/giall/hecate/jwt"
	"github.com/giall/hecate/notify"
	"github.com/giall/hecate/session"
)

// SessionRegistry is the subset of session.Registry used by flows.
type SessionRegistry interface {
	Add(ctx context.Context, accountID string) (string, error)
	Remove(ctx context.Context, accountID, sessionID string) (bool, error)
	Reset(ctx context.Context, accountID string) error
	ResetIfMember(ctx context.Context, accountID, sessionID string) error
	Rotate(ctx context.Context, accountID, sessionID string) (string, error)
}

// TokenCodec is the subset of jwt.Manager used by flows.
type TokenCodec interface {
	Issue(typ jwt.TokenType, p jwt.Payload) (string, error)
	Decode(token string, expected jwt.TokenType) (*jwt.Claims, error)
}

// AttemptLimiter is the subset of rate.Limiter used by flows.
type AttemptLimiter interface {
	Consume(ctx context.Context, keys rate.Keys) (rate.Outcome, error)
	Reset(ctx context.Context, keys rate.Keys) error
}

// CredentialVerifier is the subset of password.Verifier used by flows.
type CredentialVerifier interface {
	Hash(secret string) (string, error)
	Compare(secret, encodedHash string) bool
	NeedsRehash(encodedHash string) bool
}

// Policy carries secret length bounds enforced on new secrets.
type Policy struct {
	MinPasswordLength int
	MaxPasswordLength int
	UpgradeOnLogin    bool
}

// Errors carries host-level sentinel errors returned by flows.
type Errors struct {
	EngineNotReady     error
	InvalidToken       error
	TokenTypeMismatch  error
	InvalidCredentials error
	SessionNotMember   error
	SessionContention  error
	AlreadyConsumed    error
	Conflict           error
	PasswordPolicy     error
	PasswordReuse      error
	InvalidInput       error
	RateLimited        func(rate.Outcome) error
}

// Deps groups everything flows need. The root engine builds this once and
// delegates each request method to the matching Run function.
type Deps struct {
	Accounts    account.Store
	Sessions    SessionRegistry
	Tokens      TokenCodec
	Limiter     AttemptLimiter
	Credentials CredentialVerifier

	Notify   func(ctx context.Context, msg notify.Message)
	ClientIP func(ctx context.Context) string
	Now      func() time.Time
	Log      zerolog.Logger

	Policy Policy
	Errors Errors
}

// TokenPair is an Access plus Refresh token bound to one session.
type TokenPair struct {
	AccountID    string
	SessionID    string
	AccessToken  string
	RefreshToken string
}

func (d *Deps) ready() error {
	if d.Accounts == nil || d.Sessions == nil || d.Tokens == nil || d.Credentials == nil {
		return d.Errors.EngineNotReady
	}
	return nil
}

func (d *Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d *Deps) clientIP(ctx context.Context) string {
	if d.ClientIP == nil {
		return ""
	}
	return d.ClientIP(ctx)
}

func (d *Deps) notify(ctx context.Context, msg notify.Message) {
	if d.Notify != nil {
		d.Notify(ctx, msg)
	}
}

// decodeError collapses codec failures to the host's token sentinels so
// parser detail never reaches callers.
func (d *Deps) decodeError(err error) error {
	if errors.Is(err, jwt.ErrTokenTypeMismatch) {
		return d.Errors.TokenTypeMismatch
	}
	return d.Errors.InvalidToken
}

func (d *Deps) sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotMember):
		return d.Errors.SessionNotMember
	case errors.Is(err, session.ErrContention):
		return d.Errors.SessionContention
	case errors.Is(err, account.ErrNotFound):
		return d.Errors.InvalidToken
	default:
		return fmt.Errorf("session registry: %w", err)
	}
}

func (d *Deps) checkPassword(secret string) error {
	n := utf8.RuneCountInString(secret)
	if d.Policy.MinPasswordLength > 0 && n < d.Policy.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", d.Errors.PasswordPolicy, d.Policy.MinPasswordLength)
	}
	if d.Policy.MaxPasswordLength > 0 && n > d.Policy.MaxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d characters", d.Errors.PasswordPolicy, d.Policy.MaxPasswordLength)
	}
	return nil
}

func (d *Deps) issuePair(accountID, sessionID string) (*TokenPair, error) {
	access, err := d.Tokens.Issue(jwt.TypeAccess, jwt.Payload{Subject: accountID})
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := d.Tokens.Issue(jwt.TypeRefresh, jwt.Payload{Subject: accountID, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &TokenPair{
		AccountID:    accountID,
		SessionID:    sessionID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// startSession adds a session and issues its token pair.
func (d *Deps) startSession(ctx context.Context, accountID string) (*TokenPair, error) {
	sessionID, err := d.Sessions.Add(ctx, accountID)
	if err != nil {
		return nil, d.sessionError(err)
	}
	return d.issuePair(accountID, sessionID)
}

// findByEmail looks up an account by normalized address; nil when absent.
func (d *Deps) findByEmail(ctx context.Context, email string) (*account.Account, error) {
	acct, err := d.Accounts.FindByField(ctx, account.FieldEmail, account.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return acct, nil
}

// loadSubject resolves the account a verified token names. A token whose
// account is gone is treated as invalid.
func (d *Deps) loadSubject(ctx context.Context, id string) (*account.Account, error) {
	acct, err := d.Accounts.FindByID(ctx, id)
	if errors.Is(err, account.ErrNotFound) {
		return nil, d.Errors.InvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return acct, nil
}

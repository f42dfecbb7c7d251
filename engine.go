package hecate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/giall/hecate/account"
	"github.com/giall/hecate/internal/flows"
	"github.com/giall/hecate/internal/rate"
	"github.com/giall/hecate/jwt"
	"github.com/giall/hecate/notify"
	"github.com/giall/hecate/password"
	"github.com/giall/hecate/session"
)

// Engine runs the account and token lifecycle flows.
//
// Engine instances are built once with a Builder and are safe for concurrent
// use. Every operation that fails returns an error matching one of the
// package sentinels with errors.Is, or an unclassified storage error.
type Engine struct {
	config     Config
	accounts   account.Store
	registry   *session.Registry
	limiter    *rate.Limiter
	tokens     *jwt.Manager
	verifier   *password.Verifier
	dispatcher *notify.Dispatcher
	metrics    *Metrics
	log        zerolog.Logger
	now        func() time.Time

	deps flows.Deps
}

// Close stops the notification queue after delivering what it holds.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.dispatcher.Close()
}

// NotificationsDropped reports messages discarded because the queue was full.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) enqueue(ctx context.Context, msg notify.Message) {
	if err := e.dispatcher.Send(ctx, msg); err != nil {
		e.log.Warn().Err(err).Str("kind", string(msg.Kind)).Str("account_id", msg.AccountID).Msg("notification not queued")
	}
}

func pairOf(p flows.TokenPair) TokenPair {
	return TokenPair{
		AccountID:    p.AccountID,
		SessionID:    p.SessionID,
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
	}
}

// Register creates an unverified account and sends it a verification link.
func (e *Engine) Register(ctx context.Context, username, email, secret string) (Profile, error) {
	if e == nil {
		return Profile{}, ErrEngineNotReady
	}
	acct, err := flows.RunRegister(ctx, username, email, secret, e.deps)
	e.metrics.observe(flowRegister, err)
	if err != nil {
		return Profile{}, err
	}
	return profileOf(acct), nil
}

// Login verifies email and secret and opens a session, evicting the oldest
// one when the account is at capacity. Use WithClientIP on ctx so the
// per-origin budget applies.
func (e *Engine) Login(ctx context.Context, email, secret string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res, err := flows.RunLogin(ctx, email, secret, e.deps)
	e.metrics.observe(flowLogin, err)
	if err != nil {
		return nil, err
	}

	out := &LoginResult{
		TokenPair: pairOf(res.TokenPair),
		Profile:   profileOf(res.Account),
	}
	if res.RateLimit != nil {
		out.RateLimit = &RateLimitStatus{
			Limit:     res.RateLimit.Limit,
			Remaining: res.RateLimit.Remaining,
			ResetAt:   res.RateLimit.ResetAt,
		}
	}
	return out, nil
}

// Refresh rotates the session named by refreshToken. The old token stops
// working; replaying it returns ErrSessionNotMember.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	pair, err := flows.RunRefresh(ctx, refreshToken, e.deps)
	e.metrics.observe(flowRefresh, err)
	if err != nil {
		return nil, err
	}
	out := pairOf(*pair)
	return &out, nil
}

// Logout ends the session named by refreshToken.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := flows.RunLogout(ctx, refreshToken, e.deps)
	e.metrics.observe(flowLogout, err)
	return err
}

// InvalidateAll ends every session of the account, provided the presented
// session is still live.
func (e *Engine) InvalidateAll(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := flows.RunInvalidateAll(ctx, refreshToken, e.deps)
	e.metrics.observe(flowInvalidateAll, err)
	return err
}

// Authenticate resolves an Access token to its account id.
func (e *Engine) Authenticate(accessToken string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	id, err := flows.RunAuthenticate(accessToken, e.deps)
	e.metrics.observe(flowAuthenticate, err)
	return id, err
}

// RequestMagicLogin sends a single-use login link. It returns nil for
// unknown addresses.
func (e *Engine) RequestMagicLogin(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := flows.RunRequestMagicLogin(ctx, email, e.deps)
	e.metrics.observe(flowMagicRequest, err)
	return err
}

// ConsumeMagicLogin exchanges a magic login token for a session.
func (e *Engine) ConsumeMagicLogin(ctx context.Context, token string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	pair, err := flows.RunConsumeMagicLogin(ctx, token, e.deps)
	e.metrics.observe(flowMagicConsume, err)
	if err != nil {
		return nil, err
	}
	out := pairOf(*pair)
	return &out, nil
}

// RequestPasswordReset sends a reset link. It returns nil for unknown addresses.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := flows.RunRequestPasswordReset(ctx, email, e.deps)
	e.metrics.observe(flowResetRequest, err)
	return err
}

// ResetPassword sets a new secret and ends every session. The token stops
// working as soon as the stored hash changes.
func (e *Engine) ResetPassword(ctx context.Context, token, newSecret string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := flows.RunResetPassword(ctx, token, newSecret, e.deps)
	e.metrics.observe(flowReset, err)
	return err
}

// RequestEmailVerification resends the verification link. Unknown and
// already verified addresses are silently skipped.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := flows.RunRequestEmailVerification(ctx, email, e.deps)
	e.metrics.observe(flowVerifyRequest, err)
	return err
}

// VerifyEmail marks the address named in token as verified.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := flows.RunVerifyEmail(ctx, token, e.deps)
	e.metrics.observe(flowVerify, err)
	return err
}

// ChangeEmail replaces the address after re-confirming the secret. The
// account becomes unverified and a new verification link is sent.
func (e *Engine) ChangeEmail(ctx context.Context, accountID, newEmail, secret string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := flows.RunChangeEmail(ctx, accountID, newEmail, secret, e.deps)
	e.metrics.observe(flowChangeEmail, err)
	return err
}

// ChangePassword replaces the secret after checking the current one.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldSecret, newSecret string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := flows.RunChangePassword(ctx, accountID, oldSecret, newSecret, e.deps)
	e.metrics.observe(flowChangePassword, err)
	return err
}

// DeleteAccount removes the account after re-confirming the secret.
func (e *Engine) DeleteAccount(ctx context.Context, accountID, secret string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := flows.RunDeleteAccount(ctx, accountID, secret, e.deps)
	e.metrics.observe(flowDeleteAccount, err)
	return err
}

// Profile returns the public view of an account.
func (e *Engine) Profile(ctx context.Context, accountID string) (Profile, error) {
	if e == nil {
		return Profile{}, ErrEngineNotReady
	}
	acct, err := e.accounts.FindByID(ctx, accountID)
	if errors.Is(err, account.ErrNotFound) {
		return Profile{}, ErrInvalidToken
	}
	if err != nil {
		return Profile{}, err
	}
	return profileOf(acct), nil
}

// Sessions lists the live session ids of an account, oldest first.
func (e *Engine) Sessions(ctx context.Context, accountID string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.registry.Sessions(ctx, accountID)
}

package flows

import (
	"context"
	"fmt"

	"github.com/giall/hecate/account"
	"github.com/giall/hecate/internal/rate"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	TokenPair
	Account   *account.Account
	RateLimit *rate.Outcome
}

// RunLogin verifies email and secret and opens a new session.
//
// The limiter is consumed before anything else. The credential comparison
// always runs, against a dummy hash when the account does not exist.
func RunLogin(ctx context.Context, email, secret string, deps Deps) (*LoginResult, error) {
	if err := deps.ready(); err != nil {
		return nil, err
	}

	email = account.NormalizeEmail(email)
	keys := rate.Keys{Identity: email, Origin: deps.clientIP(ctx)}

	var outcome *rate.Outcome
	if deps.Limiter != nil {
		out, err := deps.Limiter.Consume(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if !out.Allowed {
			deps.Log.Info().Str("origin", keys.Origin).Msg("login rate limited")
			return nil, deps.Errors.RateLimited(out)
		}
		outcome = &out
	}

	acct, err := deps.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	var hash string
	if acct != nil {
		hash = acct.CredentialHash
	}
	ok := deps.Credentials.Compare(secret, hash)
	if acct == nil || !ok {
		return nil, deps.Errors.InvalidCredentials
	}

	if deps.Limiter != nil {
		if err := deps.Limiter.Reset(ctx, keys); err != nil {
			deps.Log.Warn().Err(err).Str("account_id", acct.ID).Msg("rate limiter reset failed")
		}
	}

	if deps.Policy.UpgradeOnLogin && deps.Credentials.NeedsRehash(hash) {
		upgradeHash(ctx, acct, secret, deps)
	}

	pair, err := deps.startSession(ctx, acct.ID)
	if err != nil {
		return nil, err
	}

	deps.Log.Info().Str("account_id", acct.ID).Str("session_id", pair.SessionID).Msg("login")
	return &LoginResult{TokenPair: *pair, Account: acct, RateLimit: outcome}, nil
}

// upgradeHash rewrites a legacy or weaker hash. The write is conditional on
// the hash being unchanged, so it can never clobber a concurrent reset.
func upgradeHash(ctx context.Context, acct *account.Account, secret string, deps Deps) {
	upgraded, err := deps.Credentials.Hash(secret)
	if err != nil {
		deps.Log.Warn().Err(err).Str("account_id", acct.ID).Msg("password hash upgrade generation failed")
		return
	}
	applied, err := deps.Accounts.Update(ctx, acct.ID, account.Patch{
		CredentialHash: &upgraded,
		Where:          account.Condition{CredentialHash: account.Ref(acct.CredentialHash)},
	})
	if err != nil {
		deps.Log.Warn().Err(err).Str("account_id", acct.ID).Msg("password hash upgrade update failed")
		return
	}
	if applied {
		acct.CredentialHash = upgraded
	}
}

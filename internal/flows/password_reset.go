package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/giall/hecate/account"
	"github.com/giall/hecate/jwt"
	"github.com/giall/hecate/notify"
	"github.com/giall/hecate/password"
)

// RunRequestPasswordReset sends a PasswordReset link bound to the current
// credential hash. Unknown addresses are a silent no-op.
func RunRequestPasswordReset(ctx context.Context, email string, deps Deps) error {
	if err := deps.ready(); err != nil {
		return err
	}

	acct, err := deps.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if acct == nil {
		deps.Log.Debug().Msg("password reset requested for unknown email")
		return nil
	}

	token, err := deps.Tokens.Issue(jwt.TypePasswordReset, jwt.Payload{
		Subject:  acct.ID,
		Snapshot: password.Fingerprint(acct.CredentialHash),
	})
	if err != nil {
		return fmt.Errorf("issue password reset token: %w", err)
	}

	deps.notify(ctx, notify.Message{
		Kind:      notify.KindPasswordReset,
		AccountID: acct.ID,
		Username:  acct.Username,
		Email:     acct.Email,
		Token:     token,
	})
	return nil
}

// RunResetPassword stores newSecret if the token's snapshot still matches the
// stored hash. Any credential change, including a previous reset with the
// same token, makes the token stale. All sessions are cleared afterwards.
func RunResetPassword(ctx context.Context, token, newSecret string, deps Deps) error {
	if err := deps.ready(); err != nil {
		return err
	}
	if err := deps.checkPassword(newSecret); err != nil {
		return err
	}

	claims, err := deps.Tokens.Decode(token, jwt.TypePasswordReset)
	if err != nil {
		return deps.decodeError(err)
	}

	acct, err := deps.loadSubject(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if !password.FingerprintMatches(claims.Snapshot, acct.CredentialHash) {
		return deps.Errors.AlreadyConsumed
	}

	hash, err := deps.Credentials.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	applied, err := deps.Accounts.Update(ctx, acct.ID, account.Patch{
		CredentialHash: &hash,
		Where:          account.Condition{CredentialHash: account.Ref(acct.CredentialHash)},
	})
	if errors.Is(err, account.ErrNotFound) {
		return deps.Errors.InvalidToken
	}
	if err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	if !applied {
		return deps.Errors.AlreadyConsumed
	}

	if err := deps.Sessions.Reset(ctx, acct.ID); err != nil {
		deps.Log.Warn().Err(err).Str("account_id", acct.ID).Msg("session cleanup after password reset failed")
	}
	deps.Log.Info().Str("account_id", acct.ID).Msg("password reset")
	return nil
}

package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/giall/hecate/account"
	"github.com/giall/hecate/jwt"
	"github.com/giall/hecate/notify"
)

// RunRequestEmailVerification resends the verification link. Unknown and
// already verified addresses are a silent no-op.
func RunRequestEmailVerification(ctx context.Context, email string, deps Deps) error {
	if err := deps.ready(); err != nil {
		return err
	}

	acct, err := deps.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if acct == nil || acct.Verified {
		return nil
	}
	return sendVerification(ctx, acct, deps)
}

// RunVerifyEmail marks the address the token was issued for as verified.
// A second use, or a use after the address changed, is AlreadyConsumed.
func RunVerifyEmail(ctx context.Context, token string, deps Deps) error {
	if err := deps.ready(); err != nil {
		return err
	}

	claims, err := deps.Tokens.Decode(token, jwt.TypeEmailVerification)
	if err != nil {
		return deps.decodeError(err)
	}

	applied, err := deps.Accounts.Update(ctx, claims.Subject, account.Patch{
		Verified: account.Ref(true),
		Where: account.Condition{
			Verified: account.Ref(false),
			Email:    account.Ref(claims.Email),
		},
	})
	if errors.Is(err, account.ErrNotFound) {
		return deps.Errors.InvalidToken
	}
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	if !applied {
		return deps.Errors.AlreadyConsumed
	}
	deps.Log.Info().Str("account_id", claims.Subject).Msg("email verified")
	return nil
}

func sendVerification(ctx context.Context, acct *account.Account, deps Deps) error {
	token, err := deps.Tokens.Issue(jwt.TypeEmailVerification, jwt.Payload{
		Subject: acct.ID,
		Email:   acct.Email,
	})
	if err != nil {
		return fmt.Errorf("issue email verification token: %w", err)
	}
	deps.notify(ctx, notify.Message{
		Kind:      notify.KindEmailVerification,
		AccountID: acct.ID,
		Username:  acct.Username,
		Email:     acct.Email,
		Token:     token,
	})
	return nil
}

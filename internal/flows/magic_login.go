package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/giall/hecate/account"
	"github.com/giall/hecate/jwt"
	"github.com/giall/hecate/notify"
)

// RunRequestMagicLogin arms the account's single-use gate and sends a
// MagicLogin link. Unknown addresses are a silent no-op.
func RunRequestMagicLogin(ctx context.Context, email string, deps Deps) error {
	if err := deps.ready(); err != nil {
		return err
	}

	acct, err := deps.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if acct == nil {
		deps.Log.Debug().Msg("magic login requested for unknown email")
		return nil
	}

	if _, err := deps.Accounts.Update(ctx, acct.ID, account.Patch{MagicLoginAllowed: account.Ref(true)}); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("arm magic login: %w", err)
	}

	token, err := deps.Tokens.Issue(jwt.TypeMagicLogin, jwt.Payload{Subject: acct.ID})
	if err != nil {
		return fmt.Errorf("issue magic login token: %w", err)
	}

	deps.notify(ctx, notify.Message{
		Kind:      notify.KindMagicLogin,
		AccountID: acct.ID,
		Username:  acct.Username,
		Email:     acct.Email,
		Token:     token,
	})
	return nil
}

// RunConsumeMagicLogin closes the gate and opens a session. Only the first
// consumption after a request succeeds; the gate flip is one conditional
// update so concurrent consumers cannot both win.
func RunConsumeMagicLogin(ctx context.Context, token string, deps Deps) (*TokenPair, error) {
	if err := deps.ready(); err != nil {
		return nil, err
	}

	claims, err := deps.Tokens.Decode(token, jwt.TypeMagicLogin)
	if err != nil {
		return nil, deps.decodeError(err)
	}

	applied, err := deps.Accounts.Update(ctx, claims.Subject, account.Patch{
		MagicLoginAllowed: account.Ref(false),
		Where:             account.Condition{MagicLoginAllowed: account.Ref(true)},
	})
	if errors.Is(err, account.ErrNotFound) {
		return nil, deps.Errors.InvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("consume magic login: %w", err)
	}
	if !applied {
		return nil, deps.Errors.AlreadyConsumed
	}

	pair, err := deps.startSession(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	deps.Log.Info().Str("account_id", claims.Subject).Str("session_id", pair.SessionID).Msg("magic login")
	return pair, nil
}

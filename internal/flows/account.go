package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/giall/hecate/account"
)

// RunRegister creates an unverified account and sends its verification link.
func RunRegister(ctx context.Context, username, email, secret string, deps Deps) (*account.Account, error) {
	if err := deps.ready(); err != nil {
		return nil, err
	}

	email = account.NormalizeEmail(email)
	if err := account.ValidateIdentity(account.Identity{Username: username, Email: email}); err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.InvalidInput, err)
	}
	if err := deps.checkPassword(secret); err != nil {
		return nil, err
	}

	existing, err := deps.Accounts.FindByField(ctx, account.FieldUsername, username)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: username %s is taken", deps.Errors.Conflict, username)
	}
	existing, err = deps.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email is already registered", deps.Errors.Conflict)
	}

	hash, err := deps.Credentials.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := deps.now()
	acct := &account.Account{
		ID:             account.NewID(),
		Username:       username,
		Email:          email,
		CredentialHash: hash,
		Sessions:       []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := deps.Accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			return nil, fmt.Errorf("%w: account already exists", deps.Errors.Conflict)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	deps.Log.Info().Str("account_id", acct.ID).Str("username", username).Msg("account registered")
	if err := sendVerification(ctx, acct, deps); err != nil {
		deps.Log.Warn().Err(err).Str("account_id", acct.ID).Msg("verification email not sent")
	}
	return acct.Clone(), nil
}

// RunChangeEmail moves the account to a new address. The account becomes
// unverified and a verification link is sent to the new address.
func RunChangeEmail(ctx context.Context, accountID, newEmail, secret string, deps Deps) error {
	if err := deps.ready(); err != nil {
		return err
	}

	newEmail = account.NormalizeEmail(newEmail)
	if err := account.ValidateEmail(newEmail); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.InvalidInput, err)
	}

	acct, err := deps.confirmSecret(ctx, accountID, secret)
	if err != nil {
		return err
	}
	if acct.Email == newEmail {
		return nil
	}

	existing, err := deps.findByEmail(ctx, newEmail)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: email is already registered", deps.Errors.Conflict)
	}

	applied, err := deps.Accounts.Update(ctx, acct.ID, account.Patch{
		Email:    &newEmail,
		Verified: account.Ref(false),
		Where:    account.Condition{CredentialHash: account.Ref(acct.CredentialHash)},
	})
	switch {
	case errors.Is(err, account.ErrDuplicate):
		return fmt.Errorf("%w: email is already registered", deps.Errors.Conflict)
	case errors.Is(err, account.ErrNotFound):
		return deps.Errors.InvalidToken
	case err != nil:
		return fmt.Errorf("change email: %w", err)
	case !applied:
		return deps.Errors.InvalidCredentials
	}

	acct.Email = newEmail
	acct.Verified = false
	deps.Log.Info().Str("account_id", acct.ID).Msg("email changed")
	if err := sendVerification(ctx, acct, deps); err != nil {
		deps.Log.Warn().Err(err).Str("account_id", acct.ID).Msg("verification email not sent")
	}
	return nil
}

// RunChangePassword replaces the secret after confirming the old one.
// Outstanding reset tokens become stale because the hash changes.
func RunChangePassword(ctx context.Context, accountID, oldSecret, newSecret string, deps Deps) error {
	if err := deps.ready(); err != nil {
		return err
	}
	if oldSecret == newSecret {
		return deps.Errors.PasswordReuse
	}
	if err := deps.checkPassword(newSecret); err != nil {
		return err
	}

	acct, err := deps.confirmSecret(ctx, accountID, oldSecret)
	if err != nil {
		return err
	}

	hash, err := deps.Credentials.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	applied, err := deps.Accounts.Update(ctx, acct.ID, account.Patch{
		CredentialHash: &hash,
		Where:          account.Condition{CredentialHash: account.Ref(acct.CredentialHash)},
	})
	switch {
	case errors.Is(err, account.ErrNotFound):
		return deps.Errors.InvalidToken
	case err != nil:
		return fmt.Errorf("change password: %w", err)
	case !applied:
		return deps.Errors.InvalidCredentials
	}

	deps.Log.Info().Str("account_id", acct.ID).Msg("password changed")
	return nil
}

// RunDeleteAccount removes the account after confirming its secret.
func RunDeleteAccount(ctx context.Context, accountID, secret string, deps Deps) error {
	if err := deps.ready(); err != nil {
		return err
	}

	acct, err := deps.confirmSecret(ctx, accountID, secret)
	if err != nil {
		return err
	}

	if err := deps.Sessions.Reset(ctx, acct.ID); err != nil {
		deps.Log.Warn().Err(err).Str("account_id", acct.ID).Msg("session cleanup before delete failed")
	}
	if err := deps.Accounts.Delete(ctx, acct.ID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return deps.Errors.InvalidToken
		}
		return fmt.Errorf("delete account: %w", err)
	}

	deps.Log.Info().Str("account_id", acct.ID).Msg("account deleted")
	return nil
}

func (d *Deps) confirmSecret(ctx context.Context, accountID, secret string) (*account.Account, error) {
	acct, err := d.loadSubject(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !d.Credentials.Compare(secret, acct.CredentialHash) {
		return nil, d.Errors.InvalidCredentials
	}
	return acct, nil
}

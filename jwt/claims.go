package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates the purpose a token was minted for.
type TokenType string

const (
	TypeAccess            TokenType = "access"
	TypeRefresh           TokenType = "refresh"
	TypeEmailVerification TokenType = "emailVerification"
	TypePasswordReset     TokenType = "passwordReset"
	TypeMagicLogin        TokenType = "magicLogin"
)

// Known reports whether t is one of the defined token types.
func (t TokenType) Known() bool {
	switch t {
	case TypeAccess, TypeRefresh, TypeEmailVerification, TypePasswordReset, TypeMagicLogin:
		return true
	default:
		return false
	}
}

// Payload is the caller-supplied content of a token. Which fields are
// required depends on the token type.
type Payload struct {
	Subject string
	// SessionID is required for refresh tokens.
	SessionID string
	// Snapshot is required for password reset tokens.
	Snapshot string
	// Email is required for email verification tokens.
	Email string
}

// Claims is the signed body. Subject carries the account id.
type Claims struct {
	Type      TokenType `json:"type"`
	SessionID string    `json:"session,omitempty"`
	Snapshot  string    `json:"hash,omitempty"`
	Email     string    `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) check(subject string) error {
	if subject == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	var missing string
	switch c.Type {
	case TypeAccess, TypeMagicLogin:
	case TypeRefresh:
		if c.SessionID == "" {
			missing = "session"
		}
	case TypePasswordReset:
		if c.Snapshot == "" {
			missing = "hash"
		}
	case TypeEmailVerification:
		if c.Email == "" {
			missing = "email"
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidToken, c.Type)
	}
	if missing != "" {
		return fmt.Errorf("%w: %s token missing %s", ErrInvalidToken, c.Type, missing)
	}
	return nil
}

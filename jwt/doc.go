// Package jwt mints and verifies the typed, expiring tokens used by every
// authentication flow: access, refresh, email verification, password reset
// and magic login.
//
// All tokens are HS256-signed under one shared secret. The type travels inside
// the signed body, so a token minted for one purpose can never be accepted for
// another: [Manager.Decode] fails with [ErrTokenTypeMismatch]. Lifetimes are
// fixed per type by [Config].
//
// There is no revocation list. An issued token stays valid until it expires;
// single-use behaviour is enforced by the engine against account state.
package jwt

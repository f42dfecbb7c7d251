// Package hecate is an account and token lifecycle engine: registration,
// password and magic link login, rotating refresh sessions, password reset
// and email verification.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// hecate is the public surface. It exposes [Engine], [Builder], [Config] and
// the value types returned by Engine methods. Flow orchestration and rate
// limiting live under internal/. Token encoding lives in jwt, credential
// hashing in password and the bounded session list in session. Account
// persistence is pluggable through [account.Store]; implementations live
// under store/.
//
// # Sessions
//
// Every account keeps at most Config.Session.MaxSessions live sessions. A
// login beyond that evicts the oldest. A Refresh token is only honoured while
// its session id is in the list, and each Refresh replaces that id, so a
// replayed token fails with [ErrSessionNotMember].
//
// # Single-use tokens
//
// Magic login, password reset and email verification tokens are stateless
// JWTs. Their single use is enforced by a conditional account update: the
// magic login flag, the credential hash fingerprint and the verified flag
// respectively.
//
// # Notifications
//
// Links are handed to a [notify.Sender] on a background queue. Request
// methods never report delivery failures and behave identically for unknown
// addresses.
package hecate

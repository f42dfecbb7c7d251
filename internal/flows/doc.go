// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunResetPassword, etc.) accepts a
// [Deps] value and returns results without side effects beyond those
// dependencies. The Engine stays thin and flows can be tested against
// in-memory collaborators.
//
// # Architecture boundaries
//
// Flows coordinate the account store, session registry, token codec, rate
// limiter and notifier. They do NOT own any of these resources; ownership
// stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import hecate (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
//   - Return store or codec errors that reveal whether an email is registered.
package flows

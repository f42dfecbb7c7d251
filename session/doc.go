// Package session tracks the bounded set of live session ids of each account.
//
// A session id is minted on login, rotated on every refresh and removed on
// logout. [List] is the fixed-capacity container (five entries by default,
// oldest evicted first). [Registry] applies List mutations to a [ListStore]
// under optimistic compare-and-set, so concurrent logins and refreshes for
// one account never lose updates and a rotation's remove-and-add is a single
// atomic step.
//
// Two ListStore implementations exist: the engine's adapter over the account
// record, and [RedisStore], which keeps lists in Redis behind a Lua
// compare-and-set script.
//
// # What this package must NOT do
//
//   - Interpret tokens or enforce authentication policy.
//   - Import the engine, jwt or account packages.
package session

// Package password implements credential hashing and verification.
//
// # Output format
//
// New hashes use argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt hashes are still verified so accounts imported from older stores keep
// working. [Verifier.NeedsRehash] reports when a stored hash uses a legacy
// scheme or weaker parameters so the caller can re-hash after a successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// reuse) is enforced by the engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other hecate package.
//   - Log plaintext passwords or hash parameters at runtime.
package password

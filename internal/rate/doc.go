// Package rate throttles authentication attempts with fixed-window counters.
//
// # Window semantics
//
// Each attempt charges two counters: one keyed by identity (the email) and one
// by origin (the client IP). A window starts on the first hit of a key and
// lasts Config.Duration. Key prefixes:
//   - <prefix>:id: per identity
//   - <prefix>:ip: per origin
//
// Counters live in an injected [CounterStore]: [RedisStore] for deployments
// with more than one instance, [MemoryStore] for a single process.
//
// # What this package must NOT do
//
//   - Decide what happens to a rejected attempt (the engine maps outcomes to errors).
//   - Be imported outside the hecate module.
package rate

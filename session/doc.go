// Package session implements the Redis-backed session registry.
//
// Each session is one JSON value at key <prefix><sessionId> carrying the
// owner, display fields, the (ip, deviceId) fingerprint and timestamps.
// Lifetime is enforced by the key TTL, which Touch renews at most once per
// touch interval. Listing and per-user revocation use SCAN over the prefix
// because the store has no secondary indexes.
//
// The package does not import the engine. It reports plain sentinel errors
// that the engine maps to its error taxonomy.
package session

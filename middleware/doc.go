// Package middleware exposes HTTP guards built on authcore.Engine session
// authentication.
//
// # Guards
//
//   - [ClientIP] stores the caller's address for the Engine.
//   - [RequireSession] authenticates the session cookie and fingerprint.
//   - [RequireRole] restricts an authenticated route to given roles.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. All decisions
// are delegated to Engine.Authenticate.
//
// # What this package must NOT do
//
//   - Parse session cookies directly (delegates to httpauth).
//   - Access Redis (Engine handles I/O).
package middleware

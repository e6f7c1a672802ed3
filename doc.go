// Package authcore is a credential and session-security core: password login
// with progressive lockout, OAuth 2.0 login with PKCE, single-use email
// verification and password reset tokens, and fingerprint-bound sessions
// stored in Redis.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserStore] and [Mailer] collaborator interfaces and the tagged
// [Error] type. Relational storage, mail transport and HTTP handling stay
// outside; the store/ and httpauth packages are optional adapters.
//
// # What this package must NOT do
//
//   - Write HTTP responses or cookies. Transport translation lives in httpauth.
//   - Surface internal causes to callers. [Error.Unwrap] exists for logs only.
//   - Import any sub-package that re-imports authcore (no import cycles).
package authcore

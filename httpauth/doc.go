// Package httpauth translates between HTTP and the authcore Engine: it owns
// the cookie contracts, the signed session cookie and the JSON error
// envelope.
//
// # What this package must NOT do
//
//   - Make authentication decisions. Those belong to authcore.Engine.
//   - Write internal error causes to responses outside DevMode.
package httpauth

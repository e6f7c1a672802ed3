// Package rate implements Redis fixed-window counters shared by every
// instance of the server.
//
// # Window semantics
//
// The first hit in a window INCRs the key and sets its TTL in the same
// script call, so a crash between the two cannot leave a counter without
// expiry. Keys are Prefix + caller-supplied key.
//
// # What this package must NOT do
//
//   - Decide which requests are limited. Callers pick the key.
//   - Be imported outside this module.
package rate

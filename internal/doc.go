// Package internal holds helpers private to authcore: secure random
// identifiers, codes and secrets.
//
// Sub-packages:
//
//   - audit: async audit event delivery
//   - config: environment and file configuration for binaries
//   - lockout: the progressive lockout state machine
//   - logging: zerolog construction for binaries
//   - rate: Redis fixed-window counters shared across instances
//   - workqueue: bounded background worker pool
package internal

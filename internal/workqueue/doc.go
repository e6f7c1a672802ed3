// Package workqueue provides a bounded worker pool for best-effort
// background side effects such as outbound mail and audit delivery.
//
// A Pool is constructed explicitly and torn down with Close, which drains
// jobs already queued. Jobs never report errors back to the submitter; they
// own their logging.
package workqueue

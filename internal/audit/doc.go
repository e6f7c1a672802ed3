// Package audit records security-relevant engine events.
//
// The engine decides which events to emit. This package only buffers them
// and hands them to a caller-supplied Sink from a single background worker.
package audit

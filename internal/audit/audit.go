package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Event is one security-relevant outcome: a login, a token use, a session
// change or an account change.
type Event struct {
	At        time.Time         `json:"at"`
	Name      string            `json:"event"`
	UserID    string            `json:"userId,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	ClientIP  string            `json:"clientIp,omitempty"`
	Success   bool              `json:"success"`
	Code      string            `json:"code,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a reader through a buffered channel. Emit
// blocks while the buffer is full unless ctx is done.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// LogSink writes each event as one zerolog line: info for successes, warn
// for failures.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, ev Event) {
	e := s.log.Info()
	if !ev.Success {
		e = s.log.Warn()
	}
	e = e.Str("event", ev.Name).
		Time("at", ev.At).
		Bool("success", ev.Success)
	if ev.UserID != "" {
		e = e.Str("user_id", ev.UserID)
	}
	if ev.SessionID != "" {
		e = e.Str("session_id", ev.SessionID)
	}
	if ev.ClientIP != "" {
		e = e.Str("client_ip", ev.ClientIP)
	}
	if ev.Code != "" {
		e = e.Str("code", ev.Code)
	}
	if len(ev.Attrs) > 0 {
		e = e.Interface("attrs", ev.Attrs)
	}
	e.Msg("audit")
}

// MultiSink fans every event out to each sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

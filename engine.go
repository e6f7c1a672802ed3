package authcore

import (
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/lockout"
	"github.com/MrEthical07/authcore/internal/workqueue"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Engine is the credential and session core. It is safe for concurrent use
// once built. Close it on shutdown to flush queued mail and audit events.
type Engine struct {
	config    Config
	store     UserStore
	mailer    Mailer
	redis     redis.UniversalClient
	sessions  *session.Registry
	hasher    *password.Hasher
	lockout   lockout.Config
	providers map[oauth.ProviderName]oauth.Provider
	mail      *workqueue.Pool
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// Close drains the mail queue and the audit dispatcher. It is safe to call
// more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mail.Close()
	e.audit.Close()
}

// AuditDropped returns the number of audit events that never reached the sink.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MailDropped returns the number of mails that never reached a worker.
func (e *Engine) MailDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.mail.Dropped()
}

// MetricsSnapshot returns a copy of the current counters and latency
// histograms. It is empty when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) internal(err error, msg string) *Error {
	e.log.Error().Err(err).Msg(msg)
	return ErrInternal.WithCause(err)
}

package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful password logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected password logins.
	MetricLoginFailure
	// MetricAccountBlocked counts blocks applied by the lockout state machine.
	MetricAccountBlocked
	// MetricEmailNotVerified counts logins stopped at the email verification gate.
	MetricEmailNotVerified
	// MetricOAuthSuccess counts completed OAuth logins.
	MetricOAuthSuccess
	// MetricOAuthFailure counts failed OAuth logins.
	MetricOAuthFailure
	// MetricOAuthUserCreated counts users created by OAuth reconciliation.
	MetricOAuthUserCreated
	// MetricOAuthLinkCreated counts provider links attached to existing users.
	MetricOAuthLinkCreated
	// MetricSessionCreated counts established sessions.
	MetricSessionCreated
	// MetricSessionRevoked counts sessions deleted by revocation.
	MetricSessionRevoked
	// MetricFingerprintRejected counts sessions destroyed on fingerprint mismatch.
	MetricFingerprintRejected
	// MetricLogout counts logouts.
	MetricLogout
	// MetricTokenIssued counts issued single-use tokens.
	MetricTokenIssued
	// MetricTokenConsumed counts consumed single-use tokens.
	MetricTokenConsumed
	// MetricTokenRejected counts invalid or expired token presentations.
	MetricTokenRejected
	// MetricTokenThrottled counts reissue requests refused while a token is live.
	MetricTokenThrottled
	// MetricAccountCreated counts registered accounts.
	MetricAccountCreated
	// MetricMailSent counts mails accepted by the transport.
	MetricMailSent
	// MetricMailFailed counts mails the transport failed or declined.
	MetricMailFailed
	// MetricMailDropped counts mails dropped by a full queue.
	MetricMailDropped
	// MetricPasswordChanged counts authenticated password changes.
	MetricPasswordChanged
	// MetricPasswordRehashed counts hashes upgraded after a successful login.
	MetricPasswordRehashed
	// MetricLoginLatency is the password login latency histogram.
	MetricLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A nil or disabled Metrics
// ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters. Histogram
// buckets are non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d for a histogram metric. Only MetricLoginLatency has
// buckets.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricLoginLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricLoginLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
		}
		s.Histograms[MetricLoginLatency] = buckets
	}

	return s
}

// bucketIndex maps d onto the upper bounds 5ms, 10ms, 25ms, 50ms, 100ms,
// 250ms, 500ms and +Inf. Argon2id logins usually land in the middle.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}

package libauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterRejected
	MetricRegisterRateLimited
	MetricRegisterDuplicate
	MetricVerifyEmailSuccess
	MetricVerifyEmailFailure
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricPasswordResetRequest
	MetricPasswordResetSuppressed
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricPasswordRehashed
	// MetricPasswordVerify counts hash comparisons, dummy ones included.
	MetricPasswordVerify
	MetricSessionCreated
	MetricSessionInvalidated
	MetricAuthenticateSuccess
	MetricAuthenticateFailure
	// MetricRateLimiterUnavailable counts limiter calls that failed open.
	MetricRateLimiterUnavailable
	MetricMailFailure
	MetricAuditWriteFailure
	MetricAuditDropped
	// MetricAuthenticateLatency is the only histogram.
	MetricAuthenticateLatency
	metricIDCount
)

// LatencyBounds are the inclusive upper bounds of the latency histogram.
// Observations above the last bound land in one overflow bucket.
var LatencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// LatencyBucketCount is len(LatencyBounds) plus the overflow bucket.
const LatencyBucketCount = len(LatencyBounds) + 1

// counter is padded to a cache line so hot counters do not contend.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters plus the authenticate
// latency histogram. A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled bool
	latency bool
	counts  [metricIDCount]counter
	buckets [LatencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy. Histogram slices hold
// non-cumulative counts, one per LatencyBounds entry plus overflow.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount || id == MetricAuthenticateLatency {
		return
	}
	m.counts[id].Add(1)
}

// Observe records d when id is MetricAuthenticateLatency and histograms are
// enabled.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.latency || id != MetricAuthenticateLatency {
		return
	}
	m.buckets[latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counts[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if m == nil || !m.enabled {
		return snap
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id != MetricAuthenticateLatency {
			snap.Counters[id] = m.counts[id].Load()
		}
	}
	if m.latency {
		hist := make([]uint64, LatencyBucketCount)
		for i := range m.buckets {
			hist[i] = m.buckets[i].Load()
		}
		snap.Histograms[MetricAuthenticateLatency] = hist
	}
	return snap
}

func latencyBucket(d time.Duration) int {
	for i, bound := range LatencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(LatencyBounds)
}

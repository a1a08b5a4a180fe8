package cache

import (
	"sync"
	"time"
)

// Metrics tracks store activity. It is safe for concurrent use.
type Metrics struct {
	mu sync.RWMutex

	hits      int64
	misses    int64
	puts      int64
	evictions int64
	rejected  int64
	corrupted int64
	errors    int64

	bytesServed  int64
	bytesWritten int64
	bytesEvicted int64

	getLatencies []time.Duration
	putLatencies []time.Duration

	startTime      time.Time
	lastEvictionAt time.Time
	peakUsedBytes  int64
}

// NewMetrics creates an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime:    time.Now(),
		getLatencies: make([]time.Duration, 0, 256),
		putLatencies: make([]time.Duration, 0, 256),
	}
}

// RecordHit records a hit serving n bytes.
func (m *Metrics) RecordHit(n int64, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
	m.bytesServed += n
	m.getLatencies = appendLatency(m.getLatencies, latency)
}

// RecordMiss records a miss.
func (m *Metrics) RecordMiss(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
	m.getLatencies = appendLatency(m.getLatencies, latency)
}

// RecordPut records a committed entry of n bytes and the resulting usage.
func (m *Metrics) RecordPut(n, usedBytes int64, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.bytesWritten += n
	if usedBytes > m.peakUsedBytes {
		m.peakUsedBytes = usedBytes
	}
	m.putLatencies = appendLatency(m.putLatencies, latency)
}

// RecordEviction records one evicted entry.
func (m *Metrics) RecordEviction(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions++
	m.bytesEvicted += n
	m.lastEvictionAt = time.Now()
}

// RecordRejected records a put refused for quota.
func (m *Metrics) RecordRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

// RecordCorrupted records a blob that failed verification.
func (m *Metrics) RecordCorrupted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corrupted++
}

// RecordError records an operation error.
func (m *Metrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// keep the most recent samples only
func appendLatency(samples []time.Duration, d time.Duration) []time.Duration {
	samples = append(samples, d)
	if len(samples) > 10000 {
		samples = append(samples[:0], samples[len(samples)-5000:]...)
	}
	return samples
}

func average(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return total / time.Duration(len(samples))
}

// Snapshot returns a consistent copy of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hitRate float64
	if total := m.hits + m.misses; total > 0 {
		hitRate = float64(m.hits) / float64(total)
	}

	var sinceEviction time.Duration
	if !m.lastEvictionAt.IsZero() {
		sinceEviction = time.Since(m.lastEvictionAt)
	}

	return MetricsSnapshot{
		Hits:                  m.hits,
		Misses:                m.misses,
		HitRate:               hitRate,
		Puts:                  m.puts,
		Evictions:             m.evictions,
		Rejected:              m.rejected,
		Corrupted:             m.corrupted,
		Errors:                m.errors,
		BytesServed:           m.bytesServed,
		BytesWritten:          m.bytesWritten,
		BytesEvicted:          m.bytesEvicted,
		PeakUsedBytes:         m.peakUsedBytes,
		AverageGetLatency:     average(m.getLatencies),
		AveragePutLatency:     average(m.putLatencies),
		Uptime:                time.Since(m.startTime),
		TimeSinceLastEviction: sinceEviction,
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Puts      int64   `json:"puts"`
	Evictions int64   `json:"evictions"`
	Rejected  int64   `json:"rejected"`
	Corrupted int64   `json:"corrupted"`
	Errors    int64   `json:"errors"`

	BytesServed   int64 `json:"bytes_served"`
	BytesWritten  int64 `json:"bytes_written"`
	BytesEvicted  int64 `json:"bytes_evicted"`
	PeakUsedBytes int64 `json:"peak_used_bytes"`

	AverageGetLatency     time.Duration `json:"avg_get_latency_ns"`
	AveragePutLatency     time.Duration `json:"avg_put_latency_ns"`
	Uptime                time.Duration `json:"uptime"`
	TimeSinceLastEviction time.Duration `json:"time_since_last_eviction"`
}

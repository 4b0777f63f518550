package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks overall system performance. All methods are safe on
// a nil receiver so instrumentation stays optional in tests.
type SystemMetrics struct {
	// Latency histograms
	APILatency   *LatencyHistogram
	TradeLatency *LatencyHistogram
	QuoteLatency *LatencyHistogram

	// Counters
	tradesExecuted uint64
	alertsFired    uint64
	reinvestments  uint64
	quoteCacheHits uint64
	errorsCount    uint64

	lastUpdate time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until new samples arrive.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		APILatency:   NewLatencyHistogram(1000),
		TradeLatency: NewLatencyHistogram(1000),
		QuoteLatency: NewLatencyHistogram(1000),
		lastUpdate:   time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	min, max := sorted[0], sorted[n-1]
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   min,
		Max:   max,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrTradesExecuted increments the executed trades counter.
func (m *SystemMetrics) IncrTradesExecuted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.tradesExecuted, 1)
}

// IncrReinvestments increments the executed reinvestments counter.
func (m *SystemMetrics) IncrReinvestments() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reinvestments, 1)
}

// IncrAlertsFired increments the fired alerts counter.
func (m *SystemMetrics) IncrAlertsFired() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.alertsFired, 1)
}

// IncrQuoteCacheHits increments the quote cache hit counter.
func (m *SystemMetrics) IncrQuoteCacheHits() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.quoteCacheHits, 1)
}

// IncrErrors increments the error counter.
func (m *SystemMetrics) IncrErrors() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.errorsCount, 1)
}

// TradeTimer starts timing a trade execution; call the returned func to
// record the elapsed time.
func (m *SystemMetrics) TradeTimer() func() {
	if m == nil {
		return func() {}
	}
	t := NewTimer(m.TradeLatency)
	return func() { t.Stop() }
}

// MetricsSnapshot is a point-in-time view of the counters and histograms.
type MetricsSnapshot struct {
	APILatency     LatencyStats `json:"api_latency"`
	TradeLatency   LatencyStats `json:"trade_latency"`
	QuoteLatency   LatencyStats `json:"quote_latency"`
	TradesExecuted uint64       `json:"trades_executed"`
	AlertsFired    uint64       `json:"alerts_fired"`
	Reinvestments  uint64       `json:"reinvestments"`
	QuoteCacheHits uint64       `json:"quote_cache_hits"`
	ErrorsCount    uint64       `json:"errors_count"`
	GoroutineCount int          `json:"goroutine_count"`
	HeapAlloc      uint64       `json:"heap_alloc_bytes"`
	HeapSys        uint64       `json:"heap_sys_bytes"`
	Timestamp      time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		APILatency:     m.APILatency.Stats(),
		TradeLatency:   m.TradeLatency.Stats(),
		QuoteLatency:   m.QuoteLatency.Stats(),
		TradesExecuted: atomic.LoadUint64(&m.tradesExecuted),
		AlertsFired:    atomic.LoadUint64(&m.alertsFired),
		Reinvestments:  atomic.LoadUint64(&m.reinvestments),
		QuoteCacheHits: atomic.LoadUint64(&m.quoteCacheHits),
		ErrorsCount:    atomic.LoadUint64(&m.errorsCount),
		GoroutineCount: runtime.NumGoroutine(),
		HeapAlloc:      memStats.HeapAlloc,
		HeapSys:        memStats.HeapSys,
		Timestamp:      time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}

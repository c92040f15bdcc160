package pfq

import (
	"sync/atomic"
	"time"

	"github.com/pfq-dev/go-pfq/internal/interfaces"
)

// LatencyBuckets defines the forward-latency histogram buckets in
// nanoseconds, covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks process-wide packet-path statistics (spec §6's
// GET_STATS payload, aggregated across every CPU and socket rather than
// one socket's view).
type Metrics struct {
	Recv atomic.Uint64
	Lost atomic.Uint64
	Drop atomic.Uint64
	Sent atomic.Uint64
	Disc atomic.Uint64
	Fail atomic.Uint64
	Frwd atomic.Uint64
	Kern atomic.Uint64

	BatchCount  atomic.Uint64
	BatchTotal  atomic.Uint64 // sum of batch sizes, for average-batch-size
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// LatencyBuckets holds cumulative counts: bucket[i] counts forwards
	// with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics returns a zeroed Metrics with its start time stamped now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordForward(n uint64, latencyNs uint64, success bool) {
	if success {
		m.Frwd.Add(n)
		m.Sent.Add(n)
	} else {
		m.Fail.Add(n)
	}
	if latencyNs > 0 {
		m.TotalLatencyNs.Add(latencyNs * n)
		m.OpCount.Add(n)
		for i, bucket := range LatencyBuckets {
			if latencyNs <= bucket {
				m.LatencyBuckets[i].Add(n)
			}
		}
	}
}

func (m *Metrics) recordBatch(size int, latencyNs uint64) {
	m.BatchCount.Add(1)
	m.BatchTotal.Add(uint64(size))
}

// Stop stamps the metrics' stop time, freezing uptime-derived rates.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics plus
// its derived rates and latency percentiles.
type MetricsSnapshot struct {
	Recv, Lost, Drop, Sent, Disc, Fail, Frwd, Kern uint64

	AvgBatchSize float64
	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns, LatencyP99Ns, LatencyP999Ns uint64
	LatencyHistogram                          [numLatencyBuckets]uint64

	RecvPPS float64
	DropPPS float64
}

// Snapshot computes a consistent point-in-time view of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Recv: m.Recv.Load(),
		Lost: m.Lost.Load(),
		Drop: m.Drop.Load(),
		Sent: m.Sent.Load(),
		Disc: m.Disc.Load(),
		Fail: m.Fail.Load(),
		Frwd: m.Frwd.Load(),
		Kern: m.Kern.Load(),
	}

	if bc := m.BatchCount.Load(); bc > 0 {
		snap.AvgBatchSize = float64(m.BatchTotal.Load()) / float64(bc)
	}
	if oc := m.OpCount.Load(); oc > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / oc
		snap.LatencyP50Ns = m.percentile(0.50)
		snap.LatencyP99Ns = m.percentile(0.99)
		snap.LatencyP999Ns = m.percentile(0.999)
	}
	for i := range snap.LatencyHistogram {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	start, stop := m.StartTime.Load(), m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	if snap.UptimeNs > 0 {
		secs := float64(snap.UptimeNs) / 1e9
		snap.RecvPPS = float64(snap.Recv) / secs
		snap.DropPPS = float64(snap.Drop) / secs
	}
	return snap
}

func (m *Metrics) percentile(p float64) uint64 {
	total := m.OpCount.Load()
	if total == 0 {
		return 0
	}
	target := uint64(float64(total) * p)
	var prevCount, prevBucket uint64
	for i, bucket := range LatencyBuckets {
		count := m.LatencyBuckets[i].Load()
		if count >= target {
			if count == prevCount {
				return bucket
			}
			frac := float64(target-prevCount) / float64(count-prevCount)
			return prevBucket + uint64(frac*float64(bucket-prevBucket))
		}
		prevCount, prevBucket = count, bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeros every counter and restamps the start time, for test
// isolation between scenarios.
func (m *Metrics) Reset() {
	m.Recv.Store(0)
	m.Lost.Store(0)
	m.Drop.Store(0)
	m.Sent.Store(0)
	m.Disc.Store(0)
	m.Fail.Store(0)
	m.Frwd.Store(0)
	m.Kern.Store(0)
	m.BatchCount.Store(0)
	m.BatchTotal.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := range m.LatencyBuckets {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// MetricsObserver implements internal/interfaces.Observer by recording
// into a Metrics instance, letting every per-CPU engine and Tx worker
// share one process-wide counter set.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRecv(n uint64)    { o.metrics.Recv.Add(n) }
func (o *MetricsObserver) ObserveDrop(n uint64)    { o.metrics.Drop.Add(n) }
func (o *MetricsObserver) ObserveKernel(n uint64)  { o.metrics.Kern.Add(n) }
func (o *MetricsObserver) ObserveDiscard(n uint64) { o.metrics.Disc.Add(n) }

func (o *MetricsObserver) ObserveForward(n uint64, latencyNs uint64, success bool) {
	o.metrics.recordForward(n, latencyNs, success)
}

func (o *MetricsObserver) ObserveBatch(size int, latencyNs uint64) {
	o.metrics.recordBatch(size, latencyNs)
}

var _ interfaces.Observer = (*MetricsObserver)(nil)
var _ interfaces.Observer = interfaces.NoOpObserver{}

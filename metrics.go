package nucore

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
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

// Metrics tracks operational statistics for a nucore session: Core A
// handshake steps, Core B syscall dispatches, and deferred task
// completions. Grounded on the teacher's block-device I/O metrics
// (`ReadOps`/`WriteOps`/... plus a cumulative latency histogram), with the
// I/O-operation axes renamed to this domain's three axes and
// "queue depth" renamed to "pending deferred tasks", the nearest analog
// of a live in-flight count this domain has.
type Metrics struct {
	// Handshake steps (Core A)
	HandshakeSteps atomic.Uint64
	HandshakeFails atomic.Uint64

	// Syscall dispatches (Core B)
	SyscallOps    atomic.Uint64
	SyscallErrors atomic.Uint64

	// Deferred task completions
	DeferredTasksFinished atomic.Uint64
	DeferredTasksFailed   atomic.Uint64

	// Pending deferred task count statistics, sampled by the caller
	// whenever AppGlobalDeferredSpace's pending count changes.
	PendingTasksTotal atomic.Uint64 // cumulative pending-count samples
	PendingTasksCount atomic.Uint64 // number of samples taken
	MaxPendingTasks   atomic.Uint32 // maximum observed pending count

	// Performance tracking, combined across all three axes above.
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts): bucket[i] holds the
	// count of operations with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // session start timestamp (UnixNano)
	StopTime  atomic.Int64 // session stop timestamp (UnixNano), 0 if still running
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordHandshakeStep records one ReadHandshake/WriteHandshake call.
func (m *Metrics) RecordHandshakeStep(latencyNs uint64, success bool) {
	m.HandshakeSteps.Add(1)
	if !success {
		m.HandshakeFails.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordSyscall records one syscallabi.Dispatch call.
func (m *Metrics) RecordSyscall(latencyNs uint64, success bool) {
	m.SyscallOps.Add(1)
	if !success {
		m.SyscallErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordDeferredTaskFinished records one host-side deferred task
// completion (FinishTasks marking a task Finished).
func (m *Metrics) RecordDeferredTaskFinished(latencyNs uint64, success bool) {
	m.DeferredTasksFinished.Add(1)
	if !success {
		m.DeferredTasksFailed.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordPendingTasks records the current number of pending (not yet
// finished) deferred tasks for a tab.
func (m *Metrics) RecordPendingTasks(depth uint32) {
	m.PendingTasksTotal.Add(uint64(depth))
	m.PendingTasksCount.Add(1)

	for {
		current := m.MaxPendingTasks.Load()
		if depth <= current {
			break
		}
		if m.MaxPendingTasks.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the session as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	HandshakeSteps uint64
	HandshakeFails uint64
	SyscallOps     uint64
	SyscallErrors  uint64

	DeferredTasksFinished uint64
	DeferredTasksFailed   uint64

	AvgPendingTasks float64
	MaxPendingTasks uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	HandshakeRate float64 // steps per second
	SyscallRate   float64 // dispatches per second
	TotalOps      uint64
	ErrorRate     float64 // percentage of failed operations across all axes
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		HandshakeSteps:        m.HandshakeSteps.Load(),
		HandshakeFails:        m.HandshakeFails.Load(),
		SyscallOps:            m.SyscallOps.Load(),
		SyscallErrors:         m.SyscallErrors.Load(),
		DeferredTasksFinished: m.DeferredTasksFinished.Load(),
		DeferredTasksFailed:   m.DeferredTasksFailed.Load(),
		MaxPendingTasks:       m.MaxPendingTasks.Load(),
	}

	snap.TotalOps = snap.HandshakeSteps + snap.SyscallOps + snap.DeferredTasksFinished

	pendingTotal := m.PendingTasksTotal.Load()
	pendingCount := m.PendingTasksCount.Load()
	if pendingCount > 0 {
		snap.AvgPendingTasks = float64(pendingTotal) / float64(pendingCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.HandshakeRate = float64(snap.HandshakeSteps) / uptimeSeconds
		snap.SyscallRate = float64(snap.SyscallOps) / uptimeSeconds
	}

	totalErrors := snap.HandshakeFails + snap.SyscallErrors + snap.DeferredTasksFailed
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	m.HandshakeSteps.Store(0)
	m.HandshakeFails.Store(0)
	m.SyscallOps.Store(0)
	m.SyscallErrors.Store(0)
	m.DeferredTasksFinished.Store(0)
	m.DeferredTasksFailed.Store(0)
	m.PendingTasksTotal.Store(0)
	m.PendingTasksCount.Store(0)
	m.MaxPendingTasks.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection, mirroring the shape of
// the Options.Observer side-channel collaborator named in SPEC_FULL.md's
// Configuration section.
type Observer interface {
	ObserveHandshakeStep(latencyNs uint64, success bool)
	ObserveSyscall(latencyNs uint64, success bool)
	ObserveDeferredTaskFinished(latencyNs uint64, success bool)
	ObservePendingTasks(depth uint32)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveHandshakeStep(uint64, bool)        {}
func (NoOpObserver) ObserveSyscall(uint64, bool)              {}
func (NoOpObserver) ObserveDeferredTaskFinished(uint64, bool) {}
func (NoOpObserver) ObservePendingTasks(uint32)               {}

// MetricsObserver implements Observer using the built-in Metrics type.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveHandshakeStep(latencyNs uint64, success bool) {
	o.metrics.RecordHandshakeStep(latencyNs, success)
}

func (o *MetricsObserver) ObserveSyscall(latencyNs uint64, success bool) {
	o.metrics.RecordSyscall(latencyNs, success)
}

func (o *MetricsObserver) ObserveDeferredTaskFinished(latencyNs uint64, success bool) {
	o.metrics.RecordDeferredTaskFinished(latencyNs, success)
}

func (o *MetricsObserver) ObservePendingTasks(depth uint32) {
	o.metrics.RecordPendingTasks(depth)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)

package segpool

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting allocator metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    creates  prometheus.Counter
//	    sweeps   prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordSweep(holes, scanned int, d time.Duration) {
//	    p.sweeps.Observe(d.Seconds())
//	}
type MetricsCollector interface {
	// RecordCreate is called after each create. reused is true when the
	// handle came from the hole stack.
	RecordCreate(reused bool)

	// RecordFree is called after each free that released an allocated slot.
	RecordFree()

	// RecordSweep is called after each reclamation sweep.
	// holes is the number of free slots found, scanned the bits inspected.
	RecordSweep(holes, scanned int, duration time.Duration)

	// RecordGrow is called after a new segment is allocated.
	RecordGrow(exponent uint8, capacity uint64)

	// RecordInvalidAccess is called when a dereference fails.
	RecordInvalidAccess()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreate(bool)                   {}
func (NoopMetricsCollector) RecordFree()                         {}
func (NoopMetricsCollector) RecordSweep(int, int, time.Duration) {}
func (NoopMetricsCollector) RecordGrow(uint8, uint64)            {}
func (NoopMetricsCollector) RecordInvalidAccess()                {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CreateCount     atomic.Int64
	ReuseCount      atomic.Int64
	FreeCount       atomic.Int64
	SweepCount      atomic.Int64
	SweepHoles      atomic.Int64
	SweepScanned    atomic.Int64
	SweepTotalNanos atomic.Int64
	GrowCount       atomic.Int64
	Capacity        atomic.Uint64
	InvalidAccesses atomic.Int64
}

// RecordCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreate(reused bool) {
	b.CreateCount.Add(1)
	if reused {
		b.ReuseCount.Add(1)
	}
}

// RecordFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFree() {
	b.FreeCount.Add(1)
}

// RecordSweep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSweep(holes, scanned int, duration time.Duration) {
	b.SweepCount.Add(1)
	b.SweepHoles.Add(int64(holes))
	b.SweepScanned.Add(int64(scanned))
	b.SweepTotalNanos.Add(duration.Nanoseconds())
}

// RecordGrow implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGrow(_ uint8, capacity uint64) {
	b.GrowCount.Add(1)
	b.Capacity.Store(capacity)
}

// RecordInvalidAccess implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInvalidAccess() {
	b.InvalidAccesses.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateCount:     b.CreateCount.Load(),
		ReuseCount:      b.ReuseCount.Load(),
		FreeCount:       b.FreeCount.Load(),
		SweepCount:      b.SweepCount.Load(),
		SweepHoles:      b.SweepHoles.Load(),
		SweepScanned:    b.SweepScanned.Load(),
		SweepAvgNanos:   b.getAvgSweepNanos(),
		GrowCount:       b.GrowCount.Load(),
		Capacity:        b.Capacity.Load(),
		InvalidAccesses: b.InvalidAccesses.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSweepNanos() int64 {
	count := b.SweepCount.Load()
	if count == 0 {
		return 0
	}
	return b.SweepTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CreateCount     int64
	ReuseCount      int64
	FreeCount       int64
	SweepCount      int64
	SweepHoles      int64
	SweepScanned    int64
	SweepAvgNanos   int64
	GrowCount       int64
	Capacity        uint64
	InvalidAccesses int64
}

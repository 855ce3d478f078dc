package segpool

import (
	"context"
	"log/slog"
	"time"
)

// MemoryBudget reserves and releases the bytes of pool segments.
// *resource.Controller implements it.
type MemoryBudget interface {
	AcquireMemory(ctx context.Context, bytes int64) error
	TryAcquireMemory(bytes int64) bool
	ReleaseMemory(bytes int64)
}

type options struct {
	capacity         uint32
	offHeap          bool
	budget           MemoryBudget
	memoryWait       time.Duration
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures pool construction.
type Option func(*options)

// WithCapacity sets the number of records the pool can hold before its
// first growth. Values below 16 are raised to 16; larger values are rounded
// up to the next power of two.
func WithCapacity(capacity uint32) Option {
	return func(o *options) {
		o.capacity = capacity
	}
}

// WithOffHeap stores segments in anonymous memory mappings outside the Go
// heap. The memory is returned to the OS by Close.
func WithOffHeap() Option {
	return func(o *options) {
		o.offHeap = true
	}
}

// WithMemoryBudget reserves the bytes of every segment against budget.
// A refused reservation fails construction and TryCreate with ErrMemoryLimit,
// and makes Create panic.
//
// Example:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 64 << 20})
//	p, _ := segpool.New[Particle](segpool.WithMemoryBudget(rc))
func WithMemoryBudget(budget MemoryBudget) Option {
	return func(o *options) {
		o.budget = budget
	}
}

// WithMemoryWait makes segment reservations wait up to d for other pools
// sharing the budget to release memory, instead of failing at once.
func WithMemoryWait(d time.Duration) Option {
	return func(o *options) {
		o.memoryWait = d
	}
}

// WithMetricsCollector configures a metrics collector for allocator events.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &segpool.BasicMetricsCollector{}
//	p, _ := segpool.New[Particle](segpool.WithMetricsCollector(metrics))
//	// ... use p ...
//	stats := metrics.GetStats()
//	fmt.Printf("Sweeps: %d, Avg: %dns\n", stats.SweepCount, stats.SweepAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for growth, sweeps and snapshots.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := segpool.NewJSONLogger(slog.LevelDebug)
//	p, _ := segpool.New[Particle](segpool.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		capacity:         minCapacity,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

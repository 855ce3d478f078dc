package resource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrOverBudget is returned when a single reservation exceeds the whole
// memory limit and could never succeed.
var ErrOverBudget = errors.New("resource: reservation exceeds memory limit")

// Config holds resource limits shared by pools and snapshot codecs.
type Config struct {
	// MemoryLimitBytes caps the segment bytes reserved by every pool using
	// the controller. Zero tracks usage without a limit.
	MemoryLimitBytes int64

	// MaxBackgroundWorkers is the number of snapshot blocks compressed or
	// decompressed at once. Zero means one.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec throttles snapshot reads and writes. Zero disables it.
	IOLimitBytesPerSec int64
}

// Controller hands out segment memory, codec worker slots and snapshot IO.
// A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	mem      *semaphore.Weighted // nil without a memory limit
	reserved atomic.Int64
	peak     atomic.Int64

	workers *semaphore.Weighted
	io      *rate.Limiter
}

// NewController creates a controller for cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:     cfg,
		workers: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.mem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.io = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// Config returns the limits the controller enforces, defaults applied.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireMemory reserves bytes, waiting for other reservations to be
// released until ctx is done. A request larger than the limit fails at once
// with ErrOverBudget.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.mem != nil {
		if bytes > c.cfg.MemoryLimitBytes {
			return fmt.Errorf("%w: %d > %d bytes", ErrOverBudget, bytes, c.cfg.MemoryLimitBytes)
		}
		if err := c.mem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.account(bytes)
	return nil
}

// TryAcquireMemory reserves bytes if the limit allows it right now.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.mem != nil && !c.mem.TryAcquire(bytes) {
		return false
	}
	c.account(bytes)
	return true
}

// ReleaseMemory returns bytes reserved by AcquireMemory or TryAcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.mem != nil {
		c.mem.Release(bytes)
	}
	c.reserved.Add(-bytes)
}

// MemoryUsage returns the bytes currently reserved.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.reserved.Load()
}

// PeakMemoryUsage returns the highest reservation total seen so far.
func (c *Controller) PeakMemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.peak.Load()
}

func (c *Controller) account(bytes int64) {
	now := c.reserved.Add(bytes)
	for {
		peak := c.peak.Load()
		if now <= peak || c.peak.CompareAndSwap(peak, now) {
			return
		}
	}
}

// AcquireBackground waits for a codec worker slot.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workers.Acquire(ctx, 1)
}

// TryAcquireBackground takes a codec worker slot if one is free.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.workers.TryAcquire(1)
}

// ReleaseBackground returns a worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.workers.Release(1)
}

// AcquireIO waits until the IO limit admits bytes.
// Requests larger than the burst are split into burst-sized waits.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.io == nil {
		return nil
	}
	burst := c.io.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.io.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

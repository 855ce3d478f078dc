package segpool

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/bits"
	"reflect"
	"time"

	"github.com/hupe1980/segpool/internal/bitmap"
	"github.com/hupe1980/segpool/internal/container"
	"github.com/hupe1980/segpool/internal/layout"
)

const minCapacity = container.BaseSize

// Handle identifies a slot across all segments of a pool.
//
// A handle is stable while its slot stays allocated. Once freed and swept it
// may be returned again by a later Create; handles carry no generation, see
// Ref for the checked alternative.
type Handle uint32

// Pool is a segmented slab allocator for fixed-layout records of type T.
//
// Records live in power-of-two segments (16, 16, 32, 64, ...) and are
// addressed by Handle. Freed slots are not reused immediately: when the
// watermark crosses the end of the last segment, a sweep collects every free
// slot into a LIFO hole stack, and only if it finds none does the pool grow.
//
// A Pool is not safe for concurrent use.
type Pool[T any] struct {
	records   *container.Arena[T]
	gens      *container.Arena[uint32]
	occupancy *bitmap.Occupancy
	holes     []Handle

	// count is the watermark: the highest handle ever minted, plus one.
	count uint64

	layout   layout.Info
	offHeap  bool
	budget   MemoryBudget
	wait     time.Duration
	reserved int64
	closed   bool

	sweeps uint64
	grows  uint64

	metrics MetricsCollector
	logger  *Logger
}

// New creates a pool for records of type T.
//
// T must be a fixed-layout value type: booleans, numbers, arrays and structs
// of those. Types containing pointers, strings, slices, maps, channels,
// functions or interfaces are rejected with ErrInvalidLayout.
func New[T any](optFns ...Option) (*Pool[T], error) {
	info, err := layout.Of[T]()
	if err != nil {
		return nil, &ErrLayout{Type: reflect.TypeFor[T]().String(), cause: err}
	}

	opts := applyOptions(optFns)
	capacity := max(opts.capacity, minCapacity)
	size := uint8(bits.Len32(capacity-1) - 1) //nolint:gosec // capacity >= 16, so 3 <= size <= 31

	return newPool[T](info, size, opts)
}

func newPool[T any](info layout.Info, size uint8, opts options) (*Pool[T], error) {
	p := &Pool[T]{
		layout:  info,
		offHeap: opts.offHeap,
		budget:  opts.budget,
		wait:    opts.memoryWait,
		metrics: opts.metricsCollector,
		logger:  opts.logger.WithPool(info.Type.String()),
	}

	var need uint64
	for k := uint8(container.BaseExponent); k <= size; k++ {
		need += segmentBytes[T](k)
	}
	if err := p.reserve(need); err != nil {
		return nil, fmt.Errorf("initial segments need %d bytes: %w", need, err)
	}

	var arenaOpts []container.Option
	if opts.offHeap {
		arenaOpts = append(arenaOpts, container.WithOffHeap())
	}

	gens, err := container.New[uint32](size, arenaOpts...)
	if err != nil {
		p.release()
		return nil, err
	}
	records, err := container.New[T](size, arenaOpts...)
	if err != nil {
		_ = gens.Close()
		p.release()
		return nil, err
	}

	p.gens = gens
	p.records = records
	p.occupancy = bitmap.New(uint64(1) << (size + 1))
	return p, nil
}

// Create allocates a slot and returns its handle.
//
// When init is true the record is reset to the zero value of T; otherwise a
// reused slot keeps whatever was last written to it.
//
// Create panics when a memory budget refuses a new segment or when every
// uint32 handle is in use; use TryCreate to handle those as errors.
func (p *Pool[T]) Create(init bool) Handle {
	h, err := p.TryCreate(init)
	if err != nil {
		panic(err)
	}
	return h
}

// TryCreate is like Create but reports growth failures as errors.
func (p *Pool[T]) TryCreate(init bool) (Handle, error) {
	if p.closed {
		return 0, ErrClosed
	}

	if h, ok := p.popHole(); ok {
		return p.reuse(h, init), nil
	}

	// The watermark has left the last segment: reclaim before growing.
	if bits.Len64(p.count)-1 > int(p.records.Size()) {
		if p.sweep() > 0 {
			h, _ := p.popHole()
			return p.reuse(h, init), nil
		}
		if err := p.grow(); err != nil {
			return 0, err
		}
	}

	h := Handle(p.count) //nolint:gosec // grow guarantees count < 2^32
	p.occupancy.Set(uint32(h), true)
	p.count++
	if init {
		p.zero(h)
	}

	p.metrics.RecordCreate(false)
	return h, nil
}

// Get returns a pointer to the record of an allocated handle.
//
// The pointer aliases pool storage: writes through it are visible to every
// holder of the handle. It stays valid until the handle is freed and its
// slot reused, which the pool does not track.
//
// Get fails with *ErrInvalidAccess (matching ErrInvalidHandle) when the
// slot is not allocated.
func (p *Pool[T]) Get(h Handle) (*T, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if !p.occupancy.Get(uint32(h)) {
		p.metrics.RecordInvalidAccess()
		p.logger.LogInvalidAccess(context.Background(), h)
		return nil, &ErrInvalidAccess{Handle: h}
	}
	return p.records.At(uint32(h)), nil
}

// MustGet is like Get but panics if the handle is not allocated.
func (p *Pool[T]) MustGet(h Handle) *T {
	rec, err := p.Get(h)
	if err != nil {
		panic(err)
	}
	return rec
}

// Free releases a handle. Freeing a free handle is a no-op.
//
// The record is not erased, and the slot only becomes reusable after the
// next sweep.
func (p *Pool[T]) Free(h Handle) {
	if p.closed || !p.occupancy.Get(uint32(h)) {
		return
	}
	p.occupancy.Set(uint32(h), false)
	*p.gens.At(uint32(h))++
	p.metrics.RecordFree()
}

// AllocatedAt reports whether h is currently allocated.
func (p *Pool[T]) AllocatedAt(h Handle) bool {
	return p.occupancy.Get(uint32(h))
}

// Locate returns the segment exponent and offset that store h.
// Segment 0 is reported with exponent 3.
func (p *Pool[T]) Locate(h Handle) (exponent uint8, offset uint32) {
	return container.Locate(uint32(h))
}

// All returns an iterator over the allocated handles and their records,
// in ascending handle order.
func (p *Pool[T]) All() iter.Seq2[Handle, *T] {
	return func(yield func(Handle, *T) bool) {
		if p.closed {
			return
		}
		for idx := range p.occupancy.Occupied() {
			if !yield(Handle(idx), p.records.At(idx)) {
				return
			}
		}
	}
}

// Close releases off-heap segments and returns reserved memory to the
// budget. Handles and pointers obtained from the pool must not be used
// afterwards.
func (p *Pool[T]) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.release()
	return errors.Join(p.records.Close(), p.gens.Close())
}

func (p *Pool[T]) popHole() (Handle, bool) {
	n := len(p.holes)
	if n == 0 {
		return 0, false
	}
	h := p.holes[n-1]
	p.holes = p.holes[:n-1]
	return h, true
}

func (p *Pool[T]) reuse(h Handle, init bool) Handle {
	p.occupancy.Set(uint32(h), true)
	if init {
		p.zero(h)
	}
	p.metrics.RecordCreate(true)
	return h
}

func (p *Pool[T]) zero(h Handle) {
	var zero T
	*p.records.At(uint32(h)) = zero
}

// sweep pushes every free slot below the watermark onto the hole stack in
// ascending order and returns how many it found.
func (p *Pool[T]) sweep() int {
	start := time.Now()
	found := 0
	for idx := range p.occupancy.Unset() {
		// Bits past the watermark were touched by lookups, never minted.
		if uint64(idx) >= p.count {
			break
		}
		p.holes = append(p.holes, Handle(idx))
		found++
	}
	scanned := int(min(p.count, p.occupancy.Len())) //nolint:gosec // bounded by 2^32

	p.sweeps++
	duration := time.Since(start)
	p.metrics.RecordSweep(found, scanned, duration)
	p.logger.LogSweep(context.Background(), found, scanned, duration)
	return found
}

func (p *Pool[T]) grow() error {
	ctx := context.Background()
	next := p.records.Size() + 1
	if next > container.MaxExponent {
		p.logger.LogGrow(ctx, next, 0, ErrHandleSpaceExhausted)
		return ErrHandleSpaceExhausted
	}

	need := segmentBytes[T](next)
	if err := p.reserve(need); err != nil {
		err = fmt.Errorf("segment %d needs %d bytes: %w", next, need, err)
		p.logger.LogGrow(ctx, next, 0, err)
		return err
	}

	// Generations grow first so they always cover every record segment.
	if err := p.gens.Grow(); err != nil {
		p.logger.LogGrow(ctx, next, 0, err)
		return err
	}
	if err := p.records.Grow(); err != nil {
		p.logger.LogGrow(ctx, next, 0, err)
		return err
	}

	p.grows++
	capacity := p.records.Cap()
	p.metrics.RecordGrow(next, capacity)
	p.logger.LogGrow(ctx, next, capacity, nil)
	return nil
}

// segmentBytes is the memory a segment of exponent k costs, records and
// generations included.
func segmentBytes[T any](k uint8) uint64 {
	return container.SegmentBytes[T](k) + container.SegmentBytes[uint32](k)
}

// reserve takes bytes from the budget, waiting up to p.wait for other
// owners to release memory. Failures match ErrMemoryLimit.
func (p *Pool[T]) reserve(bytes uint64) error {
	if p.budget == nil {
		return nil
	}
	n := int64(bytes) //nolint:gosec // segment sizes are far below 2^63
	if p.wait > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), p.wait)
		defer cancel()
		if err := p.budget.AcquireMemory(ctx, n); err != nil {
			return fmt.Errorf("%w: %w", ErrMemoryLimit, err)
		}
	} else if !p.budget.TryAcquireMemory(n) {
		return ErrMemoryLimit
	}
	p.reserved += n
	return nil
}

func (p *Pool[T]) release() {
	if p.budget == nil || p.reserved == 0 {
		return
	}
	p.budget.ReleaseMemory(p.reserved)
	p.reserved = 0
}

package container

import (
	"errors"
	"math/bits"
	"unsafe"

	"github.com/hupe1980/segpool/internal/mmap"
)

const (
	// BaseBits is the exponent of the first segment boundary.
	BaseBits = 4
	// BaseSize is the capacity of segment 0.
	BaseSize = 1 << BaseBits
	// BaseExponent is the exponent reported for segment 0.
	BaseExponent = BaseBits - 1
	// MaxExponent is the exponent of the last segment addressable by a uint32 handle.
	MaxExponent = 31
)

var (
	// ErrExhausted is returned when growing past MaxExponent.
	ErrExhausted = errors.New("container: segment exponents exhausted")
	// ErrClosed is returned when growing a closed arena.
	ErrClosed = errors.New("container: arena is closed")
)

// Segment is a fixed-capacity block of items.
type Segment[T any] struct {
	// Exponent is k for the segment covering [2^k, 2^(k+1)), or BaseExponent.
	Exponent uint8
	Items    []T

	mapping *mmap.Mapping
}

// Bytes returns the raw memory of the segment.
// Only meaningful for pointer-free element types.
func (s *Segment[T]) Bytes() []byte {
	if len(s.Items) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(s.Items[0]))
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s.Items))), len(s.Items)*size) //nolint:gosec // pointer-free T, view of owned memory
}

// Arena is an append-only sequence of power-of-two segments.
// It is not safe for concurrent use.
type Arena[T any] struct {
	segments []*Segment[T]
	offHeap  bool
	closed   bool
}

// Option configures an Arena.
type Option func(*arenaOptions)

type arenaOptions struct {
	offHeap bool
}

// WithOffHeap backs segments with anonymous memory mappings.
func WithOffHeap() Option {
	return func(o *arenaOptions) {
		o.offHeap = true
	}
}

// New creates an arena holding segment 0 and every segment up to and
// including exponent size.
func New[T any](size uint8, opts ...Option) (*Arena[T], error) {
	var o arenaOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &Arena[T]{offHeap: o.offHeap}
	if err := a.add(BaseExponent, BaseSize); err != nil {
		return nil, err
	}
	for a.Size() < size {
		if err := a.Grow(); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

// Locate returns the segment exponent and offset of handle h.
// Handles below BaseSize live in segment 0, reported as BaseExponent.
func Locate(h uint32) (exponent uint8, offset uint32) {
	if h < BaseSize {
		return BaseExponent, h
	}
	k := uint8(bits.Len32(h) - 1) //nolint:gosec // 4 <= k <= 31
	return k, h - 1<<k
}

// Size returns the exponent of the highest allocated segment.
func (a *Arena[T]) Size() uint8 {
	return a.segments[len(a.segments)-1].Exponent
}

// Cap returns the number of addressable items, 2^(Size()+1).
func (a *Arena[T]) Cap() uint64 {
	return uint64(1) << (a.Size() + 1)
}

// Len returns the number of segments.
func (a *Arena[T]) Len() int {
	return len(a.segments)
}

// Segment returns segment i in allocation order.
func (a *Arena[T]) Segment(i int) *Segment[T] {
	return a.segments[i]
}

// SegmentBytes returns the size in bytes of the segment with the given exponent.
func SegmentBytes[T any](exponent uint8) uint64 {
	var zero T
	n := uint64(BaseSize)
	if exponent > BaseExponent {
		n = uint64(1) << exponent
	}
	return n * uint64(unsafe.Sizeof(zero))
}

// Reserved returns the bytes held by all segments.
func (a *Arena[T]) Reserved() uint64 {
	var total uint64
	for _, s := range a.segments {
		total += SegmentBytes[T](s.Exponent)
	}
	return total
}

// Grow appends the segment with exponent Size()+1.
func (a *Arena[T]) Grow() error {
	if a.closed {
		return ErrClosed
	}
	next := a.Size() + 1
	if next > MaxExponent {
		return ErrExhausted
	}
	return a.add(next, 1<<next)
}

// At returns a pointer to the item for handle h.
// The handle must lie below Cap(); the call panics otherwise.
func (a *Arena[T]) At(h uint32) *T {
	k, off := Locate(h)
	return &a.segments[k-BaseExponent].Items[off]
}

// Close releases off-heap segments. Heap segments are left to the garbage collector.
func (a *Arena[T]) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	for _, s := range a.segments {
		if s.mapping != nil {
			errs = append(errs, s.mapping.Close())
		}
		s.Items = nil
	}
	return errors.Join(errs...)
}

func (a *Arena[T]) add(exponent uint8, n uint64) error {
	seg := &Segment[T]{Exponent: exponent}

	var zero T
	size := uint64(unsafe.Sizeof(zero))
	if a.offHeap && size > 0 {
		m, err := mmap.MapAnon(int(n * size)) //nolint:gosec // n <= 2^31
		if err != nil {
			return err
		}
		_ = m.Advise(mmap.AccessRandom)
		data := m.Bytes()
		seg.Items = unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), int(n)) //nolint:gosec // page-aligned, pointer-free T
		seg.mapping = m
	} else {
		seg.Items = make([]T, n)
	}

	a.segments = append(a.segments, seg)
	return nil
}

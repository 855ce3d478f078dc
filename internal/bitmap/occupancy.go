package bitmap

import (
	"iter"
	"math/bits"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
)

// Occupancy is a growable bit vector indexed by handle.
//
// A set bit marks an allocated slot. The zero value is not usable; call New.
type Occupancy struct {
	bits *bitset.BitSet
}

// New creates an Occupancy with the given initial length (in bits).
func New(length uint64) *Occupancy {
	return &Occupancy{bits: bitset.New(uint(length))}
}

// FromRoaring rebuilds an Occupancy of the given length from the set bits in rb.
// Members of rb at or beyond length extend the bitmap like Set does.
func FromRoaring(rb *roaring.Bitmap, length uint64) *Occupancy {
	o := New(length)
	it := rb.Iterator()
	for it.HasNext() {
		o.Set(it.Next(), true)
	}
	return o
}

// Len returns the current length in bits.
func (o *Occupancy) Len() uint64 {
	return uint64(o.bits.Len())
}

// Count returns the number of set bits.
func (o *Occupancy) Count() uint64 {
	return uint64(o.bits.Count())
}

// Get returns the bit at idx, extending the bitmap when idx is out of range.
func (o *Occupancy) Get(idx uint32) bool {
	o.ensure(idx)
	return o.bits.Test(uint(idx))
}

// Set stores value at idx, extending the bitmap when idx is out of range.
func (o *Occupancy) Set(idx uint32, value bool) {
	o.ensure(idx)
	o.bits.SetTo(uint(idx), value)
}

// Unset returns an iterator over the zero bits within the current length,
// in ascending order. The length is captured when iteration starts.
func (o *Occupancy) Unset() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		length := o.bits.Len()
		for i, ok := o.bits.NextClear(0); ok && i < length; i, ok = o.bits.NextClear(i + 1) {
			if !yield(uint32(i)) { //nolint:gosec // i < length <= 2^32
				return
			}
		}
	}
}

// Occupied returns an iterator over the set bits in ascending order.
func (o *Occupancy) Occupied() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for i, ok := o.bits.NextSet(0); ok; i, ok = o.bits.NextSet(i + 1) {
			if !yield(uint32(i)) { //nolint:gosec // i < Len
				return
			}
		}
	}
}

// Roaring returns the set bits as a roaring bitmap.
func (o *Occupancy) Roaring() *roaring.Bitmap {
	rb := roaring.New()
	for idx := range o.Occupied() {
		rb.Add(idx)
	}
	return rb
}

// ensure grows the bitmap to the next power of two strictly greater than idx.
func (o *Occupancy) ensure(idx uint32) {
	if uint(idx) < o.bits.Len() {
		return
	}
	length := uint64(1) << bits.Len32(idx)
	// Set extends the backing words to exactly length bits; the clear restores
	// the default value of the last bit.
	last := uint(length - 1)
	o.bits.Set(last)
	o.bits.Clear(last)
}

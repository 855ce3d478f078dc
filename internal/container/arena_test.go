package container

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	X int64
	Y float32
}

func TestLocate(t *testing.T) {
	tests := []struct {
		handle   uint32
		exponent uint8
		offset   uint32
	}{
		{0, BaseExponent, 0},
		{15, BaseExponent, 15},
		{16, 4, 0},
		{31, 4, 15},
		{32, 5, 0},
		{100, 6, 36},
		{1 << 31, 31, 0},
		{^uint32(0), 31, 1<<31 - 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("h=%d", tt.handle), func(t *testing.T) {
			k, off := Locate(tt.handle)
			assert.Equal(t, tt.exponent, k)
			assert.Equal(t, tt.offset, off)
		})
	}
}

func TestArena_New(t *testing.T) {
	t.Run("base only", func(t *testing.T) {
		a, err := New[record](BaseExponent)
		require.NoError(t, err)
		defer a.Close()

		assert.Equal(t, 1, a.Len())
		assert.Equal(t, uint8(BaseExponent), a.Size())
		assert.Equal(t, uint64(16), a.Cap())
		assert.Len(t, a.Segment(0).Items, 16)
	})

	t.Run("grown to exponent 6", func(t *testing.T) {
		a, err := New[record](6)
		require.NoError(t, err)
		defer a.Close()

		assert.Equal(t, 4, a.Len())
		assert.Equal(t, uint64(128), a.Cap())
		for i, want := range []int{16, 16, 32, 64} {
			assert.Len(t, a.Segment(i).Items, want, "segment %d", i)
		}
	})
}

func TestArena_Grow(t *testing.T) {
	a, err := New[record](BaseExponent)
	require.NoError(t, err)
	defer a.Close()

	a.At(3).X = 42
	p := a.At(3)

	require.NoError(t, a.Grow())
	assert.Equal(t, uint8(4), a.Size())
	assert.Equal(t, uint64(32), a.Cap())

	assert.Same(t, p, a.At(3), "growth must not move existing segments")
	assert.Equal(t, int64(42), a.At(3).X)

	a.At(31).X = 7
	assert.Equal(t, int64(7), a.Segment(1).Items[15].X)
}

func TestArena_Reserved(t *testing.T) {
	a, err := New[record](5)
	require.NoError(t, err)
	defer a.Close()

	size := uint64(unsafe.Sizeof(record{}))
	assert.Equal(t, 64*size, a.Reserved())
	assert.Equal(t, 16*size, SegmentBytes[record](BaseExponent))
	assert.Equal(t, 32*size, SegmentBytes[record](5))
}

func TestArena_Bytes(t *testing.T) {
	a, err := New[uint32](BaseExponent)
	require.NoError(t, err)
	defer a.Close()

	*a.At(0) = 0x01020304
	raw := a.Segment(0).Bytes()
	require.Len(t, raw, 64)

	var back uint32
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&back)), 4), raw[:4])
	assert.Equal(t, uint32(0x01020304), back)

	empty, err := New[struct{}](BaseExponent)
	require.NoError(t, err)
	assert.Nil(t, empty.Segment(0).Bytes())
}

func TestArena_OffHeap(t *testing.T) {
	a, err := New[record](5, WithOffHeap())
	require.NoError(t, err)

	for h := uint32(0); h < 64; h++ {
		require.Zero(t, *a.At(h))
		a.At(h).X = int64(h)
	}
	for h := uint32(0); h < 64; h++ {
		assert.Equal(t, int64(h), a.At(h).X)
	}

	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())
	assert.ErrorIs(t, a.Grow(), ErrClosed)
}

func TestArena_Exhausted(t *testing.T) {
	// A zero-size element keeps growth to the last exponent free.
	a, err := New[struct{}](MaxExponent)
	require.NoError(t, err)

	assert.Equal(t, uint8(MaxExponent), a.Size())
	assert.ErrorIs(t, a.Grow(), ErrExhausted)
}

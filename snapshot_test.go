package segpool

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segpool/blobstore"
	"github.com/hupe1980/segpool/resource"
	"github.com/hupe1980/segpool/snapshot"
)

func populated(t *testing.T, opts ...Option) (*Pool[record], []Handle) {
	t.Helper()
	p := newTestPool(t, opts...)
	handles := fill(p, 40)
	for _, h := range handles {
		rec := p.MustGet(h)
		rec.ID = uint64(h) * 7
		rec.Value = -int32(h)
		rec.Flags = [4]byte{byte(h), 1, 2, 3}
	}
	for _, h := range []Handle{3, 17, 33, 39} {
		p.Free(h)
	}
	return p, handles
}

func assertSamePool(t *testing.T, want, got *Pool[record]) {
	t.Helper()

	ws, gs := want.Stats(), got.Stats()
	assert.Equal(t, ws.Watermark, gs.Watermark)
	assert.Equal(t, ws.Size, gs.Size)
	assert.Equal(t, ws.Live, gs.Live)
	assert.Equal(t, ws.Holes, gs.Holes)
	assert.Equal(t, ws.BitmapLen, gs.BitmapLen)
	assert.Equal(t, ws.Sweeps, gs.Sweeps)
	assert.Equal(t, ws.Grows, gs.Grows)

	for h := range Handle(ws.Watermark) {
		require.Equal(t, want.AllocatedAt(h), got.AllocatedAt(h), "handle %d", h)
		require.Equal(t, want.Generation(h), got.Generation(h), "handle %d", h)
		if want.AllocatedAt(h) {
			require.Equal(t, *want.MustGet(h), *got.MustGet(h), "handle %d", h)
		}
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	for _, c := range []snapshot.Compression{snapshot.CompressionNone, snapshot.CompressionLZ4, snapshot.CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			ctx := context.Background()
			p, _ := populated(t)

			var buf bytes.Buffer
			require.NoError(t, p.WriteSnapshot(ctx, &buf, snapshot.WithCompression(c)))

			restored, err := ReadSnapshot[record](ctx, &buf)
			require.NoError(t, err)
			t.Cleanup(func() { _ = restored.Close() })

			assertSamePool(t, p, restored)
		})
	}
}

func TestSnapshot_RestoredPoolContinues(t *testing.T) {
	ctx := context.Background()
	p, _ := populated(t)

	var buf bytes.Buffer
	require.NoError(t, p.WriteSnapshot(ctx, &buf))
	restored, err := ReadSnapshot[record](ctx, &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = restored.Close() })

	// Both pools must make identical decisions from here on.
	for range 40 {
		a, b := p.Create(false), restored.Create(false)
		require.Equal(t, a, b)
		require.Equal(t, *p.MustGet(a), *restored.MustGet(b))
	}
	assertSamePool(t, p, restored)
}

func TestSnapshot_PendingHoles(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)
	fill(p, 16)
	p.Free(2)
	p.Free(5)
	p.Free(7)
	require.Equal(t, Handle(7), p.Create(false))

	var buf bytes.Buffer
	require.NoError(t, p.WriteSnapshot(ctx, &buf))
	restored, err := ReadSnapshot[record](ctx, &buf)
	require.NoError(t, err)

	assert.Equal(t, Handle(5), restored.Create(false))
	assert.Equal(t, Handle(2), restored.Create(false))
	assert.Equal(t, Handle(16), restored.Create(false))
}

func TestSnapshot_SaveLoad(t *testing.T) {
	ctx := context.Background()
	p, _ := populated(t)

	stores := map[string]blobstore.Store{
		"memory": blobstore.NewMemoryStore(),
		"local":  blobstore.NewLocalStore(t.TempDir()),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Save(ctx, store, "pools/records.snap", snapshot.WithCompression(snapshot.CompressionZSTD)))

			restored, err := Load[record](ctx, store, "pools/records.snap", WithOffHeap())
			require.NoError(t, err)
			t.Cleanup(func() { _ = restored.Close() })

			assert.True(t, restored.Stats().OffHeap)
			assertSamePool(t, p, restored)

			_, err = Load[record](ctx, store, "missing.snap")
			assert.ErrorIs(t, err, blobstore.ErrNotFound)
		})
	}
}

func TestSnapshot_LayoutMismatch(t *testing.T) {
	ctx := context.Background()
	p, _ := populated(t)

	var buf bytes.Buffer
	require.NoError(t, p.WriteSnapshot(ctx, &buf))

	_, err := ReadSnapshot[[3]uint32](ctx, &buf)
	assert.ErrorIs(t, err, snapshot.ErrLayoutMismatch)
}

func TestSnapshot_BudgetOnRestore(t *testing.T) {
	ctx := context.Background()
	p, _ := populated(t)

	var buf bytes.Buffer
	require.NoError(t, p.WriteSnapshot(ctx, &buf))

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 256})
	_, err := ReadSnapshot[record](ctx, &buf, WithMemoryBudget(rc))
	assert.ErrorIs(t, err, ErrMemoryLimit)
	assert.Zero(t, rc.MemoryUsage())
}

func TestSnapshot_CorruptImage(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(img *snapshot.Image)
	}{
		{"WatermarkBeyondCapacity", func(img *snapshot.Image) { img.Watermark = 1 << 20 }},
		{"MissingSegment", func(img *snapshot.Image) { img.Segments = img.Segments[:1] }},
		{"SizeExponentOutOfRange", func(img *snapshot.Image) { img.Size = 40 }},
		{"HoleBeyondWatermark", func(img *snapshot.Image) { img.Holes = []uint32{50} }},
		{"HoleAllocated", func(img *snapshot.Image) { img.Holes = []uint32{5} }},
		{"DuplicateHole", func(img *snapshot.Image) { img.Holes = []uint32{3, 3} }},
		{"BitmapLenNotPowerOfTwo", func(img *snapshot.Image) { img.BitmapLen = 65 }},
		{"BitmapLenBelowCapacity", func(img *snapshot.Image) { img.BitmapLen = 32 }},
		{"BitmapLenBeyondHandles", func(img *snapshot.Image) { img.BitmapLen = 1 << 33 }},
		{"OccupiedBeyondWatermark", func(img *snapshot.Image) { img.Occupancy.Add(45) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := populated(t)
			img, err := p.Image()
			require.NoError(t, err)
			tt.mutate(img)

			_, err = Restore[record](img)
			assert.ErrorIs(t, err, snapshot.ErrCorrupt)
		})
	}
}

func TestSnapshot_RestoreUsesImageBitmapLen(t *testing.T) {
	p := newTestPool(t)
	fill(p, 16)
	p.Free(3)

	img, err := p.Image()
	require.NoError(t, err)
	img.Holes = []uint32{3}
	img.BitmapLen = 32

	got, err := Restore[record](img)
	require.NoError(t, err)
	t.Cleanup(func() { _ = got.Close() })

	assert.Equal(t, uint64(32), got.Stats().BitmapLen)
	assert.Equal(t, Handle(3), got.Create(false))
	// The only hole is gone; the next create sweeps, finds nothing, and grows.
	assert.Equal(t, Handle(16), got.Create(false))
}

func TestSnapshot_ClosedPool(t *testing.T) {
	p, err := New[record]()
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Image()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Save(context.Background(), blobstore.NewMemoryStore(), "x"), ErrClosed)
}

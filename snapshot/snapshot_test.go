package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segpool/resource"
)

func testImage() *Image {
	gens := make([]byte, 16*4)
	binary.LittleEndian.PutUint32(gens[8:], 3)

	// Repetitive records compress well; the second segment is noise-like.
	records := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 16)
	noise := make([]byte, 16*8)
	for i := range noise {
		noise[i] = byte(i*131 + 7)
	}

	return &Image{
		Header: Header{
			Size:        4,
			RecordType:  "main.record",
			RecordSize:  8,
			RecordAlign: 8,
			Watermark:   20,
			BitmapLen:   64,
			Sweeps:      1,
			Grows:       1,
		},
		Holes:       []uint32{1, 4},
		Occupancy:   roaring.BitmapOf(0, 2, 3, 16, 19),
		Generations: [][]byte{gens, make([]byte, 16*4)},
		Segments:    [][]byte{records, noise},
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			ctx := context.Background()
			img := testImage()

			data, err := EncodeBytes(ctx, img, WithCompression(c), WithWorkers(2))
			require.NoError(t, err)

			got, err := DecodeBytes(ctx, data)
			require.NoError(t, err)

			assert.Equal(t, Version, got.Version)
			assert.Equal(t, c, got.Compression)
			assert.Equal(t, img.Size, got.Size)
			assert.Equal(t, img.RecordType, got.RecordType)
			assert.Equal(t, img.RecordSize, got.RecordSize)
			assert.Equal(t, img.RecordAlign, got.RecordAlign)
			assert.Equal(t, img.Watermark, got.Watermark)
			assert.Equal(t, img.BitmapLen, got.BitmapLen)
			assert.Equal(t, img.Sweeps, got.Sweeps)
			assert.Equal(t, img.Grows, got.Grows)
			assert.Equal(t, img.Holes, got.Holes)
			assert.True(t, img.Occupancy.Equals(got.Occupancy))
			assert.Equal(t, img.Generations, got.Generations)
			assert.Equal(t, img.Segments, got.Segments)
		})
	}
}

func TestCompressionShrinksRepetitiveBlocks(t *testing.T) {
	ctx := context.Background()
	img := testImage()
	img.RecordSize = 256
	img.Segments[0] = make([]byte, 4096)
	img.Segments[1] = make([]byte, 4096)

	raw, err := EncodeBytes(ctx, img, WithCompression(CompressionNone))
	require.NoError(t, err)
	packed, err := EncodeBytes(ctx, img, WithCompression(CompressionZSTD))
	require.NoError(t, err)

	assert.Less(t, len(packed), len(raw)/4)
}

func TestDecode_Errors(t *testing.T) {
	ctx := context.Background()
	data, err := EncodeBytes(ctx, testImage())
	require.NoError(t, err)

	t.Run("BadMagic", func(t *testing.T) {
		bad := bytes.Clone(data)
		copy(bad, "NOPE")
		_, err := DecodeBytes(ctx, bad)
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := DecodeBytes(ctx, nil)
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("FutureVersion", func(t *testing.T) {
		bad := bytes.Clone(data)
		binary.LittleEndian.PutUint16(bad[4:], Version+1)
		_, err := DecodeBytes(ctx, bad)
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("UnknownCompression", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[6] = 9
		_, err := DecodeBytes(ctx, bad)
		assert.ErrorIs(t, err, ErrUnknownCompression)
	})

	t.Run("Checksum", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[len(bad)-1] ^= 0xff
		_, err := DecodeBytes(ctx, bad)
		assert.ErrorIs(t, err, ErrChecksum)
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := DecodeBytes(ctx, data[:len(data)-10])
		assert.Error(t, err)
	})
}

// rawOffsets returns the offsets of the hole count, the occupancy length,
// the segment count and the first block of testImage encoded without
// compression.
func rawOffsets(t *testing.T) (holes, occ, segments, block int) {
	t.Helper()
	img := testImage()
	bm, err := img.Occupancy.ToBytes()
	require.NoError(t, err)

	holes = len(Magic) + 2 + 1 + 1 + 4 + 4 + 4*8 + 2 + len(img.RecordType)
	occ = holes + 4 + 4*len(img.Holes)
	segments = occ + 4 + len(bm)
	block = segments + 4
	return holes, occ, segments, block
}

func TestDecode_Malformed(t *testing.T) {
	ctx := context.Background()
	data, err := EncodeBytes(ctx, testImage(), WithCompression(CompressionNone))
	require.NoError(t, err)

	holes, occ, segments, block := rawOffsets(t)

	tests := []struct {
		name   string
		mutate func(b []byte)
	}{
		{"SizeExponentTooSmall", func(b []byte) { b[7] = 2 }},
		{"SizeExponentTooLarge", func(b []byte) { b[7] = 40 }},
		{"WatermarkBeyondCapacity", func(b []byte) { binary.LittleEndian.PutUint64(b[16:], 1<<40) }},
		{"HugeHoleCount", func(b []byte) { binary.LittleEndian.PutUint32(b[holes:], 0xffffffff) }},
		{"HugeOccupancyLength", func(b []byte) { binary.LittleEndian.PutUint32(b[occ:], 0xffffffff) }},
		{"SegmentCountMismatch", func(b []byte) { binary.LittleEndian.PutUint32(b[segments:], 3) }},
		{"HugeRawLength", func(b []byte) { binary.LittleEndian.PutUint64(b[block:], 1<<62) }},
		{"RawLengthBeyondSegment", func(b []byte) { binary.LittleEndian.PutUint64(b[block:], 16*4+1) }},
		{"StoredLongerThanRaw", func(b []byte) { binary.LittleEndian.PutUint64(b[block+8:], 1<<62) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := bytes.Clone(data)
			tt.mutate(bad)

			var err error
			require.NotPanics(t, func() {
				_, err = DecodeBytes(ctx, bad)
			})
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestDecode_EveryTruncation(t *testing.T) {
	ctx := context.Background()
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			data, err := EncodeBytes(ctx, testImage(), WithCompression(c))
			require.NoError(t, err)

			for n := range len(data) {
				var err error
				require.NotPanics(t, func() {
					_, err = DecodeBytes(ctx, data[:n])
				}, "prefix %d", n)
				assert.Error(t, err, "prefix %d", n)
			}
		})
	}
}

func TestDecompressBlock_LengthBounds(t *testing.T) {
	_, err := decompressBlock([]byte{0}, 1<<30, CompressionLZ4)
	assert.Error(t, err)

	stored, err := compressBlock(make([]byte, 1024), CompressionZSTD)
	require.NoError(t, err)
	require.NotNil(t, stored)

	_, err = decompressBlock(stored, 1<<30, CompressionZSTD)
	assert.Error(t, err)

	raw, err := decompressBlock(stored, 1024, CompressionZSTD)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 1024), raw)
}

func TestEncode_MismatchedBlocks(t *testing.T) {
	img := testImage()
	img.Generations = img.Generations[:1]

	_, err := EncodeBytes(context.Background(), img)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestEncode_WithResourceController(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{
		MaxBackgroundWorkers: 1,
		IOLimitBytesPerSec:   1 << 30,
	})

	data, err := EncodeBytes(ctx, testImage(), WithResourceController(rc), WithCompression(CompressionLZ4))
	require.NoError(t, err)

	got, err := DecodeBytes(ctx, data, WithResourceController(rc))
	require.NoError(t, err)
	assert.Equal(t, uint64(20), got.Watermark)
}

func TestEncode_CompressesInlineWhenWorkersBusy(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MaxBackgroundWorkers: 1})
	require.True(t, rc.TryAcquireBackground())

	data, err := EncodeBytes(ctx, testImage(), WithResourceController(rc), WithCompression(CompressionZSTD))
	require.NoError(t, err)

	// Decompression waits for a worker slot.
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = DecodeBytes(waitCtx, data, WithResourceController(rc))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rc.ReleaseBackground()
	got, err := DecodeBytes(ctx, data, WithResourceController(rc))
	require.NoError(t, err)
	assert.Equal(t, testImage().Segments, got.Segments)
	assert.Equal(t, testImage().Generations, got.Generations)
}

func TestOptions_WorkersFromController(t *testing.T) {
	rc := resource.NewController(resource.Config{MaxBackgroundWorkers: 1})

	assert.Equal(t, 1, applyOptions([]Option{WithResourceController(rc)}).Workers)
	assert.Equal(t, 3, applyOptions([]Option{WithResourceController(rc), WithWorkers(3)}).Workers)
	assert.Positive(t, applyOptions(nil).Workers)
}

func TestEncode_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rc := resource.NewController(resource.Config{MaxBackgroundWorkers: 1})
	_, err := EncodeBytes(ctx, testImage(), WithResourceController(rc), WithCompression(CompressionZSTD))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

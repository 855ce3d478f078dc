package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"runtime"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/segpool/internal/container"
	"github.com/hupe1980/segpool/internal/conv"
	"github.com/hupe1980/segpool/resource"
)

// Magic identifies a snapshot image.
const Magic = "SPOL"

// Version is the current format version.
const Version uint16 = 1

var (
	// ErrBadMagic is returned when the input is not a snapshot image.
	ErrBadMagic = errors.New("snapshot: bad magic")
	// ErrUnsupportedVersion is returned for images written by a newer format.
	ErrUnsupportedVersion = errors.New("snapshot: unsupported version")
	// ErrChecksum is returned when the trailing CRC does not match.
	ErrChecksum = errors.New("snapshot: checksum mismatch")
	// ErrLayoutMismatch is returned when an image was written for a different record layout.
	ErrLayoutMismatch = errors.New("snapshot: record layout mismatch")
	// ErrUnknownCompression is returned for an unknown compression type.
	ErrUnknownCompression = errors.New("snapshot: unknown compression")
	// ErrCorrupt is returned when the image structure is inconsistent.
	ErrCorrupt = errors.New("snapshot: corrupt image")
)

// maxTypeName bounds the record type name stored in the header.
const maxTypeName = math.MaxUint16

// generationSize is the size of one slot generation in bytes.
const generationSize = 4

// Header describes the pool an image was taken from.
type Header struct {
	Version     uint16
	Compression Compression
	// Size is the exponent of the highest allocated segment.
	Size        uint8
	RecordType  string
	RecordSize  uint32
	RecordAlign uint32
	Watermark   uint64
	BitmapLen   uint64
	Sweeps      uint64
	Grows       uint64
}

// Image is the decoded content of a snapshot.
//
// Generations and Segments hold one raw block per segment, in segment order.
type Image struct {
	Header
	Holes       []uint32
	Occupancy   *roaring.Bitmap
	Generations [][]byte
	Segments    [][]byte
}

// Options configures encoding and decoding.
type Options struct {
	// Compression is the block compression used when encoding.
	Compression Compression
	// Workers bounds the goroutines compressing or decompressing blocks.
	// Defaults to GOMAXPROCS, capped by the controller's MaxBackgroundWorkers.
	Workers int
	// Resources, if set, bounds background workers and throttles IO.
	Resources *resource.Controller
}

// Option configures Options.
type Option func(*Options)

// WithCompression sets the block compression.
func WithCompression(c Compression) Option {
	return func(o *Options) {
		o.Compression = c
	}
}

// WithWorkers sets the number of compression goroutines.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithResourceController throttles snapshot IO and compression workers.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *Options) {
		o.Resources = rc
	}
}

func applyOptions(optFns []Option) Options {
	o := Options{Compression: CompressionLZ4}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
		if o.Resources != nil {
			o.Workers = int(min(o.Resources.Config().MaxBackgroundWorkers, int64(o.Workers)))
		}
	}
	return o
}

type block struct {
	raw    []byte
	stored []byte // nil: keep raw
}

// Encode writes img to w.
func Encode(ctx context.Context, w io.Writer, img *Image, optFns ...Option) error {
	opts := applyOptions(optFns)
	if len(img.Generations) != len(img.Segments) {
		return fmt.Errorf("%w: %d generation blocks for %d segments", ErrCorrupt, len(img.Generations), len(img.Segments))
	}
	if len(img.RecordType) > maxTypeName {
		return fmt.Errorf("%w: record type name too long", ErrCorrupt)
	}

	raws := make([][]byte, 0, 2*len(img.Segments))
	raws = append(raws, img.Generations...)
	raws = append(raws, img.Segments...)

	blocks, err := compressAll(ctx, raws, opts)
	if err != nil {
		return err
	}

	crc := crc32.NewIEEE()
	bw := &binWriter{w: io.MultiWriter(resource.NewRateLimitedWriter(ctx, w, opts.Resources), crc)}

	hdr := img.Header
	hdr.Version = Version
	hdr.Compression = opts.Compression

	bw.bytes([]byte(Magic))
	bw.u16(hdr.Version)
	bw.u8(uint8(hdr.Compression))
	bw.u8(hdr.Size)
	bw.u32(hdr.RecordSize)
	bw.u32(hdr.RecordAlign)
	bw.u64(hdr.Watermark)
	bw.u64(hdr.BitmapLen)
	bw.u64(hdr.Sweeps)
	bw.u64(hdr.Grows)
	bw.u16(uint16(len(hdr.RecordType))) //nolint:gosec // checked against maxTypeName
	bw.bytes([]byte(hdr.RecordType))

	holes, err := conv.IntToUint32(len(img.Holes))
	if err != nil {
		return err
	}
	bw.u32(holes)
	for _, h := range img.Holes {
		bw.u32(h)
	}

	occupancy := img.Occupancy
	if occupancy == nil {
		occupancy = roaring.New()
	}
	occ, err := occupancy.ToBytes()
	if err != nil {
		return fmt.Errorf("snapshot: encode occupancy: %w", err)
	}
	occLen, err := conv.IntToUint32(len(occ))
	if err != nil {
		return err
	}
	bw.u32(occLen)
	bw.bytes(occ)

	segments, err := conv.IntToUint32(len(img.Segments))
	if err != nil {
		return err
	}
	bw.u32(segments)
	for _, b := range blocks {
		bw.u64(uint64(len(b.raw)))
		if b.stored == nil {
			bw.u64(0)
			bw.bytes(b.raw)
			continue
		}
		bw.u64(uint64(len(b.stored)))
		bw.bytes(b.stored)
	}
	if bw.err != nil {
		return bw.err
	}

	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc.Sum32())
	_, err = resource.NewRateLimitedWriter(ctx, w, opts.Resources).Write(sum[:])
	return err
}

// EncodeBytes encodes img into a byte slice.
func EncodeBytes(ctx context.Context, img *Image, optFns ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(ctx, &buf, img, optFns...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func compressAll(ctx context.Context, raws [][]byte, opts Options) ([]block, error) {
	blocks := make([]block, len(raws))
	if opts.Compression == CompressionNone {
		for i, raw := range raws {
			blocks[i] = block{raw: raw}
		}
		return blocks, nil
	}

	compress := func(i int) error {
		stored, err := compressBlock(raws[i], opts.Compression)
		if err != nil {
			return fmt.Errorf("snapshot: compress block %d: %w", i, err)
		}
		blocks[i] = block{raw: raws[i], stored: stored}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range raws {
		if gctx.Err() != nil {
			break
		}
		// With every worker slot taken the caller compresses the block itself.
		if !opts.Resources.TryAcquireBackground() {
			if err := compress(i); err != nil {
				_ = g.Wait()
				return nil, err
			}
			continue
		}
		g.Go(func() error {
			defer opts.Resources.ReleaseBackground()
			return compress(i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// decompressAll expands the stored blocks in parallel, one worker slot each.
func decompressAll(ctx context.Context, blocks []storedBlock, c Compression, opts Options) ([][]byte, error) {
	raws := make([][]byte, len(blocks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, b := range blocks {
		if b.stored == nil {
			raws[i] = b.raw
			continue
		}
		g.Go(func() error {
			if err := opts.Resources.AcquireBackground(gctx); err != nil {
				return err
			}
			defer opts.Resources.ReleaseBackground()

			raw, err := decompressBlock(b.stored, b.rawLen, c)
			if err != nil {
				return fmt.Errorf("%w: block %d: %w", ErrCorrupt, i, err)
			}
			raws[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return raws, nil
}

// Decode reads an image from r and verifies its checksum before any block
// is decompressed.
func Decode(ctx context.Context, r io.Reader, optFns ...Option) (*Image, error) {
	opts := applyOptions(optFns)
	src := resource.NewRateLimitedReader(ctx, r, opts.Resources)

	crc := crc32.NewIEEE()
	br := &binReader{r: io.TeeReader(src, crc)}

	img, blocks, err := decodeBody(br)
	if err != nil {
		return nil, err
	}

	var sum [4]byte
	if _, err := io.ReadFull(src, sum[:]); err != nil {
		return nil, fmt.Errorf("%w: missing checksum: %w", ErrCorrupt, err)
	}
	if binary.LittleEndian.Uint32(sum[:]) != crc.Sum32() {
		return nil, ErrChecksum
	}

	raws, err := decompressAll(ctx, blocks, img.Compression, opts)
	if err != nil {
		return nil, err
	}
	segments := len(raws) / 2
	img.Generations = raws[:segments:segments]
	img.Segments = raws[segments:]
	return img, nil
}

// DecodeBytes decodes an image from data.
func DecodeBytes(ctx context.Context, data []byte, optFns ...Option) (*Image, error) {
	return Decode(ctx, bytes.NewReader(data), optFns...)
}

func decodeBody(br *binReader) (*Image, []storedBlock, error) {
	magic := br.bytes(len(Magic))
	if br.err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrBadMagic, br.err)
	}
	if string(magic) != Magic {
		return nil, nil, ErrBadMagic
	}

	img := &Image{}
	img.Version = br.u16()
	if br.err == nil && img.Version > Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, img.Version)
	}
	img.Compression = Compression(br.u8())
	img.Size = br.u8()
	img.RecordSize = br.u32()
	img.RecordAlign = br.u32()
	img.Watermark = br.u64()
	img.BitmapLen = br.u64()
	img.Sweeps = br.u64()
	img.Grows = br.u64()
	img.RecordType = string(br.bytes(int(br.u16())))
	if br.err != nil {
		return nil, nil, fmt.Errorf("%w: header: %w", ErrCorrupt, br.err)
	}
	if img.Compression > CompressionZSTD {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownCompression, img.Compression)
	}

	if img.Size < container.BaseExponent || img.Size > container.MaxExponent {
		return nil, nil, fmt.Errorf("%w: size exponent %d", ErrCorrupt, img.Size)
	}
	if capacity := uint64(1) << (img.Size + 1); img.Watermark > capacity {
		return nil, nil, fmt.Errorf("%w: watermark %d beyond capacity %d", ErrCorrupt, img.Watermark, capacity)
	}

	holes := br.u32()
	if br.err == nil && uint64(holes) > img.Watermark {
		return nil, nil, fmt.Errorf("%w: %d holes for watermark %d", ErrCorrupt, holes, img.Watermark)
	}
	img.Holes = make([]uint32, 0, min(holes, readChunk/4))
	for range holes {
		h := br.u32()
		if br.err != nil {
			break
		}
		img.Holes = append(img.Holes, h)
	}

	occLen, err := conv.Uint32ToInt(br.u32())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	occ := br.bytes(occLen)
	if br.err != nil {
		return nil, nil, fmt.Errorf("%w: occupancy: %w", ErrCorrupt, br.err)
	}
	img.Occupancy = roaring.New()
	if err := img.Occupancy.UnmarshalBinary(occ); err != nil {
		return nil, nil, fmt.Errorf("%w: occupancy: %w", ErrCorrupt, err)
	}
	if err := img.Occupancy.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: occupancy: %w", ErrCorrupt, err)
	}

	segments := br.u32()
	if br.err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCorrupt, br.err)
	}
	if want := uint32(img.Size-container.BaseExponent) + 1; segments != want {
		return nil, nil, fmt.Errorf("%w: %d segments for size %d", ErrCorrupt, segments, img.Size)
	}

	blocks := make([]storedBlock, 2*segments)
	for i := range blocks {
		maxRaw := segmentRecords(i) * generationSize
		kind := "generation"
		if i >= int(segments) {
			maxRaw = segmentRecords(i-int(segments)) * uint64(img.RecordSize)
			kind = "record"
		}
		b, err := readBlock(br, maxRaw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s block %d: %w", ErrCorrupt, kind, i%int(segments), err)
		}
		blocks[i] = b
	}
	return img, blocks, nil
}

// segmentRecords returns the number of records held by segment i.
func segmentRecords(i int) uint64 {
	if i == 0 {
		return container.BaseSize
	}
	return uint64(1) << (container.BaseExponent + i)
}

// storedBlock is a block as read from the input. raw is set when the
// block was kept uncompressed.
type storedBlock struct {
	rawLen int
	raw    []byte
	stored []byte
}

// readBlock reads one block whose raw form holds at most maxRaw bytes.
func readBlock(br *binReader, maxRaw uint64) (storedBlock, error) {
	rawLen := br.u64()
	storedLen := br.u64()
	if br.err != nil {
		return storedBlock{}, br.err
	}
	if rawLen > maxRaw {
		return storedBlock{}, fmt.Errorf("raw length %d exceeds %d", rawLen, maxRaw)
	}
	if storedLen > rawLen {
		return storedBlock{}, fmt.Errorf("stored length %d exceeds raw length %d", storedLen, rawLen)
	}
	n, err := conv.Uint64ToInt(rawLen)
	if err != nil {
		return storedBlock{}, err
	}

	b := storedBlock{rawLen: n}
	if storedLen == 0 {
		b.raw = br.bytes(n)
	} else {
		b.stored = br.bytes(int(storedLen)) //nolint:gosec // storedLen <= rawLen
	}
	return b, br.err
}

package segpool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/segpool/blobstore"
	"github.com/hupe1980/segpool/internal/bitmap"
	"github.com/hupe1980/segpool/internal/container"
	"github.com/hupe1980/segpool/internal/layout"
	"github.com/hupe1980/segpool/snapshot"
)

// Image captures the pool state for snapshot.Encode.
//
// The returned image aliases pool memory and must be encoded before the pool
// is modified again.
func (p *Pool[T]) Image() (*snapshot.Image, error) {
	if p.closed {
		return nil, ErrClosed
	}

	img := &snapshot.Image{
		Header: snapshot.Header{
			Size:        p.records.Size(),
			RecordType:  p.layout.Type.String(),
			RecordSize:  uint32(p.layout.Size),  //nolint:gosec // layout.Of bounds record sizes
			RecordAlign: uint32(p.layout.Align), //nolint:gosec // alignment is a small power of two
			Watermark:   p.count,
			BitmapLen:   p.occupancy.Len(),
			Sweeps:      p.sweeps,
			Grows:       p.grows,
		},
		Holes:       make([]uint32, len(p.holes)),
		Occupancy:   p.occupancy.Roaring(),
		Generations: make([][]byte, p.gens.Len()),
		Segments:    make([][]byte, p.records.Len()),
	}
	for i, h := range p.holes {
		img.Holes[i] = uint32(h)
	}
	for i := range img.Segments {
		img.Generations[i] = p.gens.Segment(i).Bytes()
		img.Segments[i] = p.records.Segment(i).Bytes()
	}
	return img, nil
}

// WriteSnapshot encodes the pool to w.
func (p *Pool[T]) WriteSnapshot(ctx context.Context, w io.Writer, optFns ...snapshot.Option) error {
	img, err := p.Image()
	if err != nil {
		return err
	}
	return snapshot.Encode(ctx, w, img, optFns...)
}

// Save writes a snapshot of the pool to store under name.
func (p *Pool[T]) Save(ctx context.Context, store blobstore.Store, name string, optFns ...snapshot.Option) (err error) {
	defer func() {
		p.logger.LogSnapshot(ctx, name, err)
	}()

	var buf bytes.Buffer
	if err := p.WriteSnapshot(ctx, &buf, optFns...); err != nil {
		return err
	}
	return store.Put(ctx, name, buf.Bytes())
}

// ReadSnapshot decodes a pool from r.
func ReadSnapshot[T any](ctx context.Context, r io.Reader, optFns ...Option) (*Pool[T], error) {
	img, err := snapshot.Decode(ctx, r)
	if err != nil {
		return nil, err
	}
	return Restore[T](img, optFns...)
}

// Load reads the snapshot stored under name and restores a pool from it.
func Load[T any](ctx context.Context, store blobstore.Store, name string, optFns ...Option) (*Pool[T], error) {
	opts := applyOptions(optFns)
	logger := opts.logger

	data, err := store.Get(ctx, name)
	if err != nil {
		logger.LogRestore(ctx, name, 0, err)
		return nil, err
	}

	p, err := ReadSnapshot[T](ctx, bytes.NewReader(data), optFns...)
	if err != nil {
		logger.LogRestore(ctx, name, 0, err)
		return nil, err
	}
	p.logger.LogRestore(ctx, name, p.count, nil)
	return p, nil
}

// Restore builds a pool from a decoded image.
//
// The image must have been taken from a pool whose record type has the same
// size and alignment as T; otherwise snapshot.ErrLayoutMismatch is returned.
func Restore[T any](img *snapshot.Image, optFns ...Option) (*Pool[T], error) {
	info, err := layout.Of[T]()
	if err != nil {
		return nil, &ErrLayout{Type: reflect.TypeFor[T]().String(), cause: err}
	}
	if uint64(img.RecordSize) != uint64(info.Size) || uint64(img.RecordAlign) != uint64(info.Align) {
		return nil, fmt.Errorf("%w: image has %s (size %d, align %d), want size %d, align %d",
			snapshot.ErrLayoutMismatch, img.RecordType, img.RecordSize, img.RecordAlign, info.Size, info.Align)
	}
	if err := validateImage(img); err != nil {
		return nil, err
	}

	opts := applyOptions(optFns)
	p, err := newPool[T](info, img.Size, opts)
	if err != nil {
		return nil, err
	}

	for i := range img.Segments {
		if err := restoreSegment(p.records.Segment(i).Bytes(), img.Segments[i]); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("record segment %d: %w", i, err)
		}
		if err := restoreSegment(p.gens.Segment(i).Bytes(), img.Generations[i]); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("generation segment %d: %w", i, err)
		}
	}

	occ := img.Occupancy
	if occ == nil {
		occ = roaring.New()
	}
	p.occupancy = bitmap.FromRoaring(occ, img.BitmapLen)
	p.count = img.Watermark
	p.sweeps = img.Sweeps
	p.grows = img.Grows
	p.holes = make([]Handle, len(img.Holes))
	for i, h := range img.Holes {
		p.holes[i] = Handle(h)
	}
	return p, nil
}

func validateImage(img *snapshot.Image) error {
	if img.Size < container.BaseExponent || img.Size > container.MaxExponent {
		return fmt.Errorf("%w: size exponent %d", snapshot.ErrCorrupt, img.Size)
	}
	segments := int(img.Size-container.BaseExponent) + 1
	if len(img.Segments) != segments || len(img.Generations) != segments {
		return fmt.Errorf("%w: %d segments for size %d", snapshot.ErrCorrupt, len(img.Segments), img.Size)
	}

	capacity := uint64(1) << (img.Size + 1)
	if img.Watermark > capacity {
		return fmt.Errorf("%w: watermark %d beyond capacity %d", snapshot.ErrCorrupt, img.Watermark, capacity)
	}
	if img.BitmapLen < capacity || img.BitmapLen > 1<<32 || img.BitmapLen&(img.BitmapLen-1) != 0 {
		return fmt.Errorf("%w: bitmap length %d for capacity %d", snapshot.ErrCorrupt, img.BitmapLen, capacity)
	}
	if img.Occupancy != nil && !img.Occupancy.IsEmpty() && uint64(img.Occupancy.Maximum()) >= img.Watermark {
		return fmt.Errorf("%w: occupied slot %d beyond watermark %d", snapshot.ErrCorrupt, img.Occupancy.Maximum(), img.Watermark)
	}

	seen := make(map[uint32]struct{}, len(img.Holes))
	for _, h := range img.Holes {
		if uint64(h) >= img.Watermark {
			return fmt.Errorf("%w: hole %d beyond watermark %d", snapshot.ErrCorrupt, h, img.Watermark)
		}
		if img.Occupancy != nil && img.Occupancy.Contains(h) {
			return fmt.Errorf("%w: hole %d is allocated", snapshot.ErrCorrupt, h)
		}
		if _, dup := seen[h]; dup {
			return fmt.Errorf("%w: hole %d listed twice", snapshot.ErrCorrupt, h)
		}
		seen[h] = struct{}{}
	}
	return nil
}

func restoreSegment(dst, src []byte) error {
	if len(dst) != len(src) {
		return fmt.Errorf("%w: %d bytes, want %d", snapshot.ErrCorrupt, len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

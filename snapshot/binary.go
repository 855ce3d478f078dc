package snapshot

import (
	"encoding/binary"
	"io"
	"slices"
)

// binWriter writes little-endian values and keeps the first error.
type binWriter struct {
	w   io.Writer
	err error
	buf [8]byte
}

func (b *binWriter) bytes(p []byte) {
	if b.err != nil || len(p) == 0 {
		return
	}
	_, b.err = b.w.Write(p)
}

func (b *binWriter) u8(v uint8) {
	b.buf[0] = v
	b.bytes(b.buf[:1])
}

func (b *binWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(b.buf[:2], v)
	b.bytes(b.buf[:2])
}

func (b *binWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(b.buf[:4], v)
	b.bytes(b.buf[:4])
}

func (b *binWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(b.buf[:8], v)
	b.bytes(b.buf[:8])
}

// binReader reads little-endian values and keeps the first error.
// After an error every read returns zero values.
type binReader struct {
	r   io.Reader
	err error
	buf [8]byte
}

// readChunk caps each allocation in bytes; lengths read from the input
// only reserve memory as the data actually arrives.
const readChunk = 1 << 20

func (b *binReader) bytes(n int) []byte {
	if b.err != nil || n <= 0 {
		return nil
	}
	p := make([]byte, 0, min(n, readChunk))
	for len(p) < n {
		m := min(n-len(p), readChunk)
		p = slices.Grow(p, m)
		if _, err := io.ReadFull(b.r, p[len(p):len(p)+m]); err != nil {
			b.err = err
			return nil
		}
		p = p[:len(p)+m]
	}
	return p
}

func (b *binReader) fixed(n int) []byte {
	if b.err != nil {
		clear(b.buf[:n])
		return b.buf[:n]
	}
	if _, err := io.ReadFull(b.r, b.buf[:n]); err != nil {
		b.err = err
		clear(b.buf[:n])
	}
	return b.buf[:n]
}

func (b *binReader) u8() uint8   { return b.fixed(1)[0] }
func (b *binReader) u16() uint16 { return binary.LittleEndian.Uint16(b.fixed(2)) }
func (b *binReader) u32() uint32 { return binary.LittleEndian.Uint32(b.fixed(4)) }
func (b *binReader) u64() uint64 { return binary.LittleEndian.Uint64(b.fixed(8)) }

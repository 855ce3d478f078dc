package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression defines the block compression algorithm.
type Compression uint8

const (
	// CompressionNone stores blocks uncompressed.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses the names returned by Compression.String.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// lz4MaxRatio bounds how far an LZ4 block can expand: every extra
// match-length byte adds at most 255 output bytes.
const lz4MaxRatio = 255

// zstdEncoderPool recycles encoders between blocks.
var zstdEncoderPool sync.Pool

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

// compressBlock returns the stored form of data, or nil when the block
// should be kept raw.
func compressBlock(data []byte, c Compression) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var compressed []byte
	switch c {
	case CompressionNone:
		return nil, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, c)
	}

	// Keep the block raw if compression doesn't help (ratio > 0.9).
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		return nil, nil
	}
	return compressed, nil
}

// decompressBlock expands stored into exactly rawLen bytes.
func decompressBlock(stored []byte, rawLen int, c Compression) ([]byte, error) {
	switch c {
	case CompressionLZ4:
		if uint64(rawLen) > uint64(len(stored))*lz4MaxRatio+64 {
			return nil, fmt.Errorf("snapshot: %d bytes cannot expand to %d", len(stored), rawLen)
		}
		result := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(stored, result)
		if err != nil {
			return nil, err
		}
		if n != rawLen {
			return nil, errors.New("snapshot: decompressed size mismatch")
		}
		return result, nil
	case CompressionZSTD:
		window := min(max(uint64(rawLen), zstd.MinWindowSize), zstd.MaxWindowSize)
		dec, err := zstd.NewReader(bytes.NewReader(stored),
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxWindow(window),
		)
		if err != nil {
			return nil, err
		}
		defer dec.Close()

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, io.LimitReader(dec, int64(rawLen)+1)); err != nil {
			return nil, err
		}
		if buf.Len() != rawLen {
			return nil, errors.New("snapshot: decompressed size mismatch")
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, c)
	}
}

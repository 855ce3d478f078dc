// Package container implements the power-of-two segment arena behind the pool.
//
// # Layout
//
// Segment 0 holds handles [0, 16). Every further segment is addressed by its
// exponent k >= 4 and holds handles [2^k, 2^(k+1)), so capacities run
// 16, 16, 32, 64, 128, ... and the total capacity after growing to exponent
// k is always 2^(k+1).
//
//	handle:   0 ........ 15 | 16 ...... 31 | 32 ....... 63 | ...
//	segment:  base (k=3)    | k=4          | k=5           | ...
//
// Locate maps a handle to its segment in constant time from the position of
// its most significant bit. Segments are never resized or removed, so
// pointers into them stay valid until Close.
//
// # Backing
//
// Segments are allocated on the Go heap by default. With off-heap backing
// they live in anonymous mappings (see internal/mmap) and are unmapped on
// Close; this is only sound for pointer-free element types.
package container

// Package snapshot implements the binary image format used to persist pools.
//
// # Format
//
// All integers are little endian.
//
//	┌──────────────────────────────────────────────────────────────┐
//	│ magic "SPOL" │ version u16 │ compression u8 │ size u8         │
//	│ record size u32 │ record align u32 │ watermark u64            │
//	│ bitmap length u64 │ sweeps u64 │ grows u64                     │
//	│ record type (u16 length + bytes)                             │
//	├──────────────────────────────────────────────────────────────┤
//	│ holes: count u32, count × u32                                 │
//	│ occupancy: length u32, roaring bitmap bytes                   │
//	├──────────────────────────────────────────────────────────────┤
//	│ segment count u32                                             │
//	│ generation blocks × count                                     │
//	│ record blocks × count                                         │
//	├──────────────────────────────────────────────────────────────┤
//	│ CRC32 (IEEE) of everything above, u32                         │
//	└──────────────────────────────────────────────────────────────┘
//
// Each block is [raw length u64][stored length u64][bytes]. A stored length
// of 0 marks a block kept uncompressed because compression did not pay off.
//
// # Compression
//
// Blocks are compressed with LZ4 (fast) or ZSTD (better ratio), in parallel
// on up to WithWorkers goroutines. A resource.Controller can bound the
// workers and throttle the bytes written or read. When every worker slot is
// busy, Encode compresses the next block on the calling goroutine.
//
// # Decoding
//
// Length fields are checked against the header geometry before anything is
// read: a block never holds more than its segment's records, and a stored
// block never exceeds its raw length. Blocks are decompressed only after
// the checksum matches. Malformed input fails with ErrCorrupt.
//
// Records are stored as raw memory, so an image can only be loaded by a
// process with the same record size, alignment and byte order.
package snapshot

// Package segpool provides a segmented slab allocator for fixed-layout records.
//
// A Pool hands out integer handles instead of pointers. Records live in
// power-of-two segments (16, 16, 32, 64, ...), so a handle maps to its
// segment and offset with a single bit-length computation and no lookup
// table. Segments never move: a pointer returned by Get stays valid until
// its handle is freed and reused.
//
// # Quick Start
//
//	type particle struct {
//	    X, Y, VX, VY float32
//	}
//
//	pool, _ := segpool.New[particle](segpool.WithCapacity(1024))
//	defer pool.Close()
//
//	h := pool.Create(true)     // zeroed record
//	p := pool.MustGet(h)
//	p.VX = 1.5
//
//	pool.Free(h)
//	_, err := pool.Get(h)      // errors.Is(err, segpool.ErrInvalidHandle)
//
// # Reclamation
//
// Free only clears the slot's occupancy bit. Slots are reclaimed lazily:
// once the watermark (the highest handle ever minted) reaches the end of the
// last segment, the next Create sweeps the occupancy bitmap and pushes every
// free slot onto a LIFO hole stack. Only a sweep that finds nothing grows
// the pool by a new segment twice the size of the previous one.
//
// Create(false) on a reused slot returns the record as it was left; pass
// true to zero it.
//
// # Checked References
//
// Handles are plain integers and may be reused. A Ref pairs a handle with
// the generation of its slot, which advances on every free, so Resolve
// detects use after free:
//
//	r, _ := pool.Ref(h)
//	pool.Free(h)
//	_, err := pool.Resolve(r)  // errors.Is(err, segpool.ErrStaleRef)
//
// # Memory
//
// Records must be pointer-free (numbers, booleans, arrays and structs of
// those); other types are rejected with ErrInvalidLayout. This allows
// segments to live outside the Go heap (WithOffHeap) and to be snapshotted
// as raw memory. WithMemoryBudget charges every segment against a
// resource.Controller; with WithMemoryWait, growth waits for memory released
// by other pools sharing it.
//
// # Snapshots
//
//	store := blobstore.NewLocalStore("./snapshots")
//	_ = pool.Save(ctx, store, "particles.snap",
//	    snapshot.WithCompression(snapshot.CompressionZSTD))
//
//	restored, _ := segpool.Load[particle](ctx, store, "particles.snap")
//
// Any blobstore.Store works, including the MinIO and S3 implementations.
//
// # Concurrency
//
// A Pool is not safe for concurrent use. Default returns a lazily created,
// process-wide pool per record type.
package segpool

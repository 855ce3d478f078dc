// Package bitmap provides the occupancy bitmap used by the segmented pool.
//
// # Growth Rule
//
// The bitmap never reports an out-of-range error. Touching an index at or
// beyond the current length first extends the bitmap to the next power of
// two strictly greater than that index:
//
//	b := bitmap.New(16)
//	b.Get(40) // false, Len() is now 64
//
// Growth never clears bits that were already set, and bits that were never
// set read as false.
//
// # Enumeration
//
// Unset yields the zero bits within the current length in ascending order.
// It is the scan primitive behind the pool's reclamation sweep:
//
//	for idx := range b.Unset() {
//	    holes = append(holes, idx)
//	}
//
// # Snapshots
//
// Roaring and FromRoaring convert the set bits to and from a roaring bitmap,
// which is the on-disk representation used by the snapshot package.
package bitmap

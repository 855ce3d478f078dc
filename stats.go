package segpool

// Stats is a point-in-time view of a pool's bookkeeping.
type Stats struct {
	// Watermark is the highest handle ever minted, plus one.
	Watermark uint64
	// Size is the exponent of the highest allocated segment.
	Size uint8
	// Capacity is the number of addressable records, 2^(Size+1).
	Capacity uint64
	// Live is the number of allocated handles.
	Live uint64
	// Holes is the number of swept slots waiting to be reused.
	Holes int
	// Segments is the number of allocated segments.
	Segments int
	// BitmapLen is the length of the occupancy bitmap in bits.
	BitmapLen uint64
	Sweeps    uint64
	Grows     uint64
	// RecordSize is the size of one record in bytes.
	RecordSize uintptr
	// ReservedBytes is the memory held by record and generation segments.
	ReservedBytes uint64
	OffHeap       bool
}

// Stats returns the pool's current statistics.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Watermark:     p.count,
		Size:          p.records.Size(),
		Capacity:      p.records.Cap(),
		Live:          p.occupancy.Count(),
		Holes:         len(p.holes),
		Segments:      p.records.Len(),
		BitmapLen:     p.occupancy.Len(),
		Sweeps:        p.sweeps,
		Grows:         p.grows,
		RecordSize:    p.layout.Size,
		ReservedBytes: p.records.Reserved() + p.gens.Reserved(),
		OffHeap:       p.offHeap,
	}
}

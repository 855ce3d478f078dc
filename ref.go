package segpool

import "context"

// Ref is a handle paired with the generation of its slot.
//
// Every free of a slot advances its generation, so a Ref taken before the
// free no longer resolves after it, even once the slot has been reused.
// Generations are 32-bit and wrap after 2^32 frees of the same slot.
type Ref struct {
	Handle Handle
	Gen    uint32
}

// Ref returns a generation-checked reference to an allocated handle.
func (p *Pool[T]) Ref(h Handle) (Ref, error) {
	if p.closed {
		return Ref{}, ErrClosed
	}
	if !p.occupancy.Get(uint32(h)) {
		return Ref{}, &ErrInvalidAccess{Handle: h}
	}
	return Ref{Handle: h, Gen: *p.gens.At(uint32(h))}, nil
}

// Resolve dereferences r like Get, and additionally fails with
// *ErrStaleReference (matching ErrStaleRef) when the slot has been freed
// since r was taken.
func (p *Pool[T]) Resolve(r Ref) (*T, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if uint64(r.Handle) < p.count {
		if cur := *p.gens.At(uint32(r.Handle)); cur != r.Gen {
			p.logger.LogStaleReference(context.Background(), r, cur)
			return nil, &ErrStaleReference{Ref: r, Current: cur}
		}
	}
	return p.Get(r.Handle)
}

// Generation returns the current generation of the slot behind h.
// Handles that were never minted report 0.
func (p *Pool[T]) Generation(h Handle) uint32 {
	if p.closed || uint64(h) >= p.count {
		return 0
	}
	return *p.gens.At(uint32(h))
}

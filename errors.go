package segpool

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHandle is returned when dereferencing a handle whose slot is
	// not allocated. A freed handle and a never allocated handle are
	// indistinguishable.
	ErrInvalidHandle = errors.New("segpool: invalid handle access")

	// ErrStaleRef is returned when resolving a Ref whose slot has been freed
	// (and possibly reused) since the Ref was taken.
	ErrStaleRef = errors.New("segpool: stale reference")

	// ErrInvalidLayout is returned when the record type contains pointers or
	// other indirections.
	ErrInvalidLayout = errors.New("segpool: record type is not a fixed layout")

	// ErrMemoryLimit is returned when the memory budget refuses a new segment.
	ErrMemoryLimit = errors.New("segpool: memory budget exceeded")

	// ErrHandleSpaceExhausted is returned when every uint32 handle has been minted.
	ErrHandleSpaceExhausted = errors.New("segpool: handle space exhausted")

	// ErrClosed is returned when using a closed pool.
	ErrClosed = errors.New("segpool: pool is closed")
)

// ErrInvalidAccess reports a dereference of an unallocated handle.
//
// It matches ErrInvalidHandle via errors.Is.
type ErrInvalidAccess struct {
	Handle Handle
}

func (e *ErrInvalidAccess) Error() string {
	return fmt.Sprintf("segpool: invalid handle access: handle %d is not allocated", e.Handle)
}

func (e *ErrInvalidAccess) Unwrap() error { return ErrInvalidHandle }

// ErrStaleReference reports a Ref whose generation no longer matches its slot.
//
// It matches ErrStaleRef via errors.Is.
type ErrStaleReference struct {
	Ref     Ref
	Current uint32
}

func (e *ErrStaleReference) Error() string {
	return fmt.Sprintf("segpool: stale reference: handle %d generation %d, slot is at generation %d",
		e.Ref.Handle, e.Ref.Gen, e.Current)
}

func (e *ErrStaleReference) Unwrap() error { return ErrStaleRef }

// ErrLayout indicates a record type that cannot be stored in a pool.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrLayout struct {
	Type  string
	cause error
}

func (e *ErrLayout) Error() string {
	return fmt.Sprintf("segpool: record type %s is not a fixed layout: %v", e.Type, e.cause)
}

// Is reports ErrInvalidLayout as a match.
func (e *ErrLayout) Is(target error) bool { return target == ErrInvalidLayout }

func (e *ErrLayout) Unwrap() error { return e.cause }

package segpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRef_Resolve(t *testing.T) {
	p := newTestPool(t)
	handles := fill(p, 16)

	h := handles[4]
	p.MustGet(h).ID = 4

	r, err := p.Ref(h)
	require.NoError(t, err)
	assert.Equal(t, Ref{Handle: h, Gen: 0}, r)

	rec, err := p.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), rec.ID)

	p.Free(h)
	_, err = p.Resolve(r)
	require.ErrorIs(t, err, ErrStaleRef)

	var stale *ErrStaleReference
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, uint32(1), stale.Current)

	// The slot is reused by the next sweep, and the old ref stays stale.
	require.Equal(t, h, p.Create(false))
	_, err = p.Resolve(r)
	assert.ErrorIs(t, err, ErrStaleRef)

	fresh, err := p.Ref(h)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), fresh.Gen)
	_, err = p.Resolve(fresh)
	assert.NoError(t, err)
}

func TestRef_Invalid(t *testing.T) {
	p := newTestPool(t)

	_, err := p.Ref(3)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	_, err = p.Resolve(Ref{Handle: 900})
	assert.ErrorIs(t, err, ErrInvalidHandle)

	assert.Zero(t, p.Generation(900))
}

func TestRef_Closed(t *testing.T) {
	p, err := New[record]()
	require.NoError(t, err)
	h := p.Create(false)
	r, err := p.Ref(h)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Ref(h)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = p.Resolve(r)
	assert.ErrorIs(t, err, ErrClosed)
}

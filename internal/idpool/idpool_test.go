package idpool

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualPoolAllocatesIncreasingIDs(t *testing.T) {
	p := NewManualPool()

	a, err := p.TryAllocate()
	require.NoError(t, err)
	b, err := p.TryAllocate()
	require.NoError(t, err)
	c, err := p.TryAllocate()
	require.NoError(t, err)

	assert.Equal(t, ID(0), a)
	assert.Equal(t, ID(1), b)
	assert.Equal(t, ID(2), c)
}

func TestManualPoolReusesReleasedIDsLIFO(t *testing.T) {
	p := NewManualPool()

	id1, _ := p.TryAllocate()
	id2, _ := p.TryAllocate()
	_, _ = p.TryAllocate()

	p.Release(id1)
	p.Release(id2)

	// LIFO: id2 was released last, so it comes back first.
	next, err := p.TryAllocate()
	require.NoError(t, err)
	assert.Equal(t, id2, next)

	next2, err := p.TryAllocate()
	require.NoError(t, err)
	assert.Equal(t, id1, next2)
}

func TestManualPoolExhaustion(t *testing.T) {
	// math.MaxUint64 is never handed out, so a pool whose frontier has
	// already reached it is exhausted from the very first call.
	p := &ManualPool{frontier: math.MaxUint64}

	_, err := p.TryAllocate()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestManualPoolExhaustionRecoversAfterRelease(t *testing.T) {
	p := &ManualPool{frontier: math.MaxUint64 - 1}

	id, err := p.TryAllocate()
	require.NoError(t, err)
	assert.Equal(t, ID(math.MaxUint64-1), id)

	_, err = p.TryAllocate()
	require.ErrorIs(t, err, ErrExhausted)

	p.Release(id)

	next, err := p.TryAllocate()
	require.NoError(t, err)
	assert.Equal(t, id, next)
}

func TestRefcountedPoolReleasesOnlyAtZero(t *testing.T) {
	rp := NewRefcountedPool()

	h, err := rp.TryAllocate()
	require.NoError(t, err)
	id := h.ID()

	h.Acquire()
	h.Release() // count now 1, still held

	// The underlying id must not be back in the free list yet.
	h2, err := rp.TryAllocate()
	require.NoError(t, err)
	assert.NotEqual(t, id, h2.ID())

	h.Release() // count now 0, returns id to the pool
	h3, err := rp.TryAllocate()
	require.NoError(t, err)
	assert.Equal(t, id, h3.ID())
}

func TestRefcountedIDEqualityIsPointerIdentity(t *testing.T) {
	rp := NewRefcountedPool()

	h1, err := rp.TryAllocate()
	require.NoError(t, err)
	h2, err := rp.TryAllocate()
	require.NoError(t, err)

	// Two distinct handles, even if (hypothetically) wrapping the same
	// numeric id, are not the same handle.
	assert.NotSame(t, h1, h2)
	assert.Same(t, h1, h1)
}

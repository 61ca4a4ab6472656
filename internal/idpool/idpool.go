// Package idpool provides reusable numeric identifier allocation, in both a
// plain manual-release form and a reference-counted form.
//
// Both variants hand out a monotonically increasing frontier value until a
// released id can be recycled. Recycling pulls from the free list's tail
// (LIFO), matching the original reusable-id-pool crate's observed behavior
// rather than the FIFO ordering a literal reading of its docs might suggest.
package idpool

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

// ErrExhausted is returned when no id can be allocated: the free list is
// empty and the frontier has reached math.MaxUint64.
var ErrExhausted = errors.New("idpool: too many concurrent ids")

// ID is a pool-issued identifier.
type ID uint64

// ManualPool allocates and recycles IDs with no reference counting: callers
// are responsible for calling Release exactly when an id is no longer in
// use.
type ManualPool struct {
	mu        sync.Mutex
	frontier  uint64
	exhausted bool
	free      []ID
}

// NewManualPool returns an empty pool.
func NewManualPool() *ManualPool {
	return &ManualPool{}
}

// TryAllocate returns a previously released id if one is available,
// otherwise advances the frontier. Fails with ErrExhausted once the free
// list is empty and the frontier has reached math.MaxUint64, without ever
// handing out that value, so callers may use it as a sentinel.
func (p *ManualPool) TryAllocate() (ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		return id, nil
	}

	if p.frontier == math.MaxUint64 {
		p.exhausted = true
	}
	if p.exhausted {
		return 0, ErrExhausted
	}

	id := ID(p.frontier)
	p.frontier++
	return id, nil
}

// Release returns id to the free list for reuse. Releasing an id that was
// never allocated, or that is already released, corrupts reuse ordering but
// is not itself an error: no call site in this codebase needs Release to
// detect misuse.
func (p *ManualPool) Release(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, id)
}

// RefcountedID is a reference-counted handle on a pool-issued id. Go has no
// Drop, so the original's Arc<Id> lifetime is modeled with an explicit
// Acquire/Release pair instead of scope-based destruction; the last Release
// returns the id to the backing pool. Equality between two RefcountedIDs is
// reference identity, not numeric id equality, matching the original's
// documented Arc equality semantics.
type RefcountedID struct {
	pool  *ManualPool
	id    ID
	count int64
}

// RefcountedPool issues RefcountedID handles backed by a ManualPool.
type RefcountedPool struct {
	pool *ManualPool
}

// NewRefcountedPool returns an empty reference-counted pool.
func NewRefcountedPool() *RefcountedPool {
	return &RefcountedPool{pool: NewManualPool()}
}

// TryAllocate returns a new handle with a reference count of one.
func (p *RefcountedPool) TryAllocate() (*RefcountedID, error) {
	id, err := p.pool.TryAllocate()
	if err != nil {
		return nil, err
	}
	return &RefcountedID{pool: p.pool, id: id, count: 1}, nil
}

// ID returns the numeric id this handle wraps.
func (r *RefcountedID) ID() ID {
	return r.id
}

// Acquire increments the handle's reference count. The caller must later
// call Release exactly once for this Acquire.
func (r *RefcountedID) Acquire() {
	atomic.AddInt64(&r.count, 1)
}

// Release decrements the handle's reference count, returning the id to the
// backing pool once the count reaches zero. Calling Release more times than
// Acquire (including the implicit acquire from TryAllocate) is a caller bug.
func (r *RefcountedID) Release() {
	if atomic.AddInt64(&r.count, -1) == 0 {
		r.pool.Release(r.id)
	}
}

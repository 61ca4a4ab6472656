package capspace

import (
	"sync"

	"golang.org/x/sys/unix"
)

// ShardSize is the size of each backing lock shard. Adapted from
// backend/mem.go's sharded-RWMutex scheme for parallel queue I/O; here it
// gives concurrent syscall handlers parallel access to disjoint regions of
// the same capability's backing store.
const ShardSize = 64 * 1024

// ShmBacking is the byte storage behind a ShmCap, backed by an anonymous
// mmap region the way the original's shm_space/mod.rs backs a ShmCap with
// memmap2::MmapMut::map_anon. Unlike the original's zero-copy borrowed
// slices (safe only because Rust's borrow checker ties the slice's
// lifetime to a held reference), Go has no such lifetime tracking, so
// reads/writes here are copy-in/copy-out under a sharded lock rather than
// a returned raw slice — the same shape the teacher's own Memory backend
// exposes (ReadAt/WriteAt, not raw slices).
type ShmBacking struct {
	data   []byte
	shards []sync.RWMutex
}

// NewShmBacking mmaps a zeroed, anonymous backing store of size bytes. A
// zero size still mmaps one page, matching mmap's own minimum granularity,
// so Close always has a real region to unmap.
func NewShmBacking(size uint64) (*ShmBacking, error) {
	mapLen := int(size)
	if mapLen == 0 {
		mapLen = 1
	}
	data, err := unix.Mmap(-1, 0, mapLen, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	data = data[:size]

	numShards := (size + ShardSize - 1) / ShardSize
	if numShards == 0 {
		numShards = 1
	}
	return &ShmBacking{
		data:   data,
		shards: make([]sync.RWMutex, numShards),
	}, nil
}

// Close unmaps the backing store. Callers must not use the ShmBacking, or
// any PageView pointing into it, after Close returns.
func (b *ShmBacking) Close() error {
	if cap(b.data) == 0 {
		return nil
	}
	return unix.Munmap(b.data[:cap(b.data)])
}

func (b *ShmBacking) Len() uint64 {
	return uint64(len(b.data))
}

func (b *ShmBacking) shardRange(off, length uint64) (start, end int) {
	if length == 0 {
		length = 1
	}
	start = int(off / ShardSize)
	end = int((off + length - 1) / ShardSize)
	if end >= len(b.shards) {
		end = len(b.shards) - 1
	}
	return start, end
}

// ReadAt copies len(dst) bytes starting at off into dst.
func (b *ShmBacking) ReadAt(dst []byte, off uint64) {
	if len(dst) == 0 {
		return
	}
	start, end := b.shardRange(off, uint64(len(dst)))
	for i := start; i <= end; i++ {
		b.shards[i].RLock()
	}
	copy(dst, b.data[off:off+uint64(len(dst))])
	for i := start; i <= end; i++ {
		b.shards[i].RUnlock()
	}
}

// Snapshot returns a copy of the entire backing store, for callers (like
// the deferred-task codec) that need to decode a self-delimiting payload
// without knowing its length up front.
func (b *ShmBacking) Snapshot() []byte {
	out := make([]byte, len(b.data))
	b.ReadAt(out, 0)
	return out
}

// WriteAt copies src into the backing store starting at off.
func (b *ShmBacking) WriteAt(src []byte, off uint64) {
	if len(src) == 0 {
		return
	}
	start, end := b.shardRange(off, uint64(len(src)))
	for i := start; i <= end; i++ {
		b.shards[i].Lock()
	}
	copy(b.data[off:off+uint64(len(src))], src)
	for i := start; i <= end; i++ {
		b.shards[i].Unlock()
	}
}

// Package noisecrypto implements the wire-level cryptographic primitives of
// the Noise XXhfs hybrid handshake and the RFC 9001 QUIC packet protection
// layered on top of it: fixed-capacity scratch buffers, header and packet
// protection keys, initial/retry key derivation, and handshake token keys.
package noisecrypto

import (
	"errors"
	"math"
)

// ErrBufferFull is returned by FixedBuffer.ExtendFromSlice when the
// addition would overflow or exceed the buffer's backing capacity.
var ErrBufferFull = errors.New("noisecrypto: fixed buffer capacity exceeded")

// FixedBuffer is a capacity-bounded view over a caller-owned byte slice,
// used as AEAD scratch space where the underlying library wants an
// appendable buffer but no allocation may occur. Grounded on
// quinn_noise/fixed_buffer.rs's Buffer trait implementation.
type FixedBuffer struct {
	buf []byte
	end int
}

// NewFixedBuffer wraps buf with an initial logical length of end.
func NewFixedBuffer(buf []byte, end int) *FixedBuffer {
	return &FixedBuffer{buf: buf, end: end}
}

// Len returns the current logical length.
func (f *FixedBuffer) Len() int {
	return f.end
}

// IsEmpty reports whether the logical length is zero.
func (f *FixedBuffer) IsEmpty() bool {
	return f.end == 0
}

// Bytes returns the logical contents, buf[:end].
func (f *FixedBuffer) Bytes() []byte {
	return f.buf[:f.end]
}

// ExtendFromSlice appends other, failing without mutating the buffer if the
// new length would overflow an int or exceed the backing capacity.
func (f *FixedBuffer) ExtendFromSlice(other []byte) error {
	if len(other) > math.MaxInt-f.end {
		return ErrBufferFull
	}
	newEnd := f.end + len(other)
	if newEnd > len(f.buf) {
		return ErrBufferFull
	}
	copy(f.buf[f.end:newEnd], other)
	f.end = newEnd
	return nil
}

// Truncate lowers the logical length to n; it is a no-op if n >= the
// current length.
func (f *FixedBuffer) Truncate(n int) {
	if n < f.end {
		f.end = n
	}
}

package noisecrypto

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedBufferLenIsEnd(t *testing.T) {
	buf := make([]byte, 8)
	fb := NewFixedBuffer(buf, 6)
	assert.Equal(t, 6, fb.Len())
}

func TestFixedBufferIsEmptyAccordingToEnd(t *testing.T) {
	buf := make([]byte, 8)
	assert.True(t, NewFixedBuffer(buf, 0).IsEmpty())
	assert.False(t, NewFixedBuffer(buf, 2).IsEmpty())
}

func TestFixedBufferExtendFromSliceOK(t *testing.T) {
	buf := make([]byte, 8)
	fb := NewFixedBuffer(buf, 4)

	err := fb.ExtendFromSlice([]byte{1, 1})
	assert.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 1}, fb.Bytes())
	assert.Equal(t, 6, fb.Len())
}

func TestFixedBufferExtendFromSliceOverflowNotAllowed(t *testing.T) {
	buf := make([]byte, 8)
	fb := &FixedBuffer{buf: buf, end: math.MaxInt}

	err := fb.ExtendFromSlice([]byte{1, 1})
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, make([]byte, 8), buf)
}

func TestFixedBufferExtendFromSliceOutOfBoundsNotAllowed(t *testing.T) {
	buf := make([]byte, 8)
	fb := NewFixedBuffer(buf, 7)

	err := fb.ExtendFromSlice([]byte{1, 1})
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, make([]byte, 7), fb.Bytes())
	assert.Equal(t, 7, fb.Len())
}

func TestFixedBufferTruncateOK(t *testing.T) {
	buf := make([]byte, 8)
	fb := NewFixedBuffer(buf, 6)

	fb.Truncate(4)
	assert.Equal(t, make([]byte, 4), fb.Bytes())
	assert.Equal(t, 4, fb.Len())
}

func TestFixedBufferTruncateDoesNothingIfGreaterThanEnd(t *testing.T) {
	buf := make([]byte, 8)
	fb := NewFixedBuffer(buf, 6)

	fb.Truncate(7)
	assert.Equal(t, make([]byte, 6), fb.Bytes())
	assert.Equal(t, 6, fb.Len())
}

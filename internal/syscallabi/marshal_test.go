package syscallabi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReturnMarshalRoundTrip(t *testing.T) {
	r := Return{Success: 0xdeadbeef, Code: ShmCapCurrentlyAcquired}
	got, err := UnmarshalReturn(r.Marshal())
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestReturnMarshalIsLittleEndian(t *testing.T) {
	r := Return{Success: 1, Code: NoError}
	buf := r.Marshal()
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, buf[0:8])
}

func TestUnmarshalReturnRejectsShortBuffer(t *testing.T) {
	_, err := UnmarshalReturn(make([]byte, returnSize-1))
	assert.ErrorIs(t, err, ErrInsufficientReturnData)
}

func TestOkAndFail(t *testing.T) {
	assert.Equal(t, Return{Success: 7, Code: NoError}, ok(7))
	assert.Equal(t, Return{Success: 0, Code: CapNotFound}, fail(CapNotFound))
}

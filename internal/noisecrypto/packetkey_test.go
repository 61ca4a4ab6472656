package noisecrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketKeyEncryptDecryptRoundTrip(t *testing.T) {
	var prk [32]byte
	for i := range prk {
		prk[i] = byte(i)
	}

	sender, err := PacketKeyFromInitialSecret(prk[:])
	require.NoError(t, err)
	receiver, err := PacketKeyFromInitialSecret(prk[:])
	require.NoError(t, err)

	headerLen := 4
	header := []byte{0x01, 0x02, 0x03, 0x04}
	plaintext := []byte("hello quic")

	buf := make([]byte, headerLen+len(plaintext)+sender.TagLen())
	copy(buf, header)
	copy(buf[headerLen:], plaintext)

	sender.Encrypt(7, buf, headerLen)
	assert.NotEqual(t, plaintext, buf[headerLen:headerLen+len(plaintext)])

	opened, err := receiver.Decrypt(7, buf[:headerLen], buf[headerLen:])
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestPacketKeyDecryptWrongPacketNumberFails(t *testing.T) {
	var prk [32]byte
	key, err := PacketKeyFromInitialSecret(prk[:])
	require.NoError(t, err)

	headerLen := 4
	header := []byte{0, 0, 0, 0}
	plaintext := []byte("data")
	buf := make([]byte, headerLen+len(plaintext)+key.TagLen())
	copy(buf, header)
	copy(buf[headerLen:], plaintext)

	key.Encrypt(1, buf, headerLen)

	_, err = key.Decrypt(2, buf[:headerLen], buf[headerLen:])
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestPacketKeyEncryptFailureZeroesBuffer(t *testing.T) {
	var prk [32]byte
	key, err := PacketKeyFromInitialSecret(prk[:])
	require.NoError(t, err)

	buf := []byte{1, 2, 3}
	key.Encrypt(0, buf, 10) // headerLen exceeds buf length
	assert.Equal(t, []byte{0, 0, 0}, buf)
}

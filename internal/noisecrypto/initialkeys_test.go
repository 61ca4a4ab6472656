package noisecrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialKeysRejectsUnsupportedVersion(t *testing.T) {
	_, err := InitialKeys(0x1, []byte{1, 2, 3, 4}, SideClient)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestInitialKeysClientServerAreMirrored(t *testing.T) {
	dcid := []byte{0xde, 0xad, 0xbe, 0xef}

	client, err := InitialKeys(NSQWireVersion, dcid, SideClient)
	require.NoError(t, err)
	server, err := InitialKeys(NSQWireVersion, dcid, SideServer)
	require.NoError(t, err)

	// The client's local packet key must protect packets the server reads
	// as "remote".
	headerLen := 4
	header := []byte{1, 1, 1, 1}
	plaintext := []byte("ping")
	buf := make([]byte, headerLen+len(plaintext)+client.LocalPacket.TagLen())
	copy(buf, header)
	copy(buf[headerLen:], plaintext)

	client.LocalPacket.Encrypt(3, buf, headerLen)
	opened, err := server.RemotePacket.Decrypt(3, buf[:headerLen], buf[headerLen:])
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

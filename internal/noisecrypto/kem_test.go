package noisecrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKyberEncapsulateDecapsulateRoundTrip(t *testing.T) {
	kp, err := GenerateKyberKeyPair()
	require.NoError(t, err)

	ct, ss1, err := KyberEncapsulate(kp.Public)
	require.NoError(t, err)
	assert.Len(t, ct, KyberCiphertextLen())

	ss2, err := KyberDecapsulate(kp.Private, ct)
	require.NoError(t, err)
	assert.Equal(t, ss1, ss2)
}

func TestKyberPublicKeyMarshalRoundTrip(t *testing.T) {
	kp, err := GenerateKyberKeyPair()
	require.NoError(t, err)

	wire, err := KyberMarshalPublicKey(kp.Public)
	require.NoError(t, err)
	assert.Len(t, wire, KyberPublicKeyLen())

	pub2, err := KyberUnmarshalPublicKey(wire)
	require.NoError(t, err)

	ct, ss1, err := KyberEncapsulate(pub2)
	require.NoError(t, err)
	ss2, err := KyberDecapsulate(kp.Private, ct)
	require.NoError(t, err)
	assert.Equal(t, ss1, ss2)
}

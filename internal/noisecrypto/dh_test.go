package noisecrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestX448DHIsSymmetric(t *testing.T) {
	alice, err := GenerateX448KeyPair()
	require.NoError(t, err)
	bob, err := GenerateX448KeyPair()
	require.NoError(t, err)

	aliceShared, err := X448DH(&alice.Private, &bob.Public)
	require.NoError(t, err)
	bobShared, err := X448DH(&bob.Private, &alice.Public)
	require.NoError(t, err)

	assert.Equal(t, aliceShared, bobShared)
}

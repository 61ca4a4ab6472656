package noisecrypto

import (
	"crypto/rand"

	"github.com/cloudflare/circl/dh/x448"
)

// X448KeyPair is a local static or ephemeral X448 Diffie-Hellman keypair.
// No pack repo performs X448 DH; circl is the standard real-world Go
// source for it (named, not grounded — see DESIGN.md).
type X448KeyPair struct {
	Private x448.Key
	Public  x448.Key
}

// GenerateX448KeyPair generates a fresh X448 keypair.
func GenerateX448KeyPair() (*X448KeyPair, error) {
	var priv x448.Key
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, err
	}
	var pub x448.Key
	x448.KeyGen(&pub, &priv)
	return &X448KeyPair{Private: priv, Public: pub}, nil
}

// X448DH performs the X448 Diffie-Hellman function, returning the shared
// secret for localPrivate and remotePublic.
func X448DH(localPrivate, remotePublic *x448.Key) (x448.Key, error) {
	var shared x448.Key
	ok := x448.Shared(&shared, localPrivate, remotePublic)
	if !ok {
		return shared, ErrCrypto
	}
	return shared, nil
}

package noisecrypto

import (
	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber1024"
)

// kyberScheme is the Kyber1024 KEM scheme object used for the e1/ekem1
// hybrid handshake messages. No pack repo performs a KEM exchange; circl is
// the standard real-world Go source for Kyber (named, not grounded — see
// DESIGN.md).
var kyberScheme = kyber1024.Scheme()

// KyberKeyPair is a local static or ephemeral Kyber1024 KEM keypair.
type KyberKeyPair struct {
	Public  kem.PublicKey
	Private kem.PrivateKey
}

// GenerateKyberKeyPair generates a fresh Kyber1024 keypair.
func GenerateKyberKeyPair() (*KyberKeyPair, error) {
	pub, priv, err := kyberScheme.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &KyberKeyPair{Public: pub, Private: priv}, nil
}

// KyberPublicKeyLen, KyberCiphertextLen, KyberSharedKeyLen are the wire
// sizes for this scheme, matching Kyber1024PublicKeyLen/CiphertextLen.
func KyberPublicKeyLen() int  { return kyberScheme.PublicKeySize() }
func KyberCiphertextLen() int { return kyberScheme.CiphertextSize() }
func KyberSharedKeyLen() int  { return kyberScheme.SharedKeySize() }

// KyberMarshalPublicKey serializes a public key to its wire form.
func KyberMarshalPublicKey(pub kem.PublicKey) ([]byte, error) {
	return pub.MarshalBinary()
}

// KyberUnmarshalPublicKey parses a public key from its wire form.
func KyberUnmarshalPublicKey(buf []byte) (kem.PublicKey, error) {
	return kyberScheme.UnmarshalBinaryPublicKey(buf)
}

// KyberEncapsulate produces a ciphertext and shared secret for pub. Used by
// the responder when processing the initiator's e1 ephemeral encapsulation
// key (producing ekem1).
func KyberEncapsulate(pub kem.PublicKey) (ciphertext, sharedSecret []byte, err error) {
	return kyberScheme.Encapsulate(pub)
}

// KyberDecapsulate recovers the shared secret from ciphertext using priv.
// Used by the initiator to recover the shared secret encapsulated in ekem1.
func KyberDecapsulate(priv kem.PrivateKey, ciphertext []byte) ([]byte, error) {
	return kyberScheme.Decapsulate(priv, ciphertext)
}

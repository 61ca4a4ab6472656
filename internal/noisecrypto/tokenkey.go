package noisecrypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/chacha20poly1305"
)

// HandshakeTokenKey derives single-use AEAD keys from random per-token
// bytes, used to seal/open address-validation and retry tokens. Grounded
// on config.rs's NoiseHandshakeTokenKey.
type HandshakeTokenKey struct {
	secret [64]byte
}

// NewHandshakeTokenKey generates a fresh token key from 64 random bytes.
func NewHandshakeTokenKey() (*HandshakeTokenKey, error) {
	var secret [64]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, err
	}
	return &HandshakeTokenKey{secret: secret}, nil
}

// AeadKey is a single-use ChaCha20-Poly1305 key, derived per token, that is
// safe to use with a fixed all-zero nonce because each derivation is used
// for at most one seal/open.
type AeadKey struct {
	aead chacha20poly1305.AEAD
}

var zeroNonce [chacha20poly1305.NonceSize]byte

// AEADFromHKDF expands randomBytes as the HKDF info against the token key's
// secret (treated as an already-extracted PRK) into a 32-byte AEAD key.
func (k *HandshakeTokenKey) AEADFromHKDF(randomBytes []byte) (*AeadKey, error) {
	var key [32]byte
	if err := expandFromPRK(k.secret[:], randomBytes, key[:]); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return &AeadKey{aead: aead}, nil
}

// Seal encrypts data in place (by appending the tag), authenticating
// additionalData, using the fixed zero nonce.
func (k *AeadKey) Seal(data, additionalData []byte) []byte {
	return k.aead.Seal(data[:0], zeroNonce[:], data, additionalData)
}

// Open decrypts data in place, authenticating additionalData.
func (k *AeadKey) Open(data, additionalData []byte) ([]byte, error) {
	out, err := k.aead.Open(data[:0], zeroNonce[:], data, additionalData)
	if err != nil {
		return nil, ErrCrypto
	}
	return out, nil
}

// HmacKey is an HMAC-SHA256 key used for stateless-reset tokens. Grounded
// on config.rs's NoiseHmacKey.
type HmacKey struct {
	key [64]byte
}

// NewHmacKey generates a fresh HMAC key from 64 random bytes.
func NewHmacKey() (*HmacKey, error) {
	var key [64]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	return &HmacKey{key: key}, nil
}

// SignatureLen is the HMAC-SHA256 output length.
func (k *HmacKey) SignatureLen() int {
	return sha256.Size
}

// Sign writes the HMAC-SHA256 tag of data into signatureOut, which must be
// exactly SignatureLen bytes.
func (k *HmacKey) Sign(data, signatureOut []byte) {
	mac := hmac.New(sha256.New, k.key[:])
	mac.Write(data)
	copy(signatureOut, mac.Sum(nil))
}

// Verify checks signature against data in constant time.
func (k *HmacKey) Verify(data, signature []byte) error {
	mac := hmac.New(sha256.New, k.key[:])
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), signature) {
		return ErrCrypto
	}
	return nil
}

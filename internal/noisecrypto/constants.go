package noisecrypto

import "encoding/hex"

// NSQWireVersion identifies this repo's QUIC-like wire version, used in
// place of a TLS-1.3 ALPN/version negotiation. Spelled "nsq" + a trailing
// zero byte, matching quinn_noise/mod.rs.
const NSQWireVersion uint32 = 0x6e737100

// ProtocolString is the Noise handshake pattern identifier: a hybrid
// Noise_XX pattern with an X448 DH and a Kyber1024 KEM, ChaCha20-Poly1305
// AEAD, and BLAKE2b hash.
const ProtocolString = "Noise_XXhfs_448+Kyber1024_ChaChaPoly_BLAKE2b"

// RFC 9001 HKDF labels, used as raw HKDF "info" strings rather than TLS 1.3
// HkdfLabel-wrapped labels — session.rs is authoritative on this and does
// not wrap them.
var (
	clientInitialInfo = []byte("client in")
	serverInitialInfo = []byte("server in")
	keyInfo           = []byte("quic key")
	hpKeyInfo         = []byte("quic hp")
	keyUpdateInfo     = []byte("quic ku")
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// rfc9001InitialSalt is the RFC 9001 initial salt used to derive the
// client/server initial secrets from a destination connection id.
var rfc9001InitialSalt = mustHex("38762cf7f55934b34d179ae6a4c80cadccbb7f0a")

// retryKey and retryNonce are the ChaCha20-Poly1305 key/nonce used in place
// of RFC 9001's AES-128-GCM retry integrity check. Both are themselves
// HKDF-Expand-derived (not TLS-1.3-label-wrapped) from the RFC 9001 retry
// secret, but are embedded here as constants exactly as the original does,
// with no re-derivation at runtime.
var (
	retryKey   = mustHex("3337597c92ceb8fa6351d223fad8a795140f8976c25b9589f65c95740b1cd08b")
	retryNonce = mustHex("433b6818e1af1874007a4df3")
)

// X448PublicKeyLen is the length in bytes of an X448 public key.
const X448PublicKeyLen = 56

// ChaCha20Poly1305TagLen is the AEAD tag length used throughout.
const ChaCha20Poly1305TagLen = 16

// Kyber1024PublicKeyLen and Kyber1024CiphertextLen are the Kyber1024 KEM
// encapsulation-key and ciphertext lengths.
const (
	Kyber1024PublicKeyLen  = 1568
	Kyber1024CiphertextLen = 1568
)

// Package noisehandshake implements the Noise_XXhfs_448+Kyber1024_ChaChaPoly_BLAKE2b
// handshake pattern: a hybrid classical/post-quantum variant of Noise_XX
// that adds one-way Kyber1024 KEM messages (e1/ekem1) alongside the
// standard X448 DH tokens.
//
// flynn/noise's own HandshakeState only understands the standard Noise
// token vocabulary (e, s, ee, es, se, ss) and has no token for a one-way
// hybrid KEM message, so the pattern driver here is hand-rolled — following
// the same symmetric-state construction flynn/noise itself implements
// internally — while still reusing the library's CipherSuite for its
// Cipher/Hash factories (ChaCha20-Poly1305, BLAKE2b). Grounded on
// quinn_noise/session.rs's state machine for the protocol-specific parts.
package noisehandshake

import (
	"crypto/hmac"
	"hash"

	"github.com/flynn/noise"
)

var suite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2b)

// hashConstructor adapts the cipher suite's Hash factory to the
// constructor shape hmac.New expects.
func hashConstructor() hash.Hash {
	return suite.Hash().Hash()
}

func hkdf2(chainingKey, inputKeyMaterial []byte) (out1, out2 []byte) {
	tempKey := hmacSum(chainingKey, inputKeyMaterial)
	out1 = hmacSum(tempKey, []byte{0x01})
	out2 = hmacSum(tempKey, append(append([]byte{}, out1...), 0x02))
	return out1, out2
}

func hkdf3(chainingKey, inputKeyMaterial []byte) (out1, out2, out3 []byte) {
	tempKey := hmacSum(chainingKey, inputKeyMaterial)
	out1 = hmacSum(tempKey, []byte{0x01})
	out2 = hmacSum(tempKey, append(append([]byte{}, out1...), 0x02))
	out3 = hmacSum(tempKey, append(append([]byte{}, out2...), 0x03))
	return out1, out2, out3
}

func hmacSum(key, data []byte) []byte {
	mac := hmac.New(hashConstructor, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// symmetricState implements the Noise Protocol Framework's SymmetricState
// object (chaining key, running hash, and the currently-keyed cipher).
type symmetricState struct {
	ck  []byte
	h   []byte
	key [32]byte
	has bool
	n   uint64
}

func newSymmetricState(protocolName string) *symmetricState {
	s := &symmetricState{}
	hashLen := suite.Hash().HashLen()
	name := []byte(protocolName)
	if len(name) <= hashLen {
		h := make([]byte, hashLen)
		copy(h, name)
		s.h = h
	} else {
		s.h = hashBytes(name)
	}
	s.ck = append([]byte{}, s.h...)
	return s
}

func hashBytes(data []byte) []byte {
	h := suite.Hash().Hash()
	h.Write(data)
	return h.Sum(nil)
}

func (s *symmetricState) mixHash(data []byte) {
	s.h = hashBytes(append(append([]byte{}, s.h...), data...))
}

func (s *symmetricState) mixKey(inputKeyMaterial []byte) {
	ck, tempK := hkdf2(s.ck, inputKeyMaterial)
	s.ck = ck
	var k [32]byte
	copy(k[:], tempK)
	s.key = k
	s.has = true
	s.n = 0
}

func (s *symmetricState) hasKey() bool {
	return s.has
}

// encryptAndHash encrypts plaintext (if keyed) using h as associated data,
// mixes the ciphertext into h, and returns it. If not yet keyed, the
// "ciphertext" is the plaintext itself, per the Noise spec.
func (s *symmetricState) encryptAndHash(plaintext []byte) []byte {
	var ciphertext []byte
	if s.has {
		cipher := suite.Cipher(s.key)
		ciphertext = cipher.Encrypt(nil, s.n, s.h, plaintext)
		s.n++
	} else {
		ciphertext = append([]byte{}, plaintext...)
	}
	s.mixHash(ciphertext)
	return ciphertext
}

func (s *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	var plaintext []byte
	if s.has {
		cipher := suite.Cipher(s.key)
		out, err := cipher.Decrypt(nil, s.n, s.h, ciphertext)
		if err != nil {
			return nil, err
		}
		plaintext = out
		s.n++
	} else {
		plaintext = append([]byte{}, ciphertext...)
	}
	s.mixHash(ciphertext)
	return plaintext, nil
}

// split derives the two one-way transport CipherState keys from the final
// chaining key, used once the handshake pattern is complete.
func (s *symmetricState) split() (ikToR, rkToI [32]byte) {
	out1, out2 := hkdf2(s.ck, nil)
	copy(ikToR[:], out1)
	copy(rkToI[:], out2)
	return ikToR, rkToI
}

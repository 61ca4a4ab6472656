package noisecrypto

import (
	"golang.org/x/crypto/chacha20"
)

// TransportHeaderKey implements RFC 9001 QUIC header protection using the
// raw ChaCha20 block function as the mask generator. Grounded on
// session.rs's TransportHeaderKey.
type TransportHeaderKey struct {
	hpKey [32]byte
}

// HeaderKeyFromInitialSecret derives a header-protection key from an RFC
// 9001 initial secret's extracted PRK.
func HeaderKeyFromInitialSecret(prk []byte) (*TransportHeaderKey, error) {
	var hp [32]byte
	if err := expandFromPRK(prk, hpKeyInfo, hp[:]); err != nil {
		return nil, err
	}
	return &TransportHeaderKey{hpKey: hp}, nil
}

// HeaderKeyFromCipherStateKey derives a header-protection key by treating a
// 32-byte Noise CipherState key as an already-extracted HKDF PRK.
func HeaderKeyFromCipherStateKey(csKey [32]byte) (*TransportHeaderKey, error) {
	return HeaderKeyFromInitialSecret(csKey[:])
}

// headerProtectionMask computes the 5-byte RFC 9001 header_protection mask
// from a 16-byte sample: the first 4 bytes are a little-endian ChaCha20
// block counter, the remaining 12 are the nonce.
func headerProtectionMask(hpKey [32]byte, sample [16]byte) ([5]byte, error) {
	var counter [4]byte
	copy(counter[:], sample[:4])
	nonce := sample[4:]

	c, err := chacha20.NewUnauthenticatedCipher(hpKey[:], nonce)
	if err != nil {
		return [5]byte{}, err
	}
	c.SetCounter(leUint32(counter))

	var mask [5]byte
	c.XORKeyStream(mask[:], mask[:])
	return mask, nil
}

func leUint32(b [4]byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func getSample(pnOffset int, packet []byte) ([16]byte, bool) {
	var sample [16]byte
	sampleOffset := pnOffset + 4
	if sampleOffset < pnOffset {
		return sample, false
	}
	sampleEnd := sampleOffset + 16
	if sampleEnd < sampleOffset || sampleEnd > len(packet) {
		return sample, false
	}
	copy(sample[:], packet[sampleOffset:sampleEnd])
	return sample, true
}

func (k *TransportHeaderKey) encryptFallible(pnOffset int, packet []byte) bool {
	sample, ok := getSample(pnOffset, packet)
	if !ok {
		return false
	}
	mask, err := headerProtectionMask(k.hpKey, sample)
	if err != nil {
		return false
	}

	if pnOffset < 0 || pnOffset >= len(packet) {
		return false
	}
	pnLength := int(packet[0]&0x03) + 1

	if packet[0]&0x80 == 0x80 {
		packet[0] ^= mask[0] & 0x0f
	} else {
		packet[0] ^= mask[0] & 0x1f
	}

	pnEnd := pnOffset + pnLength
	if pnEnd < pnOffset || pnEnd > len(packet) {
		return false
	}
	for i := 0; i < pnLength; i++ {
		packet[pnOffset+i] ^= mask[1+i]
	}
	return true
}

func (k *TransportHeaderKey) decryptFallible(pnOffset int, packet []byte) bool {
	sample, ok := getSample(pnOffset, packet)
	if !ok {
		return false
	}
	mask, err := headerProtectionMask(k.hpKey, sample)
	if err != nil {
		return false
	}

	if pnOffset < 0 || pnOffset >= len(packet) {
		return false
	}

	// Unmask the first byte first, to recover the true packet-number length.
	if packet[0]&0x80 == 0x80 {
		packet[0] ^= mask[0] & 0x0f
	} else {
		packet[0] ^= mask[0] & 0x1f
	}
	pnLength := int(packet[0]&0x03) + 1

	pnEnd := pnOffset + pnLength
	if pnEnd < pnOffset || pnEnd > len(packet) {
		return false
	}
	for i := 0; i < pnLength; i++ {
		packet[pnOffset+i] ^= mask[1+i]
	}
	return true
}

// Encrypt applies header protection in place. Any addressing failure (an
// out-of-range sample or packet-number window) zeros the entire packet,
// matching the original's fail-safe behavior.
func (k *TransportHeaderKey) Encrypt(pnOffset int, packet []byte) {
	if !k.encryptFallible(pnOffset, packet) {
		zero(packet)
	}
}

// Decrypt removes header protection in place, with the same zero-on-failure
// behavior as Encrypt.
func (k *TransportHeaderKey) Decrypt(pnOffset int, packet []byte) {
	if !k.decryptFallible(pnOffset, packet) {
		zero(packet)
	}
}

// SampleSize is the number of bytes sampled for header protection.
func (k *TransportHeaderKey) SampleSize() int {
	return 16
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

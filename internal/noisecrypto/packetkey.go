package noisecrypto

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCrypto is returned for AEAD open/seal failures that the original maps
// to quinn_proto's opaque CryptoError: no further detail is exposed.
var ErrCrypto = errors.New("noisecrypto: crypto error")

// TransportPacketKey implements RFC 9001 QUIC packet protection with
// ChaCha20-Poly1305, keyed either from an initial secret or a transport
// CipherState key. Grounded on session.rs's TransportPacketKey.
type TransportPacketKey struct {
	aead chacha20poly1305.AEAD
}

// PacketKeyFromInitialSecret derives a packet-protection key from an RFC
// 9001 initial secret's extracted PRK.
func PacketKeyFromInitialSecret(prk []byte) (*TransportPacketKey, error) {
	var key [32]byte
	if err := expandFromPRK(prk, keyInfo, key[:]); err != nil {
		return nil, err
	}
	return newTransportPacketKey(key)
}

// PacketKeyFromCipherStateKey derives a packet-protection key by treating a
// 32-byte Noise CipherState key as an already-extracted HKDF PRK.
func PacketKeyFromCipherStateKey(csKey [32]byte) (*TransportPacketKey, error) {
	return PacketKeyFromInitialSecret(csKey[:])
}

func newTransportPacketKey(key [32]byte) (*TransportPacketKey, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return &TransportPacketKey{aead: aead}, nil
}

func packetNonce(packetNumber uint64) []byte {
	nonce := make([]byte, 12)
	binary.LittleEndian.PutUint64(nonce[4:], packetNumber)
	return nonce
}

func (k *TransportPacketKey) encryptFallible(packetNumber uint64, buf []byte, headerLen int) bool {
	payloadLen := len(buf) - k.TagLen() - headerLen
	if payloadLen < 0 {
		return false
	}

	header := buf[:headerLen]
	payload := buf[headerLen : headerLen+payloadLen]

	sealed := k.aead.Seal(payload[:0], packetNonce(packetNumber), payload, header)
	copy(buf[headerLen:], sealed)
	return true
}

// Encrypt seals buf[headerLen:] in place, using buf[:headerLen] as AAD. Any
// failure (payload/header length mismatch, or AEAD failure) zeros buf
// entirely.
func (k *TransportPacketKey) Encrypt(packetNumber uint64, buf []byte, headerLen int) {
	if !k.encryptFallible(packetNumber, buf, headerLen) {
		zero(buf)
	}
}

// Decrypt opens payload in place, using header as AAD. Decrypt failures are
// reported as ErrCrypto with no zeroing, matching the original: only
// Encrypt failures scrub the buffer.
func (k *TransportPacketKey) Decrypt(packetNumber uint64, header, payload []byte) ([]byte, error) {
	out, err := k.aead.Open(payload[:0], packetNonce(packetNumber), payload, header)
	if err != nil {
		return nil, ErrCrypto
	}
	return out, nil
}

// TagLen is the ChaCha20-Poly1305 AEAD tag length.
func (k *TransportPacketKey) TagLen() int {
	return chacha20poly1305.Overhead
}

// ConfidentialityLimit and IntegrityLimit are both unbounded for
// ChaCha20-Poly1305 at any practical connection lifetime (see
// https://eprint.iacr.org/2023/085), matching the original's u64::MAX.
func (k *TransportPacketKey) ConfidentialityLimit() uint64 { return maxUint64 }
func (k *TransportPacketKey) IntegrityLimit() uint64       { return maxUint64 }

const maxUint64 = ^uint64(0)

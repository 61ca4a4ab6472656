package noisecrypto

import (
	"golang.org/x/crypto/chacha20poly1305"
)

// RetryTag computes the RFC 9001 retry integrity tag using ChaCha20-Poly1305
// in place of AES-128-GCM, matching config.rs::retry_tag. The pseudo-packet
// is [len(odcid) as a byte] || odcid || packet, sealed with no plaintext
// (detached tag only) under the fixed retryKey/retryNonce.
func RetryTag(odcid, packet []byte) ([16]byte, error) {
	var tag [16]byte

	if len(odcid) > 255 {
		return tag, errOdcidTooLong
	}

	pseudoPacket := make([]byte, 0, 1+len(odcid)+len(packet))
	pseudoPacket = append(pseudoPacket, byte(len(odcid)))
	pseudoPacket = append(pseudoPacket, odcid...)
	pseudoPacket = append(pseudoPacket, packet...)

	aead, err := chacha20poly1305.New(retryKey)
	if err != nil {
		return tag, err
	}

	sealed := aead.Seal(nil, retryNonce, nil, pseudoPacket)
	copy(tag[:], sealed)
	return tag, nil
}

// IsValidRetry verifies a retry packet's token+tag trailer against odcid and
// header, matching session.rs's Session::is_valid_retry. payload must be at
// least 16 bytes (the trailing tag); anything shorter is invalid.
func IsValidRetry(odcid, header, payload []byte) bool {
	if len(payload) < 16 {
		return false
	}
	retryToken := payload[:len(payload)-16]
	retryTag := payload[len(payload)-16:]

	if len(odcid) > 255 {
		return false
	}

	pseudoPacket := make([]byte, 0, 1+len(odcid)+len(header)+len(retryToken))
	pseudoPacket = append(pseudoPacket, byte(len(odcid)))
	pseudoPacket = append(pseudoPacket, odcid...)
	pseudoPacket = append(pseudoPacket, header...)
	pseudoPacket = append(pseudoPacket, retryToken...)

	aead, err := chacha20poly1305.New(retryKey)
	if err != nil {
		return false
	}

	// The AEAD "ciphertext" is just the tag, since the original seals an
	// empty plaintext; pseudoPacket is the AAD.
	_, err = aead.Open(nil, retryNonce, retryTag, pseudoPacket)
	return err == nil
}

var errOdcidTooLong = errorString("noisecrypto: original destination connection id too long")

type errorString string

func (e errorString) Error() string { return string(e) }

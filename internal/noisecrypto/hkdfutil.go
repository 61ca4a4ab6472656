package noisecrypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// expandFromPRK expands an already-extracted 32-byte HKDF PRK with info,
// filling out. Mirrors Rust's Hkdf::from_prk(...).expand(info, out).
func expandFromPRK(prk, info, out []byte) error {
	r := hkdf.Expand(sha256.New, prk, info)
	_, err := io.ReadFull(r, out)
	return err
}

// extractAndExpand runs full HKDF-Extract-then-Expand (salt may be nil),
// filling out. Mirrors Rust's Hkdf::new(salt, ikm).expand(info, out).
func extractAndExpand(salt, ikm, info, out []byte) error {
	r := hkdf.New(sha256.New, ikm, salt, info)
	_, err := io.ReadFull(r, out)
	return err
}

// extractAndExpandMulti runs HKDF-Extract-then-Expand over the
// concatenation of multiple info segments, as quinn_proto's
// expand_multi_info does for export_keying_material.
func extractAndExpandMulti(salt, ikm []byte, infos [][]byte, out []byte) error {
	info := make([]byte, 0)
	for _, i := range infos {
		info = append(info, i...)
	}
	return extractAndExpand(salt, ikm, info, out)
}

// ExpandFromPRK is the exported form of expandFromPRK, used by
// internal/noisehandshake to ratchet transport secrets ("quic ku") without
// duplicating HKDF plumbing outside this package.
func ExpandFromPRK(prk, info, out []byte) error {
	return expandFromPRK(prk, info, out)
}

// ExtractAndExpandMulti is the exported form of extractAndExpandMulti, used
// by internal/noisehandshake for NoiseSession.ExportKeyingMaterial.
func ExtractAndExpandMulti(salt, ikm []byte, infos [][]byte, out []byte) error {
	return extractAndExpandMulti(salt, ikm, infos, out)
}

// KeyUpdateInfo is the RFC 9001 "quic ku" key-update HKDF label, exported
// for internal/noisehandshake's NextOneRTTKeys.
var KeyUpdateInfo = append([]byte{}, keyUpdateInfo...)

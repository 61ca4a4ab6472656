package noisehandshake

import (
	"errors"

	"github.com/cloudflare/circl/dh/x448"
	"github.com/cloudflare/circl/kem"

	"github.com/nushift/nucore/internal/noisecrypto"
)

// ErrOutOfOrder is returned when WriteMessage/ReadMessage is called out of
// the pattern's fixed message order.
var ErrOutOfOrder = errors.New("noisehandshake: message out of order")

// HandshakeState drives the three-message Noise_XXhfs_448+Kyber1024 pattern:
//
//	-> e, e1
//	<- e, ee, ekem1, s, es
//	-> s, se
//
// Grounded on quinn_noise/session.rs's use of the snow crate's
// HandshakeState, reimplemented by hand because flynn/noise's pattern
// engine has no token for the hybrid KEM messages (e1/ekem1) this pattern
// needs; the cipher/hash primitives themselves still come from flynn/noise
// via symmetricState.
type HandshakeState struct {
	ss          *symmetricState
	isInitiator bool
	msgIndex    int

	localStatic *noisecrypto.X448KeyPair
	localEph    *noisecrypto.X448KeyPair
	localKyber  *noisecrypto.KyberKeyPair // only ever set on the initiator

	remoteStatic  *x448.Key
	remoteEph     *x448.Key
	remoteKyber   kem.PublicKey // learned by the responder from e1
}

// NewHandshakeState constructs a handshake driver for one side of a
// connection, keyed with localStatic.
func NewHandshakeState(isInitiator bool, localStatic *noisecrypto.X448KeyPair) *HandshakeState {
	return &HandshakeState{
		ss:          newSymmetricState(noisecrypto.ProtocolString),
		isInitiator: isInitiator,
		localStatic: localStatic,
	}
}

// IsInitiator reports which side of the pattern this state drives.
func (h *HandshakeState) IsInitiator() bool { return h.isInitiator }

// IsMyTurn reports whether the next unconsumed message in the pattern is
// one this side writes.
func (h *HandshakeState) IsMyTurn() bool {
	// Messages 0 and 2 (1-indexed: 1 and 3) are written by the initiator;
	// message 1 (2) is written by the responder.
	writerIsInitiator := h.msgIndex == 0 || h.msgIndex == 2
	return writerIsInitiator == h.isInitiator
}

// IsFinished reports whether all three messages have been processed.
func (h *HandshakeState) IsFinished() bool {
	return h.msgIndex >= 3
}

// RemoteStatic returns the peer's static public key, once learned.
func (h *HandshakeState) RemoteStatic() *x448.Key {
	return h.remoteStatic
}

func dh(priv *noisecrypto.X448KeyPair, pub *x448.Key) ([]byte, error) {
	shared, err := noisecrypto.X448DH(&priv.Private, pub)
	if err != nil {
		return nil, err
	}
	return shared[:], nil
}

// WriteMessage writes the next pattern message this side owns, embedding
// payload, and returns the wire bytes. It errors with ErrOutOfOrder if it
// is not currently this side's turn.
func (h *HandshakeState) WriteMessage(payload []byte) ([]byte, error) {
	if !h.IsMyTurn() || h.IsFinished() {
		return nil, ErrOutOfOrder
	}

	var out []byte
	var err error

	switch h.msgIndex {
	case 0:
		out, err = h.writeMessage1(payload)
	case 1:
		out, err = h.writeMessage2(payload)
	case 2:
		out, err = h.writeMessage3(payload)
	}
	if err != nil {
		return nil, err
	}
	h.msgIndex++
	return out, nil
}

// ReadMessage consumes the next pattern message this side expects and
// returns the decrypted payload.
func (h *HandshakeState) ReadMessage(msg []byte) ([]byte, error) {
	if h.IsMyTurn() || h.IsFinished() {
		return nil, ErrOutOfOrder
	}

	var payload []byte
	var err error

	switch h.msgIndex {
	case 0:
		payload, err = h.readMessage1(msg)
	case 1:
		payload, err = h.readMessage2(msg)
	case 2:
		payload, err = h.readMessage3(msg)
	}
	if err != nil {
		return nil, err
	}
	h.msgIndex++
	return payload, nil
}

// Split derives the (initiator-to-responder, responder-to-initiator)
// transport keys once the handshake is finished.
func (h *HandshakeState) Split() (iToR, rToI [32]byte) {
	return h.ss.split()
}

// -- Message 1: -> e, e1 --

func (h *HandshakeState) writeMessage1(payload []byte) ([]byte, error) {
	eph, err := noisecrypto.GenerateX448KeyPair()
	if err != nil {
		return nil, err
	}
	h.localEph = eph

	kyber, err := noisecrypto.GenerateKyberKeyPair()
	if err != nil {
		return nil, err
	}
	h.localKyber = kyber

	var out []byte
	out = append(out, eph.Public[:]...)
	h.ss.mixHash(eph.Public[:])

	kyberPub, err := noisecrypto.KyberMarshalPublicKey(kyber.Public)
	if err != nil {
		return nil, err
	}
	out = append(out, kyberPub...)
	h.ss.mixHash(kyberPub)

	out = append(out, h.ss.encryptAndHash(payload)...)
	return out, nil
}

func (h *HandshakeState) readMessage1(msg []byte) ([]byte, error) {
	if len(msg) < noisecrypto.X448PublicKeyLen+noisecrypto.Kyber1024PublicKeyLen {
		return nil, ErrOutOfOrder
	}

	var re x448.Key
	copy(re[:], msg[:noisecrypto.X448PublicKeyLen])
	h.remoteEph = &re
	h.ss.mixHash(msg[:noisecrypto.X448PublicKeyLen])

	kyberPubBytes := msg[noisecrypto.X448PublicKeyLen : noisecrypto.X448PublicKeyLen+noisecrypto.Kyber1024PublicKeyLen]
	kyberPub, err := noisecrypto.KyberUnmarshalPublicKey(kyberPubBytes)
	if err != nil {
		return nil, err
	}
	h.remoteKyber = kyberPub
	h.ss.mixHash(kyberPubBytes)

	rest := msg[noisecrypto.X448PublicKeyLen+noisecrypto.Kyber1024PublicKeyLen:]
	return h.ss.decryptAndHash(rest)
}

// -- Message 2: <- e, ee, ekem1, s, es --

func (h *HandshakeState) writeMessage2(payload []byte) ([]byte, error) {
	eph, err := noisecrypto.GenerateX448KeyPair()
	if err != nil {
		return nil, err
	}
	h.localEph = eph

	var out []byte
	out = append(out, eph.Public[:]...)
	h.ss.mixHash(eph.Public[:])

	// ee
	eeShared, err := dh(h.localEph, h.remoteEph)
	if err != nil {
		return nil, err
	}
	h.ss.mixKey(eeShared)

	// ekem1
	ct, sharedSecret, err := noisecrypto.KyberEncapsulate(h.remoteKyber)
	if err != nil {
		return nil, err
	}
	out = append(out, h.ss.encryptAndHash(ct)...)
	h.ss.mixKey(sharedSecret)

	// s
	out = append(out, h.ss.encryptAndHash(h.localStatic.Public[:])...)

	// es (responder): dh(s, re)
	esShared, err := dh(h.localStatic, h.remoteEph)
	if err != nil {
		return nil, err
	}
	h.ss.mixKey(esShared)

	out = append(out, h.ss.encryptAndHash(payload)...)
	return out, nil
}

func (h *HandshakeState) readMessage2(msg []byte) ([]byte, error) {
	if len(msg) < noisecrypto.X448PublicKeyLen {
		return nil, ErrOutOfOrder
	}
	var re x448.Key
	copy(re[:], msg[:noisecrypto.X448PublicKeyLen])
	h.remoteEph = &re
	h.ss.mixHash(msg[:noisecrypto.X448PublicKeyLen])
	rest := msg[noisecrypto.X448PublicKeyLen:]

	// ee
	eeShared, err := dh(h.localEph, h.remoteEph)
	if err != nil {
		return nil, err
	}
	h.ss.mixKey(eeShared)

	ctLen := noisecrypto.Kyber1024CiphertextLen + noisecrypto.ChaCha20Poly1305TagLen
	if len(rest) < ctLen {
		return nil, ErrOutOfOrder
	}
	ctEnc := rest[:ctLen]
	rest = rest[ctLen:]

	ct, err := h.ss.decryptAndHash(ctEnc)
	if err != nil {
		return nil, err
	}
	sharedSecret, err := noisecrypto.KyberDecapsulate(h.localKyber.Private, ct)
	if err != nil {
		return nil, err
	}
	h.ss.mixKey(sharedSecret)

	sLen := noisecrypto.X448PublicKeyLen + noisecrypto.ChaCha20Poly1305TagLen
	if len(rest) < sLen {
		return nil, ErrOutOfOrder
	}
	sEnc := rest[:sLen]
	rest = rest[sLen:]

	sBytes, err := h.ss.decryptAndHash(sEnc)
	if err != nil {
		return nil, err
	}
	var rs x448.Key
	copy(rs[:], sBytes)
	h.remoteStatic = &rs

	// es (initiator): dh(e, rs)
	esShared, err := dh(h.localEph, h.remoteStatic)
	if err != nil {
		return nil, err
	}
	h.ss.mixKey(esShared)

	return h.ss.decryptAndHash(rest)
}

// -- Message 3: -> s, se --

func (h *HandshakeState) writeMessage3(payload []byte) ([]byte, error) {
	var out []byte
	out = append(out, h.ss.encryptAndHash(h.localStatic.Public[:])...)

	// se (initiator): dh(s, re)
	seShared, err := dh(h.localStatic, h.remoteEph)
	if err != nil {
		return nil, err
	}
	h.ss.mixKey(seShared)

	out = append(out, h.ss.encryptAndHash(payload)...)
	return out, nil
}

func (h *HandshakeState) readMessage3(msg []byte) ([]byte, error) {
	sLen := noisecrypto.X448PublicKeyLen + noisecrypto.ChaCha20Poly1305TagLen
	if len(msg) < sLen {
		return nil, ErrOutOfOrder
	}
	sEnc := msg[:sLen]
	rest := msg[sLen:]

	sBytes, err := h.ss.decryptAndHash(sEnc)
	if err != nil {
		return nil, err
	}
	var rs x448.Key
	copy(rs[:], sBytes)
	h.remoteStatic = &rs

	// se (responder): dh(e, rs)
	seShared, err := dh(h.localEph, h.remoteStatic)
	if err != nil {
		return nil, err
	}
	h.ss.mixKey(seShared)

	return h.ss.decryptAndHash(rest)
}

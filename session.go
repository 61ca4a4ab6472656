package nucore

import (
	"github.com/nushift/nucore/internal/noisecrypto"
	"github.com/nushift/nucore/internal/noisehandshake"
)

// Keys bundles the header and packet protection keys for one traffic
// direction pair, re-exported so host code never imports
// internal/noisehandshake directly.
type Keys = noisehandshake.Keys

// InitialKeyPair bundles the RFC 9001 Initial-level header/packet keys for
// one connection, derived from a destination connection ID.
type InitialKeyPair = noisecrypto.InitialKeyPair

// HeaderKey applies and removes QUIC header protection for one traffic
// direction.
type HeaderKey = noisecrypto.TransportHeaderKey

// PacketKey seals and opens one traffic direction's packet payloads.
type PacketKey = noisecrypto.TransportPacketKey

// HandshakeTokenKey derives a fresh AeadKey per address-validation token.
type HandshakeTokenKey = noisecrypto.HandshakeTokenKey

// AeadKey seals and opens a single token under a key HandshakeTokenKey
// derived.
type AeadKey = noisecrypto.AeadKey

// HmacKey signs and verifies stateless-reset tokens.
type HmacKey = noisecrypto.HmacKey

// Side identifies which peer a Session plays: SideClient, the handshake
// initiator, or SideServer, the responder.
type Side = noisecrypto.Side

const (
	SideClient = noisecrypto.SideClient
	SideServer = noisecrypto.SideServer
)

// NewHandshakeTokenKey generates a fresh HandshakeTokenKey from random bytes,
// matching config.rs's NoiseHandshakeTokenKey::new.
func NewHandshakeTokenKey() (*HandshakeTokenKey, error) {
	key, err := noisecrypto.NewHandshakeTokenKey()
	return key, wrapErr("NewHandshakeTokenKey", err)
}

// NewHmacKey generates a fresh HmacKey from random bytes, matching
// config.rs's NoiseHmacKey::new.
func NewHmacKey() (*HmacKey, error) {
	key, err := noisecrypto.NewHmacKey()
	return key, wrapErr("NewHmacKey", err)
}

// Session is the host-consumed handshake and rekeying contract spec.md §6
// names: a QUIC transport drives one connection's handshake and key updates
// entirely through this interface, never touching internal/noisehandshake.
type Session interface {
	ReadHandshake(buf []byte) (bool, error)
	WriteHandshake() ([]byte, *Keys, error)
	InitialKeys(version uint32, dstConnID []byte) (*InitialKeyPair, error)
	HandshakeData() bool
	PeerIdentity() []byte
	IsHandshaking() bool
	TransportParameters() ([]byte, bool)
	NextOneRTTKeys() (*Keys, error)
	IsValidRetry(origDstConnID, header, payload []byte) bool
	ExportKeyingMaterial(label, context, out []byte) error
}

// noiseSession implements Session atop noisehandshake.NoiseSession, adding
// the side-aware InitialKeys/IsValidRetry operations session.rs leaves to
// the Config types rather than NoiseSession itself.
type noiseSession struct {
	inner *noisehandshake.NoiseSession
	side  Side
}

var _ Session = (*noiseSession)(nil)

func (s *noiseSession) ReadHandshake(buf []byte) (bool, error) {
	finished, err := s.inner.ReadHandshake(buf)
	return finished, wrapErr("ReadHandshake", err)
}

func (s *noiseSession) WriteHandshake() ([]byte, *Keys, error) {
	msg, keys, err := s.inner.WriteHandshake()
	return msg, keys, wrapErr("WriteHandshake", err)
}

func (s *noiseSession) InitialKeys(version uint32, dstConnID []byte) (*InitialKeyPair, error) {
	keys, err := noisecrypto.InitialKeys(version, dstConnID, s.side)
	return keys, wrapErr("InitialKeys", err)
}

// HandshakeData reports whether the handshake has finished. session.rs's
// Session::handshake_data returns an opaque Option<Box<dyn Any>> the host
// QUIC stack only ever treats as a presence check, so this returns that
// bool directly instead of reproducing Any-boxing Go has no use for.
func (s *noiseSession) HandshakeData() bool {
	return !s.inner.IsHandshaking()
}

func (s *noiseSession) PeerIdentity() []byte { return s.inner.PeerIdentity() }

func (s *noiseSession) IsHandshaking() bool { return s.inner.IsHandshaking() }

func (s *noiseSession) TransportParameters() ([]byte, bool) { return s.inner.TransportParameters() }

func (s *noiseSession) NextOneRTTKeys() (*Keys, error) {
	local, remote, err := s.inner.NextOneRTTKeys()
	if err != nil {
		return nil, wrapErr("NextOneRTTKeys", err)
	}
	// Header keys are not rotated by a key update (RFC 9001); only the
	// packet keys above change, so the header fields stay nil here.
	return &Keys{LocalPacket: local, RemotePacket: remote}, nil
}

// IsValidRetry checks a server retry packet's integrity tag. session.rs
// still threads this through &self, but the check itself is pure and
// side-independent, so it simply forwards to the retry-tag primitive.
func (s *noiseSession) IsValidRetry(origDstConnID, header, payload []byte) bool {
	return noisecrypto.IsValidRetry(origDstConnID, header, payload)
}

func (s *noiseSession) ExportKeyingMaterial(label, context, out []byte) error {
	return wrapErr("ExportKeyingMaterial", s.inner.ExportKeyingMaterial(label, context, out))
}

// ClientConfig starts the initiator side of a handshake and derives the
// Initial-level keys a client needs before any Session exists.
type ClientConfig interface {
	StartSession(transportParameters []byte) (Session, error)
	InitialKeys(version uint32, dstConnID []byte) (*InitialKeyPair, error)
}

// ServerConfig starts the responder side of a handshake, derives Initial
// keys, and tags retry packets — the three responsibilities config.rs's
// ServerConfig impl adds on top of ClientConfig's.
type ServerConfig interface {
	StartSession(transportParameters []byte) (Session, error)
	InitialKeys(version uint32, dstConnID []byte) (*InitialKeyPair, error)
	RetryTag(origDstConnID, packet []byte) ([16]byte, error)
}

// noiseEndpointConfig backs both ClientConfig and ServerConfig, grounded on
// config.rs's single NoiseConfig<LS> implementing both quinn_proto traits
// over one static secret. Which interface a caller holds determines which
// methods are reachable; RetryTag is simply unused by a ClientConfig-typed
// caller rather than split into a second concrete type.
type noiseEndpointConfig struct {
	config NoiseConfig
}

var (
	_ ClientConfig = (*noiseEndpointConfig)(nil)
	_ ServerConfig = (*noiseEndpointConfig)(nil)
)

// NewClientConfig returns a ClientConfig that starts sessions as the
// handshake initiator using config's parameters. A nil config.LocalStatic
// is filled in with a freshly generated identity.
func NewClientConfig(config NoiseConfig) (ClientConfig, error) {
	config.Side = SideClient
	if err := fillNoiseConfig(&config); err != nil {
		return nil, wrapErr("NewClientConfig", err)
	}
	return &noiseEndpointConfig{config: config}, nil
}

// NewServerConfig returns a ServerConfig that starts sessions as the
// handshake responder using config's parameters. A nil config.LocalStatic
// is filled in with a freshly generated identity.
func NewServerConfig(config NoiseConfig) (ServerConfig, error) {
	config.Side = SideServer
	if err := fillNoiseConfig(&config); err != nil {
		return nil, wrapErr("NewServerConfig", err)
	}
	return &noiseEndpointConfig{config: config}, nil
}

func fillNoiseConfig(config *NoiseConfig) error {
	if config.LocalStatic != nil {
		return nil
	}
	static, err := noisecrypto.GenerateX448KeyPair()
	if err != nil {
		return err
	}
	config.LocalStatic = static
	return nil
}

func (c *noiseEndpointConfig) StartSession(transportParameters []byte) (Session, error) {
	inner := noisehandshake.NewHandshaking(c.config.Side == SideClient, c.config.LocalStatic, transportParameters)
	return &noiseSession{inner: inner, side: c.config.Side}, nil
}

func (c *noiseEndpointConfig) InitialKeys(version uint32, dstConnID []byte) (*InitialKeyPair, error) {
	keys, err := noisecrypto.InitialKeys(version, dstConnID, c.config.Side)
	return keys, wrapErr("InitialKeys", err)
}

// RetryTag seals an empty retry pseudo-packet under RETRY_KEY/RETRY_NONCE,
// matching config.rs's retry_tag exactly (ODCID length byte, ODCID, then
// the packet, as additional data with no plaintext).
func (c *noiseEndpointConfig) RetryTag(origDstConnID, packet []byte) ([16]byte, error) {
	tag, err := noisecrypto.RetryTag(origDstConnID, packet)
	return tag, wrapErr("RetryTag", err)
}

package noisecrypto

import "errors"

// ErrUnsupportedVersion is returned when InitialKeys is asked to derive keys
// for a wire version other than NSQWireVersion.
var ErrUnsupportedVersion = errors.New("noisecrypto: unsupported version")

// Side identifies which endpoint a set of initial keys protects traffic
// for.
type Side int

const (
	SideClient Side = iota
	SideServer
)

// InitialKeyPair bundles the header and packet keys for both traffic
// directions, local and remote.
type InitialKeyPair struct {
	LocalHeader   *TransportHeaderKey
	RemoteHeader  *TransportHeaderKey
	LocalPacket   *TransportPacketKey
	RemotePacket  *TransportPacketKey
}

// InitialKeys derives the RFC 9001 initial keys for a connection, keyed off
// a destination connection id, for the given side. Grounded on
// session.rs::initial_keys: client/server initial secrets are derived with
// HKDF-SHA256 using the RFC 9001 initial salt, then each secret's header
// and packet keys are expanded from it as an HKDF PRK.
func InitialKeys(version uint32, dstConnID []byte, side Side) (*InitialKeyPair, error) {
	if version != NSQWireVersion {
		return nil, ErrUnsupportedVersion
	}

	var clientSecret, serverSecret [32]byte
	if err := extractAndExpand(rfc9001InitialSalt, dstConnID, clientInitialInfo, clientSecret[:]); err != nil {
		return nil, err
	}
	if err := extractAndExpand(rfc9001InitialSalt, dstConnID, serverInitialInfo, serverSecret[:]); err != nil {
		return nil, err
	}

	clientHeader, err := HeaderKeyFromInitialSecret(clientSecret[:])
	if err != nil {
		return nil, err
	}
	serverHeader, err := HeaderKeyFromInitialSecret(serverSecret[:])
	if err != nil {
		return nil, err
	}
	clientPacket, err := PacketKeyFromInitialSecret(clientSecret[:])
	if err != nil {
		return nil, err
	}
	serverPacket, err := PacketKeyFromInitialSecret(serverSecret[:])
	if err != nil {
		return nil, err
	}

	if side == SideClient {
		return &InitialKeyPair{
			LocalHeader: clientHeader, RemoteHeader: serverHeader,
			LocalPacket: clientPacket, RemotePacket: serverPacket,
		}, nil
	}
	return &InitialKeyPair{
		LocalHeader: serverHeader, RemoteHeader: clientHeader,
		LocalPacket: serverPacket, RemotePacket: clientPacket,
	}, nil
}

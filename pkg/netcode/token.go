package netcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// Token validation errors. These are never surfaced to the peer: the
// server replies with nothing, so as not to act as an oracle for an
// unauthenticated caller probing for valid tokens.
var (
	ErrInvalidVersion = errors.New("netcode: invalid version info")
	ErrExpired        = errors.New("netcode: connect token expired")
	ErrInvalidToken   = errors.New("netcode: invalid connect token")
	ErrNotInHostList  = errors.New("netcode: server address not in token host list")
)

// PrivateConnectToken is the plaintext a ConnectToken's sealed data decrypts
// to: the client's identity, per-connection keys, and the server whitelist.
type PrivateConnectToken struct {
	ClientID        uint64
	TimeoutSeconds  int32
	ServerAddresses []netip.AddrPort
	ClientToServer  Key
	ServerToClient  Key
	UserData        [userDataBytes]byte
}

// ConnectToken is the public portion of a connect token, as carried in a
// ConnectionRequest packet. Data holds the AEAD-sealed PrivateConnectToken.
type ConnectToken struct {
	VersionInfo     [13]byte
	ProtocolID      uint64
	CreateTimestamp uint64
	ExpireTimestamp uint64
	XNonce          [24]byte
	Data            []byte // sealed, privateDataBytes long
}

// privateTokenAAD builds the associated data a private connect token is
// sealed/opened under: the protocol id and expiry, so a token minted for one
// protocol or silently re-dated cannot be replayed against another.
func privateTokenAAD(protocolID, expireTimestamp uint64) []byte {
	aad := make([]byte, 16)
	binary.LittleEndian.PutUint64(aad[0:], protocolID)
	binary.LittleEndian.PutUint64(aad[8:], expireTimestamp)
	return aad
}

// EncodePrivate seals t under key, ready to be placed in ConnectToken.Data.
func (t *PrivateConnectToken) EncodePrivate(protocolID, expireTimestamp uint64, xnonce [24]byte, key Key) ([]byte, error) {
	if len(t.ServerAddresses) > maxServerAddresses {
		return nil, fmt.Errorf("netcode: too many server addresses (%d > %d)", len(t.ServerAddresses), maxServerAddresses)
	}

	plaintext := make([]byte, 0, privateDataBytes-MACBytes)
	plaintext = binary.LittleEndian.AppendUint64(plaintext, t.ClientID)
	plaintext = binary.LittleEndian.AppendUint32(plaintext, uint32(t.TimeoutSeconds))
	plaintext = append(plaintext, byte(len(t.ServerAddresses)))
	for _, a := range t.ServerAddresses {
		plaintext = appendAddrPort(plaintext, a)
	}
	// pad the address list to a fixed size so every private token has the
	// same plaintext length regardless of how many addresses it carries
	for i := len(t.ServerAddresses); i < maxServerAddresses; i++ {
		plaintext = appendAddrPort(plaintext, netip.AddrPort{})
	}
	plaintext = append(plaintext, t.ClientToServer[:]...)
	plaintext = append(plaintext, t.ServerToClient[:]...)
	plaintext = append(plaintext, t.UserData[:]...)

	// Pad the plaintext out to the fixed private-token size so the sealed
	// blob always matches privateDataBytes, regardless of the struct's own
	// (smaller) field total; EncodeConnectionRequest requires this exact
	// length.
	if len(plaintext) > privateDataBytes-MACBytes {
		return nil, fmt.Errorf("netcode: private token plaintext %d exceeds %d", len(plaintext), privateDataBytes-MACBytes)
	}
	plaintext = append(plaintext, make([]byte, privateDataBytes-MACBytes-len(plaintext))...)

	return sealToken(key, xnonce, privateTokenAAD(protocolID, expireTimestamp), plaintext)
}

// decodePrivateConnectToken opens and parses a sealed private connect token.
func decodePrivateConnectToken(sealed []byte, protocolID, expireTimestamp uint64, xnonce [24]byte, key Key) (*PrivateConnectToken, error) {
	plaintext, err := openToken(key, xnonce, privateTokenAAD(protocolID, expireTimestamp), sealed)
	if err != nil {
		return nil, ErrInvalidToken
	}

	// EncodePrivate pads its plaintext out to this exact length; the fixed
	// fields below consume only a prefix of it, the rest is padding.
	if len(plaintext) != privateDataBytes-MACBytes {
		return nil, ErrInvalidToken
	}

	t := &PrivateConnectToken{}
	off := 0
	t.ClientID = binary.LittleEndian.Uint64(plaintext[off:])
	off += 8
	t.TimeoutSeconds = int32(binary.LittleEndian.Uint32(plaintext[off:]))
	off += 4
	n := int(plaintext[off])
	off++
	if n > maxServerAddresses {
		return nil, ErrInvalidToken
	}
	for i := 0; i < maxServerAddresses; i++ {
		a, ok := readAddrPort(plaintext[off:])
		off += addrPortWireLen
		if i < n {
			if !ok {
				return nil, ErrInvalidToken
			}
			t.ServerAddresses = append(t.ServerAddresses, a)
		}
	}
	copy(t.ClientToServer[:], plaintext[off:])
	off += KeyBytes
	copy(t.ServerToClient[:], plaintext[off:])
	off += KeyBytes
	copy(t.UserData[:], plaintext[off:])

	return t, nil
}

// ValidateConnectToken runs the version, protocol, expiry, and address-
// whitelist checks against a ConnectionRequest's
// public token fields, returning the decrypted private token on success.
// nowUnixSeconds is the wall clock; it is used only here, never for
// liveness timeouts.
func ValidateConnectToken(req *ConnectToken, protocolID uint64, connectKey Key, serverAddr netip.AddrPort, nowUnixSeconds uint64) (*PrivateConnectToken, error) {
	if req.VersionInfo != VersionInfo {
		return nil, ErrInvalidVersion
	}
	if nowUnixSeconds > req.ExpireTimestamp {
		return nil, ErrExpired
	}

	token, err := decodePrivateConnectToken(req.Data, protocolID, req.ExpireTimestamp, req.XNonce, connectKey)
	if err != nil {
		return nil, err
	}

	for _, a := range token.ServerAddresses {
		if a == serverAddr {
			return token, nil
		}
	}
	return nil, ErrNotInHostList
}

const addrPortWireLen = 1 + 16 + 2 // family tag + 16-byte address + port

func appendAddrPort(b []byte, a netip.AddrPort) []byte {
	if !a.IsValid() {
		b = append(b, 0)
		b = append(b, make([]byte, 16)...)
		return binary.LittleEndian.AppendUint16(b, 0)
	}
	addr := a.Addr()
	if addr.Is4() {
		b = append(b, 4)
		a4 := addr.As4()
		b = append(b, make([]byte, 12)...)
		b = append(b, a4[:]...)
	} else {
		b = append(b, 6)
		a16 := addr.As16()
		b = append(b, a16[:]...)
	}
	return binary.LittleEndian.AppendUint16(b, a.Port())
}

func readAddrPort(b []byte) (netip.AddrPort, bool) {
	if len(b) < addrPortWireLen {
		return netip.AddrPort{}, false
	}
	family := b[0]
	var addr netip.Addr
	switch family {
	case 0:
		port := binary.LittleEndian.Uint16(b[17:19])
		_ = port
		return netip.AddrPort{}, true // padding entry, caller discards by index
	case 4:
		var a4 [4]byte
		copy(a4[:], b[13:17])
		addr = netip.AddrFrom4(a4)
	case 6:
		var a16 [16]byte
		copy(a16[:], b[1:17])
		addr = netip.AddrFrom16(a16)
	default:
		return netip.AddrPort{}, false
	}
	port := binary.LittleEndian.Uint16(b[17:19])
	return netip.AddrPortFrom(addr, port), true
}

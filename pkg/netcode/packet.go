package netcode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Packet-format errors. Like the token-validation errors, these are swallowed
// at the packet boundary and never produce a reply.
var (
	ErrPacketTooSmall  = errors.New("netcode: packet too small")
	ErrUnknownTag      = errors.New("netcode: unknown packet tag")
	ErrKeyRequired     = errors.New("netcode: packet type requires a key to decode")
	ErrTruncatedPacket = errors.New("netcode: truncated packet")
)

// PacketKind discriminates the on-wire packet variants.
type PacketKind uint8

const (
	PacketConnectionRequest PacketKind = iota
	PacketConnectionDenied
	PacketChallenge
	PacketResponse
	PacketKeepAlive
	PacketPayload
	PacketDisconnect
)

func (k PacketKind) String() string {
	switch k {
	case PacketConnectionRequest:
		return "connection_request"
	case PacketConnectionDenied:
		return "connection_denied"
	case PacketChallenge:
		return "challenge"
	case PacketResponse:
		return "response"
	case PacketKeepAlive:
		return "keep_alive"
	case PacketPayload:
		return "payload"
	case PacketDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// KeepAlive is the payload of a PacketKeepAlive: the slot assignment shipped
// to a newly connected client.
type KeepAlive struct {
	MaxClients  uint32
	ClientIndex uint32
}

// EncryptedChallengeToken is the sealed {client_id, user_data} blob carried
// by both Challenge and Response packets. Sequence is the challenge-token
// sequence GenerateChallengeToken derived its nonce from — distinct from the
// outer session packet's own sequence prefix — and is carried alongside Data
// in the session-encrypted payload so DecodeChallengeToken can recover it
// from an echoed Response.
type EncryptedChallengeToken struct {
	Sequence uint64
	Data     []byte // sealed, challengeTokenSealedBytes long
}

// Packet is a decoded on-wire packet. Exactly the field(s) documented for
// Kind are populated.
type Packet struct {
	Kind PacketKind

	Request   ConnectToken            // PacketConnectionRequest
	Challenge EncryptedChallengeToken // PacketChallenge
	Response  EncryptedChallengeToken // PacketResponse
	KeepAlive KeepAlive               // PacketKeepAlive
	Payload   []byte                  // PacketPayload
}

const challengeTokenPlainBytes = 8 + userDataBytes // client_id + user_data
const challengeTokenSealedBytes = challengeTokenPlainBytes + MACBytes

// connectionRequestWireLen is the fixed size of an encoded
// PacketConnectionRequest: tag + version_info + protocol_id + create_ts +
// expire_ts + xnonce + sealed private data.
const connectionRequestWireLen = 1 + 13 + 8 + 8 + 8 + 24 + privateDataBytes

// EncodeConnectionRequest writes a PacketConnectionRequest using its fixed
// layout. It is used by the handshake-initiating side; the server never
// encodes this variant.
func EncodeConnectionRequest(buf []byte, token ConnectToken) (int, error) {
	if len(buf) < connectionRequestWireLen {
		return 0, ErrPacketTooSmall
	}
	if len(token.Data) != privateDataBytes {
		return 0, fmt.Errorf("netcode: sealed private token must be %d bytes, got %d", privateDataBytes, len(token.Data))
	}

	off := 0
	buf[off] = byte(PacketConnectionRequest)
	off++
	off += copy(buf[off:], token.VersionInfo[:])
	binary.LittleEndian.PutUint64(buf[off:], token.ProtocolID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], token.CreateTimestamp)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], token.ExpireTimestamp)
	off += 8
	off += copy(buf[off:], token.XNonce[:])
	off += copy(buf[off:], token.Data)

	return off, nil
}

// aad builds the associated data an authenticated packet's MAC covers: the
// version info, protocol id, packet type tag, and sequence number.
func aad(protocolID uint64, tag PacketKind, sequence uint64) []byte {
	b := make([]byte, 0, 13+8+1+8)
	b = append(b, VersionInfo[:]...)
	b = binary.LittleEndian.AppendUint64(b, protocolID)
	b = append(b, byte(tag))
	b = binary.LittleEndian.AppendUint64(b, sequence)
	return b
}

// encodeSequencePrefix packs sequence into the minimum number of bytes (1-8):
// a prefix byte whose low 3 bits hold n-1 for the byte count n, followed by n
// little-endian bytes.
func encodeSequencePrefix(buf []byte, sequence uint64) int {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], sequence)
	n := 8
	for n > 1 && tmp[n-1] == 0 {
		n--
	}
	buf[0] = byte(n - 1)
	copy(buf[1:], tmp[:n])
	return 1 + n
}

func decodeSequencePrefix(buf []byte) (sequence uint64, consumed int, err error) {
	if len(buf) < 1 {
		return 0, 0, ErrTruncatedPacket
	}
	n := int(buf[0]&0x7) + 1
	if len(buf) < 1+n {
		return 0, 0, ErrTruncatedPacket
	}
	var tmp [8]byte
	copy(tmp[:n], buf[1:1+n])
	return binary.LittleEndian.Uint64(tmp[:]), 1 + n, nil
}

// payloadPlaintext builds the plaintext body sealed for a given packet kind.
func payloadPlaintext(p Packet) ([]byte, error) {
	switch p.Kind {
	case PacketConnectionDenied, PacketDisconnect:
		return nil, nil
	case PacketChallenge:
		return encodeChallengeTokenPlaintext(p.Challenge), nil
	case PacketResponse:
		return encodeChallengeTokenPlaintext(p.Response), nil
	case PacketKeepAlive:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint32(b[0:], p.KeepAlive.MaxClients)
		binary.LittleEndian.PutUint32(b[4:], p.KeepAlive.ClientIndex)
		return b, nil
	case PacketPayload:
		return p.Payload, nil
	default:
		return nil, fmt.Errorf("netcode: cannot encode packet kind %d as an authenticated packet", p.Kind)
	}
}

// encodeChallengeTokenPlaintext prepends t's challenge-token sequence to its
// sealed data, so the session payload carries both.
func encodeChallengeTokenPlaintext(t EncryptedChallengeToken) []byte {
	b := make([]byte, 0, 8+len(t.Data))
	b = binary.LittleEndian.AppendUint64(b, t.Sequence)
	b = append(b, t.Data...)
	return b
}

// decodeChallengeTokenPlaintext is the inverse of encodeChallengeTokenPlaintext.
func decodeChallengeTokenPlaintext(plaintext []byte) (EncryptedChallengeToken, error) {
	if len(plaintext) < 8 {
		return EncryptedChallengeToken{}, ErrTruncatedPacket
	}
	return EncryptedChallengeToken{
		Sequence: binary.LittleEndian.Uint64(plaintext[:8]),
		Data:     plaintext[8:],
	}, nil
}

// Encode writes an authenticated (non-ConnectionRequest) packet to buf,
// sealed under key with the given outbound sequence number, and returns the
// number of bytes written.
func Encode(buf []byte, p Packet, protocolID uint64, sequence uint64, key Key) (int, error) {
	plaintext, err := payloadPlaintext(p)
	if err != nil {
		return 0, err
	}

	sealed, err := sealSession(key, sequence, aad(protocolID, p.Kind, sequence), plaintext)
	if err != nil {
		return 0, err
	}

	need := 1 + 9 + len(sealed) // tag + worst-case sequence prefix + ciphertext/MAC
	if len(buf) < need {
		return 0, ErrPacketTooSmall
	}

	off := 0
	buf[off] = byte(p.Kind)
	off++
	off += encodeSequencePrefix(buf[off:], sequence)
	off += copy(buf[off:], sealed)

	return off, nil
}

// Decode reads a packet from buf. If key is nil, only PacketConnectionRequest
// may be decoded (any other tag is ErrUnknownTag); this models an
// as-yet-unauthenticated sender, for whom the server has no key to verify
// anything else against.
func Decode(buf []byte, protocolID uint64, key *Key) (Packet, error) {
	if len(buf) <= 2+MACBytes {
		return Packet{}, ErrPacketTooSmall
	}

	tag := PacketKind(buf[0])
	body := buf[1:]

	if tag == PacketConnectionRequest {
		return decodeConnectionRequest(buf)
	}
	if key == nil {
		return Packet{}, ErrUnknownTag
	}

	switch tag {
	case PacketConnectionDenied, PacketChallenge, PacketResponse, PacketKeepAlive, PacketPayload, PacketDisconnect:
	default:
		return Packet{}, ErrUnknownTag
	}

	sequence, consumed, err := decodeSequencePrefix(body)
	if err != nil {
		return Packet{}, err
	}
	ciphertext := body[consumed:]

	plaintext, err := openSession(*key, sequence, aad(protocolID, tag, sequence), ciphertext)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Kind: tag}
	switch tag {
	case PacketChallenge:
		if p.Challenge, err = decodeChallengeTokenPlaintext(plaintext); err != nil {
			return Packet{}, err
		}
	case PacketResponse:
		if p.Response, err = decodeChallengeTokenPlaintext(plaintext); err != nil {
			return Packet{}, err
		}
	case PacketKeepAlive:
		if len(plaintext) != 8 {
			return Packet{}, ErrTruncatedPacket
		}
		p.KeepAlive = KeepAlive{
			MaxClients:  binary.LittleEndian.Uint32(plaintext[0:]),
			ClientIndex: binary.LittleEndian.Uint32(plaintext[4:]),
		}
	case PacketPayload:
		p.Payload = plaintext
	}
	return p, nil
}

func decodeConnectionRequest(buf []byte) (Packet, error) {
	if len(buf) != connectionRequestWireLen {
		return Packet{}, ErrTruncatedPacket
	}

	var t ConnectToken
	off := 1
	copy(t.VersionInfo[:], buf[off:])
	off += 13
	t.ProtocolID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	t.CreateTimestamp = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	t.ExpireTimestamp = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	copy(t.XNonce[:], buf[off:])
	off += 24
	t.Data = append([]byte(nil), buf[off:]...)

	return Packet{Kind: PacketConnectionRequest, Request: t}, nil
}

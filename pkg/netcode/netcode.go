// Package netcode implements the server-side secure session layer: a
// connect-token handshake, challenge/response liveness check, slot
// assignment, and timeout policing for clients connecting over an
// unreliable, connectionless transport.
//
// The package is a single-threaded cooperative state machine: every
// transition is driven by an explicit call to ProcessPacket,
// Update, UpdateClient, or UpdatePendingConnections. Nothing here spawns a
// goroutine or blocks; an embedder wanting concurrency owns the
// serialization itself.
package netcode

const (
	// KeyBytes is the length of every AEAD key used by this package.
	KeyBytes = 32
	// MACBytes is the length of the AEAD authentication tag appended to
	// every sealed packet.
	MACBytes = 16
	// BufferSize is the minimum datagram buffer an embedder should
	// allocate to encode/decode any packet this package produces.
	BufferSize = 1200 + 256

	// maxServerAddresses bounds the server address whitelist carried in a
	// private connect token.
	maxServerAddresses = 32
	// privateDataBytes is the sealed length of a PrivateConnectToken: its
	// plaintext size plus the AEAD tag.
	privateDataBytes = 1024
	// userDataBytes is the size of the opaque application payload carried
	// through the handshake inside the token and the challenge.
	userDataBytes = 256
)

// VersionInfo is the fixed 13-octet protocol tag every connect token and
// connection request packet must carry verbatim.
var VersionInfo = [13]byte{'N', 'E', 'T', 'C', 'O', 'R', 'E', ' ', '1', '.', '0', '0', 0}

// Key is a raw AEAD key.
type Key [KeyBytes]byte

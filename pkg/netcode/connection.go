package netcode

import (
	"net/netip"
	"time"
)

// ConnectionState is the lifecycle state of a per-client connection record.
type ConnectionState int

const (
	StatePendingResponse ConnectionState = iota
	StateConnected
	StateTimedOut
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StatePendingResponse:
		return "pending_response"
	case StateConnected:
		return "connected"
	case StateTimedOut:
		return "timed_out"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// connection is the per-client record tracked in Server.clients and
// Server.pendingClients.
type connection struct {
	clientID uint64
	state    ConnectionState

	sendKey    Key // server -> client
	receiveKey Key // client -> server

	addr netip.AddrPort

	lastPacketReceivedTime time.Duration
	lastPacketSendTime     time.Duration

	timeoutSeconds int32
	sequence       uint64 // next outbound sequence number

	expireTimestamp  uint64
	createTimestamp  uint64
	connectStartTime time.Duration
}

// Package channel implements the per-channel unreliable messaging engine: it
// fragments oversized messages into slices, batches small messages into
// packets, reassembles slices back into messages, and enforces per-channel
// memory ceilings on both ends.
package channel

import "time"

// SliceSize is the maximum payload size of a single slice, in octets. All
// slices except the last one for a given message are exactly this size.
const SliceSize = 1200

// SendType selects the reliability/ordering policy for a channel. Only
// Unreliable is implemented by this package; the other variants exist so
// Config can describe a full channel set, including channels served by
// a reliable engine that lives outside this package.
type SendType int

const (
	// Unreliable delivers messages at most once, with no retransmission.
	Unreliable SendType = iota
	// ReliableOrdered retransmits unacknowledged messages and delivers them
	// in send order. Implemented by a sibling reliable channel, not this
	// package.
	ReliableOrdered
	// ReliableUnordered retransmits unacknowledged messages without
	// preserving order. Implemented by a sibling reliable channel, not this
	// package.
	ReliableUnordered
)

func (t SendType) String() string {
	switch t {
	case Unreliable:
		return "unreliable"
	case ReliableOrdered:
		return "reliable_ordered"
	case ReliableUnordered:
		return "reliable_unordered"
	default:
		return "unknown"
	}
}

// Config describes a single channel's identity, memory budget, and
// reliability policy. ChannelID must be unique among the channels configured
// for a peer.
type Config struct {
	ChannelID           uint8
	MaxMemoryUsageBytes int
	SendType            SendType
	// ResendTime only applies to the reliable SendTypes.
	ResendTime time.Duration
}

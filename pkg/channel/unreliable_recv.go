package channel

import "time"

// ReceiveUnreliable reassembles slices and queues whole messages for
// delivery, enforcing a per-channel memory ceiling.
type ReceiveUnreliable struct {
	channelID      uint8
	maxMemoryUsage int
	memoryUsage    int

	messages [][]byte

	slices             map[uint64]*sliceConstructor
	slicesLastReceived map[uint64]time.Time

	err error // latched reassembly error from a slice that failed to reassemble
}

// NewReceiveUnreliable creates a receive half for channelID with the given
// memory ceiling.
func NewReceiveUnreliable(channelID uint8, maxMemoryUsageBytes int) *ReceiveUnreliable {
	return &ReceiveUnreliable{
		channelID:          channelID,
		maxMemoryUsage:     maxMemoryUsageBytes,
		slices:             make(map[uint64]*sliceConstructor),
		slicesLastReceived: make(map[uint64]time.Time),
	}
}

// ProcessMessage enqueues a whole (unsliced) message, subject to the memory
// ceiling. Overflowing messages are dropped silently.
func (r *ReceiveUnreliable) ProcessMessage(message []byte) {
	if r.maxMemoryUsage < r.memoryUsage+len(message) {
		return
	}
	r.memoryUsage += len(message)
	r.messages = append(r.messages, message)
}

// ProcessSlice feeds one slice of a larger message into reassembly. now is
// used only to timestamp partial progress for an external stale-reassembly
// reaper; this package does not reap on its own.
func (r *ReceiveUnreliable) ProcessSlice(slice Slice, now time.Time) {
	sc, exists := r.slices[slice.MessageID]
	if !exists {
		reservation := int(slice.NumSlices) * SliceSize
		if r.maxMemoryUsage < r.memoryUsage+reservation {
			return
		}
		r.memoryUsage += reservation
		sc = newSliceConstructor(slice.MessageID, slice.NumSlices)
		r.slices[slice.MessageID] = sc
	}

	message, err := sc.processSlice(slice.SliceIndex, slice.Payload)
	if err != nil {
		r.err = err
		return
	}
	if message == nil {
		r.slicesLastReceived[slice.MessageID] = now
		return
	}

	delete(r.slices, slice.MessageID)
	delete(r.slicesLastReceived, slice.MessageID)
	r.memoryUsage -= int(slice.NumSlices) * SliceSize
	r.memoryUsage += len(message)
	r.messages = append(r.messages, message)
}

// ReceiveMessage pops the oldest queued message, or returns false if none is
// available.
func (r *ReceiveUnreliable) ReceiveMessage() ([]byte, bool) {
	if len(r.messages) == 0 {
		return nil, false
	}
	message := r.messages[0]
	r.messages = r.messages[1:]
	r.memoryUsage -= len(message)
	return message, true
}

// MemoryUsage reports the number of bytes currently reserved or queued.
func (r *ReceiveUnreliable) MemoryUsage() int { return r.memoryUsage }

// Err returns the last latched reassembly error, if any. It is not cleared
// automatically; callers that want to observe only new errors should track
// the previous value themselves or disconnect the peer on first error.
func (r *ReceiveUnreliable) Err() error { return r.err }

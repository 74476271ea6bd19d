package channel

// SendUnreliable batches small messages into packets and splits oversized
// messages into slices. It enforces a per-channel memory ceiling on ingress;
// messages that would exceed it are dropped silently.
type SendUnreliable struct {
	channelID         uint8
	maxMemoryUsage    int
	memoryUsage       int
	messages          [][]byte
	nextSlicedMsgID   uint64
	droppedOverBudget uint64 // count of send_message calls dropped for memory; observability only
}

// NewSendUnreliable creates a send half for channelID with the given memory
// ceiling.
func NewSendUnreliable(channelID uint8, maxMemoryUsageBytes int) *SendUnreliable {
	return &SendUnreliable{
		channelID:      channelID,
		maxMemoryUsage: maxMemoryUsageBytes,
	}
}

// SendMessage enqueues message for the next GetMessagesToSend call. If doing
// so would exceed the channel's memory ceiling, the message is dropped
// silently: the caller only learns about drops via MemoryUsage staying flat
// and the DroppedOverBudget counter.
func (s *SendUnreliable) SendMessage(message []byte) {
	if s.maxMemoryUsage < s.memoryUsage+len(message) {
		s.droppedOverBudget++
		return
	}
	s.memoryUsage += len(message)
	s.messages = append(s.messages, message)
}

// GetMessagesToSend drains the queue and returns the packets that should be
// transmitted. Oversized messages are split into slices emitted in index
// order under a freshly allocated message id; small messages are greedily
// packed into SmallUnreliable batches so that each batch's cumulative payload
// stays within SliceSize. Draining clears memory accounting for every message
// returned.
func (s *SendUnreliable) GetMessagesToSend() []Packet {
	var packets []Packet
	var small [][]byte
	smallBytes := 0

	flushSmall := func() {
		if len(small) > 0 {
			packets = append(packets, smallUnreliable(s.channelID, small))
			small = nil
			smallBytes = 0
		}
	}

	for _, message := range s.messages {
		s.memoryUsage -= len(message)

		if len(message) > SliceSize {
			numSlices := (len(message) + SliceSize - 1) / SliceSize
			messageID := s.nextSlicedMsgID
			s.nextSlicedMsgID++

			for i := 0; i < numSlices; i++ {
				start := i * SliceSize
				end := start + SliceSize
				if i == numSlices-1 {
					end = len(message)
				}
				packets = append(packets, unreliableSlice(s.channelID, Slice{
					MessageID:  messageID,
					SliceIndex: uint32(i),
					NumSlices:  uint32(numSlices),
					Payload:    message[start:end],
				}))
			}
			continue
		}

		if smallBytes+len(message) > SliceSize {
			flushSmall()
		}
		smallBytes += len(message)
		small = append(small, message)
	}

	flushSmall()
	s.messages = nil
	return packets
}

// MemoryUsage reports the number of bytes currently queued.
func (s *SendUnreliable) MemoryUsage() int { return s.memoryUsage }

// DroppedOverBudget reports how many SendMessage calls were dropped for
// exceeding the memory ceiling.
func (s *SendUnreliable) DroppedOverBudget() uint64 { return s.droppedOverBudget }

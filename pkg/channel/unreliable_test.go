package channel

import (
	"bytes"
	"testing"
	"time"
)

func TestSmallBatchRoundTrip(t *testing.T) {
	const maxMemory = 10_000
	send := NewSendUnreliable(0, maxMemory)
	recv := NewReceiveUnreliable(0, maxMemory)

	msg1 := []byte{1, 2, 3}
	msg2 := []byte{3, 4, 5}
	send.SendMessage(msg1)
	send.SendMessage(msg2)

	packets := send.GetMessagesToSend()
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	p := packets[0]
	if p.Kind != PacketSmallUnreliable || p.ChannelID != 0 {
		t.Fatalf("unexpected packet: %+v", p)
	}
	if len(p.Messages) != 2 || !bytes.Equal(p.Messages[0], msg1) || !bytes.Equal(p.Messages[1], msg2) {
		t.Fatalf("unexpected batch contents: %v", p.Messages)
	}

	for _, m := range p.Messages {
		recv.ProcessMessage(m)
	}

	got1, ok := recv.ReceiveMessage()
	if !ok || !bytes.Equal(got1, msg1) {
		t.Fatalf("expected msg1, got %v ok=%v", got1, ok)
	}
	got2, ok := recv.ReceiveMessage()
	if !ok || !bytes.Equal(got2, msg2) {
		t.Fatalf("expected msg2, got %v ok=%v", got2, ok)
	}
	if _, ok := recv.ReceiveMessage(); ok {
		t.Fatal("expected no more messages")
	}

	if packets := send.GetMessagesToSend(); len(packets) != 0 {
		t.Fatalf("expected empty drain, got %d packets", len(packets))
	}
}

func TestSliceRoundTrip(t *testing.T) {
	const maxMemory = 10_000
	send := NewSendUnreliable(0, maxMemory)
	recv := NewReceiveUnreliable(0, maxMemory)

	message := bytes.Repeat([]byte{5}, SliceSize*3)
	send.SendMessage(message)

	packets := send.GetMessagesToSend()
	if len(packets) != 3 {
		t.Fatalf("expected 3 slices, got %d", len(packets))
	}
	for i, p := range packets {
		if p.Kind != PacketUnreliableSlice || p.ChannelID != 0 {
			t.Fatalf("unexpected packet %d: %+v", i, p)
		}
		if p.Slice.MessageID != 0 || int(p.Slice.SliceIndex) != i || p.Slice.NumSlices != 3 {
			t.Fatalf("unexpected slice header %d: %+v", i, p.Slice)
		}
		recv.ProcessSlice(p.Slice, time.Time{})
	}

	got, ok := recv.ReceiveMessage()
	if !ok {
		t.Fatal("expected reassembled message")
	}
	if !bytes.Equal(got, message) {
		t.Fatal("reassembled message does not match original")
	}
	if _, ok := recv.ReceiveMessage(); ok {
		t.Fatal("expected no more messages")
	}
	if packets := send.GetMessagesToSend(); len(packets) != 0 {
		t.Fatalf("expected empty drain, got %d packets", len(packets))
	}
}

func TestSliceRoundTripOutOfOrder(t *testing.T) {
	recv := NewReceiveUnreliable(0, 10_000)
	message := bytes.Repeat([]byte{7}, SliceSize*3)
	slices := []Slice{
		{MessageID: 1, SliceIndex: 2, NumSlices: 3, Payload: message[2*SliceSize:]},
		{MessageID: 1, SliceIndex: 0, NumSlices: 3, Payload: message[:SliceSize]},
		{MessageID: 1, SliceIndex: 1, NumSlices: 3, Payload: message[SliceSize : 2*SliceSize]},
	}
	for _, s := range slices {
		recv.ProcessSlice(s, time.Time{})
	}
	got, ok := recv.ReceiveMessage()
	if !ok || !bytes.Equal(got, message) {
		t.Fatalf("out-of-order reassembly failed: ok=%v", ok)
	}
}

func TestMemoryCapOnSend(t *testing.T) {
	send := NewSendUnreliable(0, 40)
	recv := NewReceiveUnreliable(0, 50)

	message := bytes.Repeat([]byte{5}, 50)
	send.SendMessage(message) // dropped: exceeds send-side cap of 40
	send.SendMessage(message) // dropped too

	if send.MemoryUsage() != 0 {
		t.Fatalf("expected nothing queued on send side, got %d bytes", send.MemoryUsage())
	}
	if packets := send.GetMessagesToSend(); len(packets) != 0 {
		t.Fatalf("expected no packets, got %d", len(packets))
	}

	recv.ProcessMessage(message)
	if recv.MemoryUsage() != 50 {
		t.Fatalf("expected 50 bytes reserved, got %d", recv.MemoryUsage())
	}

	recv.ProcessMessage(message) // would put us at 100 > 50, dropped
	if recv.MemoryUsage() != 50 {
		t.Fatalf("expected drop to leave usage at 50, got %d", recv.MemoryUsage())
	}
}

func TestMemoryCapExactFitAccepted(t *testing.T) {
	recv := NewReceiveUnreliable(0, 10)
	recv.ProcessMessage(bytes.Repeat([]byte{1}, 10))
	if recv.MemoryUsage() != 10 {
		t.Fatalf("message exactly filling the budget should be accepted, got usage %d", recv.MemoryUsage())
	}
}

func TestProcessSliceOverCapDropsBeforeAllocating(t *testing.T) {
	recv := NewReceiveUnreliable(0, SliceSize) // room for exactly one slice's worth
	recv.ProcessSlice(Slice{MessageID: 1, SliceIndex: 0, NumSlices: 2, Payload: bytes.Repeat([]byte{1}, SliceSize)}, time.Time{})
	if recv.MemoryUsage() != 0 {
		t.Fatalf("reservation exceeding cap must not be created, got usage %d", recv.MemoryUsage())
	}
	if _, ok := recv.ReceiveMessage(); ok {
		t.Fatal("no message should have been queued")
	}
}

func TestDuplicateSliceIndexIdempotent(t *testing.T) {
	recv := NewReceiveUnreliable(0, 10_000)
	payload := bytes.Repeat([]byte{9}, SliceSize)
	recv.ProcessSlice(Slice{MessageID: 5, SliceIndex: 0, NumSlices: 2, Payload: payload}, time.Time{})
	recv.ProcessSlice(Slice{MessageID: 5, SliceIndex: 0, NumSlices: 2, Payload: payload}, time.Time{}) // duplicate, ignored
	if recv.Err() != nil {
		t.Fatalf("duplicate slice index should not latch an error: %v", recv.Err())
	}
	recv.ProcessSlice(Slice{MessageID: 5, SliceIndex: 1, NumSlices: 2, Payload: []byte{1, 2, 3}}, time.Time{})
	got, ok := recv.ReceiveMessage()
	if !ok {
		t.Fatal("expected completed message")
	}
	if len(got) != SliceSize+3 {
		t.Fatalf("unexpected reassembled length %d", len(got))
	}
}

func TestInvalidSliceIndexLatchesError(t *testing.T) {
	recv := NewReceiveUnreliable(0, 10_000)
	recv.ProcessSlice(Slice{MessageID: 1, SliceIndex: 5, NumSlices: 3, Payload: []byte{1}}, time.Time{})
	if recv.Err() == nil {
		t.Fatal("expected latched error for out-of-range slice index")
	}
}

package netcode

import (
	"net/netip"
	"time"
)

// ResultKind discriminates ProcessPacket's tri-state return value.
type ResultKind int

const (
	ResultNone ResultKind = iota
	ResultPacketToSend
	ResultPayload
)

// Result is the outcome of ProcessPacket: either nothing, an encoded packet
// ready to send back to the same address that was passed in, or an
// application payload to deliver up-stack.
type Result struct {
	Kind ResultKind

	// Packet is populated for ResultPacketToSend: the already-encoded bytes
	// to send back to the address ProcessPacket was called with.
	Packet     []byte
	PacketKind PacketKind

	// Payload is populated for ResultPayload.
	Payload []byte
}

// Server is the netcode session state machine: handshake, slot assignment,
// and timeout policing for clients connecting over a connectionless
// transport. It is not safe for concurrent use; every method must be
// called from a single goroutine, or externally serialized.
type Server struct {
	clients        []*connection // fixed-size, nil == empty slot
	pendingClients map[netip.AddrPort]*connection

	protocolID  uint64
	connectKey  Key
	maxClients  int
	address     netip.AddrPort
	currentTime time.Duration

	challengeSequence uint64
	challengeKey      Key

	events []Event
}

// NewServer creates a server bound to address, trusting connect tokens
// sealed under privateKey for protocolID. A random challengeKey is generated
// immediately and never leaves the process.
func NewServer(maxClients int, protocolID uint64, address netip.AddrPort, privateKey Key) (*Server, error) {
	challengeKey, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Server{
		clients:        make([]*connection, maxClients),
		pendingClients: make(map[netip.AddrPort]*connection),
		protocolID:     protocolID,
		connectKey:     privateKey,
		maxClients:     maxClients,
		address:        address,
		challengeKey:   challengeKey,
	}, nil
}

// MaxClients returns the size of the fixed client slot table.
func (s *Server) MaxClients() int { return s.maxClients }

// ClientsSlot returns the indices of occupied slots.
func (s *Server) ClientsSlot() []int {
	var slots []int
	for i, c := range s.clients {
		if c != nil {
			slots = append(slots, i)
		}
	}
	return slots
}

// ClientsID returns the client ids of all connected clients.
func (s *Server) ClientsID() []uint64 {
	var ids []uint64
	for _, c := range s.clients {
		if c != nil {
			ids = append(ids, c.clientID)
		}
	}
	return ids
}

// Events drains and returns all lifecycle events queued since the last call.
func (s *Server) Events() []Event {
	ev := s.events
	s.events = nil
	return ev
}

func (s *Server) findClientByAddr(addr netip.AddrPort) *connection {
	for _, c := range s.clients {
		if c != nil && c.addr == addr {
			return c
		}
	}
	return nil
}

func (s *Server) findClientByID(clientID uint64) *connection {
	for _, c := range s.clients {
		if c != nil && c.clientID == clientID {
			return c
		}
	}
	return nil
}

func (s *Server) freeSlot() int {
	for i, c := range s.clients {
		if c == nil {
			return i
		}
	}
	return -1
}

// nowUnixSeconds is overridable in tests; in production it is wall-clock
// time, used only for connect-token expiry validation, never for liveness
// checks.
var nowUnixSeconds = func() uint64 { return uint64(time.Now().Unix()) }

// ProcessPacket decodes buf as a datagram received from addr and advances the
// state machine. Any decode, crypto, or validation failure yields
// ResultNone: the server never replies to something it could not verify.
func (s *Server) ProcessPacket(addr netip.AddrPort, buf []byte) Result {
	r, err := s.processPacketInternal(addr, buf)
	if err != nil {
		return Result{Kind: ResultNone}
	}
	return r
}

func (s *Server) processPacketInternal(addr netip.AddrPort, buf []byte) (Result, error) {
	if len(buf) <= 2+MACBytes {
		return Result{Kind: ResultNone}, nil
	}

	if client := s.findClientByAddr(addr); client != nil {
		packet, err := Decode(buf, s.protocolID, &client.receiveKey)
		if err != nil {
			return Result{}, err
		}
		client.lastPacketReceivedTime = s.currentTime

		if client.state != StateConnected {
			return Result{Kind: ResultNone}, nil
		}
		switch packet.Kind {
		case PacketDisconnect:
			client.state = StateDisconnected
			return Result{Kind: ResultNone}, nil
		case PacketPayload:
			return Result{Kind: ResultPayload, Payload: packet.Payload}, nil
		default:
			return Result{Kind: ResultNone}, nil
		}
	}

	if pending, ok := s.pendingClients[addr]; ok {
		packet, err := Decode(buf, s.protocolID, &pending.receiveKey)
		if err != nil {
			return Result{}, err
		}
		pending.lastPacketReceivedTime = s.currentTime

		switch packet.Kind {
		case PacketConnectionRequest:
			return s.handleConnectionRequest(addr, packet.Request)
		case PacketResponse:
			if pending.state != StatePendingResponse {
				return Result{Kind: ResultNone}, nil
			}
			if _, _, err := DecodeChallengeToken(packet.Response, s.challengeKey); err != nil {
				return Result{}, err
			}
			// Look the entry up again by addr before moving it into a
			// slot; nothing since the first lookup has changed the map, so
			// this finds the same record.
			pending, ok := s.pendingClients[addr]
			if !ok {
				return Result{Kind: ResultNone}, nil
			}
			delete(s.pendingClients, addr)

			slot := s.freeSlot()
			if slot < 0 {
				return Result{Kind: ResultPacketToSend, PacketKind: PacketConnectionDenied, Packet: mustEncodeUnauthenticated(PacketConnectionDenied)}, nil
			}

			pending.state = StateConnected
			s.clients[slot] = pending
			s.events = append(s.events, Event{Kind: EventClientConnected, ClientID: pending.clientID})

			return s.encodeKeepAlive(pending, slot)
		default:
			return Result{Kind: ResultNone}, nil
		}
	}

	packet, err := Decode(buf, s.protocolID, nil)
	if err != nil {
		return Result{}, err
	}
	if packet.Kind != PacketConnectionRequest {
		return Result{Kind: ResultNone}, nil
	}
	return s.handleConnectionRequest(addr, packet.Request)
}

// handleConnectionRequest runs the connect-token handshake against a freshly
// decoded ConnectionRequest from addr.
func (s *Server) handleConnectionRequest(addr netip.AddrPort, req ConnectToken) (Result, error) {
	token, err := ValidateConnectToken(&req, s.protocolID, s.connectKey, s.address, nowUnixSeconds())
	if err != nil {
		return Result{}, err
	}

	// This check only inspects s.clients, not pendingClients: a client_id
	// pending from a different address races at the Response step instead
	// of being rejected here. Preserved for wire compatibility.
	idAlreadyConnected := s.findClientByID(token.ClientID) != nil
	addrAlreadyConnected := s.findClientByAddr(addr) != nil
	if idAlreadyConnected || addrAlreadyConnected {
		return Result{Kind: ResultNone}, nil
	}

	occupied := 0
	for _, c := range s.clients {
		if c != nil {
			occupied++
		}
	}
	if occupied >= s.maxClients {
		delete(s.pendingClients, addr)
		return Result{Kind: ResultPacketToSend, PacketKind: PacketConnectionDenied, Packet: mustEncodeUnauthenticated(PacketConnectionDenied)}, nil
	}

	pending, exists := s.pendingClients[addr]
	if !exists {
		pending = &connection{
			clientID:               token.ClientID,
			state:                  StatePendingResponse,
			sendKey:                token.ServerToClient,
			receiveKey:             token.ClientToServer,
			addr:                   addr,
			lastPacketReceivedTime: s.currentTime,
			lastPacketSendTime:     s.currentTime,
			timeoutSeconds:         token.TimeoutSeconds,
			connectStartTime:       s.currentTime,
			expireTimestamp:        req.ExpireTimestamp,
			createTimestamp:        req.CreateTimestamp,
		}
		s.pendingClients[addr] = pending
	}

	s.challengeSequence++
	challenge, err := GenerateChallengeToken(token.ClientID, token.UserData, s.challengeSequence, s.challengeKey)
	if err != nil {
		return Result{}, err
	}

	buf := make([]byte, BufferSize)
	n, err := Encode(buf, Packet{Kind: PacketChallenge, Challenge: challenge}, s.protocolID, pending.sequence, pending.sendKey)
	if err != nil {
		return Result{}, err
	}
	pending.sequence++
	pending.lastPacketSendTime = s.currentTime

	return Result{Kind: ResultPacketToSend, PacketKind: PacketChallenge, Packet: buf[:n]}, nil
}

func (s *Server) encodeKeepAlive(client *connection, slot int) (Result, error) {
	buf := make([]byte, BufferSize)
	n, err := Encode(buf, Packet{Kind: PacketKeepAlive, KeepAlive: KeepAlive{
		MaxClients:  uint32(s.maxClients),
		ClientIndex: uint32(slot),
	}}, s.protocolID, client.sequence, client.sendKey)
	if err != nil {
		return Result{}, err
	}
	client.sequence++
	client.lastPacketSendTime = s.currentTime
	return Result{Kind: ResultPacketToSend, PacketKind: PacketKeepAlive, Packet: buf[:n]}, nil
}

// mustEncodeUnauthenticated encodes an unkeyed packet variant (ConnectionDenied
// has no session key when the table is full and no pending record exists).
// It intentionally seals under an all-zero key and sequence 0: the recipient
// has no key to verify it either, so this is an unauthenticated reply purely
// to carry the type tag; it is never decoded on the receiving side through
// the keyed Decode path. Callers must not rely on confidentiality here.
func mustEncodeUnauthenticated(kind PacketKind) []byte {
	var zero Key
	buf := make([]byte, BufferSize)
	n, err := Encode(buf, Packet{Kind: kind}, 0, 0, zero)
	if err != nil {
		panic(err) // encoding a fixed-shape packet with a fixed key can only fail on programmer error
	}
	return buf[:n]
}

// Update advances the server's internal clock by delta and times out any
// connected client whose last received packet is older than its configured
// timeout. It returns the disconnect datagrams the caller should send.
func (s *Server) Update(delta time.Duration) []AddrPacket {
	s.currentTime += delta

	var out []AddrPacket
	for i, c := range s.clients {
		if c == nil {
			continue
		}
		if c.timeoutSeconds > 0 && c.lastPacketReceivedTime+time.Duration(c.timeoutSeconds)*time.Second < s.currentTime {
			c.state = StateDisconnected
		}
		if c.state == StateDisconnected {
			s.events = append(s.events, Event{Kind: EventClientDisconnected, ClientID: c.clientID})
			buf := make([]byte, BufferSize)
			n, err := Encode(buf, Packet{Kind: PacketDisconnect}, s.protocolID, c.sequence, c.sendKey)
			if err == nil {
				out = append(out, AddrPacket{Addr: c.addr, Packet: buf[:n]})
			}
			s.clients[i] = nil
		}
	}
	return out
}

// AddrPacket pairs an encoded outbound packet with its destination.
type AddrPacket struct {
	Addr   netip.AddrPort
	Packet []byte
}

// UpdateClient checks a single occupied slot for timeout and, if timed out or
// already disconnected, encodes a Disconnect packet for it into buf and
// vacates the slot. It returns the encoded length and destination address, or
// false if the slot is empty, out of range, or neither timed out nor
// disconnected.
func (s *Server) UpdateClient(buf []byte, slot int) (n int, addr netip.AddrPort, ok bool) {
	if slot < 0 || slot >= len(s.clients) {
		return 0, netip.AddrPort{}, false
	}
	c := s.clients[slot]
	if c == nil {
		return 0, netip.AddrPort{}, false
	}

	if c.timeoutSeconds > 0 && c.lastPacketReceivedTime+time.Duration(c.timeoutSeconds)*time.Second < s.currentTime {
		c.state = StateDisconnected
	}
	if c.state != StateDisconnected {
		return 0, netip.AddrPort{}, false
	}

	s.events = append(s.events, Event{Kind: EventClientDisconnected, ClientID: c.clientID})
	n, err := Encode(buf, Packet{Kind: PacketDisconnect}, s.protocolID, c.sequence, c.sendKey)
	addr = c.addr
	s.clients[slot] = nil
	if err != nil {
		return 0, netip.AddrPort{}, false
	}
	return n, addr, true
}

// UpdatePendingConnections reaps pending connections whose token expiry
// window has elapsed before a valid Response arrived, bounding
// pendingClients' growth.
func (s *Server) UpdatePendingConnections() {
	for addr, c := range s.pendingClients {
		expireSeconds := c.expireTimestamp - c.createTimestamp
		elapsed := s.currentTime - c.connectStartTime
		if elapsed >= time.Duration(expireSeconds)*time.Second {
			delete(s.pendingClients, addr)
		}
	}
}

// Package netsrv adapts the single-threaded pkg/netcode state machine to a
// real UDP socket: a read loop feeding ProcessPacket, a ticker driving
// Update/UpdatePendingConnections, and Prometheus metrics for both.
package netsrv

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/northlane-net/netcode/pkg/metricsx"
	"github.com/northlane-net/netcode/pkg/netcode"
)

var ErrTransportClosed = errors.New("netsrv: transport closed")

// Payload is an application datagram received from a connected client.
type Payload struct {
	Addr netip.AddrPort
	Data []byte
}

// MonitorPacket describes a sent/received raw datagram, for debugging.
type MonitorPacket struct {
	In     bool
	Remote netip.AddrPort
	Desc   string
	Data   []byte
}

// Transport binds a netcode.Server to a UDP socket.
type Transport struct {
	srv *netcode.Server

	mu      sync.Mutex
	conn    *net.UDPConn
	closing bool
	serve   <-chan struct{}
	mon     map[chan<- MonitorPacket]struct{}

	// Payloads receives application datagrams from connected clients. The
	// read loop never blocks on it: a payload arriving while it is full is
	// dropped and counted in netcode_rx_payload_dropped_total.
	Payloads chan Payload
}

// New wraps srv in a Transport ready to be bound to a socket.
func New(srv *netcode.Server) *Transport {
	return &Transport{
		srv:      srv,
		mon:      make(map[chan<- MonitorPacket]struct{}),
		Payloads: make(chan Payload, 256),
	}
}

// ListenAndServe creates a UDP socket on addr and calls Serve.
func (t *Transport) ListenAndServe(addr netip.AddrPort) error {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return err
	}
	return t.Serve(conn)
}

// Serve binds the transport to conn, which should not be used afterwards,
// and reads datagrams until the socket is closed or an unrecoverable error
// occurs.
func (t *Transport) Serve(conn *net.UDPConn) error {
	serve := make(chan struct{})
	defer close(serve)
	defer conn.Close()

	t.mu.Lock()
	t.conn = conn
	t.closing = false
	t.serve = serve
	t.mu.Unlock()

	buf := make([]byte, netcode.BufferSize)
	for {
		n, addr, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			t.mu.Lock()
			if t.closing {
				err = ErrTransportClosed
			}
			t.conn = nil
			t.mu.Unlock()
			return err
		}
		addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())

		res := t.srv.ProcessPacket(addr, buf[:n])
		switch res.Kind {
		case netcode.ResultPacketToSend:
			t.broadcastMonitor(MonitorPacket{In: true, Remote: addr, Desc: "incoming handshake packet", Data: buf[:n]})
			if _, werr := conn.WriteToUDPAddrPort(res.Packet, addr); werr == nil {
				txPacketsTotal(res.PacketKind).Inc()
				txBytesTotal.Add(float64(len(res.Packet)))
				t.broadcastMonitor(MonitorPacket{In: false, Remote: addr, Desc: res.PacketKind.String(), Data: res.Packet})
			} else {
				txErrorsTotal.Inc()
			}
		case netcode.ResultPayload:
			select {
			case t.Payloads <- Payload{Addr: addr, Data: res.Payload}:
				rxPayloadTotal.Inc()
			default:
				rxPayloadDroppedTotal.Inc()
			}
		default:
			rxDroppedTotal.Inc()
		}
	}
}

// Close immediately closes the active socket, if any, and waits for Serve to
// return.
func (t *Transport) Close() {
	var serve <-chan struct{}

	t.mu.Lock()
	if t.conn != nil {
		t.closing = true
		t.conn.Close()
		serve = t.serve
	}
	t.mu.Unlock()

	if serve != nil {
		<-serve
	}
}

// LocalAddr gets the local address of the active socket, if any.
func (t *Transport) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn.LocalAddr()
	}
	return nil
}

// RunTicks drives Update and UpdatePendingConnections at interval until ctx
// is cancelled, writing any resulting disconnect datagrams to the socket.
func (t *Transport) RunTicks(ctx context.Context, interval time.Duration) {
	tk := time.NewTicker(interval)
	defer tk.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tk.C:
			delta := now.Sub(last)
			last = now

			t.mu.Lock()
			conn := t.conn
			t.mu.Unlock()
			if conn == nil {
				continue
			}

			for _, ap := range t.srv.Update(delta) {
				if _, err := conn.WriteToUDPAddrPort(ap.Packet, ap.Addr); err == nil {
					txPacketsTotal(netcode.PacketDisconnect).Inc()
				} else {
					txErrorsTotal.Inc()
				}
			}
			t.srv.UpdatePendingConnections()
		}
	}
}

// Monitor writes raw datagrams to c until ctx is cancelled, discarding them
// if c doesn't have room. Only packets the read loop replies to are
// monitored: the received datagram and the reply sent for it. Payloads,
// ignored packets and the disconnects sent by RunTicks are not.
func (t *Transport) Monitor(ctx context.Context, c chan<- MonitorPacket) {
	t.mu.Lock()
	t.mon[c] = struct{}{}
	t.mu.Unlock()

	<-ctx.Done()

	t.mu.Lock()
	delete(t.mon, c)
	t.mu.Unlock()
}

func (t *Transport) broadcastMonitor(p MonitorPacket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for c := range t.mon {
		select {
		case c <- p:
		default:
		}
	}
}

// WritePrometheus writes the transport's metrics in Prometheus text format.
func (t *Transport) WritePrometheus(w io.Writer) {
	m().WritePrometheus(w)
}

var (
	once     sync.Once
	metricsS *metrics.Set
)

func m() *metrics.Set {
	once.Do(func() { metricsS = metrics.NewSet() })
	return metricsS
}

var (
	rxDroppedTotal        = m().NewCounter(`netcode_rx_dropped_total`)
	rxPayloadTotal        = m().NewCounter(`netcode_rx_payload_total`)
	rxPayloadDroppedTotal = m().NewCounter(`netcode_rx_payload_dropped_total`)
	txErrorsTotal         = m().NewCounter(`netcode_tx_errors_total`)
	txBytesTotal          = m().NewCounter(`netcode_tx_bytes_total`)
)

func txPacketsTotal(kind netcode.PacketKind) *metrics.Counter {
	return m().GetOrCreateCounter(metricsx.Format(`netcode_tx_packets_total`, "kind", kind.String()))
}

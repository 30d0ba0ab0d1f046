// Package transport provides the unreliable datagram channel the session
// server runs on, together with a UDP implementation.
package transport

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"time"

	"dungeon/internal/pkg/wire"

	"github.com/pkg/errors"
)

// ErrTransportClosed is returned by operations on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// Datagram is one received packet and its sender.
type Datagram struct {
	From netip.AddrPort
	Data []byte
}

// Transport is a connectionless, unreliable, unicast datagram channel.
type Transport interface {
	// Send transmits b to the given endpoint.
	Send(ctx context.Context, b []byte, to netip.AddrPort) error
	// Recv blocks until the next datagram arrives or ctx is done.
	Recv(ctx context.Context) (Datagram, error)
	// Close releases the transport. Blocked Recv calls return an error.
	Close() error
	LocalAddr() net.Addr
}

// UDP implements Transport over a bound UDP socket.
type UDP struct {
	conn   *net.UDPConn
	mu     sync.Mutex
	closed bool
}

// ListenUDP binds a UDP socket on addr.
func ListenUDP(addr string) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s failed", addr)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s failed", addr)
	}
	return &UDP{conn: conn}, nil
}

func (t *UDP) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Send writes a single datagram to the endpoint.
func (t *UDP) Send(ctx context.Context, b []byte, to netip.AddrPort) error {
	if t.isClosed() {
		return ErrTransportClosed
	}
	if len(b) > wire.MaxDatagramSize {
		return errors.Errorf("datagram of %d bytes exceeds %d", len(b), wire.MaxDatagramSize)
	}
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "set write deadline failed")
	}
	_, err := t.conn.WriteToUDPAddrPort(b, to)
	return errors.Wrapf(err, "send to %s failed", to)
}

// Recv reads the next datagram. Datagrams longer than wire.MaxDatagramSize
// are truncated.
func (t *UDP) Recv(ctx context.Context) (Datagram, error) {
	if t.isClosed() {
		return Datagram{}, ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return Datagram{}, err
	}
	// a zero deadline clears one left behind by an earlier cancellation
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return Datagram{}, errors.Wrap(err, "set read deadline failed")
	}

	// unblock the read when ctx is cancelled
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.conn.SetReadDeadline(time.Now())
		case <-readDone:
		}
	}()

	buf := make([]byte, wire.MaxDatagramSize)
	n, from, err := t.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		if ctx.Err() != nil {
			return Datagram{}, ctx.Err()
		}
		if t.isClosed() {
			return Datagram{}, ErrTransportClosed
		}
		return Datagram{}, errors.Wrap(err, "read datagram failed")
	}
	return Datagram{From: netip.AddrPortFrom(from.Addr().Unmap(), from.Port()), Data: buf[:n]}, nil
}

// Close shuts the socket. Closing twice is a no-op.
func (t *UDP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// LocalAddr returns the bound address.
func (t *UDP) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// AddrPort returns the bound address as a netip.AddrPort.
func (t *UDP) AddrPort() netip.AddrPort {
	ap := t.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

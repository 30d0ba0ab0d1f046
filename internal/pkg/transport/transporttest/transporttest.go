// Package transporttest provides in-memory transports for tests.
package transporttest

import (
	"context"
	"net"
	"net/netip"
	"sync"

	"dungeon/internal/pkg/transport"
	"dungeon/internal/pkg/wire"

	"github.com/stretchr/testify/mock"
)

// Sent is a datagram handed to Recorder.Send.
type Sent struct {
	To   netip.AddrPort
	Data []byte
}

// Header decodes the header of the sent datagram. It panics on short data.
func (s Sent) Header() wire.Header {
	h, _, err := wire.DecodeHeader(s.Data)
	if err != nil {
		panic(err)
	}
	return h
}

// Payload returns the bytes after the header.
func (s Sent) Payload() []byte {
	return s.Data[wire.HeaderSize:]
}

// Recorder records sends and serves Recv from an inbound channel.
type Recorder struct {
	In      chan transport.Datagram
	SendErr error

	mu     sync.Mutex
	sent   []Sent
	closed chan struct{}
	once   sync.Once
}

// NewRecorder creates a Recorder with a buffered inbound queue.
func NewRecorder() *Recorder {
	return &Recorder{
		In:     make(chan transport.Datagram, 64),
		closed: make(chan struct{}),
	}
}

func (r *Recorder) Send(_ context.Context, b []byte, to netip.AddrPort) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{To: to, Data: cp})
	return r.SendErr
}

func (r *Recorder) Recv(ctx context.Context) (transport.Datagram, error) {
	select {
	case <-ctx.Done():
		return transport.Datagram{}, ctx.Err()
	case <-r.closed:
		return transport.Datagram{}, transport.ErrTransportClosed
	case d := <-r.In:
		return d, nil
	}
}

func (r *Recorder) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func (r *Recorder) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}
}

// Sent returns a copy of everything sent so far.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Reset forgets recorded sends.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// To returns the datagrams sent to one endpoint.
func (r *Recorder) To(ep netip.AddrPort) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if s.To == ep {
			out = append(out, s)
		}
	}
	return out
}

// Mock is a testify mock of transport.Transport.
type Mock struct {
	mock.Mock
}

func (m *Mock) Send(ctx context.Context, b []byte, to netip.AddrPort) error {
	args := m.Called(ctx, b, to)
	return args.Error(0)
}

func (m *Mock) Recv(ctx context.Context) (transport.Datagram, error) {
	args := m.Called(ctx)
	return args.Get(0).(transport.Datagram), args.Error(1)
}

func (m *Mock) Close() error {
	return m.Called().Error(0)
}

func (m *Mock) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}
}

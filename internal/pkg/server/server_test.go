package server

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"dungeon/internal/pkg/handler"
	"dungeon/internal/pkg/reliable"
	"dungeon/internal/pkg/session"
	"dungeon/internal/pkg/transport"
	"dungeon/internal/pkg/transport/transporttest"
	"dungeon/internal/pkg/trust"
	"dungeon/internal/pkg/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	alice = netip.MustParseAddrPort("10.0.0.1:4000")
	bob   = netip.MustParseAddrPort("10.0.0.2:4000")
)

func newHandler(t *testing.T, store session.Store, tr transport.Transport, interval time.Duration) *handler.Handler {
	t.Helper()
	l, _ := test.NewNullLogger()
	tm, err := trust.NewManager(store, trust.WithLogger(l))
	require.NoError(t, err)
	rm, err := reliable.NewManager(store, tr, reliable.WithInterval(interval), reliable.WithLogger(l))
	require.NoError(t, err)
	h, err := handler.NewHandler(
		handler.WithSessionStore(store),
		handler.WithTrust(tm),
		handler.WithReliable(rm),
		handler.WithLogger(l),
	)
	require.NoError(t, err)
	return h
}

type running struct {
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, s *Server) *running {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-r.done
	})
	return r
}

func countType(sent []transporttest.Sent, typ wire.Type) int {
	n := 0
	for _, s := range sent {
		if s.Header().Type == typ {
			n++
		}
	}
	return n
}

func TestServerKeepsRunningAfterBadInput(t *testing.T) {
	store := session.NewMemoryStore()
	tr := transporttest.NewRecorder()
	l, _ := test.NewNullLogger()
	s, err := NewServer(
		WithTransport(tr),
		WithHandler(newHandler(t, store, tr, time.Hour)),
		WithLogger(l),
	)
	require.NoError(t, err)
	start(t, s)

	tr.In <- transport.Datagram{From: alice, Data: []byte{1, 2}}
	tr.In <- transport.Datagram{From: bob, Data: wire.Encode(wire.TypePosition, 1, wire.EncodePosition(wire.Position{PlayerID: 101}))}
	tr.In <- transport.Datagram{From: alice, Data: wire.Encode(wire.Type(99), 0, nil)}
	tr.In <- transport.Datagram{From: alice, Data: wire.Encode(wire.TypeJoin, 0, nil)}

	require.Eventually(t, func() bool {
		return countType(tr.To(alice), wire.TypeWelcome) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, store.Len())
	require.Empty(t, tr.To(bob))
}

func TestServerRetransmitsWithoutTraffic(t *testing.T) {
	store := session.NewMemoryStore()
	tr := transporttest.NewRecorder()
	l, _ := test.NewNullLogger()
	s, err := NewServer(
		WithTransport(tr),
		WithHandler(newHandler(t, store, tr, 20*time.Millisecond)),
		WithSweepInterval(5*time.Millisecond),
		WithLogger(l),
	)
	require.NoError(t, err)
	start(t, s)

	tr.In <- transport.Datagram{From: alice, Data: wire.Encode(wire.TypeJoin, 0, nil)}

	// the WELCOME is never acknowledged and no further datagrams arrive
	require.Eventually(t, func() bool {
		return countType(tr.To(alice), wire.TypeWelcome) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	sent := tr.To(alice)
	for _, resent := range sent[1:] {
		require.Equal(t, sent[0].Data, resent.Data)
	}
}

func TestServerStopsOnCancel(t *testing.T) {
	tr := transporttest.NewRecorder()
	l, _ := test.NewNullLogger()
	var mu sync.Mutex
	var statuses []bool
	s, err := NewServer(
		WithTransport(tr),
		WithHandler(newHandler(t, session.NewMemoryStore(), tr, time.Hour)),
		WithStatusHook(func(serving bool) {
			mu.Lock()
			defer mu.Unlock()
			statuses = append(statuses, serving)
		}),
		WithLogger(l),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
	_, err = tr.Recv(context.Background())
	require.ErrorIs(t, err, transport.ErrTransportClosed)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{true, false}, statuses)
}

func TestServerStopsOnTransportFailure(t *testing.T) {
	tr := &transporttest.Mock{}
	tr.On("Recv", mock.Anything).Return(transport.Datagram{}, errors.New("socket gone")).Once()
	tr.On("Close").Return(nil).Once()
	l, _ := test.NewNullLogger()
	s, err := NewServer(
		WithTransport(tr),
		WithHandler(newHandler(t, session.NewMemoryStore(), tr, time.Hour)),
		WithLogger(l),
	)
	require.NoError(t, err)

	err = s.Run(context.Background())
	require.ErrorContains(t, err, "socket gone")
	tr.AssertExpectations(t)
}

func TestNewServerValidation(t *testing.T) {
	tr := transporttest.NewRecorder()
	h := newHandler(t, session.NewMemoryStore(), tr, time.Hour)
	_, err := NewServer(WithHandler(h))
	require.Error(t, err)
	_, err = NewServer(WithTransport(tr))
	require.Error(t, err)
	_, err = NewServer(WithTransport(tr), WithHandler(h), WithSweepInterval(0))
	require.Error(t, err)
	_, err = NewServer(WithTransport(tr), WithHandler(h), WithQueueSize(-1))
	require.Error(t, err)
}

package health

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"dungeon/internal/pkg/session"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startService(t *testing.T, cfgs ...Cfg) (*Service, healthpb.HealthClient, context.CancelFunc, chan error) {
	t.Helper()
	l, _ := test.NewNullLogger()
	s, err := NewService(append([]Cfg{WithLogger(l)}, cfgs...)...)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		_ = conn.Close()
	})
	return s, healthpb.NewHealthClient(conn), cancel, done
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return res.GetStatus()
}

func TestHealthStatus(t *testing.T) {
	s, c, _, _ := startService(t)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ""))

	s.SetServing(true)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ServiceName))

	s.SetServing(false)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ServiceName))
}

func TestServeStopsOnCancel(t *testing.T) {
	_, _, cancel, done := startService(t)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("health service did not stop")
	}
}

func TestSessionCountReported(t *testing.T) {
	store := session.NewMemoryStore()
	l, hook := test.NewNullLogger()
	s, _, _, _ := startService(t,
		WithLogger(l),
		WithSessionCount(store.Len),
		WithReportInterval(5*time.Millisecond),
	)

	// admitted from this goroutine while the service reads the count from its own
	for i := 1; i <= 3; i++ {
		_, err := store.Admit(netip.AddrPortFrom(netip.MustParseAddr("10.0.0.1"), uint16(4000+i)), time.Now())
		require.NoError(t, err)
	}
	require.Equal(t, 3, s.Sessions())
	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "session count" && e.Data["sessions"] == 3 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionsWithoutCount(t *testing.T) {
	s, err := NewService()
	require.NoError(t, err)
	require.Zero(t, s.Sessions())
	_, err = NewService(WithReportInterval(0))
	require.Error(t, err)
}

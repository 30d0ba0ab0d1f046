//go:build integration

package main_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"dungeon/internal/app/apps"
	"dungeon/internal/app/cfg"

	"github.com/stretchr/testify/require"
)

func freeUDPPort(t *testing.T) uint16 {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	return uint16(conn.LocalAddr().(*net.UDPAddr).Port)
}

func TestServerApp(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip()
	}
	port := freeUDPPort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := apps.NewServerApp(
		cfg.NewPortCfg(port),
		cfg.NewHealthPortCfg(0),
		cfg.NewBindCfg("127.0.0.1"),
		cfg.NewSweepCfg(50*time.Millisecond),
	)
	require.NoError(t, err)
	serverDone := make(chan error, 1)
	go func() { serverDone <- s.Run(ctx, nil) }()
	time.Sleep(100 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := apps.NewClientApp(
				cfg.NewPortCfg(port),
				cfg.NewPlayCfg(20*time.Millisecond, 10),
			)
			require.NoError(t, err)
			clientCtx, clientCancel := context.WithTimeout(ctx, 5*time.Second)
			defer clientCancel()
			require.NoError(t, c.Run(clientCtx, nil))
		}()
	}
	wg.Wait()
	cancel()
	require.NoError(t, <-serverDone)
}

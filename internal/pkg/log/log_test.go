package log

import (
	"net/netip"
	"testing"
	"time"

	"dungeon/internal/pkg/session"
	"dungeon/internal/pkg/wire"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)
	for level, want := range map[string]logrus.Level{
		"TRACE":   logrus.TraceLevel,
		"debug":   logrus.DebugLevel,
		"info":    logrus.InfoLevel,
		"warn":    logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"unknown": logrus.ErrorLevel,
	} {
		SetLogger(level)
		require.Equal(t, want, logrus.GetLevel(), level)
	}
}

func TestFields(t *testing.T) {
	ep := netip.MustParseAddrPort("127.0.0.1:9000")
	sess, err := session.NewMemoryStore().Admit(ep, time.Now())
	require.NoError(t, err)

	f := SessionToFields(sess)
	require.Equal(t, uint32(101), f["session"])
	require.Equal(t, "127.0.0.1:9000", f["endpoint"])
	require.Equal(t, session.InitialTrust, f["trust"])

	h := HeaderToFields(ep, wire.Header{Type: wire.TypeAck, ID: 3})
	require.Equal(t, "ACK", h["type"])
	require.Equal(t, uint32(3), h["id"])
}

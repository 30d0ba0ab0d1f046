package trust

import (
	"net/netip"
	"testing"
	"time"

	"dungeon/internal/pkg/session"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

var (
	ep    = netip.MustParseAddrPort("192.168.0.10:5555")
	epoch = time.Unix(1700000000, 0)
)

func newManager(t *testing.T, cfgs ...Cfg) (*Manager, *session.MemoryStore, *session.Session) {
	t.Helper()
	store := session.NewMemoryStore()
	sess, err := store.Admit(ep, epoch)
	require.NoError(t, err)
	l, _ := test.NewNullLogger()
	cfgs = append([]Cfg{WithClock(func() time.Time { return epoch }), WithLogger(l)}, cfgs...)
	m, err := NewManager(store, cfgs...)
	require.NoError(t, err)
	return m, store, sess
}

func TestPenalizeKeepsSessionAboveZero(t *testing.T) {
	m, store, sess := newManager(t)
	banned, err := m.Penalize(sess, 1, "test")
	require.NoError(t, err)
	require.False(t, banned)
	require.Equal(t, 2, sess.Trust)
	_, err = store.Get(ep)
	require.NoError(t, err)
}

func TestPenalizeBansAtZero(t *testing.T) {
	var hooked *session.Session
	m, store, sess := newManager(t, WithBanHook(func(s *session.Session) { hooked = s }))

	banned, err := m.Penalize(sess, 2, "test")
	require.NoError(t, err)
	require.False(t, banned)

	banned, err = m.Penalize(sess, 1, "test")
	require.NoError(t, err)
	require.True(t, banned)
	require.Equal(t, 0, sess.Trust)
	require.Same(t, sess, hooked)

	_, err = store.Get(ep)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	at, ok := store.Banned(ep)
	require.True(t, ok)
	require.Equal(t, epoch, at)
}

func TestSpoofIsInstantBan(t *testing.T) {
	m, store, sess := newManager(t)
	banned, err := m.Punish(sess, Spoof)
	require.NoError(t, err)
	require.True(t, banned)
	require.Equal(t, -2, sess.Trust)
	require.Zero(t, store.Len())
}

func TestZeroAndNegativePenalty(t *testing.T) {
	m, _, sess := newManager(t)
	banned, err := m.Punish(sess, MeleeReplay)
	require.NoError(t, err)
	require.False(t, banned)
	require.Equal(t, session.InitialTrust, sess.Trust)

	_, err = m.Penalize(sess, -1, "raise")
	require.ErrorIs(t, err, ErrNegativePenalty)
	require.Equal(t, session.InitialTrust, sess.Trust)
}

func TestDefaultSchedule(t *testing.T) {
	s := DefaultSchedule()
	for v, want := range map[Violation]int{
		DuplicateJoin:   1,
		MalformedAck:    2,
		UnknownAck:      1,
		MalformedLength: 1,
		Spoof:           5,
		MeleeReplay:     0,
	} {
		require.Equal(t, want, s.Amount(v), v.String())
	}
	require.Zero(t, s.Amount(Violation(42)))
}

func TestNewManagerRequiresStore(t *testing.T) {
	_, err := NewManager(nil)
	require.Error(t, err)
}

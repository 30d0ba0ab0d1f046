package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterBurstThenRefill(t *testing.T) {
	l := NewLimiter(2, 3)
	now := epoch
	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(alice, now))
	}
	require.False(t, l.Allow(alice, now))
	require.True(t, l.Allow(bob, now))

	now = now.Add(500 * time.Millisecond)
	require.True(t, l.Allow(alice, now))
	require.False(t, l.Allow(alice, now))
}

func TestLimiterPrune(t *testing.T) {
	l := NewLimiter(1, 2)
	require.True(t, l.Allow(alice, epoch))
	require.True(t, l.Allow(bob, epoch))
	require.True(t, l.Allow(bob, epoch))
	require.Equal(t, 2, l.Len())

	// alice is back to a full bucket after one second, bob after two
	require.Equal(t, 1, l.Prune(epoch.Add(time.Second)))
	require.Equal(t, 1, l.Len())
	require.Equal(t, 1, l.Prune(epoch.Add(2*time.Second)))
	require.Zero(t, l.Len())
}

package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Disabled(t *testing.T) {
	require.Nil(t, NewLimiter(0, 10, 0))
	require.Nil(t, NewLimiter(1, 0, 0))

	var l *Limiter
	require.True(t, l.Allow("test", time.Now()))
}

func TestLimiter_PerKeyBurst(t *testing.T) {
	l := NewLimiter(1, 2, time.Minute)
	now := time.Unix(1700000000, 0)

	require.True(t, l.Allow("a", now))
	require.True(t, l.Allow("a", now))
	require.False(t, l.Allow("a", now))
	require.True(t, l.Allow("b", now), "keys are limited independently")
	require.True(t, l.Allow("", now), "requests without appkey are not limited here")

	require.True(t, l.Allow("a", now.Add(time.Second)))
}

func TestLimiter_EvictsIdleKeys(t *testing.T) {
	l := NewLimiter(1000, 1000, time.Second)
	now := time.Unix(1700000000, 0)

	require.True(t, l.Allow("idle", now))
	later := now.Add(time.Minute)
	for i := 0; i < 511; i++ {
		l.Allow("busy", later)
	}
	require.Equal(t, 1, l.size())
}

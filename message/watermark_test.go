package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatermarkBefore(t *testing.T) {
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Second)

	require.True(t, AtEventTime(t0).Before(AtEventTime(t1)))
	require.False(t, AtEventTime(t1).Before(AtEventTime(t0)))
	require.False(t, AtEventTime(t0).Before(AtEventTime(t0)))

	// Idle carries no ordering information either direction.
	require.False(t, IdleWatermark().Before(AtEventTime(t1)))
	require.False(t, AtEventTime(t1).Before(IdleWatermark()))
}

func TestWatermarkEqual(t *testing.T) {
	t0 := time.Unix(0, 0)
	require.True(t, AtEventTime(t0).Equal(AtEventTime(t0)))
	require.False(t, AtEventTime(t0).Equal(AtEventTime(t0.Add(time.Nanosecond))))
	require.True(t, IdleWatermark().Equal(IdleWatermark()))
	require.False(t, IdleWatermark().Equal(AtEventTime(t0)))
}

func TestWatermarkIsIdle(t *testing.T) {
	require.True(t, IdleWatermark().IsIdle())
	require.False(t, AtEventTime(time.Now()).IsIdle())
}

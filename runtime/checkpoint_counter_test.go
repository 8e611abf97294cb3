package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckpointCounterAlignsAcrossEdges(t *testing.T) {
	c := NewCheckpointCounter(3)

	first, allClear, err := c.Mark(0, 1)
	require.NoError(t, err)
	require.True(t, first)
	require.False(t, allClear)
	require.True(t, c.IsBlocked(0))
	require.False(t, c.IsBlocked(1))
	require.False(t, c.AllClear())

	first, allClear, err = c.Mark(1, 1)
	require.NoError(t, err)
	require.False(t, first)
	require.False(t, allClear)

	first, allClear, err = c.Mark(2, 1)
	require.NoError(t, err)
	require.False(t, first)
	require.True(t, allClear)
	require.True(t, c.AllClear())
	require.False(t, c.IsBlocked(0), "alignment completing must reset parked state")
}

func TestCheckpointCounterRejectsOutOfOrderEpoch(t *testing.T) {
	c := NewCheckpointCounter(2)
	_, _, err := c.Mark(0, 5)
	require.NoError(t, err)

	_, _, err = c.Mark(0, 5)
	require.Error(t, err, "redelivering the same epoch on one edge is a protocol violation")

	_, _, err = c.Mark(0, 3)
	require.Error(t, err, "delivering an epoch behind the last seen one is a protocol violation")
}

func TestCheckpointCounterRejectsEpochMismatchWhileInFlight(t *testing.T) {
	c := NewCheckpointCounter(2)
	_, _, err := c.Mark(0, 1)
	require.NoError(t, err)

	_, _, err = c.Mark(1, 2)
	require.Error(t, err, "a second edge reporting a different epoch while one is in flight is a protocol violation")
}

func TestCheckpointCounterStartsNextEpochAfterAllClear(t *testing.T) {
	c := NewCheckpointCounter(1)
	_, allClear, err := c.Mark(0, 1)
	require.NoError(t, err)
	require.True(t, allClear)

	first, allClear, err := c.Mark(0, 2)
	require.NoError(t, err)
	require.True(t, first)
	require.True(t, allClear)
}

func TestCheckpointCounterRejectsOutOfRangeEdge(t *testing.T) {
	c := NewCheckpointCounter(1)
	_, _, err := c.Mark(5, 1)
	require.Error(t, err)
}

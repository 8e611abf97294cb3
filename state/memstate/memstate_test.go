package memstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/estuary/corestream/state"
	"github.com/estuary/corestream/task"
)

var tables = []state.TableDescriptor{
	{Name: "g", Kind: state.Global},
	{Name: "k", Kind: state.Keyed},
	{Name: "tk", Kind: state.TimeKeyed},
}

func TestGlobalKeyedTimeKeyedRoundTrip(t *testing.T) {
	backend := NewBackend()
	mgr, err := backend.New(context.Background(), task.Info{JobID: "j", OperatorID: "op"}, tables)
	require.NoError(t, err)

	g, err := mgr.Global("g")
	require.NoError(t, err)
	_, ok := g.Get()
	require.False(t, ok)
	g.Insert([]byte("hello"))
	v, ok := g.Get()
	require.True(t, ok)
	require.Equal(t, []byte("hello"), v)

	k, err := mgr.Keyed("k")
	require.NoError(t, err)
	k.Insert([]byte("a"), []byte("1"))
	v, ok = k.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
	k.Remove([]byte("a"))
	_, ok = k.Get([]byte("a"))
	require.False(t, ok)

	tk, err := mgr.TimeKeyedTable("tk")
	require.NoError(t, err)
	t0 := time.Unix(0, 0)
	tk.Insert(t0, []byte("x"), []byte("v0"))
	v, ok = tk.Get(t0, []byte("x"))
	require.True(t, ok)
	require.Equal(t, []byte("v0"), v)
}

func TestCheckpointAndRestoreSimulatesRestart(t *testing.T) {
	backend := NewBackend()
	info := task.Info{JobID: "j", OperatorID: "op"}

	mgr, err := backend.New(context.Background(), info, tables)
	require.NoError(t, err)
	g, _ := mgr.Global("g")
	g.Insert([]byte("v1"))
	require.NoError(t, mgr.Checkpoint(context.Background(), 1, nil))

	restored, err := backend.FromCheckpoint(context.Background(), info, 1, tables)
	require.NoError(t, err)
	g2, err := restored.Global("g")
	require.NoError(t, err)
	v, ok := g2.Get()
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)
}

func TestFromCheckpointUnknownEpochErrors(t *testing.T) {
	backend := NewBackend()
	_, err := backend.FromCheckpoint(context.Background(), task.Info{JobID: "j", OperatorID: "op"}, 99, tables)
	require.Error(t, err)
}

func TestHandleWatermarkEvictsRetiredTimeKeyedEntries(t *testing.T) {
	backend := NewBackend()
	mgr, err := backend.New(context.Background(), task.Info{JobID: "j", OperatorID: "op"}, []state.TableDescriptor{
		{Name: "tk", Kind: state.TimeKeyed, Retention: time.Second},
	})
	require.NoError(t, err)

	tk, err := mgr.TimeKeyedTable("tk")
	require.NoError(t, err)
	t0 := time.Unix(0, 0)
	tk.Insert(t0, []byte("x"), []byte("v"))

	mgr.HandleWatermark(t0.Add(10 * time.Second))
	_, ok := tk.Get(t0, []byte("x"))
	require.False(t, ok, "entry older than retention must be evicted on watermark advance")
}

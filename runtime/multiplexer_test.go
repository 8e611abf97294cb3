package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/estuary/corestream/message"
)

func TestMultiplexerDeliversFromEveryEdge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan message.Envelope, 1)
	b := make(chan message.Envelope, 1)
	mux := NewMultiplexer(ctx, []<-chan message.Envelope{a, b})

	a <- message.Record(nil)
	b <- message.Record(nil)

	seen := map[int]int{}
	for i := 0; i < 2; i++ {
		select {
		case ie := <-mux.Out():
			seen[ie.Index]++
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for multiplexed message")
		}
	}
	require.Equal(t, 1, seen[0])
	require.Equal(t, 1, seen[1])
}

func TestMultiplexerParkWithholdsOneEdge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan message.Envelope, 1)
	b := make(chan message.Envelope, 1)
	mux := NewMultiplexer(ctx, []<-chan message.Envelope{a, b})

	mux.Park(0)
	a <- message.Stop()
	b <- message.Stop()

	select {
	case ie := <-mux.Out():
		require.Equal(t, 1, ie.Index, "edge 0 is parked and must not be delivered")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for unparked edge's message")
	}

	mux.Unpark(0)
	select {
	case ie := <-mux.Out():
		require.Equal(t, 0, ie.Index)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for edge 0 after unpark")
	}
}

func TestMultiplexerReportsClosedInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan message.Envelope)
	mux := NewMultiplexer(ctx, []<-chan message.Envelope{a})
	close(a)

	select {
	case err := <-mux.Err():
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for closed-edge error")
	}
}

func TestMultiplexerReportsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := make(chan message.Envelope)
	mux := NewMultiplexer(ctx, []<-chan message.Envelope{a})
	cancel()

	select {
	case err := <-mux.Err():
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation error")
	}
}

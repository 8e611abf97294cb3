package sourceop

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/estuary/corestream/batch"
	"github.com/estuary/corestream/message"
	"github.com/estuary/corestream/ops"
	"github.com/estuary/corestream/runtime"
	"github.com/estuary/corestream/state"
	"github.com/estuary/corestream/state/memstate"
	"github.com/estuary/corestream/task"
)

// fakeReader is a Reader driven entirely by the test: records pushed onto
// recs are returned from Read in order, and closing recs simulates the
// source running dry (io.EOF).
type fakeReader struct {
	recs     chan Record
	progress []byte
}

func (f *fakeReader) Open(context.Context, []byte) error { return nil }

func (f *fakeReader) Read(ctx context.Context) (Record, error) {
	select {
	case r, ok := <-f.recs:
		if !ok {
			return Record{}, io.EOF
		}
		return r, nil
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

func (f *fakeReader) Progress() ([]byte, error) { return f.progress, nil }
func (f *fakeReader) Close() error              { return nil }

func sourceSchema(t *testing.T) *batch.Schema {
	t.Helper()
	s, err := batch.NewSchema([]batch.Field{
		{Name: "val", Type: batch.TypeInt64},
		{Name: "ts", Type: batch.TypeTimestamp},
	}, 1, nil)
	require.NoError(t, err)
	return s
}

const badPayload = "bad"

func decodeInt(schema *batch.Schema) Decoder {
	return func(payload []byte) (*batch.RecordBatch, error) {
		if string(payload) == badPayload {
			return nil, fmt.Errorf("undecodable payload %q", payload)
		}
		var v int64
		if _, err := fmt.Sscanf(string(payload), "%d", &v); err != nil {
			return nil, err
		}
		return batch.NewRecordBatch(schema, []batch.Column{
			batch.NewInt64Column([]int64{v}),
			batch.NewTimestampColumn([]time.Time{time.Unix(0, 0)}),
		})
	}
}

// newSourceConfig builds a Config wired to reader, returning the downstream
// channel Run broadcasts/collects onto and the control channel a test can
// send ControlMessages on (Config.ControlRx itself is receive-only).
func newSourceConfig(t *testing.T, reader *fakeReader, policy BadDataPolicy, dedup int) (Config, chan message.Envelope, chan runtime.ControlMessage) {
	t.Helper()
	info := task.Info{JobID: "job", OperatorID: "src", TaskIndex: 0, Parallelism: 1}
	schema := sourceSchema(t)

	backend := memstate.NewBackend()
	mgr, err := backend.New(context.Background(), info, []state.TableDescriptor{Descriptor})
	require.NoError(t, err)

	metrics := ops.NewTaskMetrics(info)
	downCh := make(chan message.Envelope, 64)
	collector := runtime.NewCollector([]runtime.DownstreamOperator{{Name: "down", Partitions: []chan<- message.Envelope{downCh}}}, metrics)

	controlRx := make(chan runtime.ControlMessage)

	cfg := Config{
		Info:           info,
		Reader:         reader,
		Decoder:        decodeInt(schema),
		Schema:         schema,
		Policy:         policy,
		MaxRows:        1,
		DedupCacheSize: dedup,
		Collector:      collector,
		State:          mgr,
		ControlRx:      controlRx,
		ControlTx:      make(chan runtime.ControlResponse, 8),
		Metrics:        metrics,
	}
	return cfg, downCh, controlRx
}

func drainRecords(t *testing.T, downCh chan message.Envelope, n int) []int64 {
	t.Helper()
	var vals []int64
	for i := 0; i < n; i++ {
		select {
		case env := <-downCh:
			require.Equal(t, message.KindRecord, env.Kind)
			vals = append(vals, env.Batch.Columns[0].(*batch.Int64Column).Values[0])
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for record %d/%d", i+1, n)
		}
	}
	return vals
}

func TestSourceRunDecodesAndFlushesRows(t *testing.T) {
	reader := &fakeReader{recs: make(chan Record, 4)}
	cfg, downCh, _ := newSourceConfig(t, reader, Drop, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	reader.recs <- Record{Payload: []byte("1")}
	reader.recs <- Record{Payload: []byte("2")}
	close(reader.recs)

	require.ElementsMatch(t, []int64{1, 2}, drainRecords(t, downCh, 2))

	select {
	case env := <-downCh:
		require.Equal(t, message.KindEndOfData, env.Kind, "natural exhaustion must broadcast EndOfData")
	case <-time.After(time.Second):
		t.Fatal("expected EndOfData broadcast")
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after io.EOF")
	}
}

func TestSourceBadDataPolicyDropSkipsUndecodableRecords(t *testing.T) {
	reader := &fakeReader{recs: make(chan Record, 4)}
	cfg, downCh, _ := newSourceConfig(t, reader, Drop, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	reader.recs <- Record{Payload: []byte(badPayload)}
	reader.recs <- Record{Payload: []byte("7")}
	close(reader.recs)

	require.Equal(t, []int64{7}, drainRecords(t, downCh, 1))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after io.EOF")
	}
}

func TestSourceBadDataPolicyFailAbortsRun(t *testing.T) {
	reader := &fakeReader{recs: make(chan Record, 4)}
	cfg, _, _ := newSourceConfig(t, reader, Fail, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	reader.recs <- Record{Payload: []byte(badPayload)}

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not abort on undecodable record under Fail policy")
	}
}

func TestSourceDedupSkipsRepeatedID(t *testing.T) {
	reader := &fakeReader{recs: make(chan Record, 4)}
	cfg, downCh, _ := newSourceConfig(t, reader, Drop, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	reader.recs <- Record{ID: "dup", Payload: []byte("5")}
	reader.recs <- Record{ID: "dup", Payload: []byte("5")}
	reader.recs <- Record{ID: "other", Payload: []byte("6")}
	close(reader.recs)

	require.ElementsMatch(t, []int64{5, 6}, drainRecords(t, downCh, 2))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after io.EOF")
	}
}

// TestSourceGracefulStopBroadcastsStopNotEndOfData is a regression test: a
// graceful ControlStop must broadcast Stop downstream, not EndOfData.
func TestSourceGracefulStopBroadcastsStopNotEndOfData(t *testing.T) {
	reader := &fakeReader{recs: make(chan Record)}
	cfg, downCh, controlRx := newSourceConfig(t, reader, Drop, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	controlRx <- runtime.ControlMessage{Kind: runtime.ControlStop, Mode: runtime.StopGraceful}

	select {
	case env := <-downCh:
		require.Equal(t, message.KindStop, env.Kind, "graceful stop must broadcast Stop, not EndOfData")
	case <-time.After(time.Second):
		t.Fatal("expected a Stop broadcast downstream")
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ControlStop")
	}
}

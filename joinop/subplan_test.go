package joinop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/estuary/corestream/batch"
)

func schemaFor(t *testing.T, keyIdx int, tsIdx int) *batch.Schema {
	t.Helper()
	s, err := batch.NewSchema([]batch.Field{
		{Name: "key", Type: batch.TypeString},
		{Name: "ts", Type: batch.TypeTimestamp},
		{Name: "val", Type: batch.TypeInt64},
	}, tsIdx, []int{keyIdx})
	require.NoError(t, err)
	return s
}

func rowsBatch(t *testing.T, schema *batch.Schema, keys []string, ts time.Time, vals []int64) *batch.RecordBatch {
	t.Helper()
	n := len(keys)
	times := make([]time.Time, n)
	for i := range times {
		times[i] = ts
	}
	b, err := batch.NewRecordBatch(schema, []batch.Column{
		batch.NewStringColumn(keys),
		batch.NewTimestampColumn(times),
		batch.NewInt64Column(vals),
	})
	require.NoError(t, err)
	return b
}

func TestEquiJoinMatchesOnKey(t *testing.T) {
	schema := schemaFor(t, 0, 1)
	ts := time.Unix(0, 0)

	factory := NewEquiJoinFactory()
	plan := factory(ts, schema, schema)
	plan.Add(Left, rowsBatch(t, schema, []string{"a", "b"}, ts, []int64{1, 2}))
	plan.Add(Right, rowsBatch(t, schema, []string{"b", "c"}, ts, []int64{20, 30}))

	out, err := plan.Emit(batch.ConcatSchema(schema, schema))
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, 1, out.NumRows(), "only key \"b\" appears on both sides")
}

func TestEquiJoinNoMatchReturnsNil(t *testing.T) {
	schema := schemaFor(t, 0, 1)
	ts := time.Unix(0, 0)

	factory := NewEquiJoinFactory()
	plan := factory(ts, schema, schema)
	plan.Add(Left, rowsBatch(t, schema, []string{"a"}, ts, []int64{1}))
	plan.Add(Right, rowsBatch(t, schema, []string{"z"}, ts, []int64{9}))

	out, err := plan.Emit(batch.ConcatSchema(schema, schema))
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestEquiJoinEmptyOneSideReturnsNil(t *testing.T) {
	schema := schemaFor(t, 0, 1)
	ts := time.Unix(0, 0)

	factory := NewEquiJoinFactory()
	plan := factory(ts, schema, schema)
	plan.Add(Left, rowsBatch(t, schema, []string{"a"}, ts, []int64{1}))

	out, err := plan.Emit(batch.ConcatSchema(schema, schema))
	require.NoError(t, err)
	require.Nil(t, out)
}

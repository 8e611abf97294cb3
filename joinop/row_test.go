package joinop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/estuary/corestream/batch"
)

func TestEncodeDecodeRowRoundTrip(t *testing.T) {
	schema := schemaFor(t, 0, 1)
	ts := time.Unix(42, 0)
	b := rowsBatch(t, schema, []string{"hello"}, ts, []int64{7})

	encoded, err := encodeRow(Right, schema, b, 0)
	require.NoError(t, err)

	er, err := decodeRow(encoded)
	require.NoError(t, err)
	require.Equal(t, Right, er.Side)
	require.Len(t, er.Cells, 3)

	rebuilt, err := buildRow(schema, er.Cells)
	require.NoError(t, err)
	require.Equal(t, 1, rebuilt.NumRows())
	require.True(t, rebuilt.TimestampAt(0).Equal(ts))
	require.Equal(t, "hello", rebuilt.Columns[0].(*batch.StringColumn).Values[0])
	require.Equal(t, int64(7), rebuilt.Columns[2].(*batch.Int64Column).Values[0])
}

func TestEncodeDecodeRowPreservesNull(t *testing.T) {
	schema := schemaFor(t, 0, 1)
	ts := time.Unix(1, 0)
	col := &batch.Int64Column{Values: []int64{0}, Valids: []bool{false}}
	b, err := batch.NewRecordBatch(schema, []batch.Column{
		batch.NewStringColumn([]string{"k"}),
		batch.NewTimestampColumn([]time.Time{ts}),
		col,
	})
	require.NoError(t, err)

	encoded, err := encodeRow(Left, schema, b, 0)
	require.NoError(t, err)
	er, err := decodeRow(encoded)
	require.NoError(t, err)

	rebuilt, err := buildRow(schema, er.Cells)
	require.NoError(t, err)
	require.False(t, rebuilt.Columns[2].Valid(0))
}

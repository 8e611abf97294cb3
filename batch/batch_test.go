package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustSchema(t *testing.T, fields []Field, tsIdx int, keyIdx []int) *Schema {
	t.Helper()
	s, err := NewSchema(fields, tsIdx, keyIdx)
	require.NoError(t, err)
	return s
}

func TestPartitionByTimestampGroupsDistinctTimes(t *testing.T) {
	schema := mustSchema(t, []Field{
		{Name: "ts", Type: TypeTimestamp},
		{Name: "v", Type: TypeInt64},
	}, 0, nil)

	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Second)
	b, err := NewRecordBatch(schema, []Column{
		NewTimestampColumn([]time.Time{t1, t0, t1, t0}),
		NewInt64Column([]int64{1, 2, 3, 4}),
	})
	require.NoError(t, err)

	parts := b.PartitionByTimestamp()
	require.Len(t, parts, 2)
	require.True(t, parts[0].TimestampAt(0).Equal(t0))
	require.Equal(t, 2, parts[0].NumRows())
	require.True(t, parts[1].TimestampAt(0).Equal(t1))
	require.Equal(t, 2, parts[1].NumRows())
}

func TestPartitionByTimestampEmptyBatch(t *testing.T) {
	schema := mustSchema(t, []Field{{Name: "ts", Type: TypeTimestamp}}, 0, nil)
	b, err := NewRecordBatch(schema, []Column{NewTimestampColumn(nil)})
	require.NoError(t, err)
	require.Nil(t, b.PartitionByTimestamp())
}

func TestKeyBytesUnkeyedSchemaReturnsNil(t *testing.T) {
	schema := mustSchema(t, []Field{
		{Name: "ts", Type: TypeTimestamp},
		{Name: "v", Type: TypeInt64},
	}, 0, nil)
	b, err := NewRecordBatch(schema, []Column{
		NewTimestampColumn([]time.Time{time.Unix(0, 0)}),
		NewInt64Column([]int64{1}),
	})
	require.NoError(t, err)
	require.Nil(t, b.KeyBytes(0))
}

func TestKeyBytesDeterministicPerRow(t *testing.T) {
	schema := mustSchema(t, []Field{
		{Name: "key", Type: TypeString},
		{Name: "ts", Type: TypeTimestamp},
	}, 1, []int{0})
	b, err := NewRecordBatch(schema, []Column{
		NewStringColumn([]string{"a", "b", "a"}),
		NewTimestampColumn([]time.Time{time.Unix(0, 0), time.Unix(1, 0), time.Unix(2, 0)}),
	})
	require.NoError(t, err)
	require.Equal(t, b.KeyBytes(0), b.KeyBytes(2))
	require.NotEqual(t, b.KeyBytes(0), b.KeyBytes(1))
}

func TestNewRecordBatchRejectsMismatchedColumnLengths(t *testing.T) {
	schema := mustSchema(t, []Field{
		{Name: "ts", Type: TypeTimestamp},
		{Name: "v", Type: TypeInt64},
	}, 0, nil)
	_, err := NewRecordBatch(schema, []Column{
		NewTimestampColumn([]time.Time{time.Unix(0, 0)}),
		NewInt64Column([]int64{1, 2}),
	})
	require.Error(t, err)
}

func TestConcatSchemaKeepsLeftTimestampAndDropsKey(t *testing.T) {
	left := mustSchema(t, []Field{
		{Name: "k", Type: TypeString},
		{Name: "ts", Type: TypeTimestamp},
	}, 1, []int{0})
	right := mustSchema(t, []Field{
		{Name: "rts", Type: TypeTimestamp},
		{Name: "v", Type: TypeInt64},
	}, 0, nil)

	out := ConcatSchema(left, right)
	require.Len(t, out.Fields, 4)
	require.Equal(t, left.TimestampIndex, out.TimestampIndex)
	require.Empty(t, out.KeyIndices)
}

package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuilderGathersRowsAcrossUnrelatedBatches(t *testing.T) {
	a := NewInt64Column([]int64{1, 2, 3})
	b := NewInt64Column([]int64{40, 50})

	bld := NewBuilder(TypeInt64)
	bld.AppendFrom(a, 2)
	bld.AppendFrom(b, 0)
	bld.AppendFrom(a, 0)

	out := bld.Build().(*Int64Column)
	require.Equal(t, []int64{3, 40, 1}, out.Values)
}

func TestBuilderTracksNullsOnlyWhenNeeded(t *testing.T) {
	col := &Int64Column{Values: []int64{1, 2}, Valids: []bool{true, false}}

	bld := NewBuilder(TypeInt64)
	bld.AppendFrom(col, 0)
	out := bld.Build().(*Int64Column)
	require.Nil(t, out.Valids, "no null seen yet: must not allocate a Valids slice")

	bld = NewBuilder(TypeInt64)
	bld.AppendFrom(col, 1)
	out = bld.Build().(*Int64Column)
	require.NotNil(t, out.Valids)
	require.False(t, out.Valid(0))
}

func TestBuilderAppendNull(t *testing.T) {
	bld := NewBuilder(TypeString)
	bld.AppendNull()
	out := bld.Build().(*StringColumn)
	require.Equal(t, 1, out.Len())
	require.False(t, out.Valid(0))
}

func TestBuilderTimestampNeverNullable(t *testing.T) {
	col := NewTimestampColumn([]time.Time{time.Unix(5, 0)})
	bld := NewBuilder(TypeTimestamp)
	bld.AppendFrom(col, 0)
	out := bld.Build().(*TimestampColumn)
	require.True(t, out.Values[0].Equal(time.Unix(5, 0)))
}

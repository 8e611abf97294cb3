package batch

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"
)

// RecordBatch is an immutable columnar block of rows conforming to a
// Schema. Batches are the unit of transport between tasks; single-row
// batches are the unit of per-key routing (spec.md §3).
type RecordBatch struct {
	Schema  *Schema
	Columns []Column
}

// NewRecordBatch constructs a batch and verifies that every column has the
// same length and that the column count/types conform to schema.
func NewRecordBatch(schema *Schema, columns []Column) (*RecordBatch, error) {
	b := &RecordBatch{Schema: schema, Columns: columns}
	if !schema.Conforms(b) {
		return nil, fmt.Errorf("batch: columns do not conform to schema")
	}
	if len(columns) == 0 {
		return b, nil
	}
	n := columns[0].Len()
	for i, c := range columns {
		if c.Len() != n {
			return nil, fmt.Errorf("batch: column %d has length %d, want %d", i, c.Len(), n)
		}
	}
	return b, nil
}

// NumRows returns the number of rows in the batch.
func (b *RecordBatch) NumRows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Len()
}

// TimestampAt returns the event-time of row i.
func (b *RecordBatch) TimestampAt(i int) time.Time {
	return b.Columns[b.Schema.TimestampIndex].(*TimestampColumn).Values[i]
}

// MinMaxTimestamp returns the minimum and maximum event-time across all rows.
// It panics if the batch is empty; callers must not invoke it on an empty
// batch.
func (b *RecordBatch) MinMaxTimestamp() (min, max time.Time) {
	ts := b.Columns[b.Schema.TimestampIndex].(*TimestampColumn).Values
	min, max = ts[0], ts[0]
	for _, t := range ts[1:] {
		if t.Before(min) {
			min = t
		}
		if t.After(max) {
			max = t
		}
	}
	return min, max
}

// KeyBytes returns the encoded concatenation of the partition-key columns
// for row i, suitable for hashing. An unkeyed schema returns nil.
func (b *RecordBatch) KeyBytes(i int) []byte {
	if !b.Schema.IsKeyed() {
		return nil
	}
	var buf []byte
	for _, ki := range b.Schema.KeyIndices {
		buf = appendColumnValue(buf, b.Columns[ki], i)
	}
	return buf
}

func appendColumnValue(buf []byte, col Column, row int) []byte {
	if !col.Valid(row) {
		return append(buf, 0)
	}
	switch c := col.(type) {
	case *Int64Column:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(c.Values[row]))
		return append(buf, tmp[:]...)
	case *Float64Column:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(int64(c.Values[row])))
		return append(buf, tmp[:]...)
	case *StringColumn:
		return append(buf, c.Values[row]...)
	case *BoolColumn:
		if c.Values[row] {
			return append(buf, 1)
		}
		return append(buf, 0)
	case *TimestampColumn:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(c.Values[row].UnixNano()))
		return append(buf, tmp[:]...)
	case *BytesColumn:
		return append(buf, c.Values[row]...)
	default:
		return buf
	}
}

// ApproxByteSize estimates the wire size of the batch, for the bytes_sent
// / bytes_recv metrics of spec.md §6. It is a fixed-width approximation,
// not an exact serialized size.
func (b *RecordBatch) ApproxByteSize() int {
	n := b.NumRows()
	total := 0
	for _, f := range b.Schema.Fields {
		switch f.Type {
		case TypeInt64, TypeFloat64, TypeTimestamp:
			total += 8 * n
		case TypeBool:
			total += n
		case TypeString, TypeBytes:
			total += 16 * n // no direct byte-length accessor; approximate
		}
	}
	return total
}

// Slice returns the sub-batch covering rows [start, end).
func (b *RecordBatch) Slice(start, end int) *RecordBatch {
	cols := make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		cols[i] = c.Slice(start, end)
	}
	return &RecordBatch{Schema: b.Schema, Columns: cols}
}

// Take returns a new batch gathering the given row indices, in order.
func (b *RecordBatch) Take(indices []int) *RecordBatch {
	cols := make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		cols[i] = c.Take(indices)
	}
	return &RecordBatch{Schema: b.Schema, Columns: cols}
}

// SortByTimestamp returns a new batch with rows reordered into
// non-decreasing event-time order (stable), mirroring Arrow's
// sort_to_indices + take pattern used by the instant-join operator to
// bucket a batch by distinct timestamp.
func (b *RecordBatch) SortByTimestamp() *RecordBatch {
	n := b.NumRows()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	ts := b.Columns[b.Schema.TimestampIndex].(*TimestampColumn).Values
	sort.SliceStable(idx, func(i, j int) bool { return ts[idx[i]].Before(ts[idx[j]]) })
	return b.Take(idx)
}

// PartitionByTimestamp splits a (not necessarily sorted) batch into
// contiguous sub-batches, each holding exactly one distinct event-time,
// in non-decreasing timestamp order. It is the Go analogue of Arrow's
// sort_to_indices/partition/take sequence in
// crates/arroyo-worker/src/arrow/instant_join.rs's process_side.
func (b *RecordBatch) PartitionByTimestamp() []*RecordBatch {
	if b.NumRows() == 0 {
		return nil
	}
	sorted := b.SortByTimestamp()
	ts := sorted.Columns[sorted.Schema.TimestampIndex].(*TimestampColumn).Values

	var out []*RecordBatch
	start := 0
	for i := 1; i <= len(ts); i++ {
		if i == len(ts) || !ts[i].Equal(ts[start]) {
			out = append(out, sorted.Slice(start, i))
			start = i
		}
	}
	return out
}

package joinop

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/estuary/corestream/batch"
)

// cell is a self-describing scalar, the unit encodeRow/decodeRow persist a
// batch row as. There is no columnar serialization library in the
// example pack's dependency surface (protobuf is reserved for
// OperatorConfig's opaque descriptor, not ad hoc row payloads), so rows
// are persisted with encoding/gob — see DESIGN.md for the stdlib
// justification.
type cell struct {
	Type batch.ColumnType
	Null bool
	I64  int64
	F64  float64
	Str  string
	Bool bool
	Ts   time.Time
	Byte []byte
}

func extractCell(col batch.Column, row int) cell {
	c := cell{Type: col.Type(), Null: !col.Valid(row)}
	if c.Null {
		return c
	}
	switch v := col.(type) {
	case *batch.Int64Column:
		c.I64 = v.Values[row]
	case *batch.Float64Column:
		c.F64 = v.Values[row]
	case *batch.StringColumn:
		c.Str = v.Values[row]
	case *batch.BoolColumn:
		c.Bool = v.Values[row]
	case *batch.TimestampColumn:
		c.Ts = v.Values[row]
	case *batch.BytesColumn:
		c.Byte = v.Values[row]
	}
	return c
}

// encodedRow is the gob-serializable representation of one source row,
// tagged with the Side it came from, stored in the reserved left/right
// time-keyed tables for restart replay (spec.md §4.8).
type encodedRow struct {
	Side  Side
	Cells []cell
}

func encodeRow(side Side, schema *batch.Schema, b *batch.RecordBatch, row int) ([]byte, error) {
	cells := make([]cell, len(schema.Fields))
	for i, col := range b.Columns {
		cells[i] = extractCell(col, row)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(encodedRow{Side: side, Cells: cells}); err != nil {
		return nil, fmt.Errorf("joinop: encode row: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRow(data []byte) (encodedRow, error) {
	var er encodedRow
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&er); err != nil {
		return encodedRow{}, fmt.Errorf("joinop: decode row: %w", err)
	}
	return er, nil
}

// buildRow constructs a one-row batch from schema and previously decoded
// cells, used to feed replayed rows back through the same Add path a live
// batch takes.
func buildRow(schema *batch.Schema, cells []cell) (*batch.RecordBatch, error) {
	cols := make([]batch.Column, len(schema.Fields))
	for i, f := range schema.Fields {
		c := cells[i]
		switch f.Type {
		case batch.TypeInt64:
			col := &batch.Int64Column{Values: []int64{c.I64}}
			if c.Null {
				col.Valids = []bool{false}
			}
			cols[i] = col
		case batch.TypeFloat64:
			col := &batch.Float64Column{Values: []float64{c.F64}}
			if c.Null {
				col.Valids = []bool{false}
			}
			cols[i] = col
		case batch.TypeString:
			col := &batch.StringColumn{Values: []string{c.Str}}
			if c.Null {
				col.Valids = []bool{false}
			}
			cols[i] = col
		case batch.TypeBool:
			col := &batch.BoolColumn{Values: []bool{c.Bool}}
			if c.Null {
				col.Valids = []bool{false}
			}
			cols[i] = col
		case batch.TypeTimestamp:
			cols[i] = &batch.TimestampColumn{Values: []time.Time{c.Ts}}
		case batch.TypeBytes:
			col := &batch.BytesColumn{Values: [][]byte{c.Byte}}
			if c.Null {
				col.Valids = []bool{false}
			}
			cols[i] = col
		}
	}
	return batch.NewRecordBatch(schema, cols)
}

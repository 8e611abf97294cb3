// Package batch implements the columnar record-batch data model: an
// immutable block of N rows and K named, typed columns, plus the Schema
// that every batch on a given edge must conform to (spec.md §3).
package batch

import "fmt"

// ColumnType enumerates the supported column value types.
type ColumnType int

const (
	TypeInt64 ColumnType = iota
	TypeFloat64
	TypeString
	TypeBool
	TypeTimestamp // nanosecond-precision event time
	TypeBytes
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeBytes:
		return "bytes"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Field describes one named, typed column.
type Field struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Schema is an ordered list of fields plus the two distinguished indices
// required by spec.md §3: the event-time timestamp column, and the
// (possibly empty) leading partition-key columns.
type Schema struct {
	Fields        []Field
	TimestampIndex int
	KeyIndices    []int
}

// NewSchema validates and constructs a Schema.
func NewSchema(fields []Field, timestampIndex int, keyIndices []int) (*Schema, error) {
	if timestampIndex < 0 || timestampIndex >= len(fields) {
		return nil, fmt.Errorf("batch: timestamp index %d out of range for %d fields", timestampIndex, len(fields))
	}
	if fields[timestampIndex].Type != TypeTimestamp {
		return nil, fmt.Errorf("batch: field %d (%s) designated as timestamp is not TypeTimestamp", timestampIndex, fields[timestampIndex].Name)
	}
	for _, ki := range keyIndices {
		if ki < 0 || ki >= len(fields) {
			return nil, fmt.Errorf("batch: key index %d out of range for %d fields", ki, len(fields))
		}
	}
	return &Schema{Fields: append([]Field(nil), fields...), TimestampIndex: timestampIndex, KeyIndices: append([]int(nil), keyIndices...)}, nil
}

// IsKeyed reports whether the schema declares one or more leading key columns.
func (s *Schema) IsKeyed() bool { return len(s.KeyIndices) > 0 }

// Conforms reports whether batch b's column layout matches this schema.
func (s *Schema) Conforms(b *RecordBatch) bool {
	if len(b.Columns) != len(s.Fields) {
		return false
	}
	for i, f := range s.Fields {
		if b.Columns[i].Type() != f.Type {
			return false
		}
	}
	return true
}

// ConcatSchema concatenates a left and right schema into a combined output
// schema, as an instant-join's default projection would
// (see SPEC_FULL.md [SUPPLEMENT], grounded on arroyo-df/src/schemas.rs).
// The combined schema carries the left schema's timestamp index and no
// partition key (a join result is not itself partitionable on either
// input's original key).
func ConcatSchema(left, right *Schema) *Schema {
	fields := make([]Field, 0, len(left.Fields)+len(right.Fields))
	fields = append(fields, left.Fields...)
	fields = append(fields, right.Fields...)
	return &Schema{
		Fields:         fields,
		TimestampIndex: left.TimestampIndex,
		KeyIndices:     nil,
	}
}

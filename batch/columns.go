package batch

import "time"

// Column is one typed, nullable vector of values, homogeneous in length
// with every other column in its owning RecordBatch.
type Column interface {
	Type() ColumnType
	Len() int
	// Valid reports whether the value at row i is non-null.
	Valid(i int) bool
	// Slice returns the sub-column covering rows [start, end).
	Slice(start, end int) Column
	// Take returns a new column gathering the given row indices, in order.
	Take(indices []int) Column
}

// Int64Column is a column of nullable int64 values.
type Int64Column struct {
	Values []int64
	Valids []bool // nil means all-valid
}

func NewInt64Column(values []int64) *Int64Column { return &Int64Column{Values: values} }

func (c *Int64Column) Type() ColumnType { return TypeInt64 }
func (c *Int64Column) Len() int         { return len(c.Values) }
func (c *Int64Column) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }
func (c *Int64Column) Slice(start, end int) Column {
	out := &Int64Column{Values: c.Values[start:end]}
	if c.Valids != nil {
		out.Valids = c.Valids[start:end]
	}
	return out
}
func (c *Int64Column) Take(indices []int) Column {
	values := make([]int64, len(indices))
	var valids []bool
	if c.Valids != nil {
		valids = make([]bool, len(indices))
	}
	for i, idx := range indices {
		values[i] = c.Values[idx]
		if valids != nil {
			valids[i] = c.Valids[idx]
		}
	}
	return &Int64Column{Values: values, Valids: valids}
}

// Float64Column is a column of nullable float64 values.
type Float64Column struct {
	Values []float64
	Valids []bool
}

func NewFloat64Column(values []float64) *Float64Column { return &Float64Column{Values: values} }

func (c *Float64Column) Type() ColumnType { return TypeFloat64 }
func (c *Float64Column) Len() int         { return len(c.Values) }
func (c *Float64Column) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }
func (c *Float64Column) Slice(start, end int) Column {
	out := &Float64Column{Values: c.Values[start:end]}
	if c.Valids != nil {
		out.Valids = c.Valids[start:end]
	}
	return out
}
func (c *Float64Column) Take(indices []int) Column {
	values := make([]float64, len(indices))
	var valids []bool
	if c.Valids != nil {
		valids = make([]bool, len(indices))
	}
	for i, idx := range indices {
		values[i] = c.Values[idx]
		if valids != nil {
			valids[i] = c.Valids[idx]
		}
	}
	return &Float64Column{Values: values, Valids: valids}
}

// StringColumn is a column of nullable string values.
type StringColumn struct {
	Values []string
	Valids []bool
}

func NewStringColumn(values []string) *StringColumn { return &StringColumn{Values: values} }

func (c *StringColumn) Type() ColumnType { return TypeString }
func (c *StringColumn) Len() int         { return len(c.Values) }
func (c *StringColumn) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }
func (c *StringColumn) Slice(start, end int) Column {
	out := &StringColumn{Values: c.Values[start:end]}
	if c.Valids != nil {
		out.Valids = c.Valids[start:end]
	}
	return out
}
func (c *StringColumn) Take(indices []int) Column {
	values := make([]string, len(indices))
	var valids []bool
	if c.Valids != nil {
		valids = make([]bool, len(indices))
	}
	for i, idx := range indices {
		values[i] = c.Values[idx]
		if valids != nil {
			valids[i] = c.Valids[idx]
		}
	}
	return &StringColumn{Values: values, Valids: valids}
}

// BoolColumn is a column of nullable bool values.
type BoolColumn struct {
	Values []bool
	Valids []bool
}

func NewBoolColumn(values []bool) *BoolColumn { return &BoolColumn{Values: values} }

func (c *BoolColumn) Type() ColumnType { return TypeBool }
func (c *BoolColumn) Len() int         { return len(c.Values) }
func (c *BoolColumn) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }
func (c *BoolColumn) Slice(start, end int) Column {
	out := &BoolColumn{Values: c.Values[start:end]}
	if c.Valids != nil {
		out.Valids = c.Valids[start:end]
	}
	return out
}
func (c *BoolColumn) Take(indices []int) Column {
	values := make([]bool, len(indices))
	var valids []bool
	if c.Valids != nil {
		valids = make([]bool, len(indices))
	}
	for i, idx := range indices {
		values[i] = c.Values[idx]
		if valids != nil {
			valids[i] = c.Valids[idx]
		}
	}
	return &BoolColumn{Values: values, Valids: valids}
}

// TimestampColumn is a column of nanosecond-precision event-time values.
// It is never nullable: every batch must carry a concrete event-time for
// every row (spec.md §3).
type TimestampColumn struct {
	Values []time.Time
}

func NewTimestampColumn(values []time.Time) *TimestampColumn {
	return &TimestampColumn{Values: values}
}

func (c *TimestampColumn) Type() ColumnType { return TypeTimestamp }
func (c *TimestampColumn) Len() int         { return len(c.Values) }
func (c *TimestampColumn) Valid(int) bool   { return true }
func (c *TimestampColumn) Slice(start, end int) Column {
	return &TimestampColumn{Values: c.Values[start:end]}
}
func (c *TimestampColumn) Take(indices []int) Column {
	values := make([]time.Time, len(indices))
	for i, idx := range indices {
		values[i] = c.Values[idx]
	}
	return &TimestampColumn{Values: values}
}

// BytesColumn is a column of nullable raw byte-string values, used for
// partition-key columns that carry opaque encoded keys.
type BytesColumn struct {
	Values [][]byte
	Valids []bool
}

func NewBytesColumn(values [][]byte) *BytesColumn { return &BytesColumn{Values: values} }

func (c *BytesColumn) Type() ColumnType { return TypeBytes }
func (c *BytesColumn) Len() int         { return len(c.Values) }
func (c *BytesColumn) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }
func (c *BytesColumn) Slice(start, end int) Column {
	out := &BytesColumn{Values: c.Values[start:end]}
	if c.Valids != nil {
		out.Valids = c.Valids[start:end]
	}
	return out
}
func (c *BytesColumn) Take(indices []int) Column {
	values := make([][]byte, len(indices))
	var valids []bool
	if c.Valids != nil {
		valids = make([]bool, len(indices))
	}
	for i, idx := range indices {
		values[i] = c.Values[idx]
		if valids != nil {
			valids[i] = c.Valids[idx]
		}
	}
	return &BytesColumn{Values: values, Valids: valids}
}

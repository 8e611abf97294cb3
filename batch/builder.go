package batch

import "time"

// Builder accumulates values gathered one row at a time, possibly from
// many different source batches, into a single output Column. It is the
// piece the instant-join operator needs that a single Column's own
// Take(indices) cannot provide, since a join's output row draws from two
// unrelated source batches rather than one.
type Builder interface {
	// AppendFrom copies the value of col's row i onto the end of the
	// column under construction. col must have the builder's ColumnType.
	AppendFrom(col Column, row int)
	// AppendNull appends a null value (for TypeTimestamp, which is never
	// nullable, it appends the zero time instead).
	AppendNull()
	Build() Column
}

// NewBuilder constructs an empty Builder for ColumnType t.
func NewBuilder(t ColumnType) Builder {
	switch t {
	case TypeInt64:
		return &int64Builder{}
	case TypeFloat64:
		return &float64Builder{}
	case TypeString:
		return &stringBuilder{}
	case TypeBool:
		return &boolBuilder{}
	case TypeTimestamp:
		return &timestampBuilder{}
	case TypeBytes:
		return &bytesBuilder{}
	default:
		panic("batch: unknown column type in NewBuilder")
	}
}

type int64Builder struct {
	values  []int64
	valids  []bool
	anyNull bool
}

func (b *int64Builder) AppendFrom(col Column, row int) {
	c := col.(*Int64Column)
	if !c.Valid(row) {
		b.AppendNull()
		return
	}
	b.values = append(b.values, c.Values[row])
	b.valids = append(b.valids, true)
}
func (b *int64Builder) AppendNull() {
	b.values = append(b.values, 0)
	b.valids = append(b.valids, false)
	b.anyNull = true
}
func (b *int64Builder) Build() Column {
	out := &Int64Column{Values: b.values}
	if b.anyNull {
		out.Valids = b.valids
	}
	return out
}

type float64Builder struct {
	values  []float64
	valids  []bool
	anyNull bool
}

func (b *float64Builder) AppendFrom(col Column, row int) {
	c := col.(*Float64Column)
	if !c.Valid(row) {
		b.AppendNull()
		return
	}
	b.values = append(b.values, c.Values[row])
	b.valids = append(b.valids, true)
}
func (b *float64Builder) AppendNull() {
	b.values = append(b.values, 0)
	b.valids = append(b.valids, false)
	b.anyNull = true
}
func (b *float64Builder) Build() Column {
	out := &Float64Column{Values: b.values}
	if b.anyNull {
		out.Valids = b.valids
	}
	return out
}

type stringBuilder struct {
	values  []string
	valids  []bool
	anyNull bool
}

func (b *stringBuilder) AppendFrom(col Column, row int) {
	c := col.(*StringColumn)
	if !c.Valid(row) {
		b.AppendNull()
		return
	}
	b.values = append(b.values, c.Values[row])
	b.valids = append(b.valids, true)
}
func (b *stringBuilder) AppendNull() {
	b.values = append(b.values, "")
	b.valids = append(b.valids, false)
	b.anyNull = true
}
func (b *stringBuilder) Build() Column {
	out := &StringColumn{Values: b.values}
	if b.anyNull {
		out.Valids = b.valids
	}
	return out
}

type boolBuilder struct {
	values  []bool
	valids  []bool
	anyNull bool
}

func (b *boolBuilder) AppendFrom(col Column, row int) {
	c := col.(*BoolColumn)
	if !c.Valid(row) {
		b.AppendNull()
		return
	}
	b.values = append(b.values, c.Values[row])
	b.valids = append(b.valids, true)
}
func (b *boolBuilder) AppendNull() {
	b.values = append(b.values, false)
	b.valids = append(b.valids, false)
	b.anyNull = true
}
func (b *boolBuilder) Build() Column {
	out := &BoolColumn{Values: b.values}
	if b.anyNull {
		out.Valids = b.valids
	}
	return out
}

type timestampBuilder struct {
	values []time.Time
}

func (b *timestampBuilder) AppendFrom(col Column, row int) {
	c := col.(*TimestampColumn)
	b.values = append(b.values, c.Values[row])
}
func (b *timestampBuilder) AppendNull() {
	b.values = append(b.values, time.Time{})
}
func (b *timestampBuilder) Build() Column {
	return &TimestampColumn{Values: b.values}
}

type bytesBuilder struct {
	values  [][]byte
	valids  []bool
	anyNull bool
}

func (b *bytesBuilder) AppendFrom(col Column, row int) {
	c := col.(*BytesColumn)
	if !c.Valid(row) {
		b.AppendNull()
		return
	}
	b.values = append(b.values, c.Values[row])
	b.valids = append(b.valids, true)
}
func (b *bytesBuilder) AppendNull() {
	b.values = append(b.values, nil)
	b.valids = append(b.valids, false)
	b.anyNull = true
}
func (b *bytesBuilder) Build() Column {
	out := &BytesColumn{Values: b.values}
	if b.anyNull {
		out.Valids = b.valids
	}
	return out
}

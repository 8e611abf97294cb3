package joinop

import (
	"time"

	"github.com/estuary/corestream/batch"
)

// Side distinguishes a join's two inputs.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// SubPlan is the pluggable per-timestamp execution plan an InstantJoin
// creates the first time either side delivers a row for a given event
// time, and tears down once that time passes the watermark. It stands in
// for the teacher's DataFusion physical-plan instantiation: the SQL
// planner itself is out of scope, so callers supply whatever join logic
// they need (equi-join, cross join, a custom predicate).
type SubPlan interface {
	// Add accumulates rows from one side's batch, all sharing this
	// sub-plan's timestamp.
	Add(side Side, b *batch.RecordBatch)
	// Emit computes and returns the join output for every row
	// accumulated so far, conforming to outSchema. It is called exactly
	// once, when the sub-plan's timestamp passes the watermark.
	Emit(outSchema *batch.Schema) (*batch.RecordBatch, error)
}

// SubPlanFactory constructs a new SubPlan for one distinct event time.
type SubPlanFactory func(ts time.Time, leftSchema, rightSchema *batch.Schema) SubPlan

// NewEquiJoinFactory returns a SubPlanFactory computing a nested-loop
// inner equi-join on each schema's declared key columns — InstantJoin's
// default when the caller has no custom SubPlan, standing in for the
// common case of the teacher's DataFusion HashJoinExec plan.
func NewEquiJoinFactory() SubPlanFactory {
	return func(ts time.Time, leftSchema, rightSchema *batch.Schema) SubPlan {
		return &equiJoin{ts: ts, leftSchema: leftSchema, rightSchema: rightSchema}
	}
}

type equiJoin struct {
	ts                      time.Time
	leftSchema, rightSchema *batch.Schema
	left, right             []rowRef
}

type rowRef struct {
	b   *batch.RecordBatch
	row int
}

func (e *equiJoin) Add(side Side, b *batch.RecordBatch) {
	for i := 0; i < b.NumRows(); i++ {
		ref := rowRef{b: b, row: i}
		if side == Left {
			e.left = append(e.left, ref)
		} else {
			e.right = append(e.right, ref)
		}
	}
}

func (e *equiJoin) Emit(outSchema *batch.Schema) (*batch.RecordBatch, error) {
	if len(e.left) == 0 || len(e.right) == 0 {
		return nil, nil
	}

	builders := make([]batch.Builder, len(outSchema.Fields))
	for i, f := range outSchema.Fields {
		builders[i] = batch.NewBuilder(f.Type)
	}

	leftWidth := len(e.leftSchema.Fields)
	matched := false
	for _, l := range e.left {
		lKey := l.b.KeyBytes(l.row)
		for _, r := range e.right {
			if string(lKey) != string(r.b.KeyBytes(r.row)) {
				continue
			}
			matched = true
			for i := 0; i < leftWidth; i++ {
				builders[i].AppendFrom(l.b.Columns[i], l.row)
			}
			for i := 0; i < len(e.rightSchema.Fields); i++ {
				builders[leftWidth+i].AppendFrom(r.b.Columns[i], r.row)
			}
		}
	}
	if !matched {
		return nil, nil
	}

	cols := make([]batch.Column, len(builders))
	for i, b := range builders {
		cols[i] = b.Build()
	}
	return batch.NewRecordBatch(outSchema, cols)
}

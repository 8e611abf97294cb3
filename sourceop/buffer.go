package sourceop

import (
	"time"

	"github.com/estuary/corestream/batch"
)

// BatchBuffer accumulates decoded single-row batches and flushes into one
// RecordBatch once MaxRows rows have accumulated or FlushInterval has
// elapsed since the first buffered row, whichever comes first
// ([SUPPLEMENT], grounded on sse.rs's flush_ticker: a source batches many
// small external events rather than emitting a RecordBatch per event).
type BatchBuffer struct {
	Schema        *batch.Schema
	MaxRows       int
	FlushInterval time.Duration

	builders []batch.Builder
	rows     int
	firstAt  time.Time
}

// Add appends row's single row onto the buffer.
func (b *BatchBuffer) Add(row *batch.RecordBatch) {
	if b.builders == nil {
		b.builders = make([]batch.Builder, len(b.Schema.Fields))
		for i, f := range b.Schema.Fields {
			b.builders[i] = batch.NewBuilder(f.Type)
		}
		b.firstAt = time.Now()
	}
	for i, col := range row.Columns {
		b.builders[i].AppendFrom(col, 0)
	}
	b.rows++
}

// Ready reports whether the buffer should be flushed now.
func (b *BatchBuffer) Ready() bool {
	if b.rows == 0 {
		return false
	}
	if b.MaxRows > 0 && b.rows >= b.MaxRows {
		return true
	}
	return b.FlushInterval > 0 && time.Since(b.firstAt) >= b.FlushInterval
}

// Flush builds and returns the accumulated batch, resetting the buffer.
// It returns nil if there is nothing buffered.
func (b *BatchBuffer) Flush() *batch.RecordBatch {
	if b.rows == 0 {
		return nil
	}
	cols := make([]batch.Column, len(b.builders))
	for i, bl := range b.builders {
		cols[i] = bl.Build()
	}
	out, _ := batch.NewRecordBatch(b.Schema, cols)
	b.builders = nil
	b.rows = 0
	return out
}

package message

import (
	"fmt"

	"github.com/estuary/corestream/batch"
)

// Kind tags which variant of the envelope union is populated.
type Kind int

const (
	// KindRecord carries a record batch.
	KindRecord Kind = iota
	// KindWatermark carries a Watermark.
	KindWatermark
	// KindBarrier carries a checkpoint Barrier.
	KindBarrier
	// KindStop is the graceful/immediate drain signal.
	KindStop
	// KindEndOfData signals normal, graceful completion of the input.
	KindEndOfData
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "Record"
	case KindWatermark:
		return "Watermark"
	case KindBarrier:
		return "Barrier"
	case KindStop:
		return "Stop"
	case KindEndOfData:
		return "EndOfData"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Envelope is the tagged union transported on every inter-task edge:
// Record(batch) | Watermark(w) | Barrier{...} | Stop | EndOfData.
//
// Exactly one of Batch/Watermark/Barrier is meaningful, selected by Kind.
type Envelope struct {
	Kind      Kind
	Batch     *batch.RecordBatch
	Watermark Watermark
	Barrier   Barrier
}

// Record wraps a record batch as a message envelope.
func Record(b *batch.RecordBatch) Envelope {
	return Envelope{Kind: KindRecord, Batch: b}
}

// WatermarkMessage wraps a watermark as a message envelope.
func WatermarkMessage(w Watermark) Envelope {
	return Envelope{Kind: KindWatermark, Watermark: w}
}

// BarrierMessage wraps a checkpoint barrier as a message envelope.
func BarrierMessage(b Barrier) Envelope {
	return Envelope{Kind: KindBarrier, Barrier: b}
}

// Stop is the graceful/immediate drain signal envelope.
func Stop() Envelope { return Envelope{Kind: KindStop} }

// EndOfData is the normal-completion signal envelope.
func EndOfData() Envelope { return Envelope{Kind: KindEndOfData} }

func (e Envelope) String() string {
	switch e.Kind {
	case KindRecord:
		if e.Batch == nil {
			return "Record(nil)"
		}
		return fmt.Sprintf("Record(rows=%d)", e.Batch.NumRows())
	case KindWatermark:
		return fmt.Sprintf("Watermark(%s)", e.Watermark)
	case KindBarrier:
		return fmt.Sprintf("Barrier{epoch=%d, thenStop=%v}", e.Barrier.Epoch, e.Barrier.ThenStop)
	default:
		return e.Kind.String()
	}
}

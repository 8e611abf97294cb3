package runtime

import (
	"time"

	"github.com/estuary/corestream/message"
)

// WatermarkHolder maintains the latest watermark received on each of N
// input edges and computes the combined task watermark (spec.md §4.1).
type WatermarkHolder struct {
	entries []message.Watermark
	present []bool

	taskWatermark message.Watermark
	taskPresent   bool

	// eventFloor is the most recent EventTime the task watermark held,
	// kept even while taskWatermark itself is Idle, so that an Idle
	// interlude can never let a later EventTime regress below a value
	// already emitted downstream.
	eventFloor     time.Time
	haveEventFloor bool
}

// NewWatermarkHolder constructs a holder sized for n input edges.
func NewWatermarkHolder(n int) *WatermarkHolder {
	return &WatermarkHolder{
		entries: make([]message.Watermark, n),
		present: make([]bool, n),
	}
}

// Set records watermark w for input edge i. It returns the new task
// watermark and true only when the task watermark strictly advances; the
// same value (or a still-incomplete vector) returns (zero, false).
//
// Invariant: the returned task watermark sequence, across calls, is
// monotonic non-decreasing (spec.md §4.1).
func (h *WatermarkHolder) Set(i int, w message.Watermark) (message.Watermark, bool) {
	h.entries[i] = w
	h.present[i] = true

	combined, ok := h.compute()
	if !ok {
		return message.Watermark{}, false
	}
	if !h.advances(combined) {
		return message.Watermark{}, false
	}
	h.taskWatermark = combined
	h.taskPresent = true
	if combined.Kind == message.EventTime {
		h.eventFloor = combined.Time
		h.haveEventFloor = true
	}
	return combined, true
}

// Watermark returns the current task watermark, if one has been computed.
func (h *WatermarkHolder) Watermark() (message.Watermark, bool) {
	return h.taskWatermark, h.taskPresent
}

// compute returns the minimum of all EventTime entries, ignoring Idle
// entries; Idle if every entry is Idle; and ok=false until every edge has
// reported at least one watermark.
func (h *WatermarkHolder) compute() (message.Watermark, bool) {
	for _, p := range h.present {
		if !p {
			return message.Watermark{}, false
		}
	}

	var min message.Watermark
	haveEventTime := false
	for _, w := range h.entries {
		if w.Kind != message.EventTime {
			continue
		}
		if !haveEventTime || w.Time.Before(min.Time) {
			min = w
			haveEventTime = true
		}
	}
	if !haveEventTime {
		return message.IdleWatermark(), true
	}
	return min, true
}

func (h *WatermarkHolder) advances(combined message.Watermark) bool {
	if !h.taskPresent {
		return true
	}
	if combined.Kind == message.EventTime {
		// Compare against eventFloor, not taskWatermark: taskWatermark may
		// currently be Idle (every edge went idle after an EventTime), but
		// the floor it left behind must never be crossed backwards once an
		// edge resumes reporting EventTime watermarks.
		return !h.haveEventFloor || combined.Time.After(h.eventFloor)
	}
	// combined is Idle: only an advance the first time every edge goes idle.
	return h.taskWatermark.Kind != message.Idle
}

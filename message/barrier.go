package message

import "time"

// Barrier is a checkpoint marker injected by sources and propagated through
// the graph to define a consistent snapshot boundary (spec.md §3).
//
// A coordinator guarantees exactly one Barrier per Epoch is injected into
// each source task, and epochs strictly increase.
type Barrier struct {
	Epoch     uint32
	IssueTime time.Time
	ThenStop  bool
}

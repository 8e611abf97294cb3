package runtime

import "fmt"

// CheckpointCounter tracks barrier arrival across a task's N input edges for
// one in-flight checkpoint epoch at a time, implementing the alignment
// bookkeeping of spec.md §4.2: an edge that has delivered its barrier is
// withheld ("parked") until every other edge has too.
type CheckpointCounter struct {
	n int

	hasEpoch bool
	epoch    uint32
	marked   map[int]bool

	sawEdge    []bool
	lastEpoch  []uint32
}

// NewCheckpointCounter constructs a counter for a task with n input edges.
func NewCheckpointCounter(n int) *CheckpointCounter {
	return &CheckpointCounter{
		n:         n,
		marked:    make(map[int]bool, n),
		sawEdge:   make([]bool, n),
		lastEpoch: make([]uint32, n),
	}
}

// Mark records that input edge idx delivered barrier b. It returns first
// true iff this is the first barrier seen for b.Epoch across any edge
// (the caller should fire StartAlignment), and allClear true iff every
// edge has now delivered b.Epoch (the caller should run the checkpoint
// and unpark every edge).
//
// Mark returns an error if edge idx redelivers an epoch at or behind one
// it already reported, or reports an epoch other than the one currently
// in flight once one is in flight — both protocol violations a
// coordinator must never produce.
func (c *CheckpointCounter) Mark(idx int, epoch uint32) (first, allClear bool, err error) {
	if idx < 0 || idx >= c.n {
		return false, false, fmt.Errorf("runtime: checkpoint counter: edge index %d out of range [0,%d)", idx, c.n)
	}
	if c.sawEdge[idx] && epoch <= c.lastEpoch[idx] {
		return false, false, fmt.Errorf("runtime: checkpoint counter: edge %d delivered out-of-order epoch %d (last %d)", idx, epoch, c.lastEpoch[idx])
	}
	c.sawEdge[idx] = true
	c.lastEpoch[idx] = epoch

	if !c.hasEpoch {
		c.hasEpoch = true
		c.epoch = epoch
		c.marked = make(map[int]bool, c.n)
		first = true
	} else if epoch != c.epoch {
		return false, false, fmt.Errorf("runtime: checkpoint counter: edge %d delivered epoch %d while epoch %d is in flight", idx, epoch, c.epoch)
	}

	c.marked[idx] = true
	allClear = len(c.marked) == c.n
	if allClear {
		c.hasEpoch = false
	}
	return first, allClear, nil
}

// IsBlocked reports whether edge idx has delivered its barrier for the
// in-flight epoch and is awaiting alignment (its further input must be
// parked by the caller's Multiplexer).
func (c *CheckpointCounter) IsBlocked(idx int) bool {
	return c.hasEpoch && c.marked[idx]
}

// AllClear reports whether there is no checkpoint epoch currently awaiting
// alignment.
func (c *CheckpointCounter) AllClear() bool {
	return !c.hasEpoch
}

// Package timer implements the keyed event-time timer service of
// spec.md §4.3: operators schedule timers against a reserved time-keyed
// state table, and the runtime drains everything due on each watermark
// advance before forwarding that watermark downstream.
package timer

import (
	"fmt"
	"sort"
	"time"

	"github.com/estuary/corestream/state"
)

// ReservedTableName is the time-keyed table every operator's timer state
// lives in. Operators may not declare a user table under this name.
const ReservedTableName = "__timers__"

// Descriptor is the table descriptor the runtime registers alongside an
// operator's own declared tables.
var Descriptor = state.TableDescriptor{
	Name:        ReservedTableName,
	Description: "reserved table backing the keyed event-time timer service",
	Kind:        state.TimeKeyed,
}

// Entry is one due timer extracted by DrainDue.
type Entry struct {
	Key      []byte
	FireTime time.Time
	Payload  []byte
}

// Service is the per-task timer facade over a state.TimeKeyedTable.
type Service struct {
	table     state.TimeKeyedTable
	watermark *time.Time
}

// NewService wraps the reserved timer table in a Service.
func NewService(table state.TimeKeyedTable) *Service {
	return &Service{table: table}
}

// Schedule registers a timer for (key, fireTime). It rejects a fireTime at
// or before the current watermark, and rejects re-registering the same
// (key, fireTime) pair — spec.md §9 open question (a) is resolved in
// favor of rejecting the duplicate rather than silently overwriting it,
// since a silent overwrite would lose the caller's original payload with
// no signal that anything happened.
func (s *Service) Schedule(key []byte, fireTime time.Time, payload []byte) error {
	if s.watermark != nil && !fireTime.After(*s.watermark) {
		return fmt.Errorf("timer: fire time %s is at or before current watermark %s", fireTime, *s.watermark)
	}
	if _, ok := s.table.Get(fireTime, key); ok {
		return fmt.Errorf("timer: duplicate timer for key %x at %s", key, fireTime)
	}
	s.table.Insert(fireTime, key, payload)
	return nil
}

// Cancel removes a previously scheduled timer, returning its payload.
func (s *Service) Cancel(key []byte, fireTime time.Time) ([]byte, bool) {
	v, ok := s.table.Get(fireTime, key)
	if !ok {
		return nil, false
	}
	s.table.Remove(fireTime, key)
	return v, true
}

// DrainDue atomically extracts every timer with FireTime <= w, in
// non-decreasing FireTime order, and advances the service's notion of the
// current watermark so a later Schedule of an already-past fire time is
// rejected.
func (s *Service) DrainDue(w time.Time) []Entry {
	all := s.table.AllEntriesForWatermark(nil)

	var due []Entry
	for _, e := range all {
		if !e.Time.After(w) {
			due = append(due, Entry{Key: e.Key, FireTime: e.Time, Payload: e.Value})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireTime.Before(due[j].FireTime) })

	for _, e := range due {
		s.table.Remove(e.FireTime, e.Key)
	}
	s.watermark = &w
	return due
}

// Package state defines the abstract keyed/global/time-keyed table
// contract and the StateManager contract of spec.md §3/§6. The persistence
// layout is an external collaborator's concern; this package defines only
// the shape a backend must satisfy, plus a reference in-memory
// implementation (package memstate) and a durable sqlite3-backed one
// (package sqlitestore).
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/estuary/corestream/task"
)

// TableKind distinguishes the three abstract state-table kinds of
// spec.md §3.
type TableKind int

const (
	// Global is a single per-operator value replicated to every task.
	Global TableKind = iota
	// Keyed is partitioned by user key, co-located with the owning task.
	Keyed
	// TimeKeyed is (time, key) -> value with a declared retention.
	TimeKeyed
)

func (k TableKind) String() string {
	switch k {
	case Global:
		return "global"
	case Keyed:
		return "keyed"
	case TimeKeyed:
		return "time-keyed"
	default:
		return fmt.Sprintf("TableKind(%d)", int(k))
	}
}

// TableDescriptor declares one state table an operator wants, including
// its checkpoint-relevant retention for time-keyed tables.
type TableDescriptor struct {
	Name        string
	Description string
	Kind        TableKind
	Retention   time.Duration // meaningful only for Kind == TimeKeyed
}

// GlobalTable is a single per-operator value replicated to every task.
type GlobalTable interface {
	Get() (value []byte, ok bool)
	Insert(value []byte)
	Remove()
}

// KeyedTable is partitioned by user key.
type KeyedTable interface {
	Get(key []byte) (value []byte, ok bool)
	Insert(key []byte, value []byte)
	Remove(key []byte)
}

// TimeKeyedEntry is one (time, key) -> value row of a TimeKeyedTable.
type TimeKeyedEntry struct {
	Time  time.Time
	Key   []byte
	Value []byte
}

// TimeKeyedTable is state indexed by (time, key) with a declared retention;
// entries older than watermark-retention are evictable.
type TimeKeyedTable interface {
	Get(t time.Time, key []byte) (value []byte, ok bool)
	Insert(t time.Time, key []byte, value []byte)
	Remove(t time.Time, key []byte)
	// EvictAllBefore discards every entry with Time strictly before t.
	EvictAllBefore(t time.Time)
	// AllEntriesForWatermark returns every entry not yet evictable given
	// the current watermark (or every entry, if watermark is nil — no
	// watermark has been observed yet), in non-decreasing Time order.
	// This is used on restart to replay not-yet-advanced entries through
	// an operator (spec.md §4.8).
	AllEntriesForWatermark(watermark *time.Time) []TimeKeyedEntry
}

// OperatorMetadata is the durable, per-epoch metadata a backend persists
// about an operator, consulted on restore.
type OperatorMetadata struct {
	MinWatermark *time.Time
}

// Manager is the per-task state-manager contract of spec.md §6: the
// abstract keyed/global/time-keyed tables and their checkpoint hooks.
type Manager interface {
	Global(name string) (GlobalTable, error)
	Keyed(name string) (KeyedTable, error)
	TimeKeyedTable(name string) (TimeKeyedTable, error)

	// Checkpoint durably persists all dirty tables under barrier epoch.
	// On return, the checkpoint is durable for this task.
	Checkpoint(ctx context.Context, epoch uint32, watermark *time.Time) error

	// HandleWatermark notifies tables of a watermark advance, for
	// retention-based eviction.
	HandleWatermark(t time.Time)

	// Close releases any resources held by the manager.
	Close() error
}

// Backend is the factory contract a persistent state backend exposes,
// grounded on ArrowContext::new's restore-or-new branch
// (StateStore::from_checkpoint / StateStore::new) and
// StateBackend::load_operator_metadata.
type Backend interface {
	// LoadOperatorMetadata loads the durable metadata for (jobID,
	// operatorID) as of the given epoch.
	LoadOperatorMetadata(ctx context.Context, jobID, operatorID string, epoch uint32) (OperatorMetadata, error)

	// New constructs a fresh Manager with no prior checkpoint.
	New(ctx context.Context, info task.Info, tables []TableDescriptor) (Manager, error)

	// FromCheckpoint restores a Manager from the checkpoint at the given
	// epoch.
	FromCheckpoint(ctx context.Context, info task.Info, epoch uint32, tables []TableDescriptor) (Manager, error)
}

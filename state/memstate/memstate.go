// Package memstate is a reference in-memory implementation of the
// state.Backend contract. It durably retains checkpointed snapshots across
// Manager instances sharing the same *Store, which lets tests simulate a
// task restart (load the last checkpoint, replay newly-arrived input)
// without a real external backend.
package memstate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/estuary/corestream/state"
	"github.com/estuary/corestream/task"
)

type tableSnapshot struct {
	kind      state.TableKind
	hasGlobal bool
	global    []byte
	keyed     map[string][]byte
	timeKeyed []state.TimeKeyedEntry
}

func cloneTableSnapshot(in tableSnapshot) tableSnapshot {
	out := tableSnapshot{kind: in.kind, hasGlobal: in.hasGlobal, global: append([]byte(nil), in.global...)}
	if in.keyed != nil {
		out.keyed = make(map[string][]byte, len(in.keyed))
		for k, v := range in.keyed {
			out.keyed[k] = append([]byte(nil), v...)
		}
	}
	out.timeKeyed = append([]state.TimeKeyedEntry(nil), in.timeKeyed...)
	return out
}

type epochSnapshot struct {
	watermark *time.Time
	tables    map[string]tableSnapshot
}

// Store is the shared, process-lifetime backing store for one or more
// memstate Managers. Production deployments would replace this with a
// real durable backend (see package sqlitestore); tests construct one
// *Store and pass it to successive Backend.New/FromCheckpoint calls to
// model a task restart.
type Store struct {
	mu   sync.Mutex
	data map[string]map[uint32]epochSnapshot // (jobID/operatorID) -> epoch -> snapshot
}

// NewStore constructs an empty shared store.
func NewStore() *Store {
	return &Store{data: make(map[string]map[uint32]epochSnapshot)}
}

func key(jobID, operatorID string) string { return jobID + "/" + operatorID }

func (s *Store) latestEpoch(jobID, operatorID string) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	epochs, ok := s.data[key(jobID, operatorID)]
	if !ok || len(epochs) == 0 {
		return 0, false
	}
	var max uint32
	first := true
	for e := range epochs {
		if first || e > max {
			max, first = e, false
		}
	}
	return max, true
}

func (s *Store) save(jobID, operatorID string, epoch uint32, snap epochSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(jobID, operatorID)
	if s.data[k] == nil {
		s.data[k] = make(map[uint32]epochSnapshot)
	}
	s.data[k][epoch] = snap
}

func (s *Store) load(jobID, operatorID string, epoch uint32) (epochSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	epochs, ok := s.data[key(jobID, operatorID)]
	if !ok {
		return epochSnapshot{}, false
	}
	snap, ok := epochs[epoch]
	return snap, ok
}

// Backend adapts a *Store to the state.Backend contract.
type Backend struct {
	Store *Store
}

// NewBackend constructs a Backend over a fresh Store.
func NewBackend() *Backend { return &Backend{Store: NewStore()} }

func (b *Backend) LoadOperatorMetadata(_ context.Context, jobID, operatorID string, epoch uint32) (state.OperatorMetadata, error) {
	snap, ok := b.Store.load(jobID, operatorID, epoch)
	if !ok {
		return state.OperatorMetadata{}, nil
	}
	return state.OperatorMetadata{MinWatermark: snap.watermark}, nil
}

func (b *Backend) New(_ context.Context, info task.Info, tables []state.TableDescriptor) (state.Manager, error) {
	m := &Manager{backend: b, info: info, tables: make(map[string]*tableState)}
	for _, td := range tables {
		m.tables[td.Name] = &tableState{descriptor: td}
	}
	return m, nil
}

func (b *Backend) FromCheckpoint(_ context.Context, info task.Info, epoch uint32, tables []state.TableDescriptor) (state.Manager, error) {
	snap, ok := b.Store.load(info.JobID, info.OperatorID, epoch)
	if !ok {
		return nil, fmt.Errorf("memstate: no checkpoint at epoch %d for %s/%s", epoch, info.JobID, info.OperatorID)
	}
	m := &Manager{backend: b, info: info, tables: make(map[string]*tableState)}
	for _, td := range tables {
		ts := &tableState{descriptor: td}
		if saved, ok := snap.tables[td.Name]; ok {
			ts.hasGlobal = saved.hasGlobal
			ts.global = saved.global
			if saved.keyed != nil {
				ts.keyed = make(map[string][]byte, len(saved.keyed))
				for k, v := range saved.keyed {
					ts.keyed[k] = v
				}
			}
			ts.timeKeyed = append([]state.TimeKeyedEntry(nil), saved.timeKeyed...)
		}
		m.tables[td.Name] = ts
	}
	return m, nil
}

type tableState struct {
	descriptor state.TableDescriptor
	hasGlobal  bool
	global     []byte
	keyed      map[string][]byte
	timeKeyed  []state.TimeKeyedEntry // kept sorted by Time
}

// Manager is the memstate implementation of state.Manager.
type Manager struct {
	backend       *Backend
	info          task.Info
	tables        map[string]*tableState
	lastWatermark *time.Time
}

func (m *Manager) table(name string) *tableState {
	t, ok := m.tables[name]
	if !ok {
		t = &tableState{descriptor: state.TableDescriptor{Name: name}}
		m.tables[name] = t
	}
	return t
}

func (m *Manager) Global(name string) (state.GlobalTable, error) {
	return &globalTable{t: m.table(name)}, nil
}

func (m *Manager) Keyed(name string) (state.KeyedTable, error) {
	t := m.table(name)
	if t.keyed == nil {
		t.keyed = make(map[string][]byte)
	}
	return &keyedTable{t: t}, nil
}

func (m *Manager) TimeKeyedTable(name string) (state.TimeKeyedTable, error) {
	return &timeKeyedTable{t: m.table(name)}, nil
}

func (m *Manager) HandleWatermark(t time.Time) {
	m.lastWatermark = &t
	for _, ts := range m.tables {
		if ts.descriptor.Kind != state.TimeKeyed {
			continue
		}
		retain := t
		if ts.descriptor.Retention > 0 {
			retain = t.Add(-ts.descriptor.Retention)
		}
		evictBefore(ts, retain)
	}
}

func evictBefore(ts *tableState, cutoff time.Time) {
	kept := ts.timeKeyed[:0]
	for _, e := range ts.timeKeyed {
		if !e.Time.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	ts.timeKeyed = kept
}

func (m *Manager) Checkpoint(_ context.Context, epoch uint32, watermark *time.Time) error {
	snap := epochSnapshot{watermark: watermark, tables: make(map[string]tableSnapshot, len(m.tables))}
	for name, ts := range m.tables {
		snap.tables[name] = cloneTableSnapshot(tableSnapshot{
			kind:      ts.descriptor.Kind,
			hasGlobal: ts.hasGlobal,
			global:    ts.global,
			keyed:     ts.keyed,
			timeKeyed: ts.timeKeyed,
		})
	}
	m.backend.Store.save(m.info.JobID, m.info.OperatorID, epoch, snap)
	return nil
}

func (m *Manager) Close() error { return nil }

type globalTable struct{ t *tableState }

func (g *globalTable) Get() ([]byte, bool) { return g.t.global, g.t.hasGlobal }
func (g *globalTable) Insert(value []byte) {
	g.t.global = append([]byte(nil), value...)
	g.t.hasGlobal = true
}
func (g *globalTable) Remove() { g.t.global = nil; g.t.hasGlobal = false }

type keyedTable struct{ t *tableState }

func (k *keyedTable) Get(key []byte) ([]byte, bool) {
	v, ok := k.t.keyed[string(key)]
	return v, ok
}
func (k *keyedTable) Insert(key []byte, value []byte) {
	k.t.keyed[string(key)] = append([]byte(nil), value...)
}
func (k *keyedTable) Remove(key []byte) { delete(k.t.keyed, string(key)) }

type timeKeyedTable struct{ t *tableState }

func (tk *timeKeyedTable) Get(t time.Time, key []byte) ([]byte, bool) {
	for _, e := range tk.t.timeKeyed {
		if e.Time.Equal(t) && string(e.Key) == string(key) {
			return e.Value, true
		}
	}
	return nil, false
}

func (tk *timeKeyedTable) Insert(t time.Time, key []byte, value []byte) {
	entry := state.TimeKeyedEntry{Time: t, Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)}
	for i, e := range tk.t.timeKeyed {
		if e.Time.Equal(t) && string(e.Key) == string(key) {
			tk.t.timeKeyed[i] = entry
			return
		}
	}
	tk.t.timeKeyed = append(tk.t.timeKeyed, entry)
	sort.Slice(tk.t.timeKeyed, func(i, j int) bool { return tk.t.timeKeyed[i].Time.Before(tk.t.timeKeyed[j].Time) })
}

func (tk *timeKeyedTable) Remove(t time.Time, key []byte) {
	out := tk.t.timeKeyed[:0]
	for _, e := range tk.t.timeKeyed {
		if e.Time.Equal(t) && string(e.Key) == string(key) {
			continue
		}
		out = append(out, e)
	}
	tk.t.timeKeyed = out
}

func (tk *timeKeyedTable) EvictAllBefore(t time.Time) { evictBefore(tk.t, t) }

func (tk *timeKeyedTable) AllEntriesForWatermark(watermark *time.Time) []state.TimeKeyedEntry {
	if watermark == nil {
		return append([]state.TimeKeyedEntry(nil), tk.t.timeKeyed...)
	}
	var out []state.TimeKeyedEntry
	for _, e := range tk.t.timeKeyed {
		if e.Time.Before(*watermark) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Package sqlitestore is a durable state.Backend backed by SQLite, in the
// same spirit as the teacher's go/consumer/app.go opening a sqlite3
// catalog database via database/sql. All tasks share one set of tables in
// the database file, with rows keyed by job id, operator id and epoch (the
// task index is not part of any key). Writes go to the database as they
// are made; Checkpoint records one operator-metadata row. After
// FromCheckpoint, point reads return the most recent row at or before the
// requested epoch for every key.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/estuary/corestream/state"
	"github.com/estuary/corestream/task"
)

// Backend is a state.Backend over one SQLite database file.
type Backend struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite-backed state database at path.
func Open(path string) (*Backend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Close() error { return b.db.Close() }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS operator_checkpoint (
	job_id TEXT NOT NULL,
	operator_id TEXT NOT NULL,
	epoch INTEGER NOT NULL,
	watermark_unix_nanos INTEGER,
	PRIMARY KEY (job_id, operator_id, epoch)
);
CREATE TABLE IF NOT EXISTS global_state (
	job_id TEXT NOT NULL, operator_id TEXT NOT NULL, epoch INTEGER NOT NULL,
	table_name TEXT NOT NULL, value BLOB,
	PRIMARY KEY (job_id, operator_id, epoch, table_name)
);
CREATE TABLE IF NOT EXISTS keyed_state (
	job_id TEXT NOT NULL, operator_id TEXT NOT NULL, epoch INTEGER NOT NULL,
	table_name TEXT NOT NULL, key BLOB NOT NULL, value BLOB,
	PRIMARY KEY (job_id, operator_id, epoch, table_name, key)
);
CREATE TABLE IF NOT EXISTS time_keyed_state (
	job_id TEXT NOT NULL, operator_id TEXT NOT NULL, epoch INTEGER NOT NULL,
	table_name TEXT NOT NULL, event_time_unix_nanos INTEGER NOT NULL, key BLOB NOT NULL, value BLOB,
	PRIMARY KEY (job_id, operator_id, epoch, table_name, event_time_unix_nanos, key)
);
`

func (b *Backend) LoadOperatorMetadata(ctx context.Context, jobID, operatorID string, epoch uint32) (state.OperatorMetadata, error) {
	var nanos sql.NullInt64
	err := b.db.QueryRowContext(ctx,
		`SELECT watermark_unix_nanos FROM operator_checkpoint WHERE job_id=? AND operator_id=? AND epoch=?`,
		jobID, operatorID, epoch).Scan(&nanos)
	if err == sql.ErrNoRows {
		return state.OperatorMetadata{}, nil
	}
	if err != nil {
		return state.OperatorMetadata{}, fmt.Errorf("sqlitestore: load metadata: %w", err)
	}
	if !nanos.Valid {
		return state.OperatorMetadata{}, nil
	}
	t := time.Unix(0, nanos.Int64).UTC()
	return state.OperatorMetadata{MinWatermark: &t}, nil
}

func (b *Backend) New(_ context.Context, info task.Info, tables []state.TableDescriptor) (state.Manager, error) {
	return &Manager{db: b.db, info: info, tables: tables, epoch: 0}, nil
}

func (b *Backend) FromCheckpoint(_ context.Context, info task.Info, epoch uint32, tables []state.TableDescriptor) (state.Manager, error) {
	return &Manager{db: b.db, info: info, tables: tables, epoch: epoch}, nil
}

// Manager is the sqlitestore implementation of state.Manager. Reads and
// writes go straight to the database under the manager's current epoch;
// Checkpoint advances the epoch used by subsequent writes.
type Manager struct {
	db    *sql.DB
	info  task.Info
	tables []state.TableDescriptor
	epoch uint32
}

func (m *Manager) descriptorFor(name string) state.TableDescriptor {
	for _, td := range m.tables {
		if td.Name == name {
			return td
		}
	}
	return state.TableDescriptor{Name: name}
}

func (m *Manager) Global(name string) (state.GlobalTable, error) {
	return &globalTable{m: m, name: name}, nil
}

func (m *Manager) Keyed(name string) (state.KeyedTable, error) {
	return &keyedTable{m: m, name: name}, nil
}

func (m *Manager) TimeKeyedTable(name string) (state.TimeKeyedTable, error) {
	return &timeKeyedTable{m: m, name: name, descriptor: m.descriptorFor(name)}, nil
}

func (m *Manager) Checkpoint(ctx context.Context, epoch uint32, watermark *time.Time) error {
	var nanos sql.NullInt64
	if watermark != nil {
		nanos = sql.NullInt64{Int64: watermark.UnixNano(), Valid: true}
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO operator_checkpoint(job_id, operator_id, epoch, watermark_unix_nanos) VALUES (?, ?, ?, ?)`,
		m.info.JobID, m.info.OperatorID, epoch, nanos)
	if err != nil {
		return fmt.Errorf("sqlitestore: checkpoint: %w", err)
	}
	m.epoch = epoch
	return nil
}

func (m *Manager) HandleWatermark(t time.Time) {
	for _, td := range m.tables {
		if td.Kind != state.TimeKeyed || td.Retention <= 0 {
			continue
		}
		_, _ = m.db.Exec(
			`DELETE FROM time_keyed_state WHERE job_id=? AND operator_id=? AND table_name=? AND event_time_unix_nanos < ?`,
			m.info.JobID, m.info.OperatorID, td.Name, t.Add(-td.Retention).UnixNano())
	}
}

func (m *Manager) Close() error { return nil }

type globalTable struct {
	m    *Manager
	name string
}

func (g *globalTable) Get() ([]byte, bool) {
	var value []byte
	err := g.m.db.QueryRow(
		`SELECT value FROM global_state WHERE job_id=? AND operator_id=? AND epoch<=? AND table_name=? ORDER BY epoch DESC LIMIT 1`,
		g.m.info.JobID, g.m.info.OperatorID, g.m.epoch, g.name).Scan(&value)
	return value, err == nil
}

func (g *globalTable) Insert(value []byte) {
	_, _ = g.m.db.Exec(`INSERT OR REPLACE INTO global_state(job_id, operator_id, epoch, table_name, value) VALUES (?,?,?,?,?)`,
		g.m.info.JobID, g.m.info.OperatorID, g.m.epoch, g.name, value)
}

func (g *globalTable) Remove() {
	_, _ = g.m.db.Exec(`DELETE FROM global_state WHERE job_id=? AND operator_id=? AND table_name=?`,
		g.m.info.JobID, g.m.info.OperatorID, g.name)
}

type keyedTable struct {
	m    *Manager
	name string
}

func (k *keyedTable) Get(key []byte) ([]byte, bool) {
	var value []byte
	err := k.m.db.QueryRow(
		`SELECT value FROM keyed_state WHERE job_id=? AND operator_id=? AND epoch<=? AND table_name=? AND key=? ORDER BY epoch DESC LIMIT 1`,
		k.m.info.JobID, k.m.info.OperatorID, k.m.epoch, k.name, key).Scan(&value)
	return value, err == nil
}

func (k *keyedTable) Insert(key []byte, value []byte) {
	_, _ = k.m.db.Exec(`INSERT OR REPLACE INTO keyed_state(job_id, operator_id, epoch, table_name, key, value) VALUES (?,?,?,?,?,?)`,
		k.m.info.JobID, k.m.info.OperatorID, k.m.epoch, k.name, key, value)
}

func (k *keyedTable) Remove(key []byte) {
	_, _ = k.m.db.Exec(`DELETE FROM keyed_state WHERE job_id=? AND operator_id=? AND table_name=? AND key=?`,
		k.m.info.JobID, k.m.info.OperatorID, k.name, key)
}

type timeKeyedTable struct {
	m          *Manager
	name       string
	descriptor state.TableDescriptor
}

func (t *timeKeyedTable) Get(ts time.Time, key []byte) ([]byte, bool) {
	var value []byte
	err := t.m.db.QueryRow(
		`SELECT value FROM time_keyed_state WHERE job_id=? AND operator_id=? AND epoch<=? AND table_name=? AND event_time_unix_nanos=? AND key=? ORDER BY epoch DESC LIMIT 1`,
		t.m.info.JobID, t.m.info.OperatorID, t.m.epoch, t.name, ts.UnixNano(), key).Scan(&value)
	return value, err == nil
}

func (t *timeKeyedTable) Insert(ts time.Time, key []byte, value []byte) {
	_, _ = t.m.db.Exec(
		`INSERT OR REPLACE INTO time_keyed_state(job_id, operator_id, epoch, table_name, event_time_unix_nanos, key, value) VALUES (?,?,?,?,?,?,?)`,
		t.m.info.JobID, t.m.info.OperatorID, t.m.epoch, t.name, ts.UnixNano(), key, value)
}

func (t *timeKeyedTable) Remove(ts time.Time, key []byte) {
	_, _ = t.m.db.Exec(
		`DELETE FROM time_keyed_state WHERE job_id=? AND operator_id=? AND table_name=? AND event_time_unix_nanos=? AND key=?`,
		t.m.info.JobID, t.m.info.OperatorID, t.name, ts.UnixNano(), key)
}

func (t *timeKeyedTable) EvictAllBefore(cutoff time.Time) {
	_, _ = t.m.db.Exec(
		`DELETE FROM time_keyed_state WHERE job_id=? AND operator_id=? AND table_name=? AND event_time_unix_nanos < ?`,
		t.m.info.JobID, t.m.info.OperatorID, t.name, cutoff.UnixNano())
}

func (t *timeKeyedTable) AllEntriesForWatermark(watermark *time.Time) []state.TimeKeyedEntry {
	query := `SELECT event_time_unix_nanos, key, value FROM time_keyed_state
		WHERE job_id=? AND operator_id=? AND table_name=?`
	args := []any{t.m.info.JobID, t.m.info.OperatorID, t.name}
	if watermark != nil {
		query += ` AND event_time_unix_nanos >= ?`
		args = append(args, watermark.UnixNano())
	}
	query += ` ORDER BY event_time_unix_nanos ASC`

	rows, err := t.m.db.Query(query, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []state.TimeKeyedEntry
	for rows.Next() {
		var nanos int64
		var key, value []byte
		if err := rows.Scan(&nanos, &key, &value); err != nil {
			continue
		}
		out = append(out, state.TimeKeyedEntry{Time: time.Unix(0, nanos).UTC(), Key: key, Value: value})
	}
	return out
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/proto"
)

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rows (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session      TEXT NOT NULL,
	device_id    INTEGER NOT NULL,
	sensor       TEXT NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	reading      REAL NOT NULL,
	event        INTEGER NOT NULL DEFAULT 0,
	received_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rows_session ON rows(session);
CREATE INDEX IF NOT EXISTS idx_rows_device ON rows(device_id);
`

type SQLiteLog struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteLog{db: db}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaV1); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var ver int
	err := db.QueryRow(`SELECT version FROM schema_meta LIMIT 1`).Scan(&ver)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec(`INSERT INTO schema_meta (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case ver > schemaVersion:
		return fmt.Errorf("database schema v%d is newer than supported v%d", ver, schemaVersion)
	}
	return nil
}

func (l *SQLiteLog) Append(ctx context.Context, e fleet.LogEntry) error {
	event := 0
	if e.Event {
		event = 1
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO rows (session, device_id, sensor, timestamp_ms, reading, event, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Session, e.DeviceID, e.Sensor, e.TimestampMs, e.Reading, event,
		e.ReceivedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	return nil
}

func (l *SQLiteLog) RowCount(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rows`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func (l *SQLiteLog) Query(ctx context.Context, f Filter) ([]fleet.LogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Session != "" {
		where = append(where, "session = ?")
		args = append(args, f.Session)
	}
	if f.DeviceID != nil {
		where = append(where, "device_id = ?")
		args = append(args, *f.DeviceID)
	}
	if f.Sensor != "" {
		where = append(where, "sensor = ?")
		args = append(args, f.Sensor)
	}

	q := `SELECT id, session, device_id, sensor, timestamp_ms, reading, event, received_at FROM rows`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var out []fleet.LogEntry
	for rows.Next() {
		var (
			id       int64
			e        fleet.LogEntry
			event    int
			received string
		)
		if err := rows.Scan(&id, &e.Session, &e.DeviceID, &e.Sensor, &e.TimestampMs, &e.Reading, &event, &received); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Event = event == 1
		if t, err := time.Parse(time.RFC3339Nano, received); err == nil {
			e.ReceivedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

// Record returns a scheduler sink that stores a target's own rows under
// session "local".
func Record(l fleet.PersistentLog, deviceID func() int) func(ctx context.Context, row proto.Row) error {
	return func(ctx context.Context, row proto.Row) error {
		return l.Append(ctx, fleet.LogEntry{
			Session:    LocalSession,
			ReceivedAt: time.Now(),
			RelayRow:   proto.RelayRow{DeviceID: deviceID(), Row: row},
		})
	}
}

// LocalSession tags rows a target logged itself rather than received.
const LocalSession = "local"

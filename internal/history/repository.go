// Package history stores published parameter readings and the write audit
// trail in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-ism7/internal/bridges/ism7"
)

// Query limits.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timestampLayout is fixed-width UTC so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// ReadingRecord is one stored parameter reading.
type ReadingRecord struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	PTID      int       `json:"ptid"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	Value     string    `json:"value"`
	Numeric   *float64  `json:"numeric,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WriteEntry is one stored write request.
type WriteEntry struct {
	ID        int64               `json:"id"`
	CommandID string              `json:"command_id"`
	DeviceID  string              `json:"device_id"`
	PTID      int                 `json:"ptid"`
	Path      string              `json:"path"`
	Value     string              `json:"value"`
	Source    string              `json:"source"`
	Status    string              `json:"status"`
	ErrorCode string              `json:"error_code,omitempty"`
	Commands  []ism7.WriteCommand `json:"commands"`
	Timestamp time.Time           `json:"timestamp"`
}

// Repository defines the history operations used by the API.
type Repository interface {
	GetReadings(ctx context.Context, deviceID string, ptid, limit int) ([]ReadingRecord, error)
	GetWrites(ctx context.Context, deviceID string, limit int) ([]WriteEntry, error)
}

// SQLiteRepository persists history in the tables created by the
// ism7_history migration. It implements ism7.ReadingRecorder.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordReading inserts one reading.
func (r *SQLiteRepository) RecordReading(ctx context.Context, reading ism7.Reading) error {
	var numeric any
	if f, ok := reading.Value.Float(); ok {
		numeric = f
	}
	ts := reading.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO parameter_readings (device_id, ptid, name, path, kind, value, numeric, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.DeviceID, reading.PTID, reading.Name, reading.Path,
		reading.Value.Kind.String(), reading.Value.String(), numeric,
		ts.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// RecordWrite inserts one write audit entry.
func (r *SQLiteRepository) RecordWrite(ctx context.Context, w ism7.WriteRecord) error {
	commands := w.Commands
	if commands == nil {
		commands = []ism7.WriteCommand{}
	}
	commandsJSON, err := json.Marshal(commands)
	if err != nil {
		return fmt.Errorf("marshalling write commands: %w", err)
	}
	ts := w.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO parameter_writes (command_id, device_id, ptid, path, value, source, status, error_code, commands, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.CommandID, w.DeviceID, w.PTID, w.Path, w.Value, w.Source,
		string(w.Status), nullableString(w.ErrorCode), string(commandsJSON),
		ts.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting write: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// clampLimit applies the default and maximum page size.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// GetReadings returns the newest readings of one parameter, newest first.
func (r *SQLiteRepository) GetReadings(ctx context.Context, deviceID string, ptid, limit int) ([]ReadingRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, ptid, name, path, kind, value, numeric, recorded_at
		 FROM parameter_readings
		 WHERE device_id = ? AND ptid = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		deviceID, ptid, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	records := []ReadingRecord{}
	for rows.Next() {
		var rec ReadingRecord
		var numeric sql.NullFloat64
		var recordedAt string

		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.PTID, &rec.Name, &rec.Path,
			&rec.Kind, &rec.Value, &numeric, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if numeric.Valid {
			f := numeric.Float64
			rec.Numeric = &f
		}
		if rec.Timestamp, err = parseTimestamp(recordedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return records, nil
}

// GetWrites returns the newest write entries of a device, newest first.
func (r *SQLiteRepository) GetWrites(ctx context.Context, deviceID string, limit int) ([]WriteEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, command_id, device_id, ptid, path, value, source, status, error_code, commands, recorded_at
		 FROM parameter_writes
		 WHERE device_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		deviceID, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying writes: %w", err)
	}
	defer rows.Close()

	entries := []WriteEntry{}
	for rows.Next() {
		var e WriteEntry
		var errorCode sql.NullString
		var commandsJSON, recordedAt string

		if err := rows.Scan(&e.ID, &e.CommandID, &e.DeviceID, &e.PTID, &e.Path, &e.Value,
			&e.Source, &e.Status, &errorCode, &commandsJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning write: %w", err)
		}
		if errorCode.Valid {
			e.ErrorCode = errorCode.String
		}
		if err := json.Unmarshal([]byte(commandsJSON), &e.Commands); err != nil {
			return nil, fmt.Errorf("decoding write commands of %s: %w", e.CommandID, err)
		}
		if e.Timestamp, err = parseTimestamp(recordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating writes: %w", err)
	}
	return entries, nil
}

// Prune deletes readings recorded before cutoff and returns the number of
// rows removed. The write audit trail is kept.
func (r *SQLiteRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM parameter_readings WHERE recorded_at < ?`,
		cutoff.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning readings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning readings: %w", err)
	}
	return n, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing history timestamp %q: %w", s, err)
	}
	return t, nil
}

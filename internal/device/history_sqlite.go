package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeFormat is fixed-width so created_at sorts lexically.
	historyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

const (
	insertHistorySQL = `INSERT INTO state_history (serial, kind, state, sensor, created_at)
		VALUES (?, ?, ?, ?, ?)`

	selectHistorySQL = `SELECT id, serial, kind, state, sensor, created_at
		FROM state_history
		WHERE serial = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	pruneHistorySQL = `DELETE FROM state_history WHERE created_at < ?`
)

var errSerialRequired = errors.New("serial is required")

// SQLiteStateHistoryRepository keeps snapshots in the state_history table,
// with state and sensor stored as JSON text.
type SQLiteStateHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStateHistoryRepository returns a repository over an already
// migrated database.
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db, now: time.Now}
}

// RecordUpdate stores the snapshot carried by u. A zero u.At is stamped
// with the current time.
func (r *SQLiteStateHistoryRepository) RecordUpdate(ctx context.Context, u Update) error {
	if u.Serial == "" {
		return errSerialRequired
	}

	state, err := json.Marshal(u.State)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	sensor, err := json.Marshal(u.Sensor)
	if err != nil {
		return fmt.Errorf("encoding sensor: %w", err)
	}

	at := u.At
	if at.IsZero() {
		at = r.now()
	}

	if _, err := r.db.ExecContext(ctx, insertHistorySQL,
		u.Serial, string(u.Kind), string(state), string(sensor), formatHistoryTime(at),
	); err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// GetHistory returns up to limit entries for serial, newest first. A limit
// outside 1..200 is clamped, with 0 or less meaning 50.
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, serial string, limit int) ([]StateHistoryEntry, error) {
	if serial == "" {
		return nil, errSerialRequired
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, selectHistorySQL, serial, limit)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateHistoryEntry, 0, limit)
	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes entries recorded more than olderThan ago and
// returns how many went.
func (r *SQLiteStateHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("prune age must be positive, got %v", olderThan)
	}

	res, err := r.db.ExecContext(ctx, pruneHistorySQL, formatHistoryTime(r.now().Add(-olderThan)))
	if err != nil {
		return 0, fmt.Errorf("pruning state history: %w", err)
	}
	return res.RowsAffected()
}

func scanHistoryRow(rows *sql.Rows) (StateHistoryEntry, error) {
	var (
		e                         StateHistoryEntry
		kind, state, sensor, when string
	)
	if err := rows.Scan(&e.ID, &e.Serial, &kind, &state, &sensor, &when); err != nil {
		return e, fmt.Errorf("scanning state history: %w", err)
	}
	e.Kind = MessageKind(kind)

	if err := json.Unmarshal([]byte(state), &e.State); err != nil {
		return e, fmt.Errorf("decoding state of entry %d: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(sensor), &e.Sensor); err != nil {
		return e, fmt.Errorf("decoding sensor of entry %d: %w", e.ID, err)
	}

	at, err := time.Parse(time.RFC3339Nano, when)
	if err != nil {
		return e, fmt.Errorf("parsing created_at of entry %d: %w", e.ID, err)
	}
	e.CreatedAt = at
	return e, nil
}

func formatHistoryTime(t time.Time) string {
	return t.UTC().Format(historyTimeFormat)
}

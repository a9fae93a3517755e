package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// ErrMigrationChanged is returned when an applied migration's file no
// longer matches the checksum recorded when it ran.
var ErrMigrationChanged = errors.New("database: applied migration was modified")

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`

// Migration is one forward-only schema change read from NNNN_name.sql.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// Checksum is the hex SHA-256 of the migration body.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.SQL))
	return hex.EncodeToString(sum[:])
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// Migrate applies the migrations in fsys that have not run yet, each in
// its own transaction, and returns how many it applied. A failure leaves
// earlier migrations committed; running Migrate again resumes there.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) (int, error) {
	pending, err := db.PendingMigrations(ctx, fsys)
	if err != nil {
		return 0, err
	}

	for n, m := range pending {
		if err := db.apply(ctx, m); err != nil {
			return n, fmt.Errorf("applying migration %s_%s: %w", m.Version, m.Name, err)
		}
	}
	return len(pending), nil
}

// PendingMigrations lists the migrations in fsys that have not run, in
// order. It fails with ErrMigrationChanged if an applied one was edited.
func (db *DB) PendingMigrations(ctx context.Context, fsys fs.FS) ([]Migration, error) {
	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	all, err := LoadMigrations(fsys)
	if err != nil {
		return nil, err
	}
	records, err := db.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	checksums := make(map[string]string, len(records))
	for _, r := range records {
		checksums[r.Version] = r.Checksum
	}

	var pending []Migration
	for _, m := range all {
		sum, done := checksums[m.Version]
		switch {
		case !done:
			pending = append(pending, m)
		case sum != m.Checksum():
			return nil, fmt.Errorf("%w: %s_%s", ErrMigrationChanged, m.Version, m.Name)
		}
	}
	return pending, nil
}

// AppliedMigrations returns schema_migrations oldest first.
func (db *DB) AppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT version, name, checksum, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var (
			r  MigrationRecord
			at string
		)
		if err := rows.Scan(&r.Version, &r.Name, &r.Checksum, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by apply
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) apply(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)`,
		m.Version, m.Name, m.Checksum(), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// LoadMigrations reads the NNNN_name.sql files at the root of fsys,
// ordered by version. Other files are ignored. A nil fsys yields none.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		version, name, ok := parseMigrationFilename(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %s: %s and %s",
				out[i].Version, out[i-1].Name, out[i].Name)
		}
	}
	return out, nil
}

// parseMigrationFilename splits "0001_state_history.sql" into
// ("0001", "state_history"). The version must be all digits.
func parseMigrationFilename(filename string) (version, name string, ok bool) {
	base, isSQL := strings.CutSuffix(filename, ".sql")
	if !isSQL || path.Ext(filename) != ".sql" {
		return "", "", false
	}
	version, name, _ = strings.Cut(base, "_")
	if version == "" || name == "" || strings.Trim(version, "0123456789") != "" {
		return "", "", false
	}
	return version, name, true
}

package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"time"
)

// Migration errors.
var (
	// ErrMigrationChanged is returned when an applied migration's up SQL no
	// longer matches the checksum recorded when it ran.
	ErrMigrationChanged = errors.New("applied migration has been modified")

	// ErrMigrationUnknown is returned when the database records a version
	// that the migration source does not contain.
	ErrMigrationUnknown = errors.New("applied migration not found in source")

	// ErrNoDownSQL is returned when rolling back a migration without a
	// .down.sql file.
	ErrNoDownSQL = errors.New("migration has no down SQL")
)

// migrationFile matches YYYYMMDD_HHMMSS_description.(up|down).sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	// Version is the timestamp prefix of the filename, e.g. 20260301_120000.
	Version string

	// Name is the description part of the filename.
	Name string

	UpSQL   string
	DownSQL string
}

// Checksum returns the hex SHA-256 of the up SQL.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version   string
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// MigrationStatus compares the database with a migration source.
type MigrationStatus struct {
	Applied []AppliedMigration
	Pending []Migration
}

// Current returns the newest applied version, or "" for an empty schema.
func (s MigrationStatus) Current() string {
	if len(s.Applied) == 0 {
		return ""
	}
	return s.Applied[len(s.Applied)-1].Version
}

// LoadMigrations reads every migration in the root of source, oldest first.
// Files that do not follow the naming scheme are ignored. A nil source
// yields no migrations.
//
// Parameters:
//   - source: Filesystem holding the .sql files (usually migrations.FS)
//
// Returns:
//   - []Migration: Migrations sorted by version
//   - error: If a file cannot be read or a down file has no up file
func LoadMigrations(source fs.FS) ([]Migration, error) {
	if source == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFile.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, name, direction := match[1], match[2], match[3]

		body, err := fs.ReadFile(source, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if direction == "up" {
			m.UpSQL = string(body)
		} else {
			m.DownSQL = string(body)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			return nil, fmt.Errorf("migration %s: down file without up file", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate applies every pending migration from source, oldest first.
// Each migration runs in its own transaction, so a failure leaves the
// earlier ones committed and a rerun continues from the failed one.
//
// Migrate refuses to run when an applied migration was edited after it
// ran or when the database is ahead of the source.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - source: Filesystem holding the .sql files
//
// Returns:
//   - error: If the source is inconsistent with the database or a migration fails
func (db *DB) Migrate(ctx context.Context, source fs.FS) error {
	status, err := db.MigrationStatus(ctx, source)
	if err != nil {
		return err
	}
	for _, m := range status.Pending {
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Rollback reverts the newest applied migration using its down SQL.
// It is a no-op on an empty schema.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - source: Filesystem holding the .sql files
//
// Returns:
//   - error: If the migration has no down SQL or the rollback fails
func (db *DB) Rollback(ctx context.Context, source fs.FS) error {
	status, err := db.MigrationStatus(ctx, source)
	if err != nil {
		return err
	}
	current := status.Current()
	if current == "" {
		return nil
	}

	migrations, err := LoadMigrations(source)
	if err != nil {
		return err
	}
	var target Migration
	for _, m := range migrations {
		if m.Version == current {
			target = m
		}
	}
	if target.DownSQL == "" {
		return fmt.Errorf("%w: %s", ErrNoDownSQL, current)
	}

	return db.inTx(ctx, func(exec execer) error {
		if _, err := exec.ExecContext(ctx, target.DownSQL); err != nil {
			return fmt.Errorf("executing down SQL: %w", err)
		}
		_, err := exec.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", target.Version)
		return err
	})
}

// MigrationStatus reports which migrations from source have been applied
// and which are pending. It creates the schema_migrations table on first use.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - source: Filesystem holding the .sql files
//
// Returns:
//   - MigrationStatus: Applied rows and pending migrations
//   - error: ErrMigrationChanged, ErrMigrationUnknown or a query error
func (db *DB) MigrationStatus(ctx context.Context, source fs.FS) (MigrationStatus, error) {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return MigrationStatus{}, fmt.Errorf("creating migrations table: %w", err)
	}
	migrations, err := LoadMigrations(source)
	if err != nil {
		return MigrationStatus{}, err
	}
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}

	known := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		known[m.Version] = m
	}
	done := make(map[string]bool, len(applied))
	for _, a := range applied {
		m, ok := known[a.Version]
		if !ok {
			return MigrationStatus{}, fmt.Errorf("%w: %s", ErrMigrationUnknown, a.Version)
		}
		if a.Checksum != "" && a.Checksum != m.Checksum() {
			return MigrationStatus{}, fmt.Errorf("%w: %s (%s)", ErrMigrationChanged, a.Version, a.Name)
		}
		done[a.Version] = true
	}

	status := MigrationStatus{Applied: applied}
	for _, m := range migrations {
		if !done[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

func (db *DB) ensureMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			checksum   TEXT NOT NULL DEFAULT '',
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

func (db *DB) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := db.DB.QueryContext(ctx,
		"SELECT version, name, checksum, applied_at FROM schema_migrations ORDER BY version",
	)
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		var appliedAt string
		if err := rows.Scan(&a.Version, &a.Name, &a.Checksum, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // written by applyMigration
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return applied, nil
}

func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	return db.inTx(ctx, func(exec execer) error {
		if _, err := exec.ExecContext(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("executing SQL: %w", err)
		}
		_, err := exec.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)",
			m.Version, m.Name, m.Checksum(), time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("recording migration: %w", err)
		}
		return nil
	})
}

package db

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	embeddedmigrations "github.com/solatis/segmentkeeper/migrations"
)

/*
 * Migration runner.
 *
 * Embedded files are applied in name order, each inside its own transaction
 * together with its row in the migrations table. The row stores a sha256 of
 * the file: an applied migration whose file changed, or a row with no file,
 * stops MigrateUp before anything runs.
 *
 * applied_at is RFC3339 text on sqlite and a timestamp on postgres.
 */

// MigrationStatus represents the state of a single migration.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

type migration struct {
	ID       string
	Checksum string
	SQL      string
}

type appliedRow struct {
	ID          string `db:"migration_id"`
	Checksum    string `db:"checksum"`
	AppliedAt   any    `db:"applied_at"`
	ExecutionMs int64  `db:"execution_ms"`
}

var trackingTable = map[string]string{
	"sqlite3": `CREATE TABLE IF NOT EXISTS migrations (
		migration_id TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		execution_ms INTEGER NOT NULL,
		CHECK (applied_at LIKE '____-__-__T__:__:__Z')
	)`,
	"postgres": `CREATE TABLE IF NOT EXISTS migrations (
		migration_id TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMP WITHOUT TIME ZONE NOT NULL,
		execution_ms INTEGER NOT NULL
	)`,
}

// MigrateUp applies every pending migration.
func MigrateUp(db *sqlx.DB) error {
	migrations, applied, err := prepare(db)
	if err != nil {
		return err
	}
	if err := verifyChecksums(migrations, applied); err != nil {
		return fmt.Errorf("migration checksum validation failed: %w", err)
	}

	for _, m := range migrations {
		if _, ok := applied[m.ID]; ok {
			continue
		}
		if err := apply(db, m); err != nil {
			return err
		}
	}
	return nil
}

// MigrateStatus lists every embedded migration with its applied state.
func MigrateStatus(db *sqlx.DB) ([]MigrationStatus, error) {
	migrations, applied, err := prepare(db)
	if err != nil {
		return nil, err
	}

	return lo.Map(migrations, func(m migration, _ int) MigrationStatus {
		row, ok := applied[m.ID]
		if !ok {
			return MigrationStatus{ID: m.ID, Checksum: m.Checksum}
		}
		return MigrationStatus{
			ID:          row.ID,
			Checksum:    row.Checksum,
			Applied:     true,
			AppliedAt:   parseAppliedAt(row.AppliedAt),
			ExecutionMs: row.ExecutionMs,
		}
	}), nil
}

// Pending returns the ids of embedded migrations not yet applied.
// serve refuses to start against a stale schema.
func Pending(db *sqlx.DB) ([]string, error) {
	statuses, err := MigrateStatus(db)
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(statuses, func(s MigrationStatus, _ int) (string, bool) {
		return s.ID, !s.Applied
	}), nil
}

// prepare ensures the tracking table exists and returns the embedded
// migrations for the driver with the rows already applied.
func prepare(db *sqlx.DB) ([]migration, map[string]appliedRow, error) {
	ddl, ok := trackingTable[db.DriverName()]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported database driver: %s", db.DriverName())
	}
	if _, err := db.Exec(ddl); err != nil {
		return nil, nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	fsys, dir := embeddedmigrations.PostgresMigrations, "postgres"
	if db.DriverName() == "sqlite3" {
		fsys, dir = embeddedmigrations.SqliteMigrations, "sqlite"
	}
	migrations, err := readMigrations(fsys, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse migrations: %w", err)
	}

	var rows []appliedRow
	if err := db.Select(&rows, "SELECT migration_id, checksum, applied_at, execution_ms FROM migrations"); err != nil {
		return nil, nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	return migrations, lo.KeyBy(rows, func(r appliedRow) string { return r.ID }), nil
}

func readMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(content)
		migrations = append(migrations, migration{
			ID:       entry.Name(),
			Checksum: hex.EncodeToString(sum[:]),
			SQL:      string(content),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].ID < migrations[j].ID })
	return migrations, nil
}

func verifyChecksums(migrations []migration, applied map[string]appliedRow) error {
	embedded := lo.KeyBy(migrations, func(m migration) string { return m.ID })
	ids := lo.Keys(applied)
	sort.Strings(ids)
	for _, id := range ids {
		m, ok := embedded[id]
		if !ok {
			return fmt.Errorf("migration %s exists in database but not in embedded files", id)
		}
		if got := applied[id].Checksum; got != m.Checksum {
			return fmt.Errorf("checksum mismatch for migration %s: expected %s, got %s", id, m.Checksum, got)
		}
	}
	return nil
}

// apply runs one migration and records it in the same transaction.
func apply(db *sqlx.DB, m migration) error {
	start := time.Now()
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", m.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	// lib/pq runs one statement per Exec
	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.ID, err)
		}
	}

	var appliedAt any = time.Now().UTC()
	if tx.DriverName() == "sqlite3" {
		appliedAt = appliedAt.(time.Time).Format(time.RFC3339)
	}
	_, err = tx.Exec(
		tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)"),
		m.ID, m.Checksum, appliedAt, time.Since(start).Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.ID, err)
	}
	return nil
}

// splitStatements drops full-line "--" comments and splits on semicolons.
func splitStatements(sql string) []string {
	lines := lo.Reject(strings.Split(sql, "\n"), func(line string, _ int) bool {
		return strings.HasPrefix(strings.TrimSpace(line), "--")
	})
	stmts := lo.Map(strings.Split(strings.Join(lines, "\n"), ";"), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(stmts)
}

func parseAppliedAt(v any) *time.Time {
	var s string
	switch t := v.(type) {
	case time.Time:
		return &t
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &parsed
}

// Package store provides SQLite-backed user phrase storage for chewbridge.
//
// The table layout follows libchewing's userphrase_v1 schema so an existing
// user phrase database can be opened as-is.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "userphrase_v1 table",
		Up:          migrationV1Up,
	},
	{
		Version:     2,
		Description: "config_v1 table for the lifetime counter",
		Up:          migrationV2Up,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS userphrase_v1 (
    time      INTEGER,
    orig_freq INTEGER,
    max_freq  INTEGER,
    user_freq INTEGER,
    length    INTEGER,
    phrase    TEXT,
    phone_0   INTEGER,
    phone_1   INTEGER,
    phone_2   INTEGER,
    phone_3   INTEGER,
    phone_4   INTEGER,
    phone_5   INTEGER,
    phone_6   INTEGER,
    phone_7   INTEGER,
    phone_8   INTEGER,
    phone_9   INTEGER,
    phone_10  INTEGER,
    PRIMARY KEY (phone_0, phone_1, phone_2, phone_3, phone_4, phone_5,
                 phone_6, phone_7, phone_8, phone_9, phone_10, phrase)
);
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS config_v1 (
    id    INTEGER PRIMARY KEY,
    value INTEGER
);

INSERT OR IGNORE INTO config_v1 (id, value) VALUES (0, 0);
`

// MigrateDB applies all pending migrations to the database.
func MigrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	currentVersion, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

// GetMigrationStatus reports applied and pending migrations.
func GetMigrationStatus(db *sql.DB) (*MigrationStatus, error) {
	status := &MigrationStatus{LatestVersion: len(migrations)}

	rows, err := db.Query("SELECT version, applied_at, description FROM schema_migrations ORDER BY version")
	if err != nil {
		// Table might not exist yet
		status.Pending = migrations
		return status, nil
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var am AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&am.Version, &appliedAt, &am.Description); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		am.AppliedAt = time.Unix(0, appliedAt)
		status.Applied = append(status.Applied, am)
		applied[am.Version] = true
		status.CurrentVersion = max(status.CurrentVersion, am.Version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}

	for _, m := range migrations {
		if !applied[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

// ValidateSchema checks that all expected tables exist.
func ValidateSchema(db *sql.DB) error {
	for _, table := range []string{"userphrase_v1", "config_v1", "schema_migrations"} {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("missing required table: %s", table)
		}
	}
	return nil
}

// Inspect opens the database at path read-only and checks its schema.
// Pending migrations are reported, not applied; they run on the next Open.
func Inspect(path string) (*MigrationStatus, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var tables int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master").Scan(&tables); err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	status, err := GetMigrationStatus(db)
	if err != nil {
		return nil, err
	}
	if len(status.Pending) == 0 {
		if err := ValidateSchema(db); err != nil {
			return status, err
		}
	}
	return status, nil
}

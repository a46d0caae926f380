package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Database is the sqlite-backed system of record
type Database struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (creating if needed) battles.db under dataDir and applies all
// pending migrations
func New(dataDir string) (*Database, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "battles.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY
	// between our own goroutines.
	db.SetMaxOpenConns(1)

	d := &Database{db: db, now: time.Now}
	if err := d.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// RunMigrations applies the embedded schema migrations
func (d *Database) RunMigrations() error {
	if _, err := NewMigrationManager(d.db, nil, "").MigrateUp(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// AppliedMigrations lists the migrations recorded in the schema table
func (d *Database) AppliedMigrations() ([]MigrationRecord, error) {
	return NewMigrationManager(d.db, nil, "").GetAppliedMigrations()
}

func (d *Database) timestamp() time.Time {
	return d.now().UTC()
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func encodePoints(points []string) (string, error) {
	if points == nil {
		points = []string{}
	}
	data, err := json.Marshal(points)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodePoints(raw string) []string {
	var points []string
	if err := json.Unmarshal([]byte(raw), &points); err != nil || points == nil {
		return []string{}
	}
	return points
}

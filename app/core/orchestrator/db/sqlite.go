// Package db opens the TaskMate SQLite database and keeps its schema current.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const fileName = "taskmate.db"

// SchemaVersion is recorded in PRAGMA user_version once the tables below
// exist. A database carrying a larger number was written by a newer build.
const SchemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('low', 'medium', 'high', 'urgent')),
	status TEXT NOT NULL DEFAULT 'todo' CHECK (status IN ('todo', 'in_progress', 'completed')),
	due_date TEXT,
	category TEXT,
	tags JSON,
	embedding JSON,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`,
	// List and Search order by creation within one user.
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_created ON tasks(username, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON tasks(username, status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_category ON tasks(username, category)`,
	// The embedding backfill scans for rows without a vector.
	`CREATE INDEX IF NOT EXISTS idx_tasks_missing_embedding ON tasks(created_at) WHERE embedding IS NULL`,
}

type DB struct {
	conn *sql.DB
	path string
}

// Path returns the database file location inside dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, fileName)
}

func NewSQLiteDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := Path(dataDir)
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// SQLite allows one writer; sessions share this handle.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	if err := ensureSchema(context.Background(), conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return &DB{conn: conn, path: dbPath}, nil
}

func ensureSchema(ctx context.Context, conn *sql.DB) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case version > SchemaVersion:
		return fmt.Errorf("schema version %d is newer than this build supports (%d)", version, SchemaVersion)
	case version == SchemaVersion:
		return nil
	}

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	// PRAGMA arguments cannot be bound.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) Close() error {
	return d.conn.Close()
}

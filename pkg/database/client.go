// Package database provides the embedded SQLite client backing the execution
// store. It opens a single-file database with WAL enabled and applies the
// additive schema migrations on startup.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Config holds database connection settings.
type Config struct {
	// Path is the SQLite database file. The parent directory is created if
	// missing.
	Path string
}

// LoadConfigFromEnv reads database settings from the environment.
func LoadConfigFromEnv() Config {
	path := os.Getenv("DATABASE_PATH")
	if path == "" {
		path = "data/skein.db"
	}
	return Config{Path: path}
}

// Client wraps the shared *sql.DB handle. All goroutines serialize through a
// single connection (SetMaxOpenConns(1)), which eliminates SQLITE_BUSY errors
// from concurrent writers opening independent connections.
type Client struct {
	db *sql.DB
}

// NewClient opens the database file, enables WAL with relaxed durability, and
// initializes the schema.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	c := &Client{db: db}
	if err := c.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("Database ready", "path", cfg.Path)
	return c, nil
}

// initSchema creates all tables and applies the additive migrations. Add-column
// statements fail silently when the column already exists.
func (c *Client) initSchema(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			project_name TEXT PRIMARY KEY,
			project_dir TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_executions (
			run_id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			parent_run_id TEXT,
			parent_agent_name TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			current_state TEXT NOT NULL DEFAULT 'generating',
			call_mode TEXT NOT NULL DEFAULT 'synchronous',
			project_dir TEXT NOT NULL DEFAULT 'default',
			log_file TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tool_executions (
			invocation_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES agent_executions(run_id),
			tool_name TEXT NOT NULL,
			parameters TEXT NOT NULL,
			call_mode TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			result TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			schedule_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			project_dir TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			message TEXT NOT NULL,
			kind TEXT NOT NULL,
			interval INTEGER NOT NULL,
			start_from INTEGER,
			enabled INTEGER NOT NULL DEFAULT 1,
			last_run_at INTEGER,
			next_run_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, ddl := range tables {
		if _, err := c.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// Migrations (best-effort, silent fail if already applied).
	_, _ = c.db.ExecContext(ctx, "ALTER TABLE agent_executions ADD COLUMN project_dir TEXT NOT NULL DEFAULT 'default'")
	_, _ = c.db.ExecContext(ctx, "ALTER TABLE agent_executions ADD COLUMN log_file TEXT")
	_, _ = c.db.ExecContext(ctx, "ALTER TABLE schedules ADD COLUMN start_from INTEGER")

	_, _ = c.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_agent_executions_parent ON agent_executions(parent_run_id)`)
	_, _ = c.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_agent_executions_project ON agent_executions(project_dir)`)
	_, _ = c.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_tool_executions_run ON tool_executions(run_id)`)
	_, _ = c.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run_at)`)

	return nil
}

// DB returns the underlying handle for the service layer.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Health pings the database with a short timeout.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

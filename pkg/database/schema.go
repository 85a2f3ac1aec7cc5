package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// Tables lists every table owned by the server, in creation order.
var Tables = []string{"channels", "messages", "roles", "user_roles", "users", "login_logs"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL,
		user_id TEXT,
		username TEXT NOT NULL,
		text TEXT,
		gif_url TEXT,
		timestamp TEXT NOT NULL,
		reactions TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages (channel_id)`,
	`CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT,
		permissions TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		username TEXT NOT NULL,
		role_id TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (username, role_id)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		last_login TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS login_logs (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		conn_id TEXT,
		login_time TEXT NOT NULL,
		ip_address TEXT
	)`,
}

// addedColumns were introduced after the first release; databases created
// before that get them through ALTER TABLE.
var addedColumns = []struct {
	table, column, ddl string
}{
	{"messages", "file", "TEXT"},
	{"messages", "link_preview", "TEXT"},
	{"messages", "edited", "TEXT"},
}

// Migrate creates missing tables and columns. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	for _, c := range addedColumns {
		cols, err := columns(ctx, db, c.table)
		if err != nil {
			return err
		}
		if slices.Contains(cols, c.column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.ddl)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

// columns lists a table's columns without touching any rows, which works the
// same on sqlite and postgres.
func columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()
	return rows.Columns()
}

// Counts returns the number of rows per table.
func Counts(ctx context.Context, db *sql.DB) (map[string]int, error) {
	out := make(map[string]int, len(Tables))
	for _, t := range Tables {
		var n int
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", t, err)
		}
		out[t] = n
	}
	return out, nil
}

// Reset drops every table.
func Reset(ctx context.Context, db *sql.DB) error {
	for i := len(Tables) - 1; i >= 0; i-- {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+Tables[i]); err != nil {
			return fmt.Errorf("failed to drop %s: %w", Tables[i], err)
		}
	}
	return nil
}

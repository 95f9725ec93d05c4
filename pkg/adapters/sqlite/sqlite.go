// Package sqlite opens the tenant database used by SQL actions and i18n lookups.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens the SQLite database at dsn with foreign keys on.
// dsn is a file path, a "file:" URI, or ":memory:".
func Open(dsn string) (*sql.DB, error) {
	memory := dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
	if dsn == "" {
		dsn = ":memory:"
	}
	if !memory && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dsn)
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if memory {
		// every connection to :memory: is a fresh database
		conn.SetMaxOpenConns(1)
	}
	return conn, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS translations (
	bot_id TEXT NOT NULL,
	locale TEXT NOT NULL,
	msg_key TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (bot_id, locale, msg_key)
);
`

// EnsureSchema creates the tables the runtime itself reads.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// PutTranslation upserts one translated string.
func PutTranslation(ctx context.Context, db *sql.DB, botID, locale, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO translations (bot_id, locale, msg_key, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT (bot_id, locale, msg_key) DO UPDATE SET value = excluded.value`,
		botID, locale, key, value)
	if err != nil {
		return fmt.Errorf("failed to put translation: %w", err)
	}
	return nil
}

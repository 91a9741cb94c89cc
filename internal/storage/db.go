package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chipstack-ai/manual-engine/internal/config"
)

// Open opens the configured database.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.SQLite.Path
		if cfg.SQLite.JournalMode != "" {
			dsn = fmt.Sprintf("%s?_journal_mode=%s", dsn, cfg.SQLite.JournalMode)
		}
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if cfg.SQLite.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.SQLite.MaxOpenConns)
		}
		return db, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// EnsureSchema creates the parent and child tables if they do not
// exist. The SQL is kept portable across sqlite and postgres.
func EnsureSchema(ctx context.Context, db DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS parent_segments (
			parent_id      TEXT PRIMARY KEY,
			document_id    TEXT NOT NULL,
			title          TEXT NOT NULL,
			level          INTEGER NOT NULL,
			hierarchy_path TEXT NOT NULL,
			page_start     INTEGER NOT NULL,
			page_end       INTEGER NOT NULL,
			content        TEXT NOT NULL,
			created_at     TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_parent_segments_document
			ON parent_segments (document_id)`,
		`CREATE TABLE IF NOT EXISTS child_passages (
			document_id TEXT NOT NULL,
			chunk_id    INTEGER NOT NULL,
			parent_id   TEXT NOT NULL,
			text        TEXT NOT NULL,
			raw_text    TEXT NOT NULL,
			created_at  TIMESTAMP NOT NULL,
			PRIMARY KEY (document_id, chunk_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_child_passages_parent
			ON child_passages (parent_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

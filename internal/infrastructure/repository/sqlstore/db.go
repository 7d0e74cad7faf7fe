// Package sqlstore persists pipeline state through database/sql. It
// speaks PostgreSQL in deployments and SQLite for local runs and
// tooling; queries are written with $N placeholders and rebound for
// SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Store wraps the database handle together with its dialect.
type Store struct {
	db      *sql.DB
	dialect string
}

// Open connects using the configured driver. Accepted driver names are
// "postgres"/"pgx" and "sqlite".
func Open(driver, dsn string) (*Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DialectPostgres, "pgx":
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("sql open: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("db ping: %w", err)
		}
		return &Store{db: db, dialect: DialectPostgres}, nil
	case DialectSQLite, "sqlite3":
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("sql open: %w", err)
		}
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("db ping: %w", err)
		}
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			return nil, fmt.Errorf("enable wal: %w", err)
		}
		return &Store{db: db, dialect: DialectSQLite}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// rebind rewrites $N placeholders into SQLite's numbered ?N form.
// Postgres queries pass through untouched.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectSQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	path_hint TEXT NOT NULL DEFAULT '',
	document_type_id TEXT,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	needs_reprocessing BOOLEAN NOT NULL DEFAULT FALSE,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS expert_documents (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL REFERENCES sources(id),
	document_type_id TEXT,
	raw_content TEXT NOT NULL DEFAULT '',
	processed_content JSONB,
	classification_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	classification_confidence DOUBLE PRECISION,
	pipeline_status TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	orphaned_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expert_documents_status ON expert_documents(pipeline_status);
CREATE INDEX IF NOT EXISTS idx_expert_documents_source ON expert_documents(source_id);

CREATE TABLE IF NOT EXISTS document_types (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_document_types_name ON document_types(LOWER(name));
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	path_hint TEXT NOT NULL DEFAULT '',
	document_type_id TEXT,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	needs_reprocessing INTEGER NOT NULL DEFAULT 0,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS expert_documents (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL REFERENCES sources(id),
	document_type_id TEXT,
	raw_content TEXT NOT NULL DEFAULT '',
	processed_content TEXT,
	classification_metadata TEXT NOT NULL DEFAULT '{}',
	classification_confidence REAL,
	pipeline_status TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	orphaned_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expert_documents_status ON expert_documents(pipeline_status);
CREATE INDEX IF NOT EXISTS idx_expert_documents_source ON expert_documents(source_id);

CREATE TABLE IF NOT EXISTS document_types (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_document_types_name ON document_types(LOWER(name));
`

// EnsureSchema creates the tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ddl := schemaSQLite
	if s.dialect == DialectPostgres {
		// Serialize bootstrap DDL across concurrent worker startups.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026052601)); err != nil {
			return fmt.Errorf("acquire schema lock: %w", err)
		}
		ddl = schemaPostgres
	}

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

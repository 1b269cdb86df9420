// Package store implements the token repository: durable,
// idempotent-by-trace_id token persistence on sqlite.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaTemplate string

var validTableName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Store is the sqlite-backed Token Repository.
type Store struct {
	db    *sql.DB
	table string
}

// Open creates or opens a sqlite database at path, applies the
// concurrency-safe pragmas, and ensures the token table (named table)
// exists. table must match [A-Za-z0-9_]+ — it is interpolated into DDL,
// which database/sql cannot parameterize.
func Open(path, table string) (*Store, error) {
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("store: invalid table name %q", table)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: connect %q: %w", path, err)
	}

	// sqlite allows exactly one writer; a single pooled connection avoids
	// SQLITE_BUSY errors from this process fighting itself.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	schema := strings.ReplaceAll(schemaTemplate, "{{TABLE}}", table)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db, table: table}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}
	return nil
}

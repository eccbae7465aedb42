// Package sqlite provides a SQLite-backed store.Store using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/store/sqlstore"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Dialect is the SQLite flavour of sqlstore.
var Dialect = sqlstore.Dialect{
	Name:        "sqlite",
	Placeholder: sqlstore.QuestionMark,
	Migrations:  Migrations,
}

// Store implements store.Store using SQLite.
type Store struct {
	*sqlstore.Store
}

// New wraps an open database handle. The caller runs Migrate.
func New(db *sql.DB) *Store {
	return &Store{Store: sqlstore.New(db, Dialect)}
}

// Open opens (or creates) the database at path and applies migrations.
// Use MemoryPath for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("streampass/sqlite: storage path is required")
	}

	dsn := MemoryPath
	if path != MemoryPath {
		dsn = filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("streampass/sqlite: open: %w", err)
	}
	// One connection: transactions serialize and :memory: stays one database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("streampass/sqlite: ping: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

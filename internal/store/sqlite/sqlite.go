// Package sqlite is the single-node ledger backend. It shares its queries
// with the postgres backend through sqlstore.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/zianad/facturepro-ai/internal/store/sqlstore"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		unit_price TEXT NOT NULL,
		available_from DATE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_reference_name ON inventory (reference, name)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		invoice_date DATE NOT NULL,
		total_amount TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_items (
		invoice_id TEXT NOT NULL REFERENCES invoices (id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		reference TEXT NOT NULL,
		description TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price TEXT NOT NULL,
		line_total TEXT NOT NULL,
		PRIMARY KEY (invoice_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS company_profile (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		user_name TEXT NOT NULL,
		company_name TEXT NOT NULL,
		company_ice TEXT NOT NULL,
		company_address TEXT NOT NULL,
		company_phone TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// Dialect stores decimals as TEXT so values round-trip exactly. Write
// transactions take the database lock at BEGIN through _txlock=immediate.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:              "sqlite",
		Schema:            schema,
		IsUniqueViolation: isUniqueViolation,
	}
}

type Store struct {
	*sqlstore.Store
}

// New opens the database at path. Use ":memory:" for a throwaway database.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(path, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{Store: sqlstore.New(db, Dialect())}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

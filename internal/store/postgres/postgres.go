package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/zianad/facturepro-ai/internal/store/sqlstore"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		unit_price NUMERIC(18,6) NOT NULL,
		available_from DATE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_reference_name ON inventory (reference, name)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		invoice_date DATE NOT NULL,
		total_amount NUMERIC(18,6) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_date ON invoices (invoice_date DESC, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS invoice_items (
		invoice_id TEXT NOT NULL REFERENCES invoices (id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		reference TEXT NOT NULL,
		description TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(18,6) NOT NULL,
		line_total NUMERIC(18,6) NOT NULL,
		PRIMARY KEY (invoice_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS company_profile (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		user_name TEXT NOT NULL,
		company_name TEXT NOT NULL,
		company_ice TEXT NOT NULL,
		company_address TEXT NOT NULL,
		company_phone TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// Dialect is the Postgres flavour of the shared SQL ledger. Writes run
// SERIALIZABLE and lock inventory rows with FOR UPDATE.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:              "postgres",
		NumberedParams:    true,
		ForUpdate:         " FOR UPDATE",
		Schema:            schema,
		TxOptions:         &sql.TxOptions{Isolation: sql.LevelSerializable},
		IsUniqueViolation: isUniqueViolation,
	}
}

type Store struct {
	*sqlstore.Store
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{Store: sqlstore.New(db, Dialect())}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Package sqlstore implements store.Repository on database/sql. The postgres
// and sqlite packages supply a Dialect and own the connection setup.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zianad/facturepro-ai/internal/domain"
	"github.com/zianad/facturepro-ai/internal/store"
)

type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2) instead of "?".
	NumberedParams bool
	// ForUpdate is appended to row reads that must lock inside a transaction.
	ForUpdate string
	Schema    []string
	TxOptions *sql.TxOptions
	// IsUniqueViolation reports a primary key or unique index conflict.
	IsUniqueViolation func(err error) bool
}

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s migrate: %w", s.dialect.Name, err)
		}
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	return s.listInventory(ctx, s.db, "", nil)
}

func (s *Store) GetInventory(ctx context.Context, id string) (*domain.InventoryRecord, error) {
	return s.getInventory(ctx, s.db, id, false)
}

func (s *Store) ListInvoices(ctx context.Context) ([]domain.InvoiceRecord, error) {
	return s.listInvoices(ctx, s.db)
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.InvoiceRecord, error) {
	return s.getInvoice(ctx, s.db, id)
}

func (s *Store) GetProfile(ctx context.Context) (*domain.Profile, error) {
	var profile domain.Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT user_name, company_name, company_ice, company_address, company_phone, updated_at
		FROM company_profile
		WHERE id = 1
	`).Scan(&profile.UserName, &profile.CompanyName, &profile.CompanyICE, &profile.CompanyAddress, &profile.CompanyPhone, &profile.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("profile", "company")
	}
	if err != nil {
		return nil, err
	}
	profile.UpdatedAt = profile.UpdatedAt.UTC()
	return &profile, nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (t *txStore) GetInventoryForUpdate(ctx context.Context, id string) (*domain.InventoryRecord, error) {
	return t.parent.getInventory(ctx, t.tx, id, true)
}

func (t *txStore) FindInventoryByKey(ctx context.Context, reference string, name string) ([]domain.InventoryRecord, error) {
	return t.parent.listInventory(ctx, t.tx, "WHERE reference = ? AND name = ?", []any{reference, name})
}

func (t *txStore) FindInventoryByReference(ctx context.Context, reference string) ([]domain.InventoryRecord, error) {
	return t.parent.listInventory(ctx, t.tx, "WHERE reference = ?", []any{reference})
}

func (t *txStore) InsertInventory(ctx context.Context, record domain.InventoryRecord) error {
	if record.ID == "" {
		return fmt.Errorf("%w: inventory id is required", domain.ErrInvalidRequest)
	}
	if record.Quantity < 0 {
		return store.ErrNegativeStock
	}
	_, err := t.tx.ExecContext(ctx, t.parent.rebind(`
		INSERT INTO inventory (id, reference, name, quantity, unit_price, available_from)
		VALUES (?, ?, ?, ?, ?, ?)
	`), record.ID, record.Reference, record.Name, record.Quantity, record.UnitPrice, domain.DateOnly(record.AvailableFrom))
	if err != nil {
		if t.parent.isUniqueViolation(err) {
			return fmt.Errorf("%w: inventory id %s already exists", domain.ErrInvalidRequest, record.ID)
		}
		return err
	}
	return nil
}

func (t *txStore) UpdateInventory(ctx context.Context, record domain.InventoryRecord) error {
	if record.Quantity < 0 {
		return store.ErrNegativeStock
	}
	res, err := t.tx.ExecContext(ctx, t.parent.rebind(`
		UPDATE inventory
		SET reference = ?, name = ?, quantity = ?, unit_price = ?, available_from = ?
		WHERE id = ?
	`), record.Reference, record.Name, record.Quantity, record.UnitPrice, domain.DateOnly(record.AvailableFrom), record.ID)
	if err != nil {
		return err
	}
	return expectAffected(res, "inventory item", record.ID)
}

func (t *txStore) DeleteInventory(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, t.parent.rebind(`DELETE FROM inventory WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectAffected(res, "inventory item", id)
}

func (t *txStore) ClearInventory(ctx context.Context) (int, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM inventory`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *txStore) GetInvoice(ctx context.Context, id string) (*domain.InvoiceRecord, error) {
	return t.parent.getInvoice(ctx, t.tx, id)
}

func (t *txStore) ListInvoices(ctx context.Context) ([]domain.InvoiceRecord, error) {
	return t.parent.listInvoices(ctx, t.tx)
}

func (t *txStore) InsertInvoice(ctx context.Context, invoice domain.InvoiceRecord) error {
	if invoice.ID == "" {
		return fmt.Errorf("%w: invoice id is required", domain.ErrInvalidRequest)
	}
	createdAt := invoice.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, t.parent.rebind(`
		INSERT INTO invoices (id, invoice_number, customer_name, invoice_date, total_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), invoice.ID, invoice.InvoiceNumber, invoice.CustomerName, domain.DateOnly(invoice.Date), invoice.TotalAmount, createdAt.UTC())
	if err != nil {
		if t.parent.isUniqueViolation(err) {
			return fmt.Errorf("%w: invoice id %s already exists", domain.ErrInvalidRequest, invoice.ID)
		}
		return err
	}

	insertItem := t.parent.rebind(`
		INSERT INTO invoice_items (invoice_id, position, reference, description, quantity, unit_price, line_total)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	for i, line := range invoice.LineItems {
		if _, err := t.tx.ExecContext(ctx, insertItem,
			invoice.ID, i, line.Reference, line.Description, line.Quantity, line.UnitPrice, line.LineTotal,
		); err != nil {
			return err
		}
	}
	return nil
}

func (t *txStore) DeleteInvoice(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, t.parent.rebind(`DELETE FROM invoice_items WHERE invoice_id = ?`), id); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, t.parent.rebind(`DELETE FROM invoices WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectAffected(res, "invoice", id)
}

func (t *txStore) ClearInvoices(ctx context.Context) (int, error) {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM invoice_items`); err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM invoices`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// SaveProfile upserts the single company_profile row.
func (t *txStore) SaveProfile(ctx context.Context, profile domain.Profile) error {
	updatedAt := profile.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, t.parent.rebind(`
		INSERT INTO company_profile (id, user_name, company_name, company_ice, company_address, company_phone, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_name = excluded.user_name,
			company_name = excluded.company_name,
			company_ice = excluded.company_ice,
			company_address = excluded.company_address,
			company_phone = excluded.company_phone,
			updated_at = excluded.updated_at
	`), profile.UserName, profile.CompanyName, profile.CompanyICE, profile.CompanyAddress, profile.CompanyPhone, updatedAt.UTC())
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.ErrInvalidRequest
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), user.Username, user.Password, user.Role, true, user.CreatedAt.UTC(), time.Now().UTC())
	if err != nil {
		if s.isUniqueViolation(err) {
			return store.ErrDuplicateUser
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.ErrInvalidRequest
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE app_users
		SET password = ?, updated_at = ?
		WHERE username = ?
	`), password, time.Now().UTC(), username)
	if err != nil {
		return err
	}
	return expectAffected(res, "user", username)
}

func (s *Store) listInventory(ctx context.Context, q querier, where string, args []any) ([]domain.InventoryRecord, error) {
	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT id, reference, name, quantity, unit_price, available_from
		FROM inventory
		`+where+`
		ORDER BY reference, available_from, id
	`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryRecord, 0, 64)
	for rows.Next() {
		record, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) getInventory(ctx context.Context, q querier, id string, forUpdate bool) (*domain.InventoryRecord, error) {
	query := `
		SELECT id, reference, name, quantity, unit_price, available_from
		FROM inventory
		WHERE id = ?`
	if forUpdate {
		query += s.dialect.ForUpdate
	}
	record, err := scanInventory(q.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("inventory item", id)
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) listInvoices(ctx context.Context, q querier) ([]domain.InvoiceRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, invoice_number, customer_name, invoice_date, total_amount, created_at
		FROM invoices
		ORDER BY invoice_date DESC, created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.InvoiceRecord, 0, 32)
	index := make(map[string]int)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		index[invoice.ID] = len(invoices)
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	itemRows, err := q.QueryContext(ctx, `
		SELECT invoice_id, reference, description, quantity, unit_price, line_total
		FROM invoice_items
		ORDER BY invoice_id, position
	`)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var invoiceID string
		var line domain.LineItem
		if err := itemRows.Scan(&invoiceID, &line.Reference, &line.Description, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		if i, ok := index[invoiceID]; ok {
			invoices[i].LineItems = append(invoices[i].LineItems, line)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) getInvoice(ctx context.Context, q querier, id string) (*domain.InvoiceRecord, error) {
	invoice, err := scanInvoice(q.QueryRowContext(ctx, s.rebind(`
		SELECT id, invoice_number, customer_name, invoice_date, total_amount, created_at
		FROM invoices
		WHERE id = ?
	`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("invoice", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT reference, description, quantity, unit_price, line_total
		FROM invoice_items
		WHERE invoice_id = ?
		ORDER BY position
	`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.LineItem
		if err := rows.Scan(&line.Reference, &line.Description, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		invoice.LineItems = append(invoice.LineItems, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &invoice, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInventory(row scanner) (domain.InventoryRecord, error) {
	var record domain.InventoryRecord
	var price decimal.Decimal
	if err := row.Scan(&record.ID, &record.Reference, &record.Name, &record.Quantity, &price, &record.AvailableFrom); err != nil {
		return domain.InventoryRecord{}, err
	}
	record.UnitPrice = price
	record.AvailableFrom = domain.DateOnly(record.AvailableFrom)
	return record, nil
}

func scanInvoice(row scanner) (domain.InvoiceRecord, error) {
	var invoice domain.InvoiceRecord
	if err := row.Scan(&invoice.ID, &invoice.InvoiceNumber, &invoice.CustomerName, &invoice.Date, &invoice.TotalAmount, &invoice.CreatedAt); err != nil {
		return domain.InvoiceRecord{}, err
	}
	invoice.Date = domain.DateOnly(invoice.Date)
	invoice.CreatedAt = invoice.CreatedAt.UTC()
	invoice.LineItems = []domain.LineItem{}
	return invoice, nil
}

// rebind rewrites "?" placeholders for dialects with numbered parameters.
func (s *Store) rebind(query string) string {
	if !s.dialect.NumberedParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) isUniqueViolation(err error) bool {
	return s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err)
}

func expectAffected(res sql.Result, kind string, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.NotFound(kind, id)
	}
	return nil
}

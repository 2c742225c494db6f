package store

import (
	"context"
	"errors"

	"github.com/zianad/facturepro-ai/internal/domain"
)

var (
	ErrNotFound      = domain.ErrNotFound
	ErrNegativeStock = domain.ErrNegativeStock
	ErrDuplicateUser = errors.New("user already exists")
)

// Repository is the persistent ledger. Reads outside RunInTx see committed
// state only; every mutation goes through RunInTx.
type Repository interface {
	ListInventory(ctx context.Context) ([]domain.InventoryRecord, error)
	GetInventory(ctx context.Context, id string) (*domain.InventoryRecord, error)
	ListInvoices(ctx context.Context) ([]domain.InvoiceRecord, error)
	GetInvoice(ctx context.Context, id string) (*domain.InvoiceRecord, error)

	// RunInTx applies fn atomically. If fn returns an error nothing it wrote
	// is visible to later reads.
	RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// GetProfile returns ErrNotFound until a profile has been saved.
	GetProfile(ctx context.Context) (*domain.Profile, error)

	UserStore
}

// LedgerTx is the write view handed to RunInTx callbacks.
type LedgerTx interface {
	// GetInventoryForUpdate returns the live record and locks it for the rest
	// of the transaction where the backend supports row locks.
	GetInventoryForUpdate(ctx context.Context, id string) (*domain.InventoryRecord, error)
	// FindInventoryByKey returns every record matching reference and name.
	FindInventoryByKey(ctx context.Context, reference string, name string) ([]domain.InventoryRecord, error)
	FindInventoryByReference(ctx context.Context, reference string) ([]domain.InventoryRecord, error)
	InsertInventory(ctx context.Context, record domain.InventoryRecord) error
	UpdateInventory(ctx context.Context, record domain.InventoryRecord) error
	DeleteInventory(ctx context.Context, id string) error
	ClearInventory(ctx context.Context) (int, error)

	GetInvoice(ctx context.Context, id string) (*domain.InvoiceRecord, error)
	ListInvoices(ctx context.Context) ([]domain.InvoiceRecord, error)
	InsertInvoice(ctx context.Context, invoice domain.InvoiceRecord) error
	DeleteInvoice(ctx context.Context, id string) error
	ClearInvoices(ctx context.Context) (int, error)

	// SaveProfile creates or replaces the company profile.
	SaveProfile(ctx context.Context, profile domain.Profile) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                   = errors.New("not found")
	ErrInvalidRequest             = errors.New("invalid request")
	ErrInsufficientStock          = errors.New("insufficient stock")
	ErrInsufficientInventoryValue = errors.New("insufficient inventory value")
	ErrNoItemsForDate             = errors.New("no items available for date")
	ErrNegativeStock              = errors.New("stock quantity cannot be negative")
)

// InsufficientInventoryValueError is returned when the requested invoice total
// exceeds what the stock available on the invoice date can realize.
type InsufficientInventoryValueError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientInventoryValueError) Error() string {
	return fmt.Sprintf("insufficient inventory value: requested %s, available %s",
		e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientInventoryValueError) Unwrap() error {
	return ErrInsufficientInventoryValue
}

// InsufficientStockError names the SKU whose live quantity fell below what the
// allocation needs.
type InsufficientStockError struct {
	SKUName   string
	Reference string
	Required  int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (ref: %s): required %d, available %d",
		e.SKUName, e.Reference, e.Required, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

type NoItemsForDateError struct {
	Date string
}

func (e *NoItemsForDateError) Error() string {
	return fmt.Sprintf("no items available on or before %s", e.Date)
}

func (e *NoItemsForDateError) Unwrap() error {
	return ErrNoItemsForDate
}

type RecordNotFoundError struct {
	Kind string
	ID   string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *RecordNotFoundError) Unwrap() error {
	return ErrNotFound
}

func NotFound(kind string, id string) error {
	return &RecordNotFoundError{Kind: kind, ID: id}
}

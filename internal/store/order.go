package store

import (
	"cmp"
	"slices"

	"github.com/zianad/facturepro-ai/internal/domain"
)

// SortInventory orders records by reference, then availability date, then ID.
func SortInventory(items []domain.InventoryRecord) {
	slices.SortStableFunc(items, func(a, b domain.InventoryRecord) int {
		if c := cmp.Compare(a.Reference, b.Reference); c != 0 {
			return c
		}
		if c := a.AvailableFrom.Compare(b.AvailableFrom); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// SortInvoices orders invoices newest first by date, then creation time.
func SortInvoices(items []domain.InvoiceRecord) {
	slices.SortStableFunc(items, func(a, b domain.InvoiceRecord) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// MostRecent returns the record with the latest AvailableFrom, or nil.
func MostRecent(items []domain.InventoryRecord) *domain.InventoryRecord {
	var best *domain.InventoryRecord
	for i := range items {
		if best == nil || items[i].AvailableFrom.After(best.AvailableFrom) {
			best = &items[i]
		}
	}
	return best
}

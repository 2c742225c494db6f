package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zianad/facturepro-ai/internal/domain"
	"github.com/zianad/facturepro-ai/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

var day = time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, records ...domain.InventoryRecord) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.RunInTx(ctx, func(tx store.LedgerTx) error {
		for _, r := range records {
			if err := tx.InsertInventory(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestInventoryRoundTripKeepsDecimalsAndDates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, domain.InventoryRecord{
		ID: "sku-1", Reference: "R1", Name: "Stylo", Quantity: 12,
		UnitPrice: decimal.RequireFromString("0.333333"), AvailableFrom: day,
	})

	got, err := s.GetInventory(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 12, got.Quantity)
	assert.Equal(t, "0.333333", got.UnitPrice.String())
	assert.True(t, got.AvailableFrom.Equal(day), "available_from %s", got.AvailableFrom)

	_, err = s.GetInventory(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvoiceRoundTripPreservesLineOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	invoice := domain.InvoiceRecord{
		ID:            "inv-1",
		InvoiceNumber: "F-2025-001",
		CustomerName:  "Atlas SARL",
		Date:          day,
		TotalAmount:   decimal.RequireFromString("240"),
		CreatedAt:     time.Date(2025, 2, 14, 9, 30, 0, 0, time.UTC),
		LineItems: []domain.LineItem{
			{Reference: "B", Description: "Second", Quantity: 2, UnitPrice: decimal.NewFromInt(50), LineTotal: decimal.NewFromInt(100)},
			{Reference: "A", Description: "First", Quantity: 10, UnitPrice: decimal.NewFromInt(10), LineTotal: decimal.NewFromInt(100)},
		},
	}
	require.NoError(t, s.RunInTx(ctx, func(tx store.LedgerTx) error {
		return tx.InsertInvoice(ctx, invoice)
	}))

	got, err := s.GetInvoice(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, got.LineItems, 2)
	assert.Equal(t, "B", got.LineItems[0].Reference)
	assert.Equal(t, "A", got.LineItems[1].Reference)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(240)))
	assert.True(t, got.Date.Equal(day))
	assert.True(t, got.CreatedAt.Equal(invoice.CreatedAt))

	list, err := s.ListInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].LineItems, 2)
}

func TestRunInTxRollsBackEveryWrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, domain.InventoryRecord{
		ID: "sku-1", Reference: "R1", Name: "Stylo", Quantity: 5,
		UnitPrice: decimal.NewFromInt(2), AvailableFrom: day,
	})

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx store.LedgerTx) error {
		record, err := tx.GetInventoryForUpdate(ctx, "sku-1")
		if err != nil {
			return err
		}
		record.Quantity = 0
		if err := tx.UpdateInventory(ctx, *record); err != nil {
			return err
		}
		if err := tx.InsertInvoice(ctx, domain.InvoiceRecord{ID: "inv-x", InvoiceNumber: "X", Date: day, TotalAmount: decimal.NewFromInt(10)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetInventory(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)

	invoices, err := s.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestUpdateInventoryRejectsNegativeQuantity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, domain.InventoryRecord{
		ID: "sku-1", Reference: "R1", Name: "Stylo", Quantity: 1,
		UnitPrice: decimal.NewFromInt(2), AvailableFrom: day,
	})

	err := s.RunInTx(ctx, func(tx store.LedgerTx) error {
		return tx.UpdateInventory(ctx, domain.InventoryRecord{
			ID: "sku-1", Reference: "R1", Name: "Stylo", Quantity: -1,
			UnitPrice: decimal.NewFromInt(2), AvailableFrom: day,
		})
	})
	assert.ErrorIs(t, err, store.ErrNegativeStock)
}

func TestFindInventoryByKeyAndClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s,
		domain.InventoryRecord{ID: "a", Reference: "R", Name: "N", Quantity: 1, UnitPrice: decimal.NewFromInt(1), AvailableFrom: day},
		domain.InventoryRecord{ID: "b", Reference: "R", Name: "N", Quantity: 1, UnitPrice: decimal.NewFromInt(1), AvailableFrom: day.AddDate(0, 1, 0)},
		domain.InventoryRecord{ID: "c", Reference: "R", Name: "Other", Quantity: 1, UnitPrice: decimal.NewFromInt(1), AvailableFrom: day},
	)

	require.NoError(t, s.RunInTx(ctx, func(tx store.LedgerTx) error {
		matches, err := tx.FindInventoryByKey(ctx, "R", "N")
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "b", store.MostRecent(matches).ID)

		byRef, err := tx.FindInventoryByReference(ctx, "R")
		require.NoError(t, err)
		assert.Len(t, byRef, 3)

		n, err := tx.ClearInventory(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		return nil
	}))

	items, err := s.ListInventory(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateUser(ctx, domain.UserAccount{Username: "Admin", Password: "hash", Role: domain.RoleAdmin}))
	assert.ErrorIs(t, s.CreateUser(ctx, domain.UserAccount{Username: "admin", Password: "hash"}), store.ErrDuplicateUser)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].Username)
	assert.True(t, users[0].Active)

	require.NoError(t, s.UpdateUserPassword(ctx, "admin", "new-hash"))
	assert.ErrorIs(t, s.UpdateUserPassword(ctx, "ghost", "x"), domain.ErrNotFound)
}

func TestProfileUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetProfile(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	saved := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.RunInTx(ctx, func(tx store.LedgerTx) error {
		return tx.SaveProfile(ctx, domain.Profile{
			UserName:       "Nadia",
			CompanyName:    "Papeterie Atlas SARL",
			CompanyICE:     "001234567000089",
			CompanyAddress: "12 rue Allal Ben Abdellah, Casablanca",
			CompanyPhone:   "+212 522 000 000",
			UpdatedAt:      saved,
		})
	}))

	profile, err := s.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "001234567000089", profile.CompanyICE)
	assert.True(t, profile.UpdatedAt.Equal(saved))

	require.NoError(t, s.RunInTx(ctx, func(tx store.LedgerTx) error {
		return tx.SaveProfile(ctx, domain.Profile{CompanyName: "Atlas Bureautique", UpdatedAt: saved.Add(time.Hour)})
	}))
	profile, err = s.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Atlas Bureautique", profile.CompanyName)
	assert.Empty(t, profile.UserName)
	assert.True(t, profile.UpdatedAt.Equal(saved.Add(time.Hour)))

	var rows int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM company_profile`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

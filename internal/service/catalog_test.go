package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/zianad/facturepro-ai/internal/domain"
)

func TestImportInventoryMergesByReference(t *testing.T) {
	svc, repo := newTestService(t, "0.20",
		item("P1", "PAP-A4", "Ramette A4", "4.90", 10, "2025-01-01"),
	)
	ctx := context.Background()

	resp, err := svc.ImportInventory(ctx, []domain.InventoryItemRequest{
		{Reference: "PAP-A4", Name: "Ramette A4 80g", Quantity: 5, UnitPrice: decimal.RequireFromString("5.10"), AvailableFrom: "2025-04-01"},
		{Reference: "STY-01", Name: "Stylo", Quantity: 100, UnitPrice: decimal.RequireFromString("0.45"), AvailableFrom: "2025-04-01"},
		{Reference: "STY-01", Name: "Stylo bleu", Quantity: 20, UnitPrice: decimal.RequireFromString("0.50")},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if resp.Inserted != 1 || resp.Merged != 2 {
		t.Fatalf("expected 1 inserted and 2 merged, got %+v", resp)
	}

	merged, err := repo.GetInventory(ctx, "P1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if merged.Quantity != 15 || merged.Name != "Ramette A4 80g" || !merged.UnitPrice.Equal(decimal.RequireFromString("5.10")) {
		t.Fatalf("unexpected merged record %+v", merged)
	}

	items, err := svc.ListInventory(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 records, got %d", len(items))
	}
	stylo := items[1]
	if stylo.Reference != "STY-01" || stylo.Quantity != 120 || stylo.Name != "Stylo bleu" {
		t.Fatalf("unexpected stylo record %+v", stylo)
	}
	if !stylo.AvailableFrom.Equal(domain.DateOnly(fixedNow)) {
		t.Fatalf("expected missing date to default to today, got %s", stylo.AvailableFrom)
	}
}

func TestImportInventoryIsAtomic(t *testing.T) {
	svc, _ := newTestService(t, "0.20")
	ctx := context.Background()

	_, err := svc.ImportInventory(ctx, []domain.InventoryItemRequest{
		{Reference: "OK-1", Name: "Valid", Quantity: 1, UnitPrice: decimal.NewFromInt(1)},
		{Reference: "BAD", Name: "Negative", Quantity: -2, UnitPrice: decimal.NewFromInt(1)},
	})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	items, _ := svc.ListInventory(ctx)
	if len(items) != 0 {
		t.Fatalf("expected nothing imported, got %d", len(items))
	}
}

func TestInventoryItemLifecycle(t *testing.T) {
	svc, _ := newTestService(t, "0.20")
	ctx := context.Background()

	created, err := svc.AddInventoryItem(ctx, domain.InventoryItemRequest{
		Reference: " CLS-A4 ", Name: "Classeur", Quantity: 12, UnitPrice: decimal.RequireFromString("3.20"), AvailableFrom: "2025-02-01",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if created.ID == "" || created.Reference != "CLS-A4" {
		t.Fatalf("unexpected created record %+v", created)
	}

	updated, err := svc.UpdateInventoryItem(ctx, created.ID, domain.InventoryItemRequest{
		Reference: "CLS-A4", Name: "Classeur levier", Quantity: 8, UnitPrice: decimal.RequireFromString("3.50"), AvailableFrom: "2025-02-01",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Quantity != 8 || updated.Name != "Classeur levier" {
		t.Fatalf("unexpected updated record %+v", updated)
	}

	if _, err := svc.UpdateInventoryItem(ctx, "sku-missing", domain.InventoryItemRequest{
		Reference: "X", Name: "X", Quantity: 1, UnitPrice: decimal.NewFromInt(1),
	}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := svc.DeleteInventoryItem(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteInventoryItem(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestAddInventoryItemValidates(t *testing.T) {
	svc, _ := newTestService(t, "0.20")
	cases := []domain.InventoryItemRequest{
		{Reference: "", Name: "N", Quantity: 1, UnitPrice: decimal.NewFromInt(1)},
		{Reference: "R", Name: "N", Quantity: -1, UnitPrice: decimal.NewFromInt(1)},
		{Reference: "R", Name: "N", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)},
		{Reference: "R", Name: "N", Quantity: 1, UnitPrice: decimal.NewFromInt(1), AvailableFrom: "2025/01/01"},
	}
	for i, req := range cases {
		if _, err := svc.AddInventoryItem(context.Background(), req); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestClearInventory(t *testing.T) {
	svc, _ := newTestService(t, "0.20",
		item("A", "A", "A", "1", 1, "2025-01-01"),
		item("B", "B", "B", "1", 1, "2025-01-01"),
	)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	removed, err := svc.ClearInventory(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	items, _ := svc.ListInventory(ctx)
	if len(items) != 0 {
		t.Fatalf("expected empty inventory, got %d", len(items))
	}
}

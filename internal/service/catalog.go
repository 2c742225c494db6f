package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/zianad/facturepro-ai/internal/domain"
	"github.com/zianad/facturepro-ai/internal/store"
	"github.com/zianad/facturepro-ai/internal/xid"
)

func (s *Service) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	return s.repo.ListInventory(ctx)
}

func (s *Service) AddInventoryItem(ctx context.Context, req domain.InventoryItemRequest) (domain.InventoryRecord, error) {
	record, err := s.normalizeItem(req)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	record.ID = xid.New("sku")

	err = s.write(ctx, func(tx store.LedgerTx) error {
		return tx.InsertInventory(ctx, record)
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return record, nil
}

func (s *Service) UpdateInventoryItem(ctx context.Context, id string, req domain.InventoryItemRequest) (domain.InventoryRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.InventoryRecord{}, fmt.Errorf("%w: inventory id is required", domain.ErrInvalidRequest)
	}
	record, err := s.normalizeItem(req)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	record.ID = id

	err = s.write(ctx, func(tx store.LedgerTx) error {
		if _, err := tx.GetInventoryForUpdate(ctx, id); err != nil {
			return err
		}
		return tx.UpdateInventory(ctx, record)
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return record, nil
}

func (s *Service) DeleteInventoryItem(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: inventory id is required", domain.ErrInvalidRequest)
	}
	return s.write(ctx, func(tx store.LedgerTx) error {
		return tx.DeleteInventory(ctx, id)
	})
}

func (s *Service) ClearInventory(ctx context.Context) (int, error) {
	var removed int
	err := s.write(ctx, func(tx store.LedgerTx) error {
		n, err := tx.ClearInventory(ctx)
		removed = n
		return err
	})
	if err != nil {
		return 0, err
	}
	actor, _ := ActorFromContext(ctx)
	log.Printf("[service] inventory cleared removed=%d by=%s", removed, actor.Username)
	return removed, nil
}

// ImportInventory merges a batch by reference: an existing reference gets the
// quantity added and its name, price and availability date replaced, anything
// else is inserted. The batch is applied atomically.
func (s *Service) ImportInventory(ctx context.Context, items []domain.InventoryItemRequest) (domain.InventoryImportResponse, error) {
	if len(items) == 0 {
		return domain.InventoryImportResponse{}, fmt.Errorf("%w: import has no items", domain.ErrInvalidRequest)
	}
	records := make([]domain.InventoryRecord, 0, len(items))
	for i, item := range items {
		record, err := s.normalizeItem(item)
		if err != nil {
			return domain.InventoryImportResponse{}, fmt.Errorf("item %d: %w", i+1, err)
		}
		records = append(records, record)
	}

	var resp domain.InventoryImportResponse
	err := s.write(ctx, func(tx store.LedgerTx) error {
		resp = domain.InventoryImportResponse{}
		for _, incoming := range records {
			matches, err := tx.FindInventoryByReference(ctx, incoming.Reference)
			if err != nil {
				return err
			}
			if existing := store.MostRecent(matches); existing != nil {
				existing.Quantity += incoming.Quantity
				existing.Name = incoming.Name
				existing.UnitPrice = incoming.UnitPrice
				existing.AvailableFrom = incoming.AvailableFrom
				if err := tx.UpdateInventory(ctx, *existing); err != nil {
					return err
				}
				resp.Merged++
				continue
			}
			incoming.ID = xid.New("sku")
			if err := tx.InsertInventory(ctx, incoming); err != nil {
				return err
			}
			resp.Inserted++
		}
		return nil
	})
	if err != nil {
		return domain.InventoryImportResponse{}, err
	}
	return resp, nil
}

// write runs fn as a serialized ledger write and drops cached valuations
// once it commits.
func (s *Service) write(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.RunInTx(ctx, fn); err != nil {
		return err
	}
	s.invalidateValuations(ctx)
	return nil
}

func (s *Service) normalizeItem(req domain.InventoryItemRequest) (domain.InventoryRecord, error) {
	reference := strings.TrimSpace(req.Reference)
	name := strings.TrimSpace(req.Name)
	if reference == "" || name == "" {
		return domain.InventoryRecord{}, fmt.Errorf("%w: reference and name are required", domain.ErrInvalidRequest)
	}
	if req.Quantity < 0 {
		return domain.InventoryRecord{}, fmt.Errorf("%w: quantity must not be negative", domain.ErrInvalidRequest)
	}
	if req.UnitPrice.IsNegative() {
		return domain.InventoryRecord{}, fmt.Errorf("%w: unit price must not be negative", domain.ErrInvalidRequest)
	}

	availableFrom := s.today()
	if raw := strings.TrimSpace(req.AvailableFrom); raw != "" {
		parsed, err := domain.ParseDate(raw)
		if err != nil {
			return domain.InventoryRecord{}, fmt.Errorf("%w: available_from must be YYYY-MM-DD", domain.ErrInvalidRequest)
		}
		availableFrom = parsed
	}

	return domain.InventoryRecord{
		Reference:     reference,
		Name:          name,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		AvailableFrom: availableFrom,
	}, nil
}

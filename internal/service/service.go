package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zianad/facturepro-ai/internal/allocation"
	"github.com/zianad/facturepro-ai/internal/cache"
	"github.com/zianad/facturepro-ai/internal/domain"
	"github.com/zianad/facturepro-ai/internal/store"
	"github.com/zianad/facturepro-ai/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	TaxRate      decimal.Decimal
	Policy       allocation.Policy
	Cache        cache.ValuationCache
	ValuationTTL time.Duration
	// Now is overridden in tests.
	Now func() time.Time
}

// Service is the ledger coordinator. Every write runs under writeMu and
// inside a single store transaction, so readers never see a half-applied
// invoice, deletion or restock.
type Service struct {
	repo         store.Repository
	cache        cache.ValuationCache
	taxRate      decimal.Decimal
	policy       allocation.Policy
	valuationTTL time.Duration
	now          func() time.Time
	allocate     func(target, taxRate decimal.Decimal, skus []domain.InventoryRecord, policy allocation.Policy) (allocation.Selection, error)

	writeMu sync.RWMutex
}

func New(repo store.Repository, opts Options) *Service {
	if opts.TaxRate.IsNegative() {
		opts.TaxRate = decimal.Zero
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopValuationCache{}
	}
	if opts.ValuationTTL <= 0 {
		opts.ValuationTTL = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:         repo,
		cache:        opts.Cache,
		taxRate:      opts.TaxRate,
		policy:       opts.Policy.Normalize(),
		valuationTTL: opts.ValuationTTL,
		now:          opts.Now,
		allocate:     allocation.Allocate,
	}
}

func (s *Service) TaxRate() decimal.Decimal {
	return s.taxRate
}

func (s *Service) Totals(invoice domain.InvoiceRecord) domain.InvoiceTotals {
	return domain.TotalsFor(invoice, s.taxRate)
}

func (s *Service) today() time.Time {
	return domain.DateOnly(s.now())
}

// AvailableValue is the tax-inclusive value of stock that can be invoiced on
// asOf, rounded to cents. It is also the largest invoice CreateInvoice accepts
// for that date.
func (s *Service) AvailableValue(ctx context.Context, asOf time.Time) (decimal.Decimal, error) {
	key := domain.DateOnly(asOf).Format(domain.DateLayout)
	if value, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Printf("[cache] WARN: valuation lookup failed date=%s: %v", key, err)
	} else if ok {
		return value, nil
	}

	// Writers invalidate after commit; holding the read lock keeps a value
	// computed from a pre-commit snapshot from landing in the cache after that.
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()

	items, err := s.repo.ListInventory(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	value := s.inclusiveValue(availableOn(items, asOf))
	if err := s.cache.Set(ctx, key, value, s.valuationTTL); err != nil {
		log.Printf("[cache] WARN: valuation store failed date=%s: %v", key, err)
	}
	return value, nil
}

func (s *Service) inclusiveValue(items []domain.InventoryRecord) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Value())
	}
	return total.Mul(decimal.NewFromInt(1).Add(s.taxRate)).Round(2)
}

func availableOn(items []domain.InventoryRecord, day time.Time) []domain.InventoryRecord {
	out := make([]domain.InventoryRecord, 0, len(items))
	for _, item := range items {
		if item.AvailableOn(day) {
			out = append(out, item)
		}
	}
	return out
}

// CreateInvoice allocates stock worth req.TargetTotal (tax inclusive) from
// items available on req.Date and records the invoice and the stock
// deductions in one transaction.
func (s *Service) CreateInvoice(ctx context.Context, req domain.CreateInvoiceRequest) (domain.CreateInvoiceResponse, error) {
	req.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.InvoiceNumber == "" || req.CustomerName == "" {
		return domain.CreateInvoiceResponse{}, fmt.Errorf("%w: invoice number and customer name are required", domain.ErrInvalidRequest)
	}
	if !req.TargetTotal.IsPositive() {
		return domain.CreateInvoiceResponse{}, fmt.Errorf("%w: target total must be positive", domain.ErrInvalidRequest)
	}
	date, err := domain.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return domain.CreateInvoiceResponse{}, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrInvalidRequest)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snapshot, err := s.repo.ListInventory(ctx)
	if err != nil {
		return domain.CreateInvoiceResponse{}, err
	}
	candidates := availableOn(snapshot, date)
	if len(candidates) == 0 {
		return domain.CreateInvoiceResponse{}, &domain.NoItemsForDateError{Date: date.Format(domain.DateLayout)}
	}
	available := s.inclusiveValue(candidates)
	if req.TargetTotal.Round(2).GreaterThan(available) {
		return domain.CreateInvoiceResponse{}, &domain.InsufficientInventoryValueError{
			Requested: req.TargetTotal,
			Available: available,
		}
	}

	selection, err := s.allocate(req.TargetTotal, s.taxRate, candidates, s.policy)
	if err != nil {
		return domain.CreateInvoiceResponse{}, err
	}

	invoice := domain.InvoiceRecord{
		ID:            xid.New("inv"),
		InvoiceNumber: req.InvoiceNumber,
		CustomerName:  req.CustomerName,
		Date:          date,
		LineItems:     make([]domain.LineItem, 0, len(selection.Lines)),
		CreatedAt:     s.now().UTC(),
	}
	for _, line := range selection.Lines {
		invoice.LineItems = append(invoice.LineItems, domain.LineItem{
			Reference:   line.Reference,
			Description: line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.Subtotal.Round(2),
		})
	}
	if selection.Adjusted {
		invoice.TotalAmount = req.TargetTotal.Round(2)
	} else {
		invoice.TotalAmount = selection.Subtotal.Mul(decimal.NewFromInt(1).Add(s.taxRate)).Round(2)
	}
	reconcileLineTotals(&invoice, anchorLine(selection.Lines), s.Totals(invoice).ExTax)

	err = s.repo.RunInTx(ctx, func(tx store.LedgerTx) error {
		for _, line := range selection.Lines {
			live, err := tx.GetInventoryForUpdate(ctx, line.InventoryID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return &domain.InsufficientStockError{
						SKUName:   line.Name,
						Reference: line.Reference,
						Required:  line.Quantity,
						Available: 0,
					}
				}
				return err
			}
			if live.Quantity < line.Quantity {
				return &domain.InsufficientStockError{
					SKUName:   live.Name,
					Reference: live.Reference,
					Required:  line.Quantity,
					Available: live.Quantity,
				}
			}
			live.Quantity -= line.Quantity
			if err := tx.UpdateInventory(ctx, *live); err != nil {
				return err
			}
		}
		return tx.InsertInvoice(ctx, invoice)
	})
	if err != nil {
		return domain.CreateInvoiceResponse{}, err
	}
	s.invalidateValuations(ctx)

	resp := domain.CreateInvoiceResponse{
		Invoice: invoice,
		Totals:  s.Totals(invoice),
	}
	if selection.AdjustmentInfeasible {
		msg := fmt.Sprintf("exact-match adjustment skipped: allocated %s pre-tax for a %s target",
			selection.Allocated.StringFixed(2), selection.TargetExTax.StringFixed(2))
		log.Printf("[service] WARN: invoice=%s %s", invoice.InvoiceNumber, msg)
		resp.Warnings = append(resp.Warnings, msg)
	}
	return resp, nil
}

// anchorLine is the line that absorbs rounding: the adjusted one, otherwise
// the largest subtotal (first wins on ties).
func anchorLine(lines []allocation.Line) int {
	anchor := 0
	for i, line := range lines {
		if line.Adjusted {
			return i
		}
		if line.Subtotal.GreaterThan(lines[anchor].Subtotal) {
			anchor = i
		}
	}
	return anchor
}

// reconcileLineTotals moves the cent drift between the rounded lines and
// exTax onto the anchor line, so the lines add up to exTax exactly.
func reconcileLineTotals(invoice *domain.InvoiceRecord, anchor int, exTax decimal.Decimal) {
	if len(invoice.LineItems) == 0 {
		return
	}
	drift := exTax.Sub(invoice.Subtotal())
	invoice.LineItems[anchor].LineTotal = invoice.LineItems[anchor].LineTotal.Add(drift)
}

// DeleteInvoice removes the invoice and puts its quantities back on the shelf.
func (s *Service) DeleteInvoice(ctx context.Context, id string) (domain.RestockReport, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.RestockReport{}, fmt.Errorf("%w: invoice id is required", domain.ErrInvalidRequest)
	}

	var report domain.RestockReport
	err := s.write(ctx, func(tx store.LedgerTx) error {
		report = domain.RestockReport{}
		invoice, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := s.restock(ctx, tx, invoice.LineItems, &report); err != nil {
			return err
		}
		if err := tx.DeleteInvoice(ctx, id); err != nil {
			return err
		}
		report.InvoicesRemoved = 1
		return nil
	})
	if err != nil {
		return domain.RestockReport{}, err
	}
	return report, nil
}

// ClearAllInvoices deletes every invoice and restocks all of their lines.
// The result is the same as deleting each invoice in turn.
func (s *Service) ClearAllInvoices(ctx context.Context) (domain.RestockReport, error) {
	var report domain.RestockReport
	err := s.write(ctx, func(tx store.LedgerTx) error {
		report = domain.RestockReport{}
		invoices, err := tx.ListInvoices(ctx)
		if err != nil {
			return err
		}
		lines := make([]domain.LineItem, 0, len(invoices)*2)
		for _, invoice := range invoices {
			lines = append(lines, invoice.LineItems...)
		}
		if err := s.restock(ctx, tx, lines, &report); err != nil {
			return err
		}
		removed, err := tx.ClearInvoices(ctx)
		if err != nil {
			return err
		}
		report.InvoicesRemoved = removed
		return nil
	})
	if err != nil {
		return domain.RestockReport{}, err
	}
	return report, nil
}

type restockKey struct {
	reference   string
	description string
}

type restockGroup struct {
	key       restockKey
	quantity  int
	unitPrice decimal.Decimal
}

// restock returns line quantities to inventory. Lines are matched on
// (reference, description) against the item name; with several matches the
// most recently stocked record wins. Without a match the item is recreated
// from the line, available from today.
func (s *Service) restock(ctx context.Context, tx store.LedgerTx, lines []domain.LineItem, report *domain.RestockReport) error {
	groups := make([]*restockGroup, 0, len(lines))
	byKey := make(map[restockKey]*restockGroup, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		key := restockKey{reference: line.Reference, description: line.Description}
		group, ok := byKey[key]
		if !ok {
			group = &restockGroup{key: key, unitPrice: line.UnitPrice}
			byKey[key] = group
			groups = append(groups, group)
		}
		group.quantity += line.Quantity
	}

	for _, group := range groups {
		matches, err := tx.FindInventoryByKey(ctx, group.key.reference, group.key.description)
		if err != nil {
			return err
		}
		result := domain.RestockLine{
			Reference:   group.key.reference,
			Description: group.key.description,
			Quantity:    group.quantity,
		}

		if target := store.MostRecent(matches); target != nil {
			target.Quantity += group.quantity
			if err := tx.UpdateInventory(ctx, *target); err != nil {
				return err
			}
			result.InventoryID = target.ID
		} else {
			recreated := domain.InventoryRecord{
				ID:            xid.New("sku"),
				Reference:     group.key.reference,
				Name:          group.key.description,
				Quantity:      group.quantity,
				UnitPrice:     group.unitPrice,
				AvailableFrom: s.today(),
			}
			if err := tx.InsertInventory(ctx, recreated); err != nil {
				return err
			}
			log.Printf("[service] WARN: restock recreated missing item ref=%s name=%q qty=%d", recreated.Reference, recreated.Name, recreated.Quantity)
			result.InventoryID = recreated.ID
			result.Recreated = true
		}

		report.UnitsRestocked += group.quantity
		report.Lines = append(report.Lines, result)
	}
	return nil
}

func (s *Service) ListInvoices(ctx context.Context, query string) ([]domain.InvoiceRecord, error) {
	invoices, err := s.repo.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return invoices, nil
	}

	out := make([]domain.InvoiceRecord, 0, len(invoices))
	for _, invoice := range invoices {
		if strings.Contains(strings.ToLower(invoice.CustomerName), query) ||
			strings.Contains(strings.ToLower(invoice.InvoiceNumber), query) {
			out = append(out, invoice)
		}
	}
	return out, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.InvoiceRecord, error) {
	invoice, err := s.repo.GetInvoice(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.InvoiceRecord{}, err
	}
	return *invoice, nil
}

func (s *Service) invalidateValuations(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Printf("[cache] WARN: valuation invalidation failed: %v", err)
	}
}

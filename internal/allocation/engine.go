// Package allocation picks stock lines whose value approaches a target
// invoice total. It works on an in-memory snapshot and never touches a store.
package allocation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/zianad/facturepro-ai/internal/domain"
)

var (
	ErrInsufficientValue = errors.New("allocation below minimum acceptable value")
	ErrInvalidInput      = errors.New("invalid allocation input")
)

// InsufficientValueError is returned when the pack ladder could not reach
// policy.MinFraction of the pre-tax target.
type InsufficientValueError struct {
	TargetExTax decimal.Decimal
	Allocated   decimal.Decimal
	Required    decimal.Decimal
}

func (e *InsufficientValueError) Error() string {
	return fmt.Sprintf("allocation reached %s of %s pre-tax, need at least %s",
		e.Allocated.StringFixed(2), e.TargetExTax.StringFixed(2), e.Required.StringFixed(2))
}

func (e *InsufficientValueError) Unwrap() error {
	return ErrInsufficientValue
}

type Policy struct {
	// MinFraction is the share of the pre-tax target the ladder must reach.
	MinFraction decimal.Decimal
	// PackSizes is tried largest first.
	PackSizes []int
	// Epsilon is the remainder treated as an exact match.
	Epsilon decimal.Decimal
	// MaxCandidates caps how many SKUs are considered, highest prices first.
	MaxCandidates int
}

func DefaultPolicy() Policy {
	return Policy{
		MinFraction:   decimal.RequireFromString("0.9"),
		PackSizes:     []int{100, 50, 24, 12, 6, 1},
		Epsilon:       decimal.RequireFromString("0.005"),
		MaxCandidates: 5000,
	}
}

// Normalize fills unset fields from DefaultPolicy and orders the ladder.
func (p Policy) Normalize() Policy {
	def := DefaultPolicy()
	if !p.MinFraction.IsPositive() || p.MinFraction.GreaterThan(decimal.NewFromInt(1)) {
		p.MinFraction = def.MinFraction
	}
	if p.Epsilon.IsZero() || p.Epsilon.IsNegative() {
		p.Epsilon = def.Epsilon
	}
	if p.MaxCandidates < 1 {
		p.MaxCandidates = def.MaxCandidates
	}

	sizes := make([]int, 0, len(p.PackSizes)+1)
	seen := make(map[int]struct{}, len(p.PackSizes)+1)
	for _, size := range p.PackSizes {
		if size < 1 {
			continue
		}
		if _, dup := seen[size]; dup {
			continue
		}
		seen[size] = struct{}{}
		sizes = append(sizes, size)
	}
	if len(sizes) == 0 {
		sizes = append(sizes, def.PackSizes...)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	p.PackSizes = sizes
	return p
}

type Line struct {
	InventoryID string          `json:"inventory_id"`
	Reference   string          `json:"reference"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Adjusted    bool            `json:"adjusted"`
}

type Selection struct {
	Lines       []Line
	TargetExTax decimal.Decimal
	// Allocated is the pre-tax value reached by the ladder, before adjustment.
	Allocated decimal.Decimal
	// Subtotal is the pre-tax value of Lines, after adjustment when applied.
	Subtotal             decimal.Decimal
	Adjusted             bool
	AdjustmentInfeasible bool
}

// Quantities maps inventory IDs to the units the selection deducts.
func (s Selection) Quantities() map[string]int {
	out := make(map[string]int, len(s.Lines))
	for _, line := range s.Lines {
		out[line.InventoryID] += line.Quantity
	}
	return out
}

type candidate struct {
	record    domain.InventoryRecord
	allocated int
	subtotal  decimal.Decimal
	order     int
}

// Allocate runs the wholesale-first ladder against skus. Callers filter skus
// by availability date; records with no stock or no price are ignored.
func Allocate(targetInclusive decimal.Decimal, taxRate decimal.Decimal, skus []domain.InventoryRecord, policy Policy) (Selection, error) {
	if !targetInclusive.IsPositive() {
		return Selection{}, fmt.Errorf("%w: target must be positive", ErrInvalidInput)
	}
	if taxRate.IsNegative() {
		return Selection{}, fmt.Errorf("%w: tax rate must not be negative", ErrInvalidInput)
	}
	policy = policy.Normalize()

	targetExTax := targetInclusive.Div(decimal.NewFromInt(1).Add(taxRate))

	candidates := make([]*candidate, 0, len(skus))
	for _, sku := range skus {
		if sku.Quantity < 1 || !sku.UnitPrice.IsPositive() {
			continue
		}
		candidates = append(candidates, &candidate{record: sku, subtotal: decimal.Zero})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].record, candidates[j].record
		if cmp := a.UnitPrice.Cmp(b.UnitPrice); cmp != 0 {
			return cmp > 0
		}
		if a.Reference != b.Reference {
			return a.Reference < b.Reference
		}
		return a.ID < b.ID
	})
	if len(candidates) > policy.MaxCandidates {
		candidates = candidates[:policy.MaxCandidates]
	}

	remaining := targetExTax
	touched := 0
	for _, pack := range policy.PackSizes {
		packQty := decimal.NewFromInt(int64(pack))
		for _, c := range candidates {
			packPrice := c.record.UnitPrice.Mul(packQty)
			if packPrice.GreaterThan(remaining) {
				continue
			}
			freeStock := c.record.Quantity - c.allocated
			if freeStock < pack {
				continue
			}
			byBudget := remaining.Div(packPrice).Floor().IntPart()
			packs := min(byBudget, int64(freeStock/pack))
			if packs < 1 {
				continue
			}
			units := int(packs) * pack
			value := c.record.UnitPrice.Mul(decimal.NewFromInt(int64(units)))
			if c.allocated == 0 {
				touched++
				c.order = touched
			}
			c.allocated += units
			c.subtotal = c.subtotal.Add(value)
			remaining = remaining.Sub(value)
		}
	}

	allocated := targetExTax.Sub(remaining)
	required := targetExTax.Mul(policy.MinFraction)
	if touched == 0 || allocated.LessThan(required) {
		return Selection{}, &InsufficientValueError{
			TargetExTax: targetExTax,
			Allocated:   allocated,
			Required:    required,
		}
	}

	picked := make([]*candidate, 0, touched)
	for _, c := range candidates {
		if c.allocated > 0 {
			picked = append(picked, c)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].order < picked[j].order })

	sel := Selection{
		Lines:       make([]Line, 0, len(picked)),
		TargetExTax: targetExTax,
		Allocated:   allocated,
		Subtotal:    allocated,
	}
	largest := 0
	for i, c := range picked {
		sel.Lines = append(sel.Lines, Line{
			InventoryID: c.record.ID,
			Reference:   c.record.Reference,
			Name:        c.record.Name,
			Quantity:    c.allocated,
			UnitPrice:   c.record.UnitPrice,
			Subtotal:    c.subtotal,
		})
		if c.subtotal.GreaterThan(picked[largest].subtotal) {
			largest = i
		}
	}

	if remaining.Abs().LessThan(policy.Epsilon) {
		return sel, nil
	}

	line := &sel.Lines[largest]
	adjusted := line.Subtotal.Add(remaining)
	// The ladder only takes packs that fit the remainder, so remaining is not
	// negative here today. The flag stays part of the Selection contract.
	if adjusted.IsNegative() {
		sel.AdjustmentInfeasible = true
		return sel, nil
	}
	line.Subtotal = adjusted
	line.UnitPrice = adjusted.DivRound(decimal.NewFromInt(int64(line.Quantity)), 6)
	line.Adjusted = true
	sel.Adjusted = true
	sel.Subtotal = targetExTax
	return sel, nil
}

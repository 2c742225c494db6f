package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type InventoryRecord struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	AvailableFrom time.Time       `json:"available_from"`
}

// Value is the pre-tax stock value of the record.
func (r InventoryRecord) Value() decimal.Decimal {
	return r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// AvailableOn reports whether the record can be invoiced on the given day.
func (r InventoryRecord) AvailableOn(day time.Time) bool {
	return r.Quantity > 0 && !DateOnly(r.AvailableFrom).After(DateOnly(day))
}

type InventoryItemRequest struct {
	Reference     string          `json:"reference"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	AvailableFrom string          `json:"available_from"`
}

type InventoryImportRequest struct {
	Items []InventoryItemRequest `json:"items"`
}

type InventoryImportResponse struct {
	Inserted int `json:"inserted"`
	Merged   int `json:"merged"`
}

type InventoryListResponse struct {
	Items []InventoryRecord `json:"items"`
}

type LineItem struct {
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type InvoiceRecord struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerName  string          `json:"customer_name"`
	Date          time.Time       `json:"date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	LineItems     []LineItem      `json:"line_items"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Subtotal sums the pre-tax line totals.
func (inv InvoiceRecord) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range inv.LineItems {
		total = total.Add(line.LineTotal)
	}
	return total
}

// InvoiceTotals is the HT / TVA / TTC breakdown printed on an invoice.
type InvoiceTotals struct {
	ExTax     decimal.Decimal `json:"ex_tax"`
	Tax       decimal.Decimal `json:"tax"`
	Inclusive decimal.Decimal `json:"inclusive"`
}

func TotalsFor(inv InvoiceRecord, taxRate decimal.Decimal) InvoiceTotals {
	exTax := inv.TotalAmount.Div(decimal.NewFromInt(1).Add(taxRate)).Round(2)
	return InvoiceTotals{
		ExTax:     exTax,
		Tax:       inv.TotalAmount.Sub(exTax),
		Inclusive: inv.TotalAmount,
	}
}

type CreateInvoiceRequest struct {
	InvoiceNumber string          `json:"invoice_number"`
	CustomerName  string          `json:"customer_name"`
	Date          string          `json:"date"`
	TargetTotal   decimal.Decimal `json:"target_total"`
}

type CreateInvoiceResponse struct {
	Invoice  InvoiceRecord `json:"invoice"`
	Totals   InvoiceTotals `json:"totals"`
	Warnings []string      `json:"warnings,omitempty"`
}

type InvoiceResponse struct {
	Invoice InvoiceRecord `json:"invoice"`
	Totals  InvoiceTotals `json:"totals"`
}

type InvoiceListResponse struct {
	Invoices []InvoiceRecord `json:"invoices"`
}

type RestockLine struct {
	Reference   string `json:"reference"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	InventoryID string `json:"inventory_id"`
	Recreated   bool   `json:"recreated"`
}

type RestockReport struct {
	InvoicesRemoved int           `json:"invoices_removed"`
	UnitsRestocked  int           `json:"units_restocked"`
	Lines           []RestockLine `json:"lines"`
}

type AvailableValueResponse struct {
	Date    string          `json:"date"`
	Value   decimal.Decimal `json:"value"`
	TaxRate decimal.Decimal `json:"tax_rate"`
}

// Profile is the issuing company shown on every invoice. There is only ever
// one.
type Profile struct {
	UserName       string    `json:"user_name"`
	CompanyName    string    `json:"company_name"`
	CompanyICE     string    `json:"company_ice"`
	CompanyAddress string    `json:"company_address"`
	CompanyPhone   string    `json:"company_phone"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ProfileRequest struct {
	UserName       string `json:"user_name"`
	CompanyName    string `json:"company_name"`
	CompanyICE     string `json:"company_ice"`
	CompanyAddress string `json:"company_address"`
	CompanyPhone   string `json:"company_phone"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// DateOnly truncates t to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return DateOnly(parsed), nil
}

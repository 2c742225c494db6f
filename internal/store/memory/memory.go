package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/zianad/facturepro-ai/internal/domain"
	"github.com/zianad/facturepro-ai/internal/store"
)

// Store keeps the ledger in process memory. RunInTx works on a staged copy
// of the ledger and swaps it in only when the callback succeeds.
type Store struct {
	mu              sync.RWMutex
	ledger          *ledger
	usersByUsername map[string]domain.UserAccount
}

type ledger struct {
	inventory map[string]domain.InventoryRecord
	invoices  map[string]domain.InvoiceRecord
	profile   *domain.Profile
}

func newLedger() *ledger {
	return &ledger{
		inventory: make(map[string]domain.InventoryRecord),
		invoices:  make(map[string]domain.InvoiceRecord),
	}
}

func (l *ledger) clone() *ledger {
	out := &ledger{
		inventory: make(map[string]domain.InventoryRecord, len(l.inventory)),
		invoices:  make(map[string]domain.InvoiceRecord, len(l.invoices)),
	}
	for id, record := range l.inventory {
		out.inventory[id] = record
	}
	for id, invoice := range l.invoices {
		out.invoices[id] = cloneInvoice(invoice)
	}
	if l.profile != nil {
		profile := *l.profile
		out.profile = &profile
	}
	return out
}

// New returns an empty store with no users.
func New() *Store {
	return &Store{
		ledger:          newLedger(),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD, with dev defaults otherwise.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	userPwd := envOr("SEED_USER_PASSWORD", "user1234")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_USER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"user", userPwd, domain.RoleUser},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users and a small stationery catalog.
func NewSeeded() *Store {
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	catalog := []domain.InventoryRecord{
		{ID: "sku-seed-001", Reference: "PAP-A4", Name: "Ramette papier A4 80g", Quantity: 240, UnitPrice: decimal.RequireFromString("4.90")},
		{ID: "sku-seed-002", Reference: "STY-BLEU", Name: "Stylo bille bleu", Quantity: 1200, UnitPrice: decimal.RequireFromString("0.45")},
		{ID: "sku-seed-003", Reference: "CLS-A4", Name: "Classeur levier A4", Quantity: 150, UnitPrice: decimal.RequireFromString("3.20")},
		{ID: "sku-seed-004", Reference: "TON-HP26", Name: "Toner HP 26A", Quantity: 18, UnitPrice: decimal.RequireFromString("89.00")},
		{ID: "sku-seed-005", Reference: "AGR-26", Name: "Agrafes 26/6 boite 1000", Quantity: 300, UnitPrice: decimal.RequireFromString("1.15")},
		{ID: "sku-seed-006", Reference: "CAL-SCI", Name: "Calculatrice scientifique", Quantity: 40, UnitPrice: decimal.RequireFromString("18.50")},
	}

	s := New()
	s.usersByUsername = seedUsers()
	for _, record := range catalog {
		record.AvailableFrom = since
		s.ledger.inventory[record.ID] = record
	}
	return s
}

func (s *Store) ListInventory(_ context.Context) ([]domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInventory(s.ledger), nil
}

func (s *Store) GetInventory(_ context.Context, id string) (*domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.ledger.inventory[id]
	if !ok {
		return nil, domain.NotFound("inventory item", id)
	}
	return &record, nil
}

func (s *Store) ListInvoices(_ context.Context) ([]domain.InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInvoices(s.ledger), nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvoice(s.ledger, id)
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := s.ledger.clone()
	if err := fn(&tx{ledger: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.ledger = staged
	return nil
}

func (s *Store) GetProfile(_ context.Context) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ledger.profile == nil {
		return nil, domain.NotFound("profile", "company")
	}
	profile := *s.ledger.profile
	return &profile, nil
}

// tx is only valid inside the RunInTx callback that received it.
type tx struct {
	ledger *ledger
}

func (t *tx) GetInventoryForUpdate(_ context.Context, id string) (*domain.InventoryRecord, error) {
	record, ok := t.ledger.inventory[id]
	if !ok {
		return nil, domain.NotFound("inventory item", id)
	}
	return &record, nil
}

func (t *tx) FindInventoryByKey(_ context.Context, reference string, name string) ([]domain.InventoryRecord, error) {
	out := make([]domain.InventoryRecord, 0, 1)
	for _, record := range t.ledger.inventory {
		if record.Reference == reference && record.Name == name {
			out = append(out, record)
		}
	}
	store.SortInventory(out)
	return out, nil
}

func (t *tx) FindInventoryByReference(_ context.Context, reference string) ([]domain.InventoryRecord, error) {
	out := make([]domain.InventoryRecord, 0, 1)
	for _, record := range t.ledger.inventory {
		if record.Reference == reference {
			out = append(out, record)
		}
	}
	store.SortInventory(out)
	return out, nil
}

func (t *tx) InsertInventory(_ context.Context, record domain.InventoryRecord) error {
	if record.ID == "" {
		return fmt.Errorf("%w: inventory id is required", domain.ErrInvalidRequest)
	}
	if record.Quantity < 0 {
		return store.ErrNegativeStock
	}
	if _, exists := t.ledger.inventory[record.ID]; exists {
		return fmt.Errorf("%w: inventory id %s already exists", domain.ErrInvalidRequest, record.ID)
	}
	t.ledger.inventory[record.ID] = record
	return nil
}

func (t *tx) UpdateInventory(_ context.Context, record domain.InventoryRecord) error {
	if record.Quantity < 0 {
		return store.ErrNegativeStock
	}
	if _, exists := t.ledger.inventory[record.ID]; !exists {
		return domain.NotFound("inventory item", record.ID)
	}
	t.ledger.inventory[record.ID] = record
	return nil
}

func (t *tx) DeleteInventory(_ context.Context, id string) error {
	if _, exists := t.ledger.inventory[id]; !exists {
		return domain.NotFound("inventory item", id)
	}
	delete(t.ledger.inventory, id)
	return nil
}

func (t *tx) ClearInventory(_ context.Context) (int, error) {
	n := len(t.ledger.inventory)
	t.ledger.inventory = make(map[string]domain.InventoryRecord)
	return n, nil
}

func (t *tx) GetInvoice(_ context.Context, id string) (*domain.InvoiceRecord, error) {
	return getInvoice(t.ledger, id)
}

func (t *tx) ListInvoices(_ context.Context) ([]domain.InvoiceRecord, error) {
	return listInvoices(t.ledger), nil
}

func (t *tx) InsertInvoice(_ context.Context, invoice domain.InvoiceRecord) error {
	if invoice.ID == "" {
		return fmt.Errorf("%w: invoice id is required", domain.ErrInvalidRequest)
	}
	if _, exists := t.ledger.invoices[invoice.ID]; exists {
		return fmt.Errorf("%w: invoice id %s already exists", domain.ErrInvalidRequest, invoice.ID)
	}
	t.ledger.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (t *tx) DeleteInvoice(_ context.Context, id string) error {
	if _, exists := t.ledger.invoices[id]; !exists {
		return domain.NotFound("invoice", id)
	}
	delete(t.ledger.invoices, id)
	return nil
}

func (t *tx) ClearInvoices(_ context.Context) (int, error) {
	n := len(t.ledger.invoices)
	t.ledger.invoices = make(map[string]domain.InvoiceRecord)
	return n, nil
}

func (t *tx) SaveProfile(_ context.Context, profile domain.Profile) error {
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now().UTC()
	}
	t.ledger.profile = &profile
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.ErrInvalidRequest
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicateUser
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.ErrInvalidRequest
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return domain.NotFound("user", username)
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func listInventory(l *ledger) []domain.InventoryRecord {
	out := make([]domain.InventoryRecord, 0, len(l.inventory))
	for _, record := range l.inventory {
		out = append(out, record)
	}
	store.SortInventory(out)
	return out
}

func listInvoices(l *ledger) []domain.InvoiceRecord {
	out := make([]domain.InvoiceRecord, 0, len(l.invoices))
	for _, invoice := range l.invoices {
		out = append(out, cloneInvoice(invoice))
	}
	store.SortInvoices(out)
	return out
}

func getInvoice(l *ledger, id string) (*domain.InvoiceRecord, error) {
	invoice, ok := l.invoices[id]
	if !ok {
		return nil, domain.NotFound("invoice", id)
	}
	copied := cloneInvoice(invoice)
	return &copied, nil
}

func cloneInvoice(src domain.InvoiceRecord) domain.InvoiceRecord {
	dst := src
	dst.LineItems = append([]domain.LineItem(nil), src.LineItems...)
	return dst
}

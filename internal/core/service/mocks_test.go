package service

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ghshop/storefront/internal/core/domain"
	"github.com/ghshop/storefront/internal/observability"
	"github.com/ghshop/storefront/internal/port"
)

// mockStore is an in-memory stand-in for the MySQL adapter, implementing the
// catalog, identity and invoice repositories with the same exactly-once
// settlement semantics.
type mockStore struct {
	mu           sync.Mutex
	items        map[string]domain.StockItem
	users        map[string]domain.User
	invoices     map[string]*domain.Invoice
	settleCalls  int
	releaseCalls int
	failCreate   bool
}

func newMockStore() *mockStore {
	return &mockStore{
		items:    make(map[string]domain.StockItem),
		users:    make(map[string]domain.User),
		invoices: make(map[string]*domain.Invoice),
	}
}

func (m *mockStore) GetStockItems(ctx context.Context, reqs []domain.LineRequest) (map[string]domain.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]domain.StockItem)
	for _, r := range reqs {
		if item, ok := m.items[r.ItemID]; ok && item.ProductID == r.ProductID {
			out[r.ItemID] = item
		}
	}
	return out, nil
}

func (m *mockStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *mockStore) CreateInvoice(ctx context.Context, inv domain.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreate {
		return errors.New("storage failure")
	}
	stored := inv
	stored.Lines = append([]domain.InvoiceLine(nil), inv.Lines...)
	m.invoices[inv.InvoiceID] = &stored
	return nil
}

func (m *mockStore) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[invoiceID]
	if !ok {
		return nil, nil
	}
	return copyInvoice(inv), nil
}

func (m *mockStore) ListInvoices(ctx context.Context, f port.InvoiceFilter) ([]domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Invoice
	for _, inv := range m.invoices {
		if matchesFilter(inv, f) {
			out = append(out, *copyInvoice(inv))
		}
	}
	return out, nil
}

func (m *mockStore) CountInvoices(ctx context.Context, f port.InvoiceFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, inv := range m.invoices {
		if matchesFilter(inv, f) {
			count++
		}
	}
	return count, nil
}

func (m *mockStore) UpdateInvoice(ctx context.Context, invoiceID string, p port.InvoicePatch) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[invoiceID]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	if p.Status != nil {
		inv.Status = *p.Status
	}
	if p.Payment != nil {
		inv.Payment = *p.Payment
	}
	if p.PaymentID != nil {
		inv.PaymentID = *p.PaymentID
	}
	if p.DoneAt != nil {
		t := *p.DoneAt
		inv.DoneAt = &t
	}
	return copyInvoice(inv), nil
}

func (m *mockStore) SettleStock(ctx context.Context, invoiceID string, lines []domain.InvoiceLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[invoiceID]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	if inv.StockSettled {
		return domain.ErrAlreadySettled
	}
	for _, l := range lines {
		if m.items[l.ItemID].Quantity < l.Quantity {
			return domain.ErrSettlement
		}
	}
	for _, l := range lines {
		item := m.items[l.ItemID]
		item.Quantity -= l.Quantity
		m.items[l.ItemID] = item
	}
	inv.StockSettled = true
	m.settleCalls++
	return nil
}

func (m *mockStore) ReleaseStock(ctx context.Context, invoiceID string, lines []domain.InvoiceLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[invoiceID]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	if !inv.StockSettled {
		return domain.ErrNotSettled
	}
	for _, l := range lines {
		item := m.items[l.ItemID]
		item.Quantity += l.Quantity
		m.items[l.ItemID] = item
	}
	inv.StockSettled = false
	m.releaseCalls++
	return nil
}

func (m *mockStore) stockOf(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[itemID].Quantity
}

func (m *mockStore) invoiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invoices)
}

func copyInvoice(inv *domain.Invoice) *domain.Invoice {
	out := *inv
	out.Lines = append([]domain.InvoiceLine(nil), inv.Lines...)
	if inv.DoneAt != nil {
		t := *inv.DoneAt
		out.DoneAt = &t
	}
	return &out
}

func matchesFilter(inv *domain.Invoice, f port.InvoiceFilter) bool {
	if f.Status != "" && inv.Status != f.Status {
		return false
	}
	if f.UserID != "" && inv.UserID != f.UserID {
		return false
	}
	if f.InvoiceID != "" && inv.InvoiceID != f.InvoiceID {
		return false
	}
	return true
}

// mockCache is an in-memory idempotency key set.
type mockCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMockCache() *mockCache {
	return &mockCache{keys: make(map[string]bool)}
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockCache) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *mockCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key]
}

// mockGateway drives the payment service tests; behavior is configured per
// test through the function fields.
type mockGateway struct {
	createOrderFn func(ctx context.Context, inv *domain.Invoice) (*domain.PaymentIntent, error)
	verifyFn      func(data, mac string) bool
	decodeFn      func(data string) (*domain.PaymentCallback, error)
}

func (m *mockGateway) CreateOrder(ctx context.Context, inv *domain.Invoice) (*domain.PaymentIntent, error) {
	return m.createOrderFn(ctx, inv)
}

func (m *mockGateway) VerifyCallback(data, mac string) bool {
	return m.verifyFn(data, mac)
}

func (m *mockGateway) DecodeCallback(data string) (*domain.PaymentCallback, error) {
	return m.decodeFn(data)
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

// newTestQueue returns an event queue drained in the background so emits
// never fill the buffer during tests.
func newTestQueue() *EventQueue {
	q := NewEventQueue(256, zap.NewNop())
	go func() {
		for range q.Events() {
		}
	}()
	return q
}

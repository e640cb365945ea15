package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ghshop/storefront/internal/core/domain"
	"github.com/ghshop/storefront/internal/core/service"
	"github.com/ghshop/storefront/internal/observability"
	"github.com/ghshop/storefront/internal/port"
)

// memStore backs the handler tests with the repository ports in memory.
type memStore struct {
	mu       sync.Mutex
	items    map[string]domain.StockItem
	users    map[string]domain.User
	invoices map[string]*domain.Invoice
}

func newMemStore() *memStore {
	return &memStore{
		items:    make(map[string]domain.StockItem),
		users:    make(map[string]domain.User),
		invoices: make(map[string]*domain.Invoice),
	}
}

func (m *memStore) GetStockItems(ctx context.Context, reqs []domain.LineRequest) (map[string]domain.StockItem, error) {
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

func (m *memStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *memStore) CreateInvoice(ctx context.Context, inv domain.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.InvoiceID] = &inv
	return nil
}

func (m *memStore) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[invoiceID]
	if !ok {
		return nil, nil
	}
	out := *inv
	return &out, nil
}

func (m *memStore) ListInvoices(ctx context.Context, f port.InvoiceFilter) ([]domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Invoice
	for _, inv := range m.invoices {
		if f.Status == "" || inv.Status == f.Status {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memStore) CountInvoices(ctx context.Context, f port.InvoiceFilter) (int, error) {
	invs, _ := m.ListInvoices(ctx, f)
	return len(invs), nil
}

func (m *memStore) UpdateInvoice(ctx context.Context, invoiceID string, p port.InvoicePatch) (*domain.Invoice, error) {
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
	out := *inv
	return &out, nil
}

func (m *memStore) SettleStock(ctx context.Context, invoiceID string, lines []domain.InvoiceLine) error {
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
	return nil
}

func (m *memStore) ReleaseStock(ctx context.Context, invoiceID string, lines []domain.InvoiceLine) error {
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
	return nil
}

type memCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memCache) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// fakeGateway accepts mac "good-mac" and decodes {"invoiceID","paymentID"}.
type fakeGateway struct{}

func (fakeGateway) CreateOrder(ctx context.Context, inv *domain.Invoice) (*domain.PaymentIntent, error) {
	return &domain.PaymentIntent{
		AppTransID: "260829_000001",
		OrderURL:   "https://gateway.example/pay/260829_000001",
		Amount:     domain.InvoiceAmount(inv.Lines),
	}, nil
}

func (fakeGateway) VerifyCallback(data, mac string) bool { return mac == "good-mac" }

func (fakeGateway) DecodeCallback(data string) (*domain.PaymentCallback, error) {
	var cb domain.PaymentCallback
	if err := json.Unmarshal([]byte(data), &cb); err != nil {
		return nil, err
	}
	return &cb, nil
}

func newTestRouter(t *testing.T) (chi.Router, *memStore) {
	t.Helper()

	store := newMemStore()
	store.users["user-1"] = domain.User{UserID: "user-1", UserName: "Alice"}
	store.items["item-1"] = domain.StockItem{
		ItemID: "item-1", ProductID: "prod-1", ProductName: "Phone X",
		Quantity: 10, Price: 100000, Discount: 0,
	}

	logger := zap.NewNop()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	queue := service.NewEventQueue(64, logger)
	go func() {
		for range queue.Events() {
		}
	}()

	orders := service.NewOrderService(store, store, store, queue, metrics, logger)
	invoices := service.NewInvoiceService(store, store, queue, metrics, logger)
	payments := service.NewPaymentService(store, store, fakeGateway{}, &memCache{keys: make(map[string]bool)}, invoices, metrics, logger)

	r := chi.NewRouter()
	NewHTTPHandler(orders, invoices, payments, logger).Register(r)
	return r, store
}

func doRequest(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createOrder(t *testing.T, r chi.Router) string {
	t.Helper()

	w := doRequest(t, r, http.MethodPost, "/v1/orders",
		`{"userID":"user-1","invoiceProducts":[{"productID":"prod-1","itemID":"item-1","quantity":2}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create order returned %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Info struct {
			InvoiceID string `json:"invoiceID"`
		} `json:"info"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Info.InvoiceID
}

func TestCreateOrderRoute(t *testing.T) {
	r, _ := newTestRouter(t)

	id := createOrder(t, r)
	if id == "" {
		t.Fatal("expected invoiceID in response")
	}
}

func TestCreateOrderRoute_MissingFields(t *testing.T) {
	r, _ := newTestRouter(t)

	cases := []string{
		`{}`,
		`{"userID":"user-1"}`,
		`{"userID":"user-1","invoiceProducts":[{"productID":"prod-1","itemID":"item-1","quantity":0}]}`,
		`{"userID":"user-1","invoiceProducts":[{"itemID":"item-1","quantity":1}]}`,
	}
	for _, body := range cases {
		if w := doRequest(t, r, http.MethodPost, "/v1/orders", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestCreateOrderRoute_InsufficientStock(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(t, r, http.MethodPost, "/v1/orders",
		`{"userID":"user-1","invoiceProducts":[{"productID":"prod-1","itemID":"item-1","quantity":99}]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("quantity")) {
		t.Errorf("expected quantity message, got %s", w.Body.String())
	}
}

func TestGetInvoiceRoute_NotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	if w := doRequest(t, r, http.MethodGet, "/v1/invoices/no-such", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUpdateInvoiceRoute_SettlesStock(t *testing.T) {
	r, store := newTestRouter(t)
	id := createOrder(t, r)

	w := doRequest(t, r, http.MethodPatch, "/v1/invoices/"+id, `{"status":"SHIPPING"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	store.mu.Lock()
	stock := store.items["item-1"].Quantity
	store.mu.Unlock()
	if stock != 8 {
		t.Errorf("expected stock 8 after settlement, got %d", stock)
	}
}

func TestUpdateInvoiceRoute_InvalidPayment(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createOrder(t, r)

	w := doRequest(t, r, http.MethodPatch, "/v1/invoices/"+id, `{"payment":"BITCOIN"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestMakePaymentRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createOrder(t, r)

	w := doRequest(t, r, http.MethodPost, "/v1/invoices/"+id+"/payment", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("https://gateway.example/pay/")) {
		t.Errorf("expected order url in response, got %s", w.Body.String())
	}
}

func callbackBody(t *testing.T, invoiceID, paymentID, mac string) string {
	t.Helper()

	data, err := json.Marshal(domain.PaymentCallback{InvoiceID: invoiceID, PaymentID: paymentID})
	if err != nil {
		t.Fatalf("marshal callback: %v", err)
	}
	body, _ := json.Marshal(map[string]string{"data": string(data), "mac": mac})
	return string(body)
}

func TestCallbackRoute_AlwaysHTTP200(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createOrder(t, r)

	cases := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"malformed body", "not-json", 0},
		{"bad mac", callbackBody(t, id, "260829_000001", "tampered"), -1},
		{"success", callbackBody(t, id, "260829_000001", "good-mac"), 1},
		{"unknown invoice", callbackBody(t, "ghost", "260829_000002", "good-mac"), 0},
	}

	for _, c := range cases {
		w := doRequest(t, r, http.MethodPost, "/v1/invoices/callback", c.body)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected HTTP 200, got %d", c.name, w.Code)
			continue
		}
		var result domain.CallbackResult
		if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
			t.Errorf("%s: decode result: %v", c.name, err)
			continue
		}
		if result.ReturnCode != c.wantCode {
			t.Errorf("%s: expected return_code %d, got %d (%s)",
				c.name, c.wantCode, result.ReturnCode, result.ReturnMessage)
		}
	}
}

func TestListInvoicesRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	createOrder(t, r)

	w := doRequest(t, r, http.MethodGet, "/v1/invoices/?status=NEW", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Info struct {
			Invoices      []json.RawMessage `json:"invoices"`
			TotalInvoices int               `json:"totalInvoices"`
		} `json:"info"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Info.TotalInvoices != 1 || len(resp.Info.Invoices) != 1 {
		t.Errorf("expected 1 invoice, got %d (total %d)",
			len(resp.Info.Invoices), resp.Info.TotalInvoices)
	}
}

func TestHealthRoute(t *testing.T) {
	r, _ := newTestRouter(t)

	if w := doRequest(t, r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

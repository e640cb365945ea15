package port

import (
	"context"
	"time"

	"github.com/ghshop/storefront/internal/core/domain"
)

// InvoiceFilter narrows listing and counting queries. Zero values mean
// "no constraint". CreatedOn matches the whole calendar day.
type InvoiceFilter struct {
	Status    domain.InvoiceStatus
	UserID    string
	UserName  string // substring, case-insensitive
	InvoiceID string
	CreatedOn *time.Time
	Page      int // 1-based; ignored by CountInvoices
}

// InvoicePatch carries the mutable fields of a status update. Nil means
// "leave unchanged".
type InvoicePatch struct {
	Status    *domain.InvoiceStatus
	Payment   *domain.PaymentMethod
	PaymentID *string
	DoneAt    *time.Time
}

type InvoiceRepository interface {
	// CreateInvoice persists the invoice together with all of its lines in
	// one transaction: both land or neither does.
	CreateInvoice(ctx context.Context, inv domain.Invoice) error

	// GetInvoice returns the invoice with its lines, or nil when absent.
	GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error)

	ListInvoices(ctx context.Context, f InvoiceFilter) ([]domain.Invoice, error)
	CountInvoices(ctx context.Context, f InvoiceFilter) (int, error)

	// UpdateInvoice applies the patch and returns the updated invoice.
	// Returns domain.ErrInvoiceNotFound when the row does not exist.
	UpdateInvoice(ctx context.Context, invoiceID string, p InvoicePatch) (*domain.Invoice, error)

	// SettleStock claims the invoice's settlement flag and decrements every
	// line's stock in a single transaction. Each decrement is conditional on
	// sufficient remaining stock; any failed line aborts the whole batch and
	// releases the claim. Returns domain.ErrAlreadySettled when the flag was
	// already claimed, so settlement runs at most once per invoice.
	SettleStock(ctx context.Context, invoiceID string, lines []domain.InvoiceLine) error

	// ReleaseStock is the compensating restock for an abort after settlement:
	// it un-claims the settlement flag and increments every line's stock back,
	// in one transaction. Returns domain.ErrNotSettled when there is nothing
	// to release.
	ReleaseStock(ctx context.Context, invoiceID string, lines []domain.InvoiceLine) error
}

type CatalogRepository interface {
	// GetStockItems fetches current stock rows for exactly the requested
	// (productID, itemID) pairs, keyed by itemID. Read-only. Pairs absent
	// from the catalog are simply missing from the result.
	GetStockItems(ctx context.Context, reqs []domain.LineRequest) (map[string]domain.StockItem, error)
}

type IdentityRepository interface {
	// GetUser resolves a userID to its display identity, or nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

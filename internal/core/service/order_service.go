package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ghshop/storefront/internal/core/domain"
	"github.com/ghshop/storefront/internal/observability"
	"github.com/ghshop/storefront/internal/port"
)

var ErrEmptyOrder = errors.New("order has no lines")

// OrderRequest is a shopper's order submission: shipping/contact fields plus
// the requested lines.
type OrderRequest struct {
	UserID        string               `json:"userID"`
	Email         string               `json:"email"`
	PhoneNumber   string               `json:"phoneNumber"`
	Province      string               `json:"province"`
	District      string               `json:"district"`
	Ward          string               `json:"ward"`
	DetailAddress string               `json:"detailAddress"`
	Note          string               `json:"note"`
	ShippingFee   int64                `json:"shippingFee"`
	Lines         []domain.LineRequest `json:"invoiceProducts"`
}

// OrderService validates requested order lines against live stock and turns
// accepted orders into NEW invoices. Validation is all-or-nothing: a shopper
// gets every line or none.
type OrderService struct {
	catalog  port.CatalogRepository
	identity port.IdentityRepository
	invoices port.InvoiceRepository
	events   *EventQueue
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewOrderService(
	catalog port.CatalogRepository,
	identity port.IdentityRepository,
	invoices port.InvoiceRepository,
	events *EventQueue,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		catalog:  catalog,
		identity: identity,
		invoices: invoices,
		events:   events,
		metrics:  metrics,
		logger:   logger,
	}
}

// validateLines fetches the current stock rows for the requested keys and
// builds the priced snapshot with each requested quantity substituted in
// place of the remaining stock. Any missing item or short stock rejects the
// whole set. Read-only; stock is untouched.
func validateLines(ctx context.Context, catalog port.CatalogRepository, reqs []domain.LineRequest) (domain.OrderSnapshot, error) {
	items, err := catalog.GetStockItems(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("fetch stock items: %w", err)
	}

	snapshot := make(domain.OrderSnapshot, len(reqs))
	for _, req := range reqs {
		item, ok := items[req.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, req.ItemID)
		}
		if req.Quantity > item.Quantity {
			return nil, fmt.Errorf("%w: item %s has %d, requested %d",
				domain.ErrInsufficientQuantity, req.ItemID, item.Quantity, req.Quantity)
		}
		item.Quantity = req.Quantity
		snapshot[req.ItemID] = item
	}

	return snapshot, nil
}

// ValidateOrder runs the inventory check without creating anything.
func (s *OrderService) ValidateOrder(ctx context.Context, reqs []domain.LineRequest) (domain.OrderSnapshot, error) {
	return validateLines(ctx, s.catalog, reqs)
}

// CreateOrder validates the request and persists a NEW invoice with the
// priced line snapshot copied in. Stock is not decremented here; that happens
// at settlement.
func (s *OrderService) CreateOrder(ctx context.Context, req OrderRequest) (*domain.Invoice, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyOrder
	}

	snapshot, err := validateLines(ctx, s.catalog, req.Lines)
	if err != nil {
		s.metrics.OrdersRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	user, err := s.identity.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", req.UserID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, req.UserID)
	}

	invoiceID := uuid.NewString()
	inv := domain.Invoice{
		InvoiceID:     invoiceID,
		Status:        domain.StatusNew,
		Payment:       domain.PaymentNone,
		UserID:        user.UserID,
		UserName:      user.UserName,
		Email:         req.Email,
		PhoneNumber:   req.PhoneNumber,
		Province:      req.Province,
		District:      req.District,
		Ward:          req.Ward,
		DetailAddress: req.DetailAddress,
		Note:          req.Note,
		ShippingFee:   req.ShippingFee,
		CreatedAt:     time.Now(),
		Lines:         snapshot.InvoiceLines(invoiceID),
	}

	if err := s.invoices.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	s.metrics.OrdersCreated.Inc()
	s.events.Emit(domain.InvoiceEvent{
		Type:      domain.EventInvoiceCreated,
		InvoiceID: invoiceID,
		UserID:    inv.UserID,
	})
	s.logger.Info("invoice created",
		zap.String("invoiceID", invoiceID),
		zap.String("userID", inv.UserID),
		zap.Int("lines", len(inv.Lines)),
	)

	return &inv, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, domain.ErrInsufficientQuantity):
		return "insufficient_quantity"
	default:
		return "internal"
	}
}

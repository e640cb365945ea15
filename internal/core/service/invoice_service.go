package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ghshop/storefront/internal/core/domain"
	"github.com/ghshop/storefront/internal/observability"
	"github.com/ghshop/storefront/internal/port"
)

// UpdateRequest carries the fields an invoice transition may change. Nil
// fields are left as they are.
type UpdateRequest struct {
	Status    *domain.InvoiceStatus
	Payment   *domain.PaymentMethod
	PaymentID *string
}

// InvoiceService owns the invoice lifecycle: reads, guarded status
// transitions, and the decision of when stock settlement must fire.
type InvoiceService struct {
	invoices port.InvoiceRepository
	catalog  port.CatalogRepository
	events   *EventQueue
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewInvoiceService(
	invoices port.InvoiceRepository,
	catalog port.CatalogRepository,
	events *EventQueue,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		invoices: invoices,
		catalog:  catalog,
		events:   events,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *InvoiceService) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if inv == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvoiceNotFound, invoiceID)
	}
	return inv, nil
}

// ListInvoices returns one page of invoices plus the total count for the
// same filter.
func (s *InvoiceService) ListInvoices(ctx context.Context, f port.InvoiceFilter) ([]domain.Invoice, int, error) {
	invoices, err := s.invoices.ListInvoices(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	total, err := s.invoices.CountInvoices(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	return invoices, total, nil
}

func (s *InvoiceService) CountInvoices(ctx context.Context, f port.InvoiceFilter) (int, error) {
	return s.invoices.CountInvoices(ctx, f)
}

// UpdateInvoice applies a guarded status transition.
//
// Settlement fires when the transition crosses from {NEW, PAYMENT_WAITING}
// into {SHIPPING, DONE} and the invoice has not settled yet; the stock_settled
// flag is claimed atomically inside the settlement transaction, so concurrent
// transitions (admin update racing the gateway callback) settle at most once.
// Before settling, the invoice's lines are re-validated against live stock;
// a failed re-validation rejects the whole transition and the invoice keeps
// its prior state.
//
// Moving a settled invoice to ABORT triggers the compensating restock.
func (s *InvoiceService) UpdateInvoice(ctx context.Context, invoiceID string, req UpdateRequest) (*domain.Invoice, error) {
	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if inv == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvoiceNotFound, invoiceID)
	}

	patch := port.InvoicePatch{Payment: req.Payment, PaymentID: req.PaymentID}

	if req.Status != nil {
		next := *req.Status
		if !next.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTransition, next)
		}
		if inv.Status.Terminal() && next != inv.Status {
			return nil, fmt.Errorf("%w: invoice %s is %s", domain.ErrInvalidTransition, invoiceID, inv.Status)
		}

		if domain.SettlementRequired(inv.Status, next) && !inv.StockSettled {
			if _, err := validateLines(ctx, s.catalog, domain.LineRequests(inv.Lines)); err != nil {
				return nil, err
			}
			switch err := s.invoices.SettleStock(ctx, invoiceID, inv.Lines); {
			case err == nil:
				s.metrics.Settlements.Inc()
				s.logger.Info("stock settled", zap.String("invoiceID", invoiceID))
			case errors.Is(err, domain.ErrAlreadySettled):
				// lost the race to a concurrent transition; metadata update proceeds
			default:
				return nil, err
			}
		}

		if next == domain.StatusAbort && inv.StockSettled {
			switch err := s.invoices.ReleaseStock(ctx, invoiceID, inv.Lines); {
			case err == nil:
				s.metrics.Restocks.Inc()
				s.logger.Info("stock restocked after abort", zap.String("invoiceID", invoiceID))
			case errors.Is(err, domain.ErrNotSettled):
			default:
				return nil, err
			}
		}

		if next.Terminal() {
			now := time.Now()
			patch.DoneAt = &now
		}
		patch.Status = req.Status
	}

	updated, err := s.invoices.UpdateInvoice(ctx, invoiceID, patch)
	if err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}

	if req.Status != nil {
		s.events.Emit(domain.InvoiceEvent{
			Type:      domain.EventInvoiceStatus,
			InvoiceID: invoiceID,
			UserID:    updated.UserID,
			Status:    updated.Status,
		})
	}

	return updated, nil
}

package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ghshop/storefront/internal/core/domain"
	"github.com/ghshop/storefront/internal/observability"
	"github.com/ghshop/storefront/internal/port"
)

const callbackKeyPrefix = "payment:callback:"

// PaymentService drives the gateway leg of the pipeline: building signed
// payment orders and processing the asynchronous callback.
type PaymentService struct {
	invoices  port.InvoiceRepository
	catalog   port.CatalogRepository
	gateway   port.PaymentGateway
	cache     port.CacheRepository
	lifecycle *InvoiceService
	metrics   *observability.Metrics
	logger    *zap.Logger
}

func NewPaymentService(
	invoices port.InvoiceRepository,
	catalog port.CatalogRepository,
	gateway port.PaymentGateway,
	cache port.CacheRepository,
	lifecycle *InvoiceService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		invoices:  invoices,
		catalog:   catalog,
		gateway:   gateway,
		cache:     cache,
		lifecycle: lifecycle,
		metrics:   metrics,
		logger:    logger,
	}
}

// InitiatePayment re-validates the invoice's lines against live stock, asks
// the gateway for a payment order and returns the redirect URL. No local
// state changes: a gateway failure leaves the invoice exactly as it was, so
// the client may simply retry.
func (s *PaymentService) InitiatePayment(ctx context.Context, invoiceID string) (string, error) {
	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", fmt.Errorf("get invoice: %w", err)
	}
	if inv == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvoiceNotFound, invoiceID)
	}

	if _, err := validateLines(ctx, s.catalog, domain.LineRequests(inv.Lines)); err != nil {
		return "", err
	}

	intent, err := s.gateway.CreateOrder(ctx, inv)
	if err != nil {
		return "", err
	}

	s.logger.Info("payment order created",
		zap.String("invoiceID", invoiceID),
		zap.String("appTransID", intent.AppTransID),
		zap.Int64("amount", intent.Amount),
	)
	return intent.OrderURL, nil
}

// HandleCallback processes an inbound gateway callback. The gateway expects
// a structured body whatever the outcome, never an HTTP error: -1 for a bad
// mac, 0 for an internal failure, 1 for success. A tampered mac changes
// nothing; a replayed valid callback is answered with success without
// touching state again.
func (s *PaymentService) HandleCallback(ctx context.Context, data, mac string) domain.CallbackResult {
	if !s.gateway.VerifyCallback(data, mac) {
		s.logger.Warn("callback mac mismatch")
		s.metrics.CallbackResults.WithLabelValues("-1").Inc()
		return domain.CallbackResult{ReturnCode: -1, ReturnMessage: domain.ErrSignatureMismatch.Error()}
	}

	result := s.processCallback(ctx, data)
	s.metrics.CallbackResults.WithLabelValues(strconv.Itoa(result.ReturnCode)).Inc()
	return result
}

func (s *PaymentService) processCallback(ctx context.Context, data string) domain.CallbackResult {
	cb, err := s.gateway.DecodeCallback(data)
	if err != nil {
		return domain.CallbackResult{ReturnCode: 0, ReturnMessage: err.Error()}
	}

	key := callbackKeyPrefix + cb.PaymentID
	fresh, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return domain.CallbackResult{ReturnCode: 0, ReturnMessage: err.Error()}
	}
	if !fresh {
		// replayed callback for a transaction already processed
		s.logger.Info("duplicate callback ignored",
			zap.String("invoiceID", cb.InvoiceID),
			zap.String("paymentID", cb.PaymentID),
		)
		return domain.CallbackResult{ReturnCode: 1, ReturnMessage: "success"}
	}

	status := domain.StatusShipping
	payment := domain.PaymentBanking
	_, err = s.lifecycle.UpdateInvoice(ctx, cb.InvoiceID, UpdateRequest{
		Status:    &status,
		Payment:   &payment,
		PaymentID: &cb.PaymentID,
	})
	if err != nil {
		// let the gateway's retry reach processing again
		if relErr := s.cache.ReleaseIdempotency(ctx, key); relErr != nil {
			s.logger.Error("release idempotency key failed",
				zap.String("key", key), zap.Error(relErr))
		}
		s.logger.Error("callback processing failed",
			zap.String("invoiceID", cb.InvoiceID), zap.Error(err))
		return domain.CallbackResult{ReturnCode: 0, ReturnMessage: err.Error()}
	}

	s.logger.Info("payment confirmed",
		zap.String("invoiceID", cb.InvoiceID),
		zap.String("paymentID", cb.PaymentID),
	)
	return domain.CallbackResult{ReturnCode: 1, ReturnMessage: "success"}
}

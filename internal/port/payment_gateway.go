package port

import (
	"context"

	"github.com/ghshop/storefront/internal/core/domain"
)

type PaymentGateway interface {
	// CreateOrder builds a signed payment order for the invoice, posts it to
	// the gateway and returns the redirect URL. No local state changes.
	CreateOrder(ctx context.Context, inv *domain.Invoice) (*domain.PaymentIntent, error)

	// VerifyCallback authenticates an inbound callback body against its mac
	// using a constant-time comparison.
	VerifyCallback(data, mac string) bool

	// DecodeCallback recovers the invoiceID and gateway transaction id from
	// a verified callback payload.
	DecodeCallback(data string) (*domain.PaymentCallback, error)
}

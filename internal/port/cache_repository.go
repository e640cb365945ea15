package port

import (
	"context"

	"github.com/ghshop/storefront/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes a previously set key so a retried request
	// can be processed after a failure
	ReleaseIdempotency(ctx context.Context, key string) error
}

// Notifier delivers invoice events to the real-time broadcast subsystem.
type Notifier interface {
	Notify(ctx context.Context, event domain.InvoiceEvent) error
}

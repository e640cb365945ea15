package service

import (
	"go.uber.org/zap"

	"github.com/ghshop/storefront/internal/core/domain"
)

// EventQueue buffers invoice events for the notifier workers. Emit never
// blocks the pipeline: when the buffer is full the event is dropped and
// logged, since broadcast delivery is best-effort.
type EventQueue struct {
	ch     chan domain.InvoiceEvent
	logger *zap.Logger
}

func NewEventQueue(size int, logger *zap.Logger) *EventQueue {
	return &EventQueue{
		ch:     make(chan domain.InvoiceEvent, size),
		logger: logger,
	}
}

func (q *EventQueue) Emit(event domain.InvoiceEvent) {
	select {
	case q.ch <- event:
	default:
		q.logger.Warn("event queue full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("invoiceID", event.InvoiceID),
		)
	}
}

func (q *EventQueue) Events() <-chan domain.InvoiceEvent {
	return q.ch
}

func (q *EventQueue) Close() {
	close(q.ch)
}

package service

import (
	"context"

	"bizledger/internal/repository"
)

// Live event names pushed to websocket subscribers.
const (
	EventDocumentCreated     = "document.created"
	EventDocumentTransformed = "document.transformed"
	EventDocumentReturned    = "document.returned"
	EventDocumentDeleted     = "document.deleted"
	EventStockAdjusted       = "stock.adjusted"
	EventPaymentRecorded     = "payment.recorded"
)

// EventPublisher fans ledger events out to live subscribers.
type EventPublisher interface {
	Publish(event string, data interface{})
}

// publish sends the event once the surrounding transaction has committed.
func publish(ctx context.Context, pub EventPublisher, event string, data interface{}) {
	if pub == nil {
		return
	}
	repository.AfterCommit(ctx, func() {
		pub.Publish(event, data)
	})
}

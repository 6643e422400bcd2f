package repository

import (
	"context"

	"github.com/fjod/fresh_grocery/internal/domain"
)

// Outbox exposes the outbox table of a Store outside of business transactions.
type Outbox struct {
	store Store
}

func NewOutbox(store Store) *Outbox {
	return &Outbox{store: store}
}

func (o *Outbox) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var events []*domain.OutboxEvent
	err := o.store.View(ctx, func(tx Tx) error {
		var err error
		events, err = tx.GetUnprocessedEvents(ctx, limit)
		return err
	})
	return events, err
}

func (o *Outbox) MarkEventAsProcessed(ctx context.Context, id int64) error {
	return o.store.Update(ctx, func(tx Tx) error {
		return tx.MarkEventAsProcessed(ctx, id)
	})
}

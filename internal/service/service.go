package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/events"
	"github.com/fjod/fresh_grocery/internal/repository"
)

// PageResult is one page of a paginated listing.
type PageResult[T any] struct {
	Content       []T `json:"content"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Page          int `json:"page"`
	Size          int `json:"size"`
}

func newPageResult[T any](content []T, total int, page repository.Page) PageResult[T] {
	if content == nil {
		content = []T{}
	}
	pages := 1
	if page.Size > 0 {
		pages = (total + page.Size - 1) / page.Size
	}
	return PageResult[T]{
		Content:       content,
		TotalElements: total,
		TotalPages:    pages,
		Page:          page.Number,
		Size:          page.Size,
	}
}

// requireRole rejects actors outside roles and blocked actors.
func requireRole(actor domain.Actor, roles ...domain.Role) error {
	if actor.Blocked {
		return fmt.Errorf("%w: account is blocked", domain.ErrForbidden)
	}
	for _, r := range roles {
		if actor.Is(r) {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s not allowed", domain.ErrForbidden, actor.Role)
}

// recordEvents writes events to the outbox of the current unit of work.
func recordEvents(ctx context.Context, tx repository.Tx, evts []domain.Event) error {
	for _, e := range evts {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		err = tx.InsertOutboxEvent(ctx, &domain.OutboxEvent{
			AggregateID: strconv.FormatInt(e.OrderID, 10),
			EventType:   string(e.Type),
			Payload:     payload,
			CreatedAt:   e.OccurredAt,
		})
		if err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
	}
	return nil
}

func publishAll(bus events.Publisher, evts []domain.Event) {
	for _, e := range evts {
		bus.Publish(e)
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.Event) {}

func orNop(bus events.Publisher) events.Publisher {
	if bus == nil {
		return nopPublisher{}
	}
	return bus
}

func utcNow() time.Time {
	return time.Now().UTC()
}

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
)

func (t *sqlTx) InsertOutboxEvent(ctx context.Context, e *domain.OutboxEvent) error {
	// payload goes in as text so lib/pq does not encode it as bytea
	id, err := t.insert(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4)`,
		e.AggregateID, e.EventType, string(e.Payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	e.ID = id
	return nil
}

func (t *sqlTx) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at FROM outbox_events
	          WHERE processed_at IS NULL ORDER BY id`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		e := &domain.OutboxEvent{}
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = append([]byte(nil), payload...)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (t *sqlTx) MarkEventAsProcessed(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, `UPDATE outbox_events SET processed_at = $1 WHERE id = $2`,
		sql.NullTime{Time: time.Now().UTC(), Valid: true}, id)
	if err != nil {
		return fmt.Errorf("mark outbox event: %w", err)
	}
	return expectRows(res)
}

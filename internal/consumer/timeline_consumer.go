package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/publisher"
	"github.com/fjod/fresh_grocery/internal/timeline"
	"github.com/segmentio/kafka-go"
)

const GroupID = "timeline-archiver"

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TimelineConsumer archives every outbox event into the order timeline.
// Offsets are committed only after the entry is stored.
type TimelineConsumer struct {
	repo    timeline.Repository
	reader  MessageReader
	logger  *slog.Logger
	backoff time.Duration
}

func NewTimelineConsumer(repo timeline.Repository, logger *slog.Logger, brokers ...string) *TimelineConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    publisher.Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newTimelineConsumer(repo, reader, logger)
}

func newTimelineConsumer(repo timeline.Repository, reader MessageReader, logger *slog.Logger) *TimelineConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimelineConsumer{repo: repo, reader: reader, logger: logger, backoff: time.Second}
}

func (c *TimelineConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.consumeOne(ctx)
	}
}

func (c *TimelineConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("error closing kafka reader", "error", err)
	}
}

func (c *TimelineConsumer) consumeOne(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.logger.Error("error reading message", "error", err)
		c.sleep(ctx)
		return
	}

	if err := c.processMessage(ctx, m); err != nil {
		var bad *malformedError
		if !errors.As(err, &bad) {
			// leave the offset uncommitted so the message is redelivered
			c.logger.Error("failed to archive event", "offset", m.Offset, "error", err)
			c.sleep(ctx)
			return
		}
		c.logger.Warn("skipping malformed event", "offset", m.Offset, "error", err)
	}

	if err := c.reader.CommitMessages(ctx, m); err != nil {
		c.logger.Error("failed to commit offset", "offset", m.Offset, "error", err)
	}
}

type malformedError struct {
	err error
}

func (e *malformedError) Error() string { return e.err.Error() }

func (e *malformedError) Unwrap() error { return e.err }

func (c *TimelineConsumer) processMessage(ctx context.Context, m kafka.Message) error {
	eventID, err := headerInt(m, "event_id")
	if err != nil {
		return &malformedError{err}
	}

	var event domain.Event
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return &malformedError{fmt.Errorf("error parsing message: %w", err)}
	}
	if event.OrderID == 0 {
		return &malformedError{errors.New("event without order id")}
	}

	entry := domain.TimelineEntry{
		EventID:    eventID,
		OrderID:    event.OrderID,
		SubOrderID: event.SubOrderID,
		VendorID:   event.VendorID,
		Type:       event.Type,
		Status:     event.Status,
		OccurredAt: event.OccurredAt,
	}
	if err := c.repo.Append(ctx, entry); err != nil {
		return err
	}
	c.logger.Debug("event archived", "event_id", eventID, "order_id", event.OrderID, "type", event.Type)
	return nil
}

func (c *TimelineConsumer) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.backoff):
	}
}

func headerInt(m kafka.Message, key string) (int64, error) {
	for _, h := range m.Headers {
		if h.Key == key {
			v, err := strconv.ParseInt(string(h.Value), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("bad %s header %q: %w", key, h.Value, err)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("missing %s header", key)
}

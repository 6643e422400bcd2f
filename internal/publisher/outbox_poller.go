package publisher

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/fjod/fresh_grocery/internal/circuitbreaker"
	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/segmentio/kafka-go"
)

const Topic = "marketplace-outbox"

type EventSource interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller relays committed outbox rows to Kafka. Delivery is at least
// once: a row is marked processed only after the broker accepted it.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	batch     int
	source    EventSource
	writer    MessageWriter
	breaker   *circuitbreaker.Breaker
	logger    *slog.Logger
}

func NewOutboxPoller(source EventSource, breaker *circuitbreaker.Breaker, logger *slog.Logger, tick time.Duration, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newOutboxPoller(source, w, breaker, logger, tick)
}

func newOutboxPoller(source EventSource, w MessageWriter, breaker *circuitbreaker.Breaker, logger *slog.Logger, tick time.Duration) *OutboxPoller {
	if tick <= 0 {
		tick = time.Second
	}
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.Settings{Name: "kafka-outbox"}, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: tick,
		batch:     100,
		source:    source,
		writer:    w,
		breaker:   breaker,
		logger:    logger,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents publishes one batch in creation order and stops at
// the first failure so later events never overtake an earlier one.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.source.GetUnprocessedEvents(ctx, p.batch)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", "error", err)
		return 0
	}

	published := 0
	for _, event := range events {
		err := p.breaker.Execute(func() error {
			return p.publishToKafka(ctx, event)
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			p.logger.Debug("kafka breaker open, postponing outbox batch", "pending", len(events)-published)
			return published
		}
		if err != nil {
			p.logger.Error("failed to publish outbox event", "event_id", event.ID, "error", err)
			return published
		}

		if err := p.source.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Error("failed to mark outbox event as processed", "event_id", event.ID, "error", err)
			return published
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *domain.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps per-order ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(strconv.FormatInt(event.ID, 10))},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fjod/fresh_grocery/internal/circuitbreaker"
	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/publisher"
	"github.com/fjod/fresh_grocery/internal/timeline"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

type mockTimeline struct {
	mu      sync.Mutex
	entries map[int64]domain.TimelineEntry
	err     error
}

func newMockTimeline() *mockTimeline {
	return &mockTimeline{entries: make(map[int64]domain.TimelineEntry)}
}

func (m *mockTimeline) Append(_ context.Context, e domain.TimelineEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.entries[e.EventID]; !ok {
		m.entries[e.EventID] = e
	}
	return nil
}

func (m *mockTimeline) ListByOrder(_ context.Context, orderID int64) ([]domain.TimelineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TimelineEntry
	for _, e := range m.entries {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockReader struct {
	mu        sync.Mutex
	messages  []kafkaGo.Message
	committed []int64
}

func (m *mockReader) FetchMessage(ctx context.Context) (kafkaGo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return kafkaGo.Message{}, context.Canceled
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	return msg, nil
}

func (m *mockReader) CommitMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.committed = append(m.committed, msg.Offset)
	}
	return nil
}

func (m *mockReader) Close() error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func message(t *testing.T, offset, eventID int64, e domain.Event) kafkaGo.Message {
	t.Helper()
	payload, err := json.Marshal(e)
	require.NoError(t, err)
	return kafkaGo.Message{
		Offset: offset,
		Key:    []byte(fmt.Sprint(e.OrderID)),
		Value:  payload,
		Headers: []kafkaGo.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(fmt.Sprint(eventID))},
		},
	}
}

func TestConsumeOne_ArchivesAndCommits(t *testing.T) {
	repo := newMockTimeline()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reader := &mockReader{messages: []kafkaGo.Message{
		message(t, 0, 11, domain.Event{Type: domain.EventSubOrderStatus, OrderID: 5, SubOrderID: 8, VendorID: 2, Status: domain.StatusReady, OccurredAt: at}),
		message(t, 1, 11, domain.Event{Type: domain.EventSubOrderStatus, OrderID: 5, SubOrderID: 8, VendorID: 2, Status: domain.StatusReady, OccurredAt: at}),
	}}
	c := newTimelineConsumer(repo, reader, quietLogger())

	c.consumeOne(context.Background())
	c.consumeOne(context.Background())

	entries, err := repo.ListByOrder(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(11), entries[0].EventID)
	assert.Equal(t, domain.StatusReady, entries[0].Status)
	assert.Equal(t, int64(8), entries[0].SubOrderID)
	assert.True(t, at.Equal(entries[0].OccurredAt))
	assert.Equal(t, []int64{0, 1}, reader.committed)
}

func TestConsumeOne_MalformedIsSkipped(t *testing.T) {
	repo := newMockTimeline()
	noHeader := kafkaGo.Message{Offset: 0, Value: []byte(`{"orderId":1}`)}
	badJSON := kafkaGo.Message{Offset: 1, Value: []byte(`{`), Headers: []kafkaGo.Header{{Key: "event_id", Value: []byte("1")}}}
	noOrder := message(t, 2, 2, domain.Event{Type: domain.EventCartUpdated, CustomerID: 3})
	reader := &mockReader{messages: []kafkaGo.Message{noHeader, badJSON, noOrder}}
	c := newTimelineConsumer(repo, reader, quietLogger())

	for i := 0; i < 3; i++ {
		c.consumeOne(context.Background())
	}
	assert.Empty(t, repo.entries)
	assert.Equal(t, []int64{0, 1, 2}, reader.committed)
}

func TestConsumeOne_StoreFailureLeavesOffset(t *testing.T) {
	repo := newMockTimeline()
	repo.err = errors.New("mongo down")
	reader := &mockReader{messages: []kafkaGo.Message{
		message(t, 7, 1, domain.Event{Type: domain.EventOrderPlaced, OrderID: 1}),
	}}
	c := newTimelineConsumer(repo, reader, quietLogger())
	c.backoff = time.Millisecond

	c.consumeOne(context.Background())
	assert.Empty(t, reader.committed)
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := newTimelineConsumer(newMockTimeline(), &mockReader{}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}
	return brokers[0], cleanup
}

func setupMongo(t *testing.T) (*timeline.MongoRepository, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := timeline.ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	repo := timeline.NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate mongo container: %s", err)
		}
	}
	return repo, cleanup
}

type staticSource struct {
	mu     sync.Mutex
	events []*domain.OutboxEvent
}

func (s *staticSource) GetUnprocessedEvents(context.Context, int) ([]*domain.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.events
	s.events = nil
	return pending, nil
}

func (s *staticSource) MarkEventAsProcessed(context.Context, int64) error { return nil }

func TestTimelineConsumer_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka/mongo integration test in short mode")
	}
	brokerAddr, cleanupKafka := setupKafka(t)
	defer cleanupKafka()
	repo, cleanupMongo := setupMongo(t)
	defer cleanupMongo()

	payload, err := json.Marshal(domain.Event{Type: domain.EventOrderPlaced, OrderID: 42, CustomerID: 1, OccurredAt: time.Now().UTC()})
	require.NoError(t, err)
	source := &staticSource{events: []*domain.OutboxEvent{{ID: 1, AggregateID: "42", EventType: string(domain.EventOrderPlaced), Payload: payload}}}

	breaker := circuitbreaker.New(circuitbreaker.Settings{Name: "e2e"}, quietLogger())
	poller := publisher.NewOutboxPoller(source, breaker, quietLogger(), 500*time.Millisecond, brokerAddr)
	defer poller.Close()
	c := NewTimelineConsumer(repo, quietLogger(), brokerAddr)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	go poller.Run(ctx)
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		entries, err := repo.ListByOrder(ctx, 42)
		return err == nil && len(entries) == 1
	}, 45*time.Second, 500*time.Millisecond)
}

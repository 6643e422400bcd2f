package events

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublish_DeliversToEverySubscriber(t *testing.T) {
	bus := NewBus(quietLogger())
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)
	defer a.Close()
	defer b.Close()

	bus.Publish(domain.Event{Type: domain.EventOrderPlaced, OrderID: 1})

	assert.Equal(t, domain.EventOrderPlaced, (<-a.C).Type)
	assert.Equal(t, int64(1), (<-b.C).OrderID)
}

func TestPublish_DropsWhenBufferFull(t *testing.T) {
	bus := NewBus(quietLogger())
	s := bus.Subscribe(1)
	defer s.Close()

	bus.Publish(domain.Event{OrderID: 1})
	bus.Publish(domain.Event{OrderID: 2})

	assert.Equal(t, int64(1), (<-s.C).OrderID)
	select {
	case e := <-s.C:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}

func TestClose_IsIdempotentAndClosesChannel(t *testing.T) {
	bus := NewBus(quietLogger())
	s := bus.Subscribe(1)
	require.Equal(t, 1, bus.Subscribers())

	s.Close()
	s.Close()

	_, ok := <-s.C
	assert.False(t, ok)
	assert.Zero(t, bus.Subscribers())

	// publishing after close must not panic
	bus.Publish(domain.Event{OrderID: 1})
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus(quietLogger())
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := bus.Subscribe(16)
			for j := 0; j < 10; j++ {
				select {
				case <-s.C:
				default:
				}
			}
			s.Close()
		}()
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				bus.Publish(domain.Event{OrderID: int64(n*10 + j)})
			}
		}(i)
	}
	wg.Wait()
	assert.Zero(t, bus.Subscribers())
}

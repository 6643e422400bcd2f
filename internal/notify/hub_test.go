package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	bus    *events.Bus
	hub    *Hub
	server *httptest.Server
	cancel context.CancelFunc
	done   chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewBus(logger)
	hub := NewHub(bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
		hub.ServeWS(w, r, id)
	}))

	f := &fixture{bus: bus, hub: hub, server: server, cancel: cancel, done: done}
	t.Cleanup(f.close)
	return f
}

func (f *fixture) close() {
	f.cancel()
	<-f.done
	f.server.Close()
}

func (f *fixture) dial(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	before := f.hub.Connections(userID)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?user=" + strconv.FormatInt(userID, 10)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Eventually(t, func() bool { return f.hub.Connections(userID) == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e domain.Event
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestHub_DeliversToRecipientsOnly(t *testing.T) {
	f := newFixture(t)
	customer := f.dial(t, 1)
	defer customer.Close()
	vendor := f.dial(t, 2)
	defer vendor.Close()
	other := f.dial(t, 3)
	defer other.Close()

	f.bus.Publish(domain.Event{Type: domain.EventSubOrderStatus, OrderID: 9, CustomerID: 1, VendorID: 2, Status: domain.StatusReady})

	got := readEvent(t, customer)
	assert.Equal(t, domain.EventSubOrderStatus, got.Type)
	assert.Equal(t, domain.StatusReady, got.Status)
	assert.Equal(t, int64(9), readEvent(t, vendor).OrderID)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, 5)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return f.hub.Connections(5) == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, 7)
	defer conn.Close()

	f.cancel()
	<-f.done

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, f.hub.Connections(7))
	assert.Zero(t, f.bus.Subscribers())
}

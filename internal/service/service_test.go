package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/fjod/fresh_grocery/internal/cache"
	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
	"github.com/fjod/fresh_grocery/internal/repository/memory"
	"github.com/fjod/fresh_grocery/internal/repository/storetest"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) ofType(t domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type mockCache struct {
	mu      sync.Mutex
	carts   map[int64]*domain.Cart
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[int64]*domain.Cart)}
}

func (m *mockCache) Get(_ context.Context, customerID int64) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[customerID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c, nil
}

func (m *mockCache) Set(_ context.Context, customerID int64, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[customerID] = cart
	return nil
}

func (m *mockCache) Delete(_ context.Context, customerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.carts, customerID)
	return nil
}

func (m *mockCache) cached(customerID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.carts[customerID]
	return ok
}

type testEnv struct {
	store    *memory.MemoryStore
	fx       *storetest.Fixture
	bus      *recordingBus
	cache    *mockCache
	carts    *CartService
	checkout *CheckoutService
	orders   *OrderService
	products *ProductService
	auth     *AuthService
	users    *UserService

	customer domain.Actor
	vendorA  domain.Actor
	vendorB  domain.Actor
	admin    domain.Actor
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewMemoryStore()
	fx := storetest.Seed(t, store)
	bus := &recordingBus{}
	c := newMockCache()
	logger := quietLogger()

	carts := NewCartService(store, c, bus, logger)
	auth := NewAuthService(store, AuthConfig{Secret: "test-secret", BcryptCost: bcrypt.MinCost}, logger)
	env := &testEnv{
		store:    store,
		fx:       fx,
		bus:      bus,
		cache:    c,
		carts:    carts,
		checkout: NewCheckoutService(store, carts, bus, logger),
		orders:   NewOrderService(store, bus, nil, logger),
		products: NewProductService(store, carts, logger),
		auth:     auth,
		users:    NewUserService(store, auth, logger),
		customer: domain.ActorOf(fx.Customer),
		vendorA:  domain.ActorOf(fx.VendorA),
		vendorB:  domain.ActorOf(fx.VendorB),
	}

	require.NoError(t, auth.EnsureAdmin(context.Background(), "admin@example.com", "admin-pass"))
	_, admin, err := auth.Login(context.Background(), "admin@example.com", "admin-pass")
	require.NoError(t, err)
	env.admin = domain.ActorOf(admin)
	return env
}

func (e *testEnv) product(t *testing.T, id int64) *domain.Product {
	t.Helper()
	var p *domain.Product
	require.NoError(t, e.store.View(context.Background(), func(tx repository.Tx) error {
		var err error
		p, err = tx.GetProduct(context.Background(), id)
		return err
	}))
	return p
}

func (e *testEnv) outbox(t *testing.T) []*domain.OutboxEvent {
	t.Helper()
	var out []*domain.OutboxEvent
	require.NoError(t, e.store.View(context.Background(), func(tx repository.Tx) error {
		var err error
		out, err = tx.GetUnprocessedEvents(context.Background(), 0)
		return err
	}))
	return out
}

// newCustomer registers another customer and returns its actor.
func (e *testEnv) newCustomer(t *testing.T, email string) domain.Actor {
	t.Helper()
	u, err := e.auth.Register(context.Background(), email, "", "secret-pass")
	require.NoError(t, err)
	return domain.ActorOf(u)
}

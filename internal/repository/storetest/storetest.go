// Package storetest holds behaviour tests shared by every repository.Store implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Fixture struct {
	Customer *domain.User
	VendorA  *domain.User
	VendorB  *domain.User
	Apple    *domain.Product
	Bread    *domain.Product
}

func Seed(t *testing.T, store repository.Store) *Fixture {
	t.Helper()
	ctx := context.Background()
	f := &Fixture{
		Customer: &domain.User{Email: "Customer@Example.com", FullName: "Customer", Role: domain.RoleCustomer, PasswordHash: "x"},
		VendorA:  &domain.User{Email: "farm@example.com", FullName: "Farm", Role: domain.RoleVendor, PasswordHash: "x"},
		VendorB:  &domain.User{Email: "bakery@example.com", FullName: "Bakery", Role: domain.RoleVendor, PasswordHash: "x"},
	}
	err := store.Update(ctx, func(tx repository.Tx) error {
		for _, u := range []*domain.User{f.Customer, f.VendorA, f.VendorB} {
			u.CreatedAt = time.Now().UTC()
			if err := tx.CreateUser(ctx, u); err != nil {
				return err
			}
		}
		f.Apple = &domain.Product{Name: "Red Apple", Price: 100, Stock: 5, Category: "Fruits", VendorID: f.VendorA.ID}
		f.Bread = &domain.Product{Name: "Rye Bread", Price: 50, Stock: 1, Category: "Bakery", VendorID: f.VendorB.ID}
		for _, p := range []*domain.Product{f.Apple, f.Bread} {
			p.CreatedAt = time.Now().UTC()
			p.UpdatedAt = p.CreatedAt
			if err := tx.CreateProduct(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return f
}

// Run executes the shared suite; open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) repository.Store) {
	t.Run("ReserveStock", func(t *testing.T) { testReserveStock(t, open(t)) })
	t.Run("ConcurrentReserveNeverOversells", func(t *testing.T) { testConcurrentReserve(t, open(t)) })
	t.Run("FailedUnitOfWorkRollsBack", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("Products", func(t *testing.T) { testProducts(t, open(t)) })
	t.Run("Cart", func(t *testing.T) { testCart(t, open(t)) })
	t.Run("ConcurrentCartAddsAccumulate", func(t *testing.T) { testConcurrentCartAdds(t, open(t)) })
	t.Run("ConcurrentCheckoutsDrainCartOnce", func(t *testing.T) { testConcurrentCheckouts(t, open(t)) })
	t.Run("Orders", func(t *testing.T) { testOrders(t, open(t)) })
	t.Run("Outbox", func(t *testing.T) { testOutbox(t, open(t)) })
}

func product(t *testing.T, store repository.Store, id int64) *domain.Product {
	t.Helper()
	var p *domain.Product
	err := store.View(context.Background(), func(tx repository.Tx) error {
		var err error
		p, err = tx.GetProduct(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return p
}

func testReserveStock(t *testing.T, store repository.Store) {
	f := Seed(t, store)
	ctx := context.Background()

	err := store.Update(ctx, func(tx repository.Tx) error {
		return tx.ReserveStock(ctx, f.Apple.ID, 2)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, product(t, store, f.Apple.ID).Stock)

	err = store.Update(ctx, func(tx repository.Tx) error {
		return tx.ReserveStock(ctx, f.Apple.ID, 4)
	})
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, f.Apple.ID, stockErr.ProductID)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 3, product(t, store, f.Apple.ID).Stock)

	err = store.Update(ctx, func(tx repository.Tx) error {
		return tx.ReserveStock(ctx, 9999, 1)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testConcurrentReserve(t *testing.T, store repository.Store) {
	f := Seed(t, store)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update(ctx, func(tx repository.Tx) error {
				return tx.ReserveStock(ctx, f.Apple.ID, 1)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, product(t, store, f.Apple.ID).Stock)
}

func testRollback(t *testing.T, store repository.Store) {
	f := Seed(t, store)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Update(ctx, func(tx repository.Tx) error {
		if err := tx.ReserveStock(ctx, f.Apple.ID, 2); err != nil {
			return err
		}
		if err := tx.InsertCartItem(ctx, &domain.CartItem{CustomerID: f.Customer.ID, ProductID: f.Apple.ID, Quantity: 1, Price: 100, AddedAt: time.Now().UTC()}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 5, product(t, store, f.Apple.ID).Stock)

	_ = store.View(ctx, func(tx repository.Tx) error {
		items, err := tx.GetCartItems(ctx, f.Customer.ID)
		require.NoError(t, err)
		assert.Empty(t, items)
		return nil
	})
}

func testUsers(t *testing.T, store repository.Store) {
	f := Seed(t, store)
	ctx := context.Background()

	err := store.Update(ctx, func(tx repository.Tx) error {
		return tx.CreateUser(ctx, &domain.User{Email: "CUSTOMER@example.com", Role: domain.RoleCustomer, PasswordHash: "y", CreatedAt: time.Now().UTC()})
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = store.Update(ctx, func(tx repository.Tx) error {
		u, err := tx.GetUserByEmail(ctx, "customer@EXAMPLE.com")
		require.NoError(t, err)
		assert.Equal(t, f.Customer.ID, u.ID)

		b, err := tx.GetUser(ctx, f.VendorB.ID)
		require.NoError(t, err)
		b.Deleted = true
		return tx.UpdateUser(ctx, b)
	})
	require.NoError(t, err)

	_ = store.View(ctx, func(tx repository.Tx) error {
		vendors, err := tx.ListUsers(ctx, repository.UserFilter{Role: domain.RoleVendor})
		require.NoError(t, err)
		require.Len(t, vendors, 1)
		assert.Equal(t, f.VendorA.ID, vendors[0].ID)

		all, err := tx.ListUsers(ctx, repository.UserFilter{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		sellers, err := tx.ListUsers(ctx, repository.UserFilter{Role: domain.RoleVendor, ProductQuery: "apple"})
		require.NoError(t, err)
		require.Len(t, sellers, 1)
		assert.Equal(t, f.VendorA.ID, sellers[0].ID)

		_, err = tx.GetUser(ctx, 9999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
}

func testProducts(t *testing.T, store repository.Store) {
	f := Seed(t, store)
	ctx := context.Background()

	_ = store.View(ctx, func(tx repository.Tx) error {
		byName, err := tx.ListProducts(ctx, repository.ProductFilter{Query: "APPLE"})
		require.NoError(t, err)
		require.Len(t, byName, 1)
		assert.Equal(t, f.Apple.ID, byName[0].ID)

		byVendor, err := tx.ListProducts(ctx, repository.ProductFilter{VendorID: f.VendorB.ID})
		require.NoError(t, err)
		require.Len(t, byVendor, 1)
		assert.Equal(t, f.Bread.ID, byVendor[0].ID)

		byCategory, err := tx.ListProducts(ctx, repository.ProductFilter{Category: "Fruits"})
		require.NoError(t, err)
		assert.Len(t, byCategory, 1)

		categories, err := tx.ListCategories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Bakery", "Fruits"}, categories)
		return nil
	})

	err := store.Update(ctx, func(tx repository.Tx) error {
		p, err := tx.GetProduct(ctx, f.Apple.ID)
		require.NoError(t, err)
		p.Price = 120
		p.Description = "crisp"
		return tx.UpdateProduct(ctx, p)
	})
	require.NoError(t, err)
	updated := product(t, store, f.Apple.ID)
	assert.Equal(t, int64(120), updated.Price)
	assert.Equal(t, "crisp", updated.Description)

	err = store.Update(ctx, func(tx repository.Tx) error {
		return tx.DeleteProduct(ctx, f.Bread.ID)
	})
	require.NoError(t, err)
	err = store.View(ctx, func(tx repository.Tx) error {
		_, err := tx.GetProduct(ctx, f.Bread.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testCart(t *testing.T, store repository.Store) {
	f := Seed(t, store)
	ctx := context.Background()

	item := &domain.CartItem{CustomerID: f.Customer.ID, ProductID: f.Apple.ID, Quantity: 2, Price: 100, AddedAt: time.Now().UTC()}
	err := store.Update(ctx, func(tx repository.Tx) error {
		if err := tx.InsertCartItem(ctx, item); err != nil {
			return err
		}
		return tx.InsertCartItem(ctx, &domain.CartItem{CustomerID: f.Customer.ID, ProductID: f.Bread.ID, Quantity: 1, Price: 50, AddedAt: time.Now().UTC()})
	})
	require.NoError(t, err)
	assert.NotZero(t, item.ID)

	err = store.Update(ctx, func(tx repository.Tx) error {
		found, err := tx.FindCartItem(ctx, f.Customer.ID, f.Apple.ID)
		require.NoError(t, err)
		assert.Equal(t, item.ID, found.ID)
		return tx.UpdateCartItemQuantity(ctx, found.ID, 4)
	})
	require.NoError(t, err)

	err = store.Update(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.LockCart(ctx, f.Customer.ID))
		qty, err := tx.IncrementCartItemQuantity(ctx, item.ID, 1)
		assert.Equal(t, 5, qty)
		return err
	})
	require.NoError(t, err)

	err = store.Update(ctx, func(tx repository.Tx) error {
		_, err := tx.IncrementCartItemQuantity(ctx, 9999, 1)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.Update(ctx, func(tx repository.Tx) error {
		return tx.LockCart(ctx, 9999)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_ = store.View(ctx, func(tx repository.Tx) error {
		got, err := tx.GetCartItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Quantity)
		assert.Equal(t, int64(100), got.Price)

		items, err := tx.GetCartItems(ctx, f.Customer.ID)
		require.NoError(t, err)
		assert.Len(t, items, 2)
		return nil
	})

	err = store.Update(ctx, func(tx repository.Tx) error {
		customers, err := tx.DeleteCartItemsByProduct(ctx, f.Bread.ID)
		assert.Equal(t, []int64{f.Customer.ID}, customers)
		return err
	})
	require.NoError(t, err)

	err = store.Update(ctx, func(tx repository.Tx) error {
		return tx.DeleteCartItem(ctx, 9999)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.Update(ctx, func(tx repository.Tx) error {
		return tx.ClearCart(ctx, f.Customer.ID)
	})
	require.NoError(t, err)
	_ = store.View(ctx, func(tx repository.Tx) error {
		items, err := tx.GetCartItems(ctx, f.Customer.ID)
		require.NoError(t, err)
		assert.Empty(t, items)
		_, err = tx.FindCartItem(ctx, f.Customer.ID, f.Apple.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
}

// addToCart mirrors the cart service: lock, then increment or insert.
func addToCart(ctx context.Context, tx repository.Tx, customerID int64, p *domain.Product, qty int) error {
	if err := tx.LockCart(ctx, customerID); err != nil {
		return err
	}
	item, err := tx.FindCartItem(ctx, customerID, p.ID)
	switch {
	case err == nil:
		_, err = tx.IncrementCartItemQuantity(ctx, item.ID, qty)
		return err
	case errors.Is(err, domain.ErrNotFound):
		return tx.InsertCartItem(ctx, &domain.CartItem{CustomerID: customerID, ProductID: p.ID, Quantity: qty, Price: p.Price, AddedAt: time.Now().UTC()})
	default:
		return err
	}
}

func testConcurrentCartAdds(t *testing.T, store repository.Store) {
	f := Seed(t, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update(ctx, func(tx repository.Tx) error {
				return addToCart(ctx, tx, f.Customer.ID, f.Apple, 1)
			})
			if err != nil {
				t.Errorf("add to cart: %v", err)
			}
		}()
	}
	wg.Wait()

	_ = store.View(ctx, func(tx repository.Tx) error {
		items, err := tx.GetCartItems(ctx, f.Customer.ID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 10, items[0].Quantity)
		return nil
	})
}

func testConcurrentCheckouts(t *testing.T, store repository.Store) {
	f := Seed(t, store)
	ctx := context.Background()

	err := store.Update(ctx, func(tx repository.Tx) error {
		return addToCart(ctx, tx, f.Customer.ID, f.Apple, 2)
	})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		drained int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update(ctx, func(tx repository.Tx) error {
				if err := tx.LockCart(ctx, f.Customer.ID); err != nil {
					return err
				}
				lines, err := tx.GetCartItems(ctx, f.Customer.ID)
				if err != nil {
					return err
				}
				if len(lines) == 0 {
					return domain.ErrEmptyCart
				}
				for _, line := range lines {
					if err := tx.ReserveStock(ctx, line.ProductID, line.Quantity); err != nil {
						return err
					}
				}
				return tx.ClearCart(ctx, f.Customer.ID)
			})
			if err == nil {
				mu.Lock()
				drained++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrEmptyCart) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, drained)
	assert.Equal(t, 3, product(t, store, f.Apple.ID).Stock)
}

func newOrder(f *Fixture, key string, at time.Time) *domain.Order {
	items := []domain.OrderItem{
		{ProductID: f.Apple.ID, ProductName: f.Apple.Name, VendorID: f.VendorA.ID, Quantity: 2, PriceAtPurchase: 100},
		{ProductID: f.Bread.ID, ProductName: f.Bread.Name, VendorID: f.VendorB.ID, Quantity: 1, PriceAtPurchase: 50},
	}
	return &domain.Order{
		CustomerID:     f.Customer.ID,
		CreatedAt:      at,
		Items:          items,
		Total:          domain.SumItems(items),
		IdempotencyKey: key,
		SubOrders: []domain.VendorSubOrder{
			{VendorID: f.VendorA.ID, Status: domain.StatusPlaced, CreatedAt: at, UpdatedAt: at},
			{VendorID: f.VendorB.ID, Status: domain.StatusPlaced, CreatedAt: at, UpdatedAt: at},
		},
	}
}

func testOrders(t *testing.T, store repository.Store) {
	f := Seed(t, store)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	first := newOrder(f, "key-1", base)
	second := newOrder(f, "", base.Add(time.Minute))
	err := store.Update(ctx, func(tx repository.Tx) error {
		if err := tx.CreateOrder(ctx, first); err != nil {
			return err
		}
		return tx.CreateOrder(ctx, second)
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	require.Len(t, first.SubOrders, 2)

	err = store.Update(ctx, func(tx repository.Tx) error {
		return tx.CreateOrder(ctx, newOrder(f, "key-1", base))
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_ = store.View(ctx, func(tx repository.Tx) error {
		got, err := tx.GetOrder(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(250), got.Total)
		assert.Equal(t, domain.AggregateActive, got.Status)
		require.Len(t, got.Items, 2)
		require.Len(t, got.SubOrders, 2)
		for _, so := range got.SubOrders {
			require.Len(t, so.Items, 1)
			assert.Equal(t, so.VendorID, so.Items[0].VendorID)
			assert.Equal(t, so.ID, so.Items[0].SubOrderID)
		}

		byKey, err := tx.GetOrderByIdempotencyKey(ctx, f.Customer.ID, "key-1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, byKey.ID)

		_, err = tx.GetOrderByIdempotencyKey(ctx, f.Customer.ID, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		inOrders, err := tx.ProductInOrders(ctx, f.Apple.ID)
		require.NoError(t, err)
		assert.True(t, inOrders)

		vendorSubs, err := tx.ListSubOrdersByVendor(ctx, f.VendorA.ID)
		require.NoError(t, err)
		assert.Len(t, vendorSubs, 2)
		return nil
	})

	// complete every sub-order of the first order
	for _, so := range first.SubOrders {
		status := domain.StatusCancelled
		if so.VendorID == f.VendorA.ID {
			status = domain.StatusDelivered
		}
		err = store.Update(ctx, func(tx repository.Tx) error {
			return tx.UpdateSubOrderStatus(ctx, so.ID, status, so.Version, time.Now().UTC())
		})
		require.NoError(t, err)
	}

	stale := first.SubOrders[0]
	err = store.Update(ctx, func(tx repository.Tx) error {
		return tx.UpdateSubOrderStatus(ctx, stale.ID, domain.StatusAccepted, stale.Version, time.Now().UTC())
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_ = store.View(ctx, func(tx repository.Tx) error {
		so, err := tx.GetSubOrder(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, stale.Version+1, so.Version)

		completed, total, err := tx.ListOrders(ctx, repository.OrderFilter{Status: domain.AggregateCompleted}, repository.Page{Number: 0, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, completed, 1)
		assert.Equal(t, first.ID, completed[0].ID)
		assert.Equal(t, domain.AggregateCompleted, completed[0].Status)

		active, total, err := tx.ListOrders(ctx, repository.OrderFilter{Status: domain.AggregateActive}, repository.Page{Number: 0, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, active, 1)
		assert.Equal(t, second.ID, active[0].ID)

		paged, total, err := tx.ListOrders(ctx, repository.OrderFilter{CustomerID: f.Customer.ID}, repository.Page{Number: 1, Size: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, paged, 1)
		assert.Equal(t, first.ID, paged[0].ID)

		none, total, err := tx.ListOrders(ctx, repository.OrderFilter{CustomerID: f.VendorA.ID}, repository.Page{Number: 0, Size: 10})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, none)
		return nil
	})
}

func testOutbox(t *testing.T, store repository.Store) {
	ctx := context.Background()
	events := []*domain.OutboxEvent{
		{AggregateID: "1", EventType: string(domain.EventOrderPlaced), Payload: []byte(`{"orderId":1}`), CreatedAt: time.Now().UTC()},
		{AggregateID: "2", EventType: string(domain.EventOrderPlaced), Payload: []byte(`{"orderId":2}`), CreatedAt: time.Now().UTC()},
	}
	err := store.Update(ctx, func(tx repository.Tx) error {
		for _, e := range events {
			if err := tx.InsertOutboxEvent(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	outbox := repository.NewOutbox(store)
	pending, err := outbox.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, events[0].ID, pending[0].ID)
	assert.JSONEq(t, `{"orderId":1}`, string(pending[0].Payload))

	require.NoError(t, outbox.MarkEventAsProcessed(ctx, events[0].ID))

	pending, err = outbox.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, events[1].ID, pending[0].ID)

	limited, err := outbox.GetUnprocessedEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

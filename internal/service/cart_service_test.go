package service

import (
	"context"
	"sync"
	"testing"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItem_IncrementKeepsPriceSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.carts.AddItem(ctx, env.customer, env.fx.Apple.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.Price)

	require.NoError(t, env.store.Update(ctx, func(tx repository.Tx) error {
		p, err := tx.GetProduct(ctx, env.fx.Apple.ID)
		if err != nil {
			return err
		}
		p.Price = 130
		return tx.UpdateProduct(ctx, p)
	}))

	second, err := env.carts.AddItem(ctx, env.customer, env.fx.Apple.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.Quantity)
	assert.Equal(t, int64(100), second.Price)

	cart, err := env.carts.GetCart(ctx, env.customer)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(300), cart.Total)
	assert.Equal(t, 3, cart.ItemCount)
}

func TestAddItem_ConcurrentAddsAccumulate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.carts.AddItem(ctx, env.customer, env.fx.Apple.ID, 1); err != nil {
				t.Errorf("add item: %v", err)
			}
		}()
	}
	wg.Wait()

	env.carts.Invalidate(env.customer.UserID)
	cart, err := env.carts.GetCart(ctx, env.customer)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 8, cart.Items[0].Quantity)
}

func TestAddItem_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.carts.AddItem(ctx, env.customer, env.fx.Apple.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = env.carts.AddItem(ctx, env.customer, 9999, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.carts.AddItem(ctx, env.vendorA, env.fx.Apple.ID, 1)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	blocked := env.customer
	blocked.Blocked = true
	_, err = env.carts.AddItem(ctx, blocked, env.fx.Apple.ID, 1)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpdateQuantity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item, err := env.carts.AddItem(ctx, env.customer, env.fx.Apple.ID, 1)
	require.NoError(t, err)

	updated, removed, err := env.carts.UpdateQuantity(ctx, env.customer, item.ID, 4)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 4, updated.Quantity)

	updated, removed, err = env.carts.UpdateQuantity(ctx, env.customer, item.ID, 0)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Nil(t, updated)

	cart, err := env.carts.GetCart(ctx, env.customer)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.Total)
}

func TestRemoveItem_ForeignItemIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	other := env.newCustomer(t, "other@example.com")

	item, err := env.carts.AddItem(ctx, env.customer, env.fx.Apple.ID, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, env.carts.RemoveItem(ctx, other, item.ID), domain.ErrNotFound)
	_, _, err = env.carts.UpdateQuantity(ctx, other, item.ID, 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, env.carts.RemoveItem(ctx, env.customer, 9999), domain.ErrNotFound)

	require.NoError(t, env.carts.RemoveItem(ctx, env.customer, item.ID))
}

func TestGetCart_ReadThroughAndInvalidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cart, err := env.carts.GetCart(ctx, env.customer)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.True(t, env.cache.cached(env.customer.UserID))

	_, err = env.carts.AddItem(ctx, env.customer, env.fx.Bread.ID, 1)
	require.NoError(t, err)
	assert.False(t, env.cache.cached(env.customer.UserID))

	cart, err = env.carts.GetCart(ctx, env.customer)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	updates := env.bus.ofType(domain.EventCartUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, env.customer.UserID, updates[0].CustomerID)
	assert.Equal(t, 1, updates[0].ItemCount)
}

func TestGetCart_OnlyCustomers(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.carts.GetCart(context.Background(), env.admin)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

package service

import (
	"context"
	"testing"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.products.Create(ctx, env.vendorA, ProductInput{Name: " Pear ", Price: 80, Stock: 3, Category: "Fruits", VendorID: env.fx.VendorB.ID})
	require.NoError(t, err)
	assert.Equal(t, "Pear", p.Name)
	assert.Equal(t, env.fx.VendorA.ID, p.VendorID)

	_, err = env.products.Create(ctx, env.admin, ProductInput{Name: "Milk", Price: 90, Stock: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.products.Create(ctx, env.admin, ProductInput{Name: "Milk", Price: 90, Stock: 1, VendorID: env.customer.UserID})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	milk, err := env.products.Create(ctx, env.admin, ProductInput{Name: "Milk", Price: 90, Stock: 1, VendorID: env.fx.VendorB.ID})
	require.NoError(t, err)
	assert.Equal(t, env.fx.VendorB.ID, milk.VendorID)

	_, err = env.products.Create(ctx, env.vendorA, ProductInput{Name: "Bad", Price: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.products.Create(ctx, env.customer, ProductInput{Name: "Nope", Price: 1})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	list, err := env.products.List(ctx, repository.ProductFilter{VendorID: env.fx.VendorB.ID})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestUpdateProduct_Ownership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in := ProductInput{Name: "Green Apple", Price: 110, Stock: 7, Category: "Fruits"}
	_, err := env.products.Update(ctx, env.vendorB, env.fx.Apple.ID, in)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	p, err := env.products.Update(ctx, env.vendorA, env.fx.Apple.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Green Apple", p.Name)
	assert.Equal(t, 7, env.product(t, env.fx.Apple.ID).Stock)

	in.VendorID = env.fx.VendorB.ID
	p, err = env.products.Update(ctx, env.admin, env.fx.Apple.ID, in)
	require.NoError(t, err)
	assert.Equal(t, env.fx.VendorB.ID, p.VendorID)

	_, err = env.products.Update(ctx, env.admin, 9999, in)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.carts.AddItem(ctx, env.customer, env.fx.Apple.ID, 1)
	require.NoError(t, err)
	_, err = env.carts.GetCart(ctx, env.customer)
	require.NoError(t, err)
	require.True(t, env.cache.cached(env.customer.UserID))

	require.NoError(t, env.products.Delete(ctx, env.vendorA, env.fx.Apple.ID))
	assert.False(t, env.cache.cached(env.customer.UserID))

	cart, err := env.carts.GetCart(ctx, env.customer)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	_, err = env.products.Get(ctx, env.fx.Apple.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteProduct_OrderedIsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	placeOrder(t, env)

	err := env.products.Delete(ctx, env.admin, env.fx.Bread.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = env.products.Delete(ctx, env.vendorA, env.fx.Bread.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	categories, err := env.products.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bakery", "Fruits"}, categories)
}

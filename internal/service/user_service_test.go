package service

import (
	"context"
	"testing"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.UpdateProfile(ctx, env.customer, "  New Name ")
	require.NoError(t, err)
	assert.Equal(t, "New Name", u.FullName)

	me, err := env.users.Me(ctx, env.customer)
	require.NoError(t, err)
	assert.Equal(t, "New Name", me.FullName)

	_, err = env.users.UpdateProfile(ctx, env.customer, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBlockAndUnblock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.users.SetBlocked(ctx, env.vendorA, env.customer.UserID, true)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.users.SetBlocked(ctx, env.admin, env.admin.UserID, true)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	u, err := env.users.SetBlocked(ctx, env.admin, env.customer.UserID, true)
	require.NoError(t, err)
	assert.True(t, u.Blocked())

	u, err = env.users.SetBlocked(ctx, env.admin, env.customer.UserID, false)
	require.NoError(t, err)
	assert.False(t, u.Blocked())

	_, err = env.users.SetBlocked(ctx, env.admin, 9999, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVendorAdministration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.users.CreateVendor(ctx, env.admin, VendorInput{Email: "dairy@example.com", FullName: "Dairy", Password: "dairy-pass"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleVendor, v.Role)

	_, err = env.users.CreateVendor(ctx, env.customer, VendorInput{Email: "x@example.com", Password: "secret-pass"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	v, err = env.users.UpdateVendor(ctx, env.admin, v.ID, VendorInput{FullName: "Dairy Farm"})
	require.NoError(t, err)
	assert.Equal(t, "Dairy Farm", v.FullName)
	assert.Equal(t, "dairy@example.com", v.Email)

	_, err = env.users.UpdateVendor(ctx, env.admin, env.customer.UserID, VendorInput{FullName: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.users.UpdateVendor(ctx, env.admin, v.ID, VendorInput{Email: "farm@example.com"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, env.users.DeleteVendor(ctx, env.admin, v.ID))

	public, err := env.users.Vendors(ctx, "")
	require.NoError(t, err)
	assert.Len(t, public, 2)

	all, err := env.users.AllVendors(ctx, env.admin)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	sellers, err := env.users.Vendors(ctx, "bread")
	require.NoError(t, err)
	require.Len(t, sellers, 1)
	assert.Equal(t, env.fx.VendorB.ID, sellers[0].ID)
}

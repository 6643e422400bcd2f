package service

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.auth.Register(ctx, " Jane.Doe@Example.com ", "", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", u.Email)
	assert.Equal(t, "jane.doe", u.FullName)
	assert.Equal(t, domain.RoleCustomer, u.Role)
	assert.NotEqual(t, "secret-pass", u.PasswordHash)

	_, err = env.auth.Register(ctx, "JANE.DOE@example.com", "Jane", "secret-pass")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = env.auth.Register(ctx, "not-an-email", "", "secret-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.auth.Register(ctx, "short@example.com", "", "123")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registered, err := env.auth.Register(ctx, "buyer@example.com", "Buyer", "secret-pass")
	require.NoError(t, err)

	token, u, err := env.auth.Login(ctx, "BUYER@example.com", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	id, err := env.auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, id)

	current, err := env.auth.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Buyer", current.FullName)

	_, _, err = env.auth.Login(ctx, "buyer@example.com", "wrong-pass")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, _, err = env.auth.Login(ctx, "nobody@example.com", "secret-pass")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.users.SetBlocked(ctx, env.admin, registered.ID, true)
	require.NoError(t, err)
	_, _, err = env.auth.Login(ctx, "buyer@example.com", "secret-pass")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestParseToken_Rejects(t *testing.T) {
	env := newTestEnv(t)

	other := NewAuthService(env.store, AuthConfig{Secret: "other-secret", BcryptCost: bcrypt.MinCost}, quietLogger())
	forged, err := other.issueToken(env.fx.Customer)
	require.NoError(t, err)
	_, err = env.auth.ParseToken(forged)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	claims := Claims{
		Role: domain.RoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = env.auth.ParseToken(stale)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.auth.ParseToken("not-a-token")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestEnsureAdmin_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.auth.EnsureAdmin(ctx, "admin@example.com", "admin-pass"))
	require.NoError(t, env.auth.EnsureAdmin(ctx, "", ""))

	users, err := env.users.AllUsers(ctx, env.admin)
	require.NoError(t, err)
	admins := 0
	for _, u := range users {
		if u.Role == domain.RoleAdmin {
			admins++
		}
	}
	assert.Equal(t, 1, admins)
}

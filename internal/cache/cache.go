package cache

import (
	"context"
	"errors"

	"github.com/fjod/fresh_grocery/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, customerID int64) (*domain.Cart, error)
	Set(ctx context.Context, customerID int64, cart *domain.Cart) error
	Delete(ctx context.Context, customerID int64) error
}

var ErrCacheMiss = errors.New("cache miss")

// NopCache never stores anything; every Get is a miss.
type NopCache struct{}

func (NopCache) Get(context.Context, int64) (*domain.Cart, error) { return nil, ErrCacheMiss }

func (NopCache) Set(context.Context, int64, *domain.Cart) error { return nil }

func (NopCache) Delete(context.Context, int64) error { return nil }

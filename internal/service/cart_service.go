package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/fjod/fresh_grocery/internal/cache"
	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/events"
	"github.com/fjod/fresh_grocery/internal/repository"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	store  repository.Store
	cache  cache.CartCache
	bus    events.Publisher
	logger *slog.Logger
	sfg    singleflight.Group // Prevents cache stampede

	// generation is bumped on every invalidation so a slow read cannot
	// repopulate the cache with a cart that was changed meanwhile.
	genMu      sync.Mutex
	generation map[int64]uint64
}

func NewCartService(store repository.Store, c cache.CartCache, bus events.Publisher, logger *slog.Logger) *CartService {
	if c == nil {
		c = cache.NopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CartService{
		store:      store,
		cache:      c,
		bus:        orNop(bus),
		logger:     logger,
		generation: make(map[int64]uint64),
	}
}

func (s *CartService) GetCart(ctx context.Context, actor domain.Actor) (*domain.Cart, error) {
	if !actor.Is(domain.RoleCustomer) {
		return nil, fmt.Errorf("%w: only customers have a cart", domain.ErrForbidden)
	}
	customerID := actor.UserID

	v, err, _ := s.sfg.Do(strconv.FormatInt(customerID, 10), func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, customerID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cart cache get failed", "customer_id", customerID, "error", err)
		}

		gen := s.currentGeneration(customerID)
		var items []domain.CartItem
		err = s.store.View(ctx, func(tx repository.Tx) error {
			var err error
			items, err = tx.GetCartItems(ctx, customerID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("load cart: %w", err)
		}
		cart = domain.NewCart(customerID, items)

		if gen == s.currentGeneration(customerID) {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(setCtx, customerID, cart); err != nil {
				s.logger.Warn("cart cache set failed", "customer_id", customerID, "error", err)
			}
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// AddItem puts qty units of the product into the cart. A product already in
// the cart has its quantity increased and keeps its original price snapshot.
func (s *CartService) AddItem(ctx context.Context, actor domain.Actor, productID int64, qty int) (*domain.CartItem, error) {
	if err := requireRole(actor, domain.RoleCustomer); err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	var (
		item  *domain.CartItem
		count int
	)
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if err := tx.LockCart(ctx, actor.UserID); err != nil {
			return err
		}
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("product %d: %w", productID, err)
		}

		item, err = tx.FindCartItem(ctx, actor.UserID, productID)
		switch {
		case err == nil:
			item.Quantity, err = tx.IncrementCartItemQuantity(ctx, item.ID, qty)
			if err != nil {
				return err
			}
		case errors.Is(err, domain.ErrNotFound):
			item = &domain.CartItem{
				CustomerID: actor.UserID,
				ProductID:  p.ID,
				Quantity:   qty,
				Price:      p.Price,
				AddedAt:    utcNow(),
			}
			if err := tx.InsertCartItem(ctx, item); err != nil {
				return err
			}
		default:
			return err
		}

		count, err = itemCount(ctx, tx, actor.UserID)
		return err
	})
	if err != nil {
		s.logger.Debug("add cart item failed", "customer_id", actor.UserID, "product_id", productID, "error", err)
		return nil, err
	}

	s.cartChanged(actor.UserID, count)
	return item, nil
}

// UpdateQuantity sets the quantity of a cart row. A quantity below one removes
// the row and reports removed = true.
func (s *CartService) UpdateQuantity(ctx context.Context, actor domain.Actor, itemID int64, qty int) (*domain.CartItem, bool, error) {
	if err := requireRole(actor, domain.RoleCustomer); err != nil {
		return nil, false, err
	}
	if qty < 1 {
		if err := s.RemoveItem(ctx, actor, itemID); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	var (
		item  *domain.CartItem
		count int
	)
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if err := tx.LockCart(ctx, actor.UserID); err != nil {
			return err
		}
		var err error
		item, err = ownedCartItem(ctx, tx, actor.UserID, itemID)
		if err != nil {
			return err
		}
		if err := tx.UpdateCartItemQuantity(ctx, item.ID, qty); err != nil {
			return err
		}
		item.Quantity = qty
		count, err = itemCount(ctx, tx, actor.UserID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	s.cartChanged(actor.UserID, count)
	return item, false, nil
}

func (s *CartService) RemoveItem(ctx context.Context, actor domain.Actor, itemID int64) error {
	if err := requireRole(actor, domain.RoleCustomer); err != nil {
		return err
	}

	var count int
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if err := tx.LockCart(ctx, actor.UserID); err != nil {
			return err
		}
		if _, err := ownedCartItem(ctx, tx, actor.UserID, itemID); err != nil {
			return err
		}
		if err := tx.DeleteCartItem(ctx, itemID); err != nil {
			return err
		}
		var err error
		count, err = itemCount(ctx, tx, actor.UserID)
		return err
	})
	if err != nil {
		return err
	}

	s.cartChanged(actor.UserID, count)
	return nil
}

// Invalidate drops the cached cart of each customer.
func (s *CartService) Invalidate(customerIDs ...int64) {
	for _, id := range customerIDs {
		s.genMu.Lock()
		s.generation[id]++
		s.genMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := s.cache.Delete(ctx, id); err != nil {
			s.logger.Warn("cart cache invalidate failed", "customer_id", id, "error", err)
		}
		cancel()
	}
}

func (s *CartService) cartChanged(customerID int64, count int) {
	s.Invalidate(customerID)
	s.bus.Publish(domain.Event{
		Type:       domain.EventCartUpdated,
		CustomerID: customerID,
		ItemCount:  count,
		OccurredAt: utcNow(),
	})
}

func (s *CartService) currentGeneration(customerID int64) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generation[customerID]
}

// ownedCartItem hides rows of other customers behind ErrNotFound.
func ownedCartItem(ctx context.Context, tx repository.Tx, customerID, itemID int64) (*domain.CartItem, error) {
	item, err := tx.GetCartItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("cart item %d: %w", itemID, err)
	}
	if item.CustomerID != customerID {
		return nil, fmt.Errorf("cart item %d: %w", itemID, domain.ErrNotFound)
	}
	return item, nil
}

func itemCount(ctx context.Context, tx repository.Tx, customerID int64) (int, error) {
	items, err := tx.GetCartItems(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return domain.NewCart(customerID, items).ItemCount, nil
}

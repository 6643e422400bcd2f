package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/events"
	"github.com/fjod/fresh_grocery/internal/repository"
)

type CheckoutService struct {
	store  repository.Store
	carts  *CartService
	bus    events.Publisher
	logger *slog.Logger
}

func NewCheckoutService(store repository.Store, carts *CartService, bus events.Publisher, logger *slog.Logger) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{
		store:  store,
		carts:  carts,
		bus:    orNop(bus),
		logger: logger,
	}
}

// Checkout turns the customer's cart into an order with one PLACED sub-order
// per vendor. Stock reservation, order creation, cart clearing and the outbox
// write commit together or not at all. A repeated idempotency key returns the
// order created by the first call.
func (s *CheckoutService) Checkout(ctx context.Context, actor domain.Actor, idempotencyKey string) (*domain.Order, error) {
	if err := requireRole(actor, domain.RoleCustomer); err != nil {
		return nil, err
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)

	var (
		order    *domain.Order
		evts     []domain.Event
		replayed bool
	)
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		// serializes checkouts and cart edits of the same customer
		if err := tx.LockCart(ctx, actor.UserID); err != nil {
			return err
		}
		if idempotencyKey != "" {
			existing, err := tx.GetOrderByIdempotencyKey(ctx, actor.UserID, idempotencyKey)
			if err == nil {
				order, replayed = existing, true
				return nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}

		var err error
		order, err = s.placeOrder(ctx, tx, actor.UserID, idempotencyKey)
		if err != nil {
			return err
		}
		evts = placedEvents(order)
		return recordEvents(ctx, tx, evts)
	})
	if err != nil {
		// a concurrent request with the same key won the race
		if idempotencyKey != "" && errors.Is(err, domain.ErrConflict) {
			return s.findByKey(ctx, actor.UserID, idempotencyKey)
		}
		s.logger.Info("checkout rejected", "customer_id", actor.UserID, "error", err)
		return nil, err
	}
	if replayed {
		return order, nil
	}

	if s.carts != nil {
		s.carts.Invalidate(actor.UserID)
	}
	publishAll(s.bus, evts)
	s.bus.Publish(domain.Event{Type: domain.EventCartUpdated, CustomerID: actor.UserID, OccurredAt: order.CreatedAt})

	s.logger.Info("order placed",
		"order_id", order.ID,
		"customer_id", actor.UserID,
		"sub_orders", len(order.SubOrders),
		"total", order.Total,
	)
	return order, nil
}

func (s *CheckoutService) placeOrder(ctx context.Context, tx repository.Tx, customerID int64, key string) (*domain.Order, error) {
	cart, err := tx.GetCartItems(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(cart) == 0 {
		return nil, domain.ErrEmptyCart
	}

	now := utcNow()
	order := &domain.Order{
		CustomerID:     customerID,
		CreatedAt:      now,
		IdempotencyKey: key,
	}
	// stock rows are always locked in product id order
	lines := append([]domain.CartItem(nil), cart...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	products := make(map[int64]*domain.Product, len(lines))
	for _, line := range lines {
		p, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", line.ProductID, err)
		}
		if err := tx.ReserveStock(ctx, p.ID, line.Quantity); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}

	subOrders := make(map[int64]*domain.VendorSubOrder)
	var vendors []int64

	for _, line := range cart {
		p := products[line.ProductID]
		item := domain.OrderItem{
			ProductID:       p.ID,
			ProductName:     p.Name,
			VendorID:        p.VendorID,
			Quantity:        line.Quantity,
			PriceAtPurchase: p.Price,
		}
		order.Items = append(order.Items, item)

		so, ok := subOrders[p.VendorID]
		if !ok {
			so = &domain.VendorSubOrder{
				VendorID:  p.VendorID,
				Status:    domain.StatusPlaced,
				CreatedAt: now,
				UpdatedAt: now,
			}
			subOrders[p.VendorID] = so
			vendors = append(vendors, p.VendorID)
		}
		so.Items = append(so.Items, item)
	}

	for _, v := range vendors {
		order.SubOrders = append(order.SubOrders, *subOrders[v])
	}
	order.Total = domain.SumItems(order.Items)
	order.Project()

	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := tx.ClearCart(ctx, customerID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	return order, nil
}

func (s *CheckoutService) findByKey(ctx context.Context, customerID int64, key string) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		order, err = tx.GetOrderByIdempotencyKey(ctx, customerID, key)
		return err
	})
	return order, err
}

func placedEvents(o *domain.Order) []domain.Event {
	evts := []domain.Event{{
		Type:       domain.EventOrderPlaced,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		ItemCount:  len(o.Items),
		Total:      o.Total,
		OccurredAt: o.CreatedAt,
	}}
	for _, so := range o.SubOrders {
		evts = append(evts, domain.Event{
			Type:       domain.EventOrderPlaced,
			OrderID:    o.ID,
			SubOrderID: so.ID,
			VendorID:   so.VendorID,
			Status:     so.Status,
			ItemCount:  len(so.Items),
			Total:      domain.SumItems(so.Items),
			OccurredAt: o.CreatedAt,
		})
	}
	return evts
}

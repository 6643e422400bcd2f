package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/events"
	"github.com/fjod/fresh_grocery/internal/repository"
)

// TimelineReader serves the archived event history of an order.
type TimelineReader interface {
	ListByOrder(ctx context.Context, orderID int64) ([]domain.TimelineEntry, error)
}

type OrderService struct {
	store    repository.Store
	bus      events.Publisher
	timeline TimelineReader
	logger   *slog.Logger
}

func NewOrderService(store repository.Store, bus events.Publisher, timeline TimelineReader, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		store:    store,
		bus:      orNop(bus),
		timeline: timeline,
		logger:   logger,
	}
}

// Transition moves a vendor sub-order to the requested status. Vendors may
// only move their own sub-orders; admins may move any.
func (s *OrderService) Transition(ctx context.Context, actor domain.Actor, subOrderID int64, to domain.SubOrderStatus) (*domain.VendorSubOrder, error) {
	if err := requireRole(actor, domain.RoleVendor, domain.RoleAdmin); err != nil {
		return nil, err
	}

	var (
		so   *domain.VendorSubOrder
		evts []domain.Event
	)
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		so, err = tx.GetSubOrder(ctx, subOrderID)
		if err != nil {
			return fmt.Errorf("sub-order %d: %w", subOrderID, err)
		}
		if actor.Is(domain.RoleVendor) && so.VendorID != actor.UserID {
			return fmt.Errorf("%w: sub-order %d belongs to another vendor", domain.ErrForbidden, subOrderID)
		}
		if !so.Status.CanTransitionTo(to) {
			return &domain.IllegalTransitionError{From: so.Status, To: to}
		}

		now := utcNow()
		if err := tx.UpdateSubOrderStatus(ctx, so.ID, to, so.Version, now); err != nil {
			return err
		}
		so.Status = to
		so.Version++
		so.UpdatedAt = now

		order, err := tx.GetOrder(ctx, so.OrderID)
		if err != nil {
			return err
		}
		evts = append(evts, domain.Event{
			Type:       domain.EventSubOrderStatus,
			OrderID:    order.ID,
			SubOrderID: so.ID,
			CustomerID: order.CustomerID,
			VendorID:   so.VendorID,
			Status:     to,
			OccurredAt: now,
		})
		if order.Status == domain.AggregateCompleted {
			evts = append(evts, domain.Event{
				Type:       domain.EventOrderCompleted,
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				Total:      order.Total,
				OccurredAt: now,
			})
		}
		return recordEvents(ctx, tx, evts)
	})
	if err != nil {
		return nil, err
	}

	publishAll(s.bus, evts)
	s.logger.Info("sub-order status changed", "sub_order_id", so.ID, "order_id", so.OrderID, "status", to)
	return so, nil
}

// ForceComplete delivers every non-terminal sub-order of the order.
func (s *OrderService) ForceComplete(ctx context.Context, actor domain.Actor, orderID int64) (*domain.Order, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}

	var (
		order *domain.Order
		evts  []domain.Event
	)
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("order %d: %w", orderID, err)
		}

		now := utcNow()
		for i := range order.SubOrders {
			so := &order.SubOrders[i]
			if so.Status.IsTerminal() {
				continue
			}
			if err := tx.UpdateSubOrderStatus(ctx, so.ID, domain.StatusDelivered, so.Version, now); err != nil {
				return err
			}
			so.Status = domain.StatusDelivered
			so.Version++
			so.UpdatedAt = now
			evts = append(evts, domain.Event{
				Type:       domain.EventSubOrderStatus,
				OrderID:    order.ID,
				SubOrderID: so.ID,
				CustomerID: order.CustomerID,
				VendorID:   so.VendorID,
				Status:     domain.StatusDelivered,
				OccurredAt: now,
			})
		}
		order.Project()
		evts = append(evts, domain.Event{
			Type:       domain.EventOrderForceCompleted,
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Total:      order.Total,
			OccurredAt: now,
		})
		return recordEvents(ctx, tx, evts)
	})
	if err != nil {
		return nil, err
	}

	publishAll(s.bus, evts)
	s.logger.Info("order force completed", "order_id", order.ID, "admin_id", actor.UserID)
	return order, nil
}

// GetOrder returns the order to its customer, to a vendor with a sub-order in
// it, or to an admin.
func (s *OrderService) GetOrder(ctx context.Context, actor domain.Actor, orderID int64) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}
	if !canSee(actor, order) {
		return nil, fmt.Errorf("%w: order %d", domain.ErrForbidden, orderID)
	}
	return order, nil
}

func canSee(actor domain.Actor, o *domain.Order) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleCustomer:
		return o.CustomerID == actor.UserID
	case domain.RoleVendor:
		return o.HasVendor(actor.UserID)
	}
	return false
}

// Timeline returns the archived events of an order visible to the actor.
func (s *OrderService) Timeline(ctx context.Context, actor domain.Actor, orderID int64) ([]domain.TimelineEntry, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return []domain.TimelineEntry{}, nil
	}
	entries, err := s.timeline.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}
	if entries == nil {
		entries = []domain.TimelineEntry{}
	}
	return entries, nil
}

// MyOrders lists the customer's orders, newest first.
func (s *OrderService) MyOrders(ctx context.Context, actor domain.Actor) ([]domain.Order, error) {
	if !actor.Is(domain.RoleCustomer) {
		return nil, fmt.Errorf("%w: only customers place orders", domain.ErrForbidden)
	}
	return s.list(ctx, repository.OrderFilter{CustomerID: actor.UserID})
}

// AllOrders pages through every order, newest first.
func (s *OrderService) AllOrders(ctx context.Context, actor domain.Actor, page repository.Page) (PageResult[domain.Order], error) {
	if !actor.Is(domain.RoleAdmin) {
		return PageResult[domain.Order]{}, fmt.Errorf("%w: admin only", domain.ErrForbidden)
	}
	return s.page(ctx, repository.OrderFilter{}, page)
}

func (s *OrderService) UserOrders(ctx context.Context, actor domain.Actor, customerID int64) ([]domain.Order, error) {
	if !actor.Is(domain.RoleAdmin) {
		return nil, fmt.Errorf("%w: admin only", domain.ErrForbidden)
	}
	return s.list(ctx, repository.OrderFilter{CustomerID: customerID})
}

// OrdersByStatus pages through orders whose projected status matches.
func (s *OrderService) OrdersByStatus(ctx context.Context, actor domain.Actor, status domain.AggregateStatus, page repository.Page) (PageResult[domain.Order], error) {
	if !actor.Is(domain.RoleAdmin) {
		return PageResult[domain.Order]{}, fmt.Errorf("%w: admin only", domain.ErrForbidden)
	}
	return s.page(ctx, repository.OrderFilter{Status: status}, page)
}

// VendorSubOrders lists the vendor's sub-orders.
func (s *OrderService) VendorSubOrders(ctx context.Context, actor domain.Actor) ([]domain.VendorSubOrder, error) {
	if !actor.Is(domain.RoleVendor) {
		return nil, fmt.Errorf("%w: vendor only", domain.ErrForbidden)
	}
	var subs []domain.VendorSubOrder
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		subs, err = tx.ListSubOrdersByVendor(ctx, actor.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []domain.VendorSubOrder{}
	}
	return subs, nil
}

func (s *OrderService) page(ctx context.Context, f repository.OrderFilter, page repository.Page) (PageResult[domain.Order], error) {
	if page.Number < 0 || page.Size < 1 {
		return PageResult[domain.Order]{}, fmt.Errorf("%w: page must be >= 0 and size >= 1", domain.ErrInvalidInput)
	}

	var (
		orders []domain.Order
		total  int
	)
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		orders, total, err = tx.ListOrders(ctx, f, page)
		return err
	})
	if err != nil {
		return PageResult[domain.Order]{}, err
	}
	return newPageResult(orders, total, page), nil
}

func (s *OrderService) list(ctx context.Context, f repository.OrderFilter) ([]domain.Order, error) {
	var orders []domain.Order
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		orders, _, err = tx.ListOrders(ctx, f, repository.Page{})
		return err
	})
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
	"github.com/fjod/fresh_grocery/internal/service"
)

const defaultPageSize = 10

type OrderService interface {
	Transition(ctx context.Context, actor domain.Actor, subOrderID int64, to domain.SubOrderStatus) (*domain.VendorSubOrder, error)
	ForceComplete(ctx context.Context, actor domain.Actor, orderID int64) (*domain.Order, error)
	GetOrder(ctx context.Context, actor domain.Actor, orderID int64) (*domain.Order, error)
	Timeline(ctx context.Context, actor domain.Actor, orderID int64) ([]domain.TimelineEntry, error)
	MyOrders(ctx context.Context, actor domain.Actor) ([]domain.Order, error)
	AllOrders(ctx context.Context, actor domain.Actor, page repository.Page) (service.PageResult[domain.Order], error)
	UserOrders(ctx context.Context, actor domain.Actor, customerID int64) ([]domain.Order, error)
	OrdersByStatus(ctx context.Context, actor domain.Actor, status domain.AggregateStatus, page repository.Page) (service.PageResult[domain.Order], error)
	VendorSubOrders(ctx context.Context, actor domain.Actor) ([]domain.VendorSubOrder, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	logger  *slog.Logger
}

func NewOrdersHandler(orders OrderService, timeout time.Duration, logger *slog.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout, logger: logger}
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.MyOrders(ctx, actor)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, actor, orderID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	entries, err := h.orders.Timeline(ctx, actor, orderID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// AllOrders pages through every order, newest first.
func (h *OrdersHandler) AllOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, ok := pageParams(w, r)
	if !ok {
		return
	}

	result, err := h.orders.AllOrders(ctx, actor, page)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *OrdersHandler) UserOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	customerID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	orders, err := h.orders.UserOrders(ctx, actor, customerID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// OrdersByStatus pages through orders by their projected status.
func (h *OrdersHandler) OrdersByStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	status, err := domain.ParseAggregateStatus(r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_status", "status must be ACTIVE or COMPLETED")
		return
	}
	page, ok := pageParams(w, r)
	if !ok {
		return
	}

	result, err := h.orders.OrdersByStatus(ctx, actor, status, page)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ForceStatus is the admin override; COMPLETED is the only accepted target.
func (h *OrdersHandler) ForceStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	status, err := domain.ParseAggregateStatus(r.URL.Query().Get("status"))
	if err != nil || status != domain.AggregateCompleted {
		respondError(w, http.StatusBadRequest, "invalid_status", "only COMPLETED can be forced")
		return
	}

	order, err := h.orders.ForceComplete(ctx, actor, orderID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) VendorOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	subs, err := h.orders.VendorSubOrders(ctx, actor)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, subs)
}

func (h *OrdersHandler) TransitionSubOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	subOrderID, ok := idParam(w, r, "subOrderId")
	if !ok {
		return
	}
	to, err := domain.ParseSubOrderStatus(r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_status", "unknown sub-order status")
		return
	}

	so, err := h.orders.Transition(ctx, actor, subOrderID, to)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, so)
}

func pageParams(w http.ResponseWriter, r *http.Request) (repository.Page, bool) {
	page := repository.Page{Number: 0, Size: defaultPageSize}
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_page", "page must be a non-negative integer")
			return page, false
		}
		page.Number = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_size", "size must be a positive integer")
			return page, false
		}
		page.Size = n
	}
	return page, true
}

package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
)

type CartService interface {
	GetCart(ctx context.Context, actor domain.Actor) (*domain.Cart, error)
	AddItem(ctx context.Context, actor domain.Actor, productID int64, qty int) (*domain.CartItem, error)
	UpdateQuantity(ctx context.Context, actor domain.Actor, itemID int64, qty int) (*domain.CartItem, bool, error)
	RemoveItem(ctx context.Context, actor domain.Actor, itemID int64) error
}

type CheckoutService interface {
	Checkout(ctx context.Context, actor domain.Actor, idempotencyKey string) (*domain.Order, error)
}

type CartHandler struct {
	carts    CartService
	checkout CheckoutService
	timeout  time.Duration
	logger   *slog.Logger
}

func NewCartHandler(carts CartService, checkout CheckoutService, timeout time.Duration, logger *slog.Logger) *CartHandler {
	return &CartHandler{carts: carts, checkout: checkout, timeout: timeout, logger: logger}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"qty"`
}

type RemovedResponseDTO struct {
	Removed bool `json:"removed"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(ctx, actor)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId must be positive")
		return
	}

	item, err := h.carts.AddItem(ctx, actor, req.ProductID, req.Quantity)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// UpdateQuantity sets the line quantity; a quantity below 1 removes the line.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	itemID, ok := idParam(w, r, "itemId")
	if !ok {
		return
	}
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be an integer")
		return
	}

	item, removed, err := h.carts.UpdateQuantity(ctx, actor, itemID, qty)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if removed {
		respondJSON(w, http.StatusOK, RemovedResponseDTO{Removed: true})
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	itemID, ok := idParam(w, r, "itemId")
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(ctx, actor, itemID); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout places the cart as an order. A repeated Idempotency-Key returns
// the order created by the first request.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	order, err := h.checkout.Checkout(ctx, actor, r.Header.Get("Idempotency-Key"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

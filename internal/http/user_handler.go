package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/service"
)

type UserService interface {
	Me(ctx context.Context, actor domain.Actor) (*domain.User, error)
	UpdateProfile(ctx context.Context, actor domain.Actor, fullName string) (*domain.User, error)
	Vendors(ctx context.Context, query string) ([]domain.User, error)
	AllUsers(ctx context.Context, actor domain.Actor) ([]domain.User, error)
	AllVendors(ctx context.Context, actor domain.Actor) ([]domain.User, error)
	SetBlocked(ctx context.Context, actor domain.Actor, userID int64, blocked bool) (*domain.User, error)
	CreateVendor(ctx context.Context, actor domain.Actor, in service.VendorInput) (*domain.User, error)
	UpdateVendor(ctx context.Context, actor domain.Actor, vendorID int64, in service.VendorInput) (*domain.User, error)
	DeleteVendor(ctx context.Context, actor domain.Actor, vendorID int64) error
}

// UserHandler serves the caller's profile, the public vendor directory and
// the admin user and vendor management endpoints.
type UserHandler struct {
	users   UserService
	timeout time.Duration
	logger  *slog.Logger
}

func NewUserHandler(users UserService, timeout time.Duration, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, timeout: timeout, logger: logger}
}

type UpdateProfileRequestDTO struct {
	FullName string `json:"fullName"`
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	u, err := h.users.Me(ctx, actor)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req UpdateProfileRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.users.UpdateProfile(ctx, actor, req.FullName)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Vendors(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	vendors, err := h.users.Vendors(ctx, r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, vendors)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	users, err := h.users.AllUsers(ctx, actor)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *UserHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

func (h *UserHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *UserHandler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	u, err := h.users.SetBlocked(ctx, actor, id, blocked)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (h *UserHandler) ListVendors(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	vendors, err := h.users.AllVendors(ctx, actor)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, vendors)
}

func (h *UserHandler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req service.VendorInput
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.users.CreateVendor(ctx, actor, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (h *UserHandler) UpdateVendor(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req service.VendorInput
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.users.UpdateVendor(ctx, actor, id, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (h *UserHandler) DeleteVendor(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.users.DeleteVendor(ctx, actor, id); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

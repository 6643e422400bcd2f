package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
)

type AuthService interface {
	Register(ctx context.Context, email, fullName, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
}

type AuthHandler struct {
	auth    AuthService
	timeout time.Duration
	logger  *slog.Logger
}

func NewAuthHandler(auth AuthService, timeout time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, timeout: timeout, logger: logger}
}

type RegisterRequestDTO struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponseDTO struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req RegisterRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.auth.Register(ctx, req.Email, req.FullName, req.Password)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LoginRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	token, u, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, LoginResponseDTO{Token: token, User: u})
}

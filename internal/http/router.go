package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	RequestsPerSecond  float64
	Burst              int
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Products      *ProductHandler
	Cart          *CartHandler
	Orders        *OrdersHandler
	Notifications *NotificationHandler
}

func NewRouter(cfg RouterConfig, auth Authenticator, hs Handlers, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestsPerSecond > 0 {
		r.Use(NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst).Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	authenticated := Authenticate(auth)

	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived; kept out of the timeout and compression middleware.
		r.With(authenticated).Get("/notifications/ws", hs.Notifications.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			r.Use(middleware.Compress(5))
			r.Use(MaxBodySize(cfg.MaxRequestBodySize))

			r.Post("/auth/register", hs.Auth.Register)
			r.Post("/auth/login", hs.Auth.Login)

			r.Get("/products", hs.Products.List)
			r.Get("/products/{id}", hs.Products.Get)
			r.Get("/categories", hs.Products.Categories)
			r.Get("/vendors", hs.Users.Vendors)

			r.Group(func(r chi.Router) {
				r.Use(authenticated)

				r.Get("/users/me", hs.Users.Me)
				r.Put("/users/me", hs.Users.UpdateMe)

				r.Group(func(r chi.Router) {
					r.Use(RequireRoles(domain.RoleVendor, domain.RoleAdmin))
					r.Post("/products", hs.Products.Create)
					r.Put("/products/{id}", hs.Products.Update)
					r.Delete("/products/{id}", hs.Products.Delete)
				})

				r.Route("/cart", func(r chi.Router) {
					r.Use(RequireRoles(domain.RoleCustomer))
					r.Get("/", hs.Cart.GetCart)
					r.Post("/add", hs.Cart.AddItem)
					r.Post("/checkout", hs.Cart.Checkout)
					r.Put("/{itemId}", hs.Cart.UpdateQuantity)
					r.Delete("/{itemId}", hs.Cart.RemoveItem)
				})

				r.Route("/vendor/orders", func(r chi.Router) {
					r.With(RequireRoles(domain.RoleVendor)).Get("/", hs.Orders.VendorOrders)
					// admins may move any sub-order, typically to CANCELLED
					r.With(RequireRoles(domain.RoleVendor, domain.RoleAdmin)).Put("/{subOrderId}/status", hs.Orders.TransitionSubOrder)
				})

				r.Route("/orders", func(r chi.Router) {
					r.With(RequireRoles(domain.RoleCustomer)).Get("/", hs.Orders.ListOrders)
					r.Get("/{orderId}", hs.Orders.GetOrder)
					r.Get("/{orderId}/timeline", hs.Orders.Timeline)

					r.Group(func(r chi.Router) {
						r.Use(RequireRoles(domain.RoleAdmin))
						r.Get("/all", hs.Orders.AllOrders)
						r.Get("/all/status", hs.Orders.OrdersByStatus)
						r.Get("/user/{id}", hs.Orders.UserOrders)
						r.Put("/{orderId}/status", hs.Orders.ForceStatus)
					})
				})

				r.Route("/admin", func(r chi.Router) {
					r.Use(RequireRoles(domain.RoleAdmin))
					r.Get("/users", hs.Users.ListUsers)
					r.Put("/users/{id}/block", hs.Users.BlockUser)
					r.Put("/users/{id}/unblock", hs.Users.UnblockUser)
					r.Get("/vendors", hs.Users.ListVendors)
					r.Post("/vendors", hs.Users.CreateVendor)
					r.Put("/vendors/{id}", hs.Users.UpdateVendor)
					r.Delete("/vendors/{id}", hs.Users.DeleteVendor)
				})
			})
		})
	})

	return otelhttp.NewHandler(r, "marketplace-http")
}

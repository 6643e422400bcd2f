package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
	"github.com/fjod/fresh_grocery/internal/service"
)

type ProductService interface {
	List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error)
	Get(ctx context.Context, id int64) (*domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, actor domain.Actor, in service.ProductInput) (*domain.Product, error)
	Update(ctx context.Context, actor domain.Actor, id int64, in service.ProductInput) (*domain.Product, error)
	Delete(ctx context.Context, actor domain.Actor, id int64) error
}

type ProductHandler struct {
	products ProductService
	timeout  time.Duration
	logger   *slog.Logger
}

func NewProductHandler(products ProductService, timeout time.Duration, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{products: products, timeout: timeout, logger: logger}
}

// List serves the catalog with an ETag so polling clients get 304 while
// nothing changed.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	f := repository.ProductFilter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
	}
	if v := q.Get("vendorId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_vendor_id", "vendorId must be a positive integer")
			return
		}
		f.VendorID = id
	}

	products, err := h.products.List(ctx, f)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondWithETag(w, r, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.products.Get(ctx, id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.products.Categories(ctx)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondWithETag(w, r, categories)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req service.ProductInput
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.products.Create(ctx, actor, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req service.ProductInput
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.products.Update(ctx, actor, id, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.products.Delete(ctx, actor, id); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondWithETag(w http.ResponseWriter, r *http.Request, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	etag := `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
	w.Header().Set("ETag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

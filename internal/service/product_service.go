package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
)

// ProductInput carries the writable product fields. VendorID is honoured for
// admins only; vendors always write their own products.
type ProductInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
	Category    string `json:"category"`
	VendorID    int64  `json:"vendorId"`
}

type ProductService struct {
	store  repository.Store
	carts  *CartService
	logger *slog.Logger
}

func NewProductService(store repository.Store, carts *CartService, logger *slog.Logger) *ProductService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductService{store: store, carts: carts, logger: logger}
}

func (s *ProductService) List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	var products []domain.Product
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		products, err = tx.ListProducts(ctx, f)
		return err
	})
	return products, err
}

func (s *ProductService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	var p *domain.Product
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		p, err = tx.GetProduct(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("product %d: %w", id, err)
	}
	return p, nil
}

func (s *ProductService) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		categories, err = tx.ListCategories(ctx)
		return err
	})
	return categories, err
}

func (s *ProductService) Create(ctx context.Context, actor domain.Actor, in ProductInput) (*domain.Product, error) {
	if err := requireRole(actor, domain.RoleVendor, domain.RoleAdmin); err != nil {
		return nil, err
	}

	now := utcNow()
	p := &domain.Product{CreatedAt: now}
	apply(p, in)
	p.UpdatedAt = now

	err := s.store.Update(ctx, func(tx repository.Tx) error {
		vendorID, err := owningVendor(ctx, tx, actor, in.VendorID)
		if err != nil {
			return err
		}
		p.VendorID = vendorID
		if err := p.Validate(); err != nil {
			return err
		}
		return tx.CreateProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("product created", "product_id", p.ID, "vendor_id", p.VendorID)
	return p, nil
}

func (s *ProductService) Update(ctx context.Context, actor domain.Actor, id int64, in ProductInput) (*domain.Product, error) {
	if err := requireRole(actor, domain.RoleVendor, domain.RoleAdmin); err != nil {
		return nil, err
	}

	var p *domain.Product
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		p, err = ownedProduct(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		apply(p, in)
		if actor.Is(domain.RoleAdmin) && in.VendorID != 0 && in.VendorID != p.VendorID {
			if p.VendorID, err = owningVendor(ctx, tx, actor, in.VendorID); err != nil {
				return err
			}
		}
		p.UpdatedAt = utcNow()
		if err := p.Validate(); err != nil {
			return err
		}
		return tx.UpdateProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a product that no order references and drops it from every cart.
func (s *ProductService) Delete(ctx context.Context, actor domain.Actor, id int64) error {
	if err := requireRole(actor, domain.RoleVendor, domain.RoleAdmin); err != nil {
		return err
	}

	var customers []int64
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if _, err := ownedProduct(ctx, tx, actor, id); err != nil {
			return err
		}
		ordered, err := tx.ProductInOrders(ctx, id)
		if err != nil {
			return err
		}
		if ordered {
			return fmt.Errorf("%w: product %d is part of existing orders", domain.ErrConflict, id)
		}
		if customers, err = tx.DeleteCartItemsByProduct(ctx, id); err != nil {
			return err
		}
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}

	if s.carts != nil {
		s.carts.Invalidate(customers...)
	}
	s.logger.Info("product deleted", "product_id", id, "carts_touched", len(customers))
	return nil
}

func apply(p *domain.Product, in ProductInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.Stock = in.Stock
	p.Category = strings.TrimSpace(in.Category)
}

// owningVendor resolves which vendor a written product belongs to.
func owningVendor(ctx context.Context, tx repository.Tx, actor domain.Actor, requested int64) (int64, error) {
	if actor.Is(domain.RoleVendor) {
		return actor.UserID, nil
	}
	if requested <= 0 {
		return 0, fmt.Errorf("%w: vendorId is required", domain.ErrInvalidInput)
	}
	u, err := tx.GetUser(ctx, requested)
	if err != nil {
		return 0, fmt.Errorf("vendor %d: %w", requested, err)
	}
	if u.Role != domain.RoleVendor || u.Deleted {
		return 0, fmt.Errorf("%w: user %d is not an active vendor", domain.ErrInvalidInput, requested)
	}
	return u.ID, nil
}

func ownedProduct(ctx context.Context, tx repository.Tx, actor domain.Actor, id int64) (*domain.Product, error) {
	p, err := tx.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("product %d: %w", id, err)
	}
	if actor.Is(domain.RoleVendor) && p.VendorID != actor.UserID {
		return nil, fmt.Errorf("%w: product %d belongs to another vendor", domain.ErrForbidden, id)
	}
	return p, nil
}

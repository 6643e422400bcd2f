package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
)

// VendorInput is what an admin supplies to create or edit a vendor account.
type VendorInput struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type UserService struct {
	store  repository.Store
	auth   *AuthService
	logger *slog.Logger
}

func NewUserService(store repository.Store, auth *AuthService, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{store: store, auth: auth, logger: logger}
}

func (s *UserService) Me(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	return s.get(ctx, actor.UserID)
}

func (s *UserService) UpdateProfile(ctx context.Context, actor domain.Actor, fullName string) (*domain.User, error) {
	if actor.Blocked {
		return nil, fmt.Errorf("%w: account is blocked", domain.ErrForbidden)
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: fullName is required", domain.ErrInvalidInput)
	}

	var u *domain.User
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, actor.UserID)
		if err != nil {
			return err
		}
		u.FullName = fullName
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Vendors lists active vendors; a query keeps those selling a matching product.
func (s *UserService) Vendors(ctx context.Context, query string) ([]domain.User, error) {
	return s.list(ctx, repository.UserFilter{Role: domain.RoleVendor, ProductQuery: query})
}

func (s *UserService) AllUsers(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.list(ctx, repository.UserFilter{IncludeDeleted: true})
}

func (s *UserService) AllVendors(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.list(ctx, repository.UserFilter{Role: domain.RoleVendor, IncludeDeleted: true})
}

// SetBlocked blocks or unblocks a user. Admins cannot block themselves.
func (s *UserService) SetBlocked(ctx context.Context, actor domain.Actor, userID int64, blocked bool) (*domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if userID == actor.UserID && blocked {
		return nil, fmt.Errorf("%w: cannot block yourself", domain.ErrInvalidInput)
	}

	var u *domain.User
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("user %d: %w", userID, err)
		}
		u.Deleted = blocked
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user block state changed", "user_id", userID, "blocked", blocked, "admin_id", actor.UserID)
	return u, nil
}

func (s *UserService) CreateVendor(ctx context.Context, actor domain.Actor, in VendorInput) (*domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	u, err := s.auth.newUser(in.Email, in.FullName, in.Password, domain.RoleVendor)
	if err != nil {
		return nil, err
	}
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		return nil, fmt.Errorf("create vendor %s: %w", u.Email, err)
	}
	return u, nil
}

// UpdateVendor edits the name and email of a vendor; empty fields are left unchanged.
func (s *UserService) UpdateVendor(ctx context.Context, actor domain.Actor, vendorID int64, in VendorInput) (*domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}

	var u *domain.User
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		u, err = vendor(ctx, tx, vendorID)
		if err != nil {
			return err
		}
		if name := strings.TrimSpace(in.FullName); name != "" {
			u.FullName = name
		}
		if email := domain.NormalizeEmail(in.Email); email != "" {
			if !strings.Contains(email, "@") {
				return fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
			}
			u.Email = email
		}
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteVendor blocks the vendor; their products and order history stay.
func (s *UserService) DeleteVendor(ctx context.Context, actor domain.Actor, vendorID int64) error {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return err
	}
	return s.store.Update(ctx, func(tx repository.Tx) error {
		u, err := vendor(ctx, tx, vendorID)
		if err != nil {
			return err
		}
		u.Deleted = true
		return tx.UpdateUser(ctx, u)
	})
}

func vendor(ctx context.Context, tx repository.Tx, id int64) (*domain.User, error) {
	u, err := tx.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("vendor %d: %w", id, err)
	}
	if u.Role != domain.RoleVendor {
		return nil, fmt.Errorf("vendor %d: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

func (s *UserService) get(ctx context.Context, id int64) (*domain.User, error) {
	var u *domain.User
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	return u, nil
}

func (s *UserService) list(ctx context.Context, f repository.UserFilter) ([]domain.User, error) {
	var users []domain.User
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		users, err = tx.ListUsers(ctx, f)
		return err
	})
	return users, err
}

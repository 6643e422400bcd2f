package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type AuthConfig struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
}

// Claims is the JWT payload issued on login.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	store  repository.Store
	cfg    AuthConfig
	logger *slog.Logger
}

func NewAuthService(store repository.Store, cfg AuthConfig, logger *slog.Logger) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{store: store, cfg: cfg, logger: logger}
}

// Register creates a CUSTOMER account. An empty full name defaults to the
// local part of the email.
func (s *AuthService) Register(ctx context.Context, email, fullName, password string) (*domain.User, error) {
	u, err := s.newUser(email, fullName, password, domain.RoleCustomer)
	if err != nil {
		return nil, err
	}
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", u.Email, err)
	}
	s.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login checks the credentials and issues a signed token. Blocked accounts
// are refused with ErrForbidden.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	var u *domain.User
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		u, err = tx.GetUserByEmail(ctx, email)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	if u.Blocked() {
		return "", nil, fmt.Errorf("%w: account is blocked", domain.ErrForbidden)
	}

	token, err := s.issueToken(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *AuthService) issueToken(u *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates the signature and expiry and returns the user id.
func (s *AuthService) ParseToken(token string) (int64, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject", domain.ErrUnauthorized)
	}
	return id, nil
}

// Authenticate resolves a bearer token to the current state of its user, so
// role changes and blocks apply to tokens already issued.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	id, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}
	var u *domain.User
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, id)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user", domain.ErrUnauthorized)
	}
	return u, err
}

// EnsureAdmin creates the bootstrap admin account unless the email is taken.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" {
		return nil
	}
	u, err := s.newUser(email, "Administrator", password, domain.RoleAdmin)
	if err != nil {
		return err
	}
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetUserByEmail(ctx, u.Email); err == nil {
			return nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		s.logger.Info("bootstrap admin created", "user_id", u.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	return nil
}

func (s *AuthService) newUser(email, fullName, password string, role domain.Role) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLength)
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		fullName = email[:at]
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &domain.User{
		Email:        email,
		FullName:     fullName,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    utcNow(),
	}, nil
}

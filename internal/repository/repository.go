package repository

import (
	"context"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Store runs units of work against the marketplace data.
// Update runs fn in a read-write transaction that is rolled back when fn fails.
// View runs fn in a transaction that must not write.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the full set of storage operations available inside a unit of work.
type Tx interface {
	ProductRepository
	UserRepository
	CartRepository
	OrderRepository
	OutboxRepository
}

type ProductFilter struct {
	Query    string
	Category string
	VendorID int64
}

type ProductRepository interface {
	CreateProduct(ctx context.Context, p *domain.Product) error
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, p *domain.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]string, error)
	ProductInOrders(ctx context.Context, productID int64) (bool, error)
	// ReserveStock decrements stock when at least qty units are available and
	// fails with *domain.InsufficientStockError otherwise, leaving stock untouched.
	ReserveStock(ctx context.Context, productID int64, qty int) error
}

type UserFilter struct {
	Role           domain.Role
	IncludeDeleted bool
	// ProductQuery restricts the result to vendors selling a matching product.
	ProductQuery string
}

type UserRepository interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]domain.User, error)
	UpdateUser(ctx context.Context, u *domain.User) error
}

type CartRepository interface {
	// LockCart holds the customer's cart against other writers until the unit
	// of work ends. It returns domain.ErrNotFound for an unknown customer.
	LockCart(ctx context.Context, customerID int64) error
	GetCartItems(ctx context.Context, customerID int64) ([]domain.CartItem, error)
	GetCartItem(ctx context.Context, itemID int64) (*domain.CartItem, error)
	FindCartItem(ctx context.Context, customerID, productID int64) (*domain.CartItem, error)
	InsertCartItem(ctx context.Context, item *domain.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, itemID int64, qty int) error
	// IncrementCartItemQuantity adds delta to the stored quantity and returns the new value.
	IncrementCartItemQuantity(ctx context.Context, itemID int64, delta int) (int, error)
	DeleteCartItem(ctx context.Context, itemID int64) error
	ClearCart(ctx context.Context, customerID int64) error
	// DeleteCartItemsByProduct returns the customers whose carts held the product.
	DeleteCartItemsByProduct(ctx context.Context, productID int64) ([]int64, error)
}

type OrderFilter struct {
	CustomerID int64
	Status     domain.AggregateStatus
}

type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	return p.Number * p.Size
}

type OrderRepository interface {
	// CreateOrder persists the order with its items and sub-orders and assigns all ids.
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, customerID int64, key string) (*domain.Order, error)
	// ListOrders returns one page ordered by creation time, newest first, and the total match count.
	ListOrders(ctx context.Context, f OrderFilter, page Page) ([]domain.Order, int, error)
	GetSubOrder(ctx context.Context, id int64) (*domain.VendorSubOrder, error)
	ListSubOrdersByVendor(ctx context.Context, vendorID int64) ([]domain.VendorSubOrder, error)
	// UpdateSubOrderStatus writes the status only when the stored version equals expectedVersion,
	// returning domain.ErrConflict otherwise.
	UpdateSubOrderStatus(ctx context.Context, id int64, status domain.SubOrderStatus, expectedVersion int, at time.Time) error
}

type OutboxRepository interface {
	InsertOutboxEvent(ctx context.Context, e *domain.OutboxEvent) error
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

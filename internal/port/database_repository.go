package port

import (
	"context"
	"time"

	"github.com/rl1809/marketplace/internal/core/domain"
)

type ProductRepository interface {
	// CreateProduct persists a new listing
	CreateProduct(ctx context.Context, product domain.Product) error

	// GetProduct retrieves a listing by ID, nil if it does not exist
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// ListProducts returns listings matching the filter
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)

	// SetProductStatus assigns an approval status, returns false if the listing does not exist
	SetProductStatus(ctx context.Context, id string, status domain.ApprovalStatus) (bool, error)

	// DecrementStock subtracts quantity only if enough stock remains, returns false otherwise
	DecrementStock(ctx context.Context, id string, quantity int) (bool, error)
}

type OrderRepository interface {
	// PlaceOrder persists the order and decrements stock for every line as one unit.
	// Returns domain.ErrInsufficientStock without side effects if any line cannot be covered.
	PlaceOrder(ctx context.Context, order domain.Order) error

	// GetOrder retrieves an order by ID, nil if it does not exist
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// ListOrders returns orders matching the filter, newest first
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	// MarkDelivered transitions Not Delivered -> Delivered while the stored code hash equals hash,
	// returns false if the order was not Not Delivered or its code has been replaced
	MarkDelivered(ctx context.Context, id, hash string, at time.Time) (bool, error)

	// ReplaceDeliveryCode stores a new code hash while the order is Not Delivered
	ReplaceDeliveryCode(ctx context.Context, id, hash string, expiresAt *time.Time) (bool, error)
}

type UserRepository interface {
	// GetUser retrieves a user by ID, nil if it does not exist
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

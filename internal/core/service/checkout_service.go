package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
	"github.com/rl1809/marketplace/internal/port"
)

type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderInput struct {
	BuyerID         string
	Items           []CartItem
	TotalAmount     int64
	ShippingAddress domain.Address
	IdempotencyKey  string
}

type CheckoutOption func(*CheckoutService)

// WithIdempotency rejects replays of the same buyer/key pair.
func WithIdempotency(store port.IdempotencyStore) CheckoutOption {
	return func(s *CheckoutService) { s.idem = store }
}

func WithCommissionRate(rate decimal.Decimal) CheckoutOption {
	return func(s *CheckoutService) { s.rate = rate }
}

func WithCheckoutEvents(p port.EventPublisher) CheckoutOption {
	return func(s *CheckoutService) { s.events = p }
}

func WithCheckoutClock(now func() time.Time) CheckoutOption {
	return func(s *CheckoutService) { s.now = now }
}

// CheckoutService turns a cart into a placed order.
type CheckoutService struct {
	products   port.ProductRepository
	orders     port.OrderRepository
	users      port.UserRepository
	delivery   *DeliveryService
	notifier   port.Notifier
	dispatcher *Dispatcher
	idem       port.IdempotencyStore
	events     port.EventPublisher
	rate       decimal.Decimal
	now        func() time.Time
}

func NewCheckoutService(
	products port.ProductRepository,
	orders port.OrderRepository,
	users port.UserRepository,
	delivery *DeliveryService,
	notifier port.Notifier,
	dispatcher *Dispatcher,
	opts ...CheckoutOption,
) *CheckoutService {
	s := &CheckoutService{
		products:   products,
		orders:     orders,
		users:      users,
		delivery:   delivery,
		notifier:   notifier,
		dispatcher: dispatcher,
		rate:       domain.DefaultCommissionRate,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder validates the whole cart, then writes the order and every stock
// decrement as one unit. Notifications are dispatched after the write and never
// affect the result.
func (s *CheckoutService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (_ *domain.Order, err error) {
	l := logging.FromCtx(ctx).With("buyer_id", in.BuyerID)

	items, err := mergeCart(in.Items)
	if err != nil {
		return nil, s.reject(err)
	}
	if in.BuyerID == "" || in.TotalAmount < 0 {
		return nil, s.reject(fmt.Errorf("%w: missing buyer or negative total", domain.ErrInvalidCart))
	}

	if in.IdempotencyKey != "" && s.idem != nil {
		key := fmt.Sprintf("checkout:%s:%s", in.BuyerID, in.IdempotencyKey)
		ok, acqErr := s.idem.Acquire(ctx, key)
		if acqErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", acqErr)
		}
		if !ok {
			return nil, s.reject(domain.ErrDuplicateRequest)
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.idem.Release(context.WithoutCancel(ctx), key); relErr != nil {
				l.Warn("release idempotency key", "error", relErr)
			}
		}()
	}

	lines, err := s.validate(ctx, in.BuyerID, items)
	if err != nil {
		return nil, s.reject(err)
	}

	code, exp, err := s.delivery.NewCode()
	if err != nil {
		return nil, err
	}

	total := in.TotalAmount
	if subtotal := subtotalOf(lines); total == 0 {
		total = subtotal
	} else if total != subtotal {
		l.Warn("total differs from listed prices", "total", total, "subtotal", subtotal)
	}

	now := s.now().UTC()
	order := domain.Order{
		ID:                    uuid.NewString(),
		BuyerID:               in.BuyerID,
		Lines:                 lines,
		TotalAmount:           total,
		CommissionAmount:      domain.Commission(total, s.rate),
		Status:                domain.OrderStatusCompleted,
		DeliveryStatus:        domain.DeliveryNotDelivered,
		DeliveryCodeHash:      code.Hash,
		DeliveryCodeExpiresAt: exp,
		ShippingAddress:       s.shippingAddress(ctx, in),
		CreatedAt:             now,
	}

	if err := s.orders.PlaceOrder(ctx, order); err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			return nil, s.reject(err)
		}
		return nil, fmt.Errorf("place order: %w", err)
	}

	ordersPlaced.Inc()
	l.Info("order placed", "order_id", order.ID, "lines", len(order.Lines), "total", order.TotalAmount)

	s.dispatchNotifications(order, code.Plain)
	return &order, nil
}

// validate loads every product of the cart and checks all of them before anything is written.
func (s *CheckoutService) validate(ctx context.Context, buyerID string, items []CartItem) ([]domain.LineItem, error) {
	lines := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		p, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		if p == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
		}
		if p.SellerID == buyerID {
			return nil, fmt.Errorf("%w: %s", domain.ErrSelfPurchaseForbidden, p.Title)
		}
		if p.Quantity < item.Quantity {
			return nil, fmt.Errorf("%w: %s has %d left", domain.ErrInsufficientStock, p.Title, p.Quantity)
		}
		lines = append(lines, domain.LineItem{
			ProductID: p.ID,
			Quantity:  item.Quantity,
			SellerID:  p.SellerID,
			Title:     p.Title,
			UnitPrice: p.Price,
		})
	}
	return lines, nil
}

func (s *CheckoutService) shippingAddress(ctx context.Context, in PlaceOrderInput) domain.Address {
	if !in.ShippingAddress.Empty() {
		return in.ShippingAddress
	}
	buyer, err := s.users.GetUser(ctx, in.BuyerID)
	if err != nil {
		logging.FromCtx(ctx).Warn("load buyer for default address", "buyer_id", in.BuyerID, "error", err)
		return domain.Address{}
	}
	if buyer == nil {
		return domain.Address{}
	}
	addr, _ := buyer.DefaultAddress()
	return addr
}

func (s *CheckoutService) reject(err error) error {
	checkoutRejected.WithLabelValues(rejectReason(err)).Inc()
	return err
}

// mergeCart folds repeated products into one line, keeping first-seen order.
func mergeCart(items []CartItem) ([]CartItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", domain.ErrInvalidCart)
	}
	idx := make(map[string]int, len(items))
	merged := make([]CartItem, 0, len(items))
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: each item needs a product and a positive quantity", domain.ErrInvalidCart)
		}
		if i, ok := idx[it.ProductID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}

func subtotalOf(lines []domain.LineItem) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.UnitPrice * int64(l.Quantity)
	}
	return sum
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrSelfPurchaseForbidden):
		return "self_purchase"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrInvalidCart):
		return "invalid_cart"
	default:
		return "other"
	}
}

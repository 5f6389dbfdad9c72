package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
	"github.com/rl1809/marketplace/internal/port"
)

const attemptKeyPrefix = "dac:"

type DeliveryOption func(*DeliveryService)

// WithAttemptLimiter locks verification after repeated wrong codes.
func WithAttemptLimiter(l port.AttemptLimiter) DeliveryOption {
	return func(s *DeliveryService) { s.limiter = l }
}

// WithCodeTTL makes issued codes expire. Zero disables expiry.
func WithCodeTTL(ttl time.Duration) DeliveryOption {
	return func(s *DeliveryService) { s.codeTTL = ttl }
}

func WithDeliveryEvents(p port.EventPublisher) DeliveryOption {
	return func(s *DeliveryService) { s.events = p }
}

func WithDeliveryClock(now func() time.Time) DeliveryOption {
	return func(s *DeliveryService) { s.now = now }
}

// DeliveryService issues and verifies delivery codes and owns the delivery transition.
type DeliveryService struct {
	orders     port.OrderRepository
	users      port.UserRepository
	notifier   port.Notifier
	dispatcher *Dispatcher
	limiter    port.AttemptLimiter
	events     port.EventPublisher
	codeTTL    time.Duration
	now        func() time.Time
}

func NewDeliveryService(orders port.OrderRepository, users port.UserRepository, notifier port.Notifier, dispatcher *Dispatcher, opts ...DeliveryOption) *DeliveryService {
	s := &DeliveryService{
		orders:     orders,
		users:      users,
		notifier:   notifier,
		dispatcher: dispatcher,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewCode generates a code and its expiry under the configured TTL.
func (s *DeliveryService) NewCode() (DeliveryCode, *time.Time, error) {
	code, err := GenerateCode()
	if err != nil {
		return DeliveryCode{}, nil, err
	}
	if s.codeTTL <= 0 {
		return code, nil, nil
	}
	exp := s.now().Add(s.codeTTL).UTC()
	return code, &exp, nil
}

// Issue replaces the order's code with a fresh one and returns the plaintext.
// Only the hash is stored.
func (s *DeliveryService) Issue(ctx context.Context, orderID string) (string, error) {
	if _, err := s.undelivered(ctx, orderID); err != nil {
		return "", err
	}
	code, _, err := s.issue(ctx, orderID)
	if err != nil {
		return "", err
	}
	return code.Plain, nil
}

// Resend issues a new code on behalf of the order's buyer and emails it.
func (s *DeliveryService) Resend(ctx context.Context, p domain.Principal, orderID string) error {
	if err := p.Require(domain.CapPurchase); err != nil {
		return err
	}
	order, err := s.undelivered(ctx, orderID)
	if err != nil {
		return err
	}
	if order.BuyerID != p.UserID {
		return fmt.Errorf("%w: order belongs to another buyer", domain.ErrNotAuthorized)
	}

	code, exp, err := s.issue(ctx, orderID)
	if err != nil {
		return err
	}

	buyerID := order.BuyerID
	s.dispatcher.Submit(Job{
		Name: "delivery_code",
		Run: func(ctx context.Context) error {
			buyer, err := contactOf(ctx, s.users, buyerID)
			if err != nil {
				return err
			}
			return s.notifier.SendDeliveryCode(ctx, domain.DeliveryCodeNotice{
				OrderID: orderID, Buyer: buyer, Code: code.Plain, ExpiresAt: exp,
			})
		},
	})
	logging.FromCtx(ctx).Info("delivery code reissued", "order_id", orderID)
	return nil
}

func (s *DeliveryService) undelivered(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.Delivered() {
		return nil, domain.ErrAlreadyDelivered
	}
	return order, nil
}

func (s *DeliveryService) issue(ctx context.Context, orderID string) (DeliveryCode, *time.Time, error) {
	code, exp, err := s.NewCode()
	if err != nil {
		return DeliveryCode{}, nil, err
	}
	ok, err := s.orders.ReplaceDeliveryCode(ctx, orderID, code.Hash, exp)
	if err != nil {
		return DeliveryCode{}, nil, fmt.Errorf("store delivery code: %w", err)
	}
	if !ok {
		return DeliveryCode{}, nil, domain.ErrAlreadyDelivered
	}
	return code, exp, nil
}

// Verify checks the seller's submitted code and marks the order delivered.
// The transition is a compare-and-set on the delivery status and code hash.
func (s *DeliveryService) Verify(ctx context.Context, orderID, sellerID, code string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, s.reject("not_found", domain.ErrOrderNotFound)
	}
	if order.Delivered() {
		return nil, s.reject("already_delivered", domain.ErrAlreadyDelivered)
	}
	if !order.HasSeller(sellerID) {
		return nil, s.reject("not_authorized", domain.ErrNotAuthorized)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, s.reject("invalid_code", domain.ErrInvalidCode)
	}

	// Reserve the attempt before comparing.
	key := attemptKeyPrefix + orderID
	attempts := 0
	if s.limiter != nil {
		n, allowed, err := s.limiter.Attempt(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("attempt check failed: %w", err)
		}
		if !allowed {
			return nil, s.reject("locked", domain.ErrTooManyAttempts)
		}
		attempts = n
	}

	if order.DeliveryCodeExpiresAt != nil && s.now().After(*order.DeliveryCodeExpiresAt) {
		return nil, s.reject("expired", domain.ErrCodeExpired)
	}

	if !codeMatches(code, order.DeliveryCodeHash) {
		logging.FromCtx(ctx).Warn("invalid delivery code", "order_id", orderID, "attempts", attempts)
		return nil, s.reject("invalid_code", domain.ErrInvalidCode)
	}

	// Only applies while the stored hash is still the one compared above.
	at := s.now().UTC()
	ok, err := s.orders.MarkDelivered(ctx, orderID, order.DeliveryCodeHash, at)
	if err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	if !ok {
		return nil, s.lostTransition(ctx, orderID)
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, key); err != nil {
			logging.FromCtx(ctx).Warn("reset attempts", "order_id", orderID, "error", err)
		}
	}

	order.DeliveryStatus = domain.DeliveryDelivered
	order.DeliveredAt = &at
	deliveryVerifications.WithLabelValues("delivered").Inc()
	logging.FromCtx(ctx).Info("order delivered", "order_id", orderID, "seller_id", sellerID)

	if s.events != nil {
		ev := domain.NewOrderEvent(domain.OrderDelivered, *order, at)
		s.dispatcher.Submit(Job{
			Name: "event_order_delivered",
			Run:  func(ctx context.Context) error { return s.events.PublishOrderEvent(ctx, ev) },
		})
	}
	return order, nil
}

// lostTransition classifies a failed compare-and-set: either another
// verification won, or the code was replaced after it was loaded.
func (s *DeliveryService) lostTransition(ctx context.Context, orderID string) error {
	current, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("reload order: %w", err)
	}
	if current != nil && !current.Delivered() {
		return s.reject("invalid_code", domain.ErrInvalidCode)
	}
	return s.reject("already_delivered", domain.ErrAlreadyDelivered)
}

func (s *DeliveryService) reject(outcome string, err error) error {
	deliveryVerifications.WithLabelValues(outcome).Inc()
	return err
}

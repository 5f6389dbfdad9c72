package service

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
)

// Mock Notifier
type mockNotifier struct {
	mu      sync.Mutex
	fail    error
	buyers  []domain.BuyerConfirmation
	sellers []domain.SellerNotification
	codes   []domain.DeliveryCodeNotice
}

func (m *mockNotifier) SendBuyerOrderConfirmation(ctx context.Context, msg domain.BuyerConfirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.buyers = append(m.buyers, msg)
	return nil
}

func (m *mockNotifier) SendSellerOrderNotification(ctx context.Context, msg domain.SellerNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sellers = append(m.sellers, msg)
	return nil
}

func (m *mockNotifier) SendDeliveryCode(ctx context.Context, msg domain.DeliveryCodeNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.codes = append(m.codes, msg)
	return nil
}

func (m *mockNotifier) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1].Code
}

// Mock EventPublisher
type mockEvents struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (m *mockEvents) PublishOrderEvent(ctx context.Context, ev domain.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Mock IdempotencyStore
type mockIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMockIdempotency() *mockIdempotency {
	return &mockIdempotency{keys: make(map[string]bool)}
}

func (m *mockIdempotency) Acquire(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdempotency) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// Mock AttemptLimiter
type mockLimiter struct {
	mu       sync.Mutex
	max      int
	delay    time.Duration
	attempts map[string]int
}

func newMockLimiter(max int) *mockLimiter {
	return &mockLimiter{max: max, attempts: make(map[string]int)}
}

func (m *mockLimiter) Attempt(ctx context.Context, key string) (int, bool, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[key]++
	n := m.attempts[key]
	return n, n <= m.max, nil
}

func (m *mockLimiter) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, key)
	return nil
}

func newTestDispatcher() *Dispatcher {
	d := NewDispatcher(100, WithRetries(0), WithBackoff(time.Millisecond), WithJobTimeout(time.Second))
	d.Start(2)
	return d
}

// seedStore returns a store with buyer b1, sellers s1 and s2, an admin,
// p1 (s1, 500, qty 5) and p2 (s2, 500, qty 1).
func seedStore() *storage.MemoryAdapter {
	mem := storage.NewMemoryAdapter()
	mem.PutUser(domain.User{
		ID: "b1", Name: "Buyer One", Email: "b1@example.com", Role: domain.RoleBuyer,
		Addresses: []domain.Address{
			{Label: "work", AddressLine1: "9 Office Park", City: "Pune", Pincode: "411002"},
			{Label: "home", FullName: "Buyer One", AddressLine1: "1 Main St", City: "Pune", Pincode: "411001", IsDefault: true},
		},
	})
	mem.PutUser(domain.User{ID: "b2", Name: "Buyer Two", Email: "b2@example.com", Role: domain.RoleBuyer})
	mem.PutUser(domain.User{ID: "s1", Name: "Seller One", Email: "s1@example.com", Role: domain.RoleSeller})
	mem.PutUser(domain.User{ID: "s2", Name: "Seller Two", Email: "s2@example.com", Role: domain.RoleSeller})
	mem.PutUser(domain.User{ID: "a1", Name: "Admin", Email: "a1@example.com", Role: domain.RoleAdmin})

	ctx := context.Background()
	now := time.Now().UTC()
	mem.CreateProduct(ctx, domain.Product{
		ID: "p1", Title: "Lamp", Category: domain.CategoryFurniture, Price: 500, OriginalPrice: 500,
		Quantity: 5, SellerID: "s1", Status: domain.ApprovalApproved, CreatedAt: now, UpdatedAt: now,
	})
	mem.CreateProduct(ctx, domain.Product{
		ID: "p2", Title: "Sketch", Category: domain.CategoryDrawings, Price: 500, OriginalPrice: 500,
		Quantity: 1, SellerID: "s2", Status: domain.ApprovalApproved, CreatedAt: now.Add(time.Second), UpdatedAt: now,
	})
	return mem
}

var (
	buyer  = domain.Principal{UserID: "b1", Role: domain.RoleBuyer}
	seller = domain.Principal{UserID: "s1", Role: domain.RoleSeller}
	admin  = domain.Principal{UserID: "a1", Role: domain.RoleAdmin}
)

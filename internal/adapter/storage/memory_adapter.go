package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/marketplace/internal/core/domain"
)

// MemoryAdapter keeps products, orders and users in process memory behind one mutex.
// It serves local runs and tests; state is lost on restart.
type MemoryAdapter struct {
	mu       sync.Mutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	users    map[string]domain.User
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		users:    make(map[string]domain.User),
	}
}

func (m *MemoryAdapter) Ping(ctx context.Context) error { return nil }

func (m *MemoryAdapter) PutUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryAdapter) GetUser(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	u.Addresses = append([]domain.Address(nil), u.Addresses...)
	return &u, nil
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; ok {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	m.products[p.ID] = p
	return nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Product, 0)
	for _, p := range m.products {
		if f.SellerID != "" && p.SellerID != f.SellerID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.InStockOnly && p.Quantity <= 0 {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if f.NewestFirst {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (m *MemoryAdapter) SetProductStatus(ctx context.Context, id string, status domain.ApprovalStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return false, nil
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	m.products[id] = p
	return true, nil
}

func (m *MemoryAdapter) DecrementStock(ctx context.Context, id string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.Quantity < quantity {
		return false, nil
	}
	p.Quantity -= quantity
	m.products[id] = p
	return true, nil
}

func (m *MemoryAdapter) PlaceOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range order.Lines {
		p, ok := m.products[l.ProductID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, l.ProductID)
		}
		if p.Quantity < l.Quantity {
			return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, l.ProductID)
		}
	}
	for _, l := range order.Lines {
		p := m.products[l.ProductID]
		p.Quantity -= l.Quantity
		m.products[l.ProductID] = p
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	o = cloneOrder(o)
	return &o, nil
}

func (m *MemoryAdapter) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Order, 0)
	for _, o := range m.orders {
		if f.BuyerID != "" && o.BuyerID != f.BuyerID {
			continue
		}
		if f.SellerID != "" && !o.HasSeller(f.SellerID) {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryAdapter) MarkDelivered(ctx context.Context, id, hash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.DeliveryStatus != domain.DeliveryNotDelivered || o.DeliveryCodeHash != hash {
		return false, nil
	}
	o.DeliveryStatus = domain.DeliveryDelivered
	o.DeliveredAt = &at
	m.orders[id] = o
	return true, nil
}

func (m *MemoryAdapter) ReplaceDeliveryCode(ctx context.Context, id, hash string, expiresAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.DeliveryStatus != domain.DeliveryNotDelivered {
		return false, nil
	}
	o.DeliveryCodeHash = hash
	o.DeliveryCodeExpiresAt = expiresAt
	m.orders[id] = o
	return true, nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Lines = append([]domain.LineItem(nil), o.Lines...)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		o.DeliveredAt = &t
	}
	if o.DeliveryCodeExpiresAt != nil {
		t := *o.DeliveryCodeExpiresAt
		o.DeliveryCodeExpiresAt = &t
	}
	return o
}

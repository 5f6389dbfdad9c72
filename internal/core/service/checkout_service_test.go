package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
)

type checkoutFixture struct {
	store      *storage.MemoryAdapter
	notifier   *mockNotifier
	events     *mockEvents
	dispatcher *Dispatcher
	svc        *CheckoutService
}

func newCheckoutFixture(opts ...CheckoutOption) *checkoutFixture {
	f := &checkoutFixture{
		store:      seedStore(),
		notifier:   &mockNotifier{},
		events:     &mockEvents{},
		dispatcher: newTestDispatcher(),
	}
	delivery := NewDeliveryService(f.store, f.store, f.notifier, f.dispatcher)
	opts = append([]CheckoutOption{WithCheckoutEvents(f.events)}, opts...)
	f.svc = NewCheckoutService(f.store, f.store, f.store, delivery, f.notifier, f.dispatcher, opts...)
	return f
}

func (f *checkoutFixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("product %s missing: %v", id, err)
	}
	return p.Quantity
}

func TestPlaceOrder_Success(t *testing.T) {
	f := newCheckoutFixture()

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		BuyerID: "b1",
		Items:   []CartItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	f.dispatcher.Close()

	if order.TotalAmount != 1500 || order.CommissionAmount != 45 {
		t.Errorf("expected total 1500 commission 45, got %d %d", order.TotalAmount, order.CommissionAmount)
	}
	if order.Status != domain.OrderStatusCompleted || order.DeliveryStatus != domain.DeliveryNotDelivered {
		t.Errorf("unexpected status %s / %s", order.Status, order.DeliveryStatus)
	}
	if f.stock(t, "p1") != 3 || f.stock(t, "p2") != 0 {
		t.Errorf("expected stock 3 and 0, got %d and %d", f.stock(t, "p1"), f.stock(t, "p2"))
	}

	stored, _ := f.store.GetOrder(context.Background(), order.ID)
	if stored == nil {
		t.Fatal("order not persisted")
	}

	if len(f.notifier.buyers) != 1 {
		t.Errorf("expected 1 buyer confirmation, got %d", len(f.notifier.buyers))
	}
	if len(f.notifier.sellers) != 2 {
		t.Errorf("expected 2 seller notifications, got %d", len(f.notifier.sellers))
	}
	if len(f.notifier.codes) != 1 {
		t.Fatalf("expected 1 delivery code notice, got %d", len(f.notifier.codes))
	}

	code := f.notifier.codes[0].Code
	if len(code) != 6 {
		t.Errorf("expected 6 digit code, got %q", code)
	}
	if HashCode(code) != stored.DeliveryCodeHash {
		t.Error("stored hash does not match issued code")
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != domain.OrderPlaced {
		t.Errorf("expected one order.placed event, got %+v", f.events.events)
	}
}

func TestPlaceOrder_CommissionFrozen(t *testing.T) {
	tests := []struct {
		name       string
		total      int64
		commission int64
	}{
		{"three percent", 1000, 30},
		{"rounds half up", 50, 2},
		{"rounds down", 49, 1},
		{"zero uses subtotal", 0, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture()
			defer f.dispatcher.Close()

			order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
				BuyerID:     "b1",
				Items:       []CartItem{{ProductID: "p1", Quantity: 1}},
				TotalAmount: tt.total,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if order.CommissionAmount != tt.commission {
				t.Errorf("expected commission %d, got %d", tt.commission, order.CommissionAmount)
			}
		})
	}
}

func TestPlaceOrder_CustomCommissionRate(t *testing.T) {
	f := newCheckoutFixture(WithCommissionRate(decimal.RequireFromString("0.05")))
	defer f.dispatcher.Close()

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		BuyerID: "b1",
		Items:   []CartItem{{ProductID: "p1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.CommissionAmount != 50 {
		t.Errorf("expected commission 50, got %d", order.CommissionAmount)
	}
}

func TestPlaceOrder_AllOrNothing(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		BuyerID: "b1",
		Items:   []CartItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 2}},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}
	f.dispatcher.Close()

	if f.stock(t, "p1") != 5 || f.stock(t, "p2") != 1 {
		t.Error("expected stock untouched")
	}
	orders, _ := f.store.ListOrders(context.Background(), domain.OrderFilter{})
	if len(orders) != 0 {
		t.Errorf("expected no orders, got %d", len(orders))
	}
	if len(f.notifier.buyers)+len(f.notifier.sellers)+len(f.notifier.codes) != 0 {
		t.Error("expected no notifications for a rejected cart")
	}
}

func TestPlaceOrder_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		buyerID string
		items   []CartItem
		want    error
	}{
		{"unknown product", "b1", []CartItem{{ProductID: "p1", Quantity: 1}, {ProductID: "ghost", Quantity: 1}}, domain.ErrProductNotFound},
		{"self purchase", "s1", []CartItem{{ProductID: "p1", Quantity: 1}}, domain.ErrSelfPurchaseForbidden},
		{"empty cart", "b1", nil, domain.ErrInvalidCart},
		{"zero quantity", "b1", []CartItem{{ProductID: "p1", Quantity: 0}}, domain.ErrInvalidCart},
		{"merged lines exceed stock", "b1", []CartItem{{ProductID: "p2", Quantity: 1}, {ProductID: "p2", Quantity: 1}}, domain.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture()
			defer f.dispatcher.Close()

			_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{BuyerID: tt.buyerID, Items: tt.items})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got: %v", tt.want, err)
			}
			if f.stock(t, "p1") != 5 || f.stock(t, "p2") != 1 {
				t.Error("expected stock untouched")
			}
		})
	}
}

func TestPlaceOrder_SellerMayBuyFromOthers(t *testing.T) {
	f := newCheckoutFixture()

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		BuyerID: "s1",
		Items:   []CartItem{{ProductID: "p2", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	f.dispatcher.Close()

	if len(f.notifier.sellers) != 1 || f.notifier.sellers[0].Seller.UserID != "s2" {
		t.Errorf("expected one notification to s2, got %+v", f.notifier.sellers)
	}
	if order.BuyerID != "s1" {
		t.Errorf("expected buyer s1, got %s", order.BuyerID)
	}
}

func TestPlaceOrder_MergesDuplicateLines(t *testing.T) {
	f := newCheckoutFixture()
	defer f.dispatcher.Close()

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		BuyerID: "b1",
		Items:   []CartItem{{ProductID: "p1", Quantity: 1}, {ProductID: "p1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order.Lines) != 1 || order.Lines[0].Quantity != 3 {
		t.Errorf("expected one merged line of 3, got %+v", order.Lines)
	}
	if f.stock(t, "p1") != 2 {
		t.Errorf("expected stock 2, got %d", f.stock(t, "p1"))
	}
}

func TestPlaceOrder_DefaultShippingAddress(t *testing.T) {
	f := newCheckoutFixture()
	defer f.dispatcher.Close()

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		BuyerID: "b1",
		Items:   []CartItem{{ProductID: "p1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ShippingAddress.Label != "home" {
		t.Errorf("expected default home address, got %+v", order.ShippingAddress)
	}

	explicit := domain.Address{AddressLine1: "7 Lake Rd", City: "Nashik", Pincode: "422001"}
	order, err = f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		BuyerID:         "b1",
		Items:           []CartItem{{ProductID: "p1", Quantity: 1}},
		ShippingAddress: explicit,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ShippingAddress != explicit {
		t.Errorf("expected explicit address, got %+v", order.ShippingAddress)
	}
}

func TestPlaceOrder_NotificationFailureDoesNotFailOrder(t *testing.T) {
	f := newCheckoutFixture()
	f.notifier.fail = errors.New("smtp down")

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		BuyerID: "b1",
		Items:   []CartItem{{ProductID: "p1", Quantity: 1}},
	})
	f.dispatcher.Close()

	if err != nil {
		t.Fatalf("expected success despite notifier failure, got: %v", err)
	}
	if stored, _ := f.store.GetOrder(context.Background(), order.ID); stored == nil {
		t.Error("expected order to persist")
	}
}

func TestPlaceOrder_Idempotency(t *testing.T) {
	idem := newMockIdempotency()
	f := newCheckoutFixture(WithIdempotency(idem))
	defer f.dispatcher.Close()
	ctx := context.Background()

	in := PlaceOrderInput{BuyerID: "b1", Items: []CartItem{{ProductID: "p1", Quantity: 1}}, IdempotencyKey: "req-1"}
	if _, err := f.svc.PlaceOrder(ctx, in); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	_, err := f.svc.PlaceOrder(ctx, in)
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}
	if f.stock(t, "p1") != 4 {
		t.Errorf("expected stock 4, got %d", f.stock(t, "p1"))
	}

	// A failed request frees its key for a retry
	bad := PlaceOrderInput{BuyerID: "b1", Items: []CartItem{{ProductID: "ghost", Quantity: 1}}, IdempotencyKey: "req-2"}
	if _, err := f.svc.PlaceOrder(ctx, bad); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got: %v", err)
	}
	retry := PlaceOrderInput{BuyerID: "b1", Items: []CartItem{{ProductID: "p1", Quantity: 1}}, IdempotencyKey: "req-2"}
	if _, err := f.svc.PlaceOrder(ctx, retry); err != nil {
		t.Errorf("expected retry after failure to succeed, got: %v", err)
	}
}

func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	f := newCheckoutFixture()
	defer f.dispatcher.Close()

	var successCount atomic.Int32
	var stockErrors atomic.Int32
	var wg sync.WaitGroup

	buyers := 50
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
				BuyerID: "b1",
				Items:   []CartItem{{ProductID: "p2", Quantity: 1}},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				stockErrors.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
	if stockErrors.Load() != int32(buyers-1) {
		t.Errorf("expected %d stock errors, got %d", buyers-1, stockErrors.Load())
	}
	if f.stock(t, "p2") != 0 {
		t.Errorf("expected stock 0, got %d", f.stock(t, "p2"))
	}
}

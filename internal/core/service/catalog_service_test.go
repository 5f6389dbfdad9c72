package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
)

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func TestCreateListing_Offers(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		draw     int
		offer    int
		original int64
	}{
		{"below threshold never discounted", 50, 10, 0, 50},
		{"at threshold gets minimum offer", 100, 0, 5, 105},
		{"offer 20 percent", 150, 15, 20, 188},
		{"maximum offer", 1000, 25, 30, 1429},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMemoryAdapter()
			svc := NewCatalogService(mem, WithOfferSource(func(n int) int {
				if n != 26 {
					t.Errorf("expected draw over 26 values, got %d", n)
				}
				return tt.draw
			}))

			p, err := svc.CreateListing(context.Background(), seller, ListingInput{
				Title:    "Desk",
				Price:    int64Ptr(tt.price),
				Quantity: intPtr(2),
				Image:    "https://img.example/desk.png",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.OfferPercentage != tt.offer || p.OriginalPrice != tt.original {
				t.Errorf("expected offer %d original %d, got %d %d", tt.offer, tt.original, p.OfferPercentage, p.OriginalPrice)
			}
			if p.Price != tt.price {
				t.Errorf("expected price %d kept, got %d", tt.price, p.Price)
			}
			if p.Status != domain.ApprovalPending || p.SellerID != "s1" {
				t.Errorf("expected pending listing owned by s1, got %s %s", p.Status, p.SellerID)
			}
			if p.Category != domain.CategoryElectronics {
				t.Errorf("expected default category, got %s", p.Category)
			}
		})
	}
}

func TestCreateListing_Validation(t *testing.T) {
	valid := func() ListingInput {
		return ListingInput{Title: "Chair", Price: int64Ptr(10), Quantity: intPtr(1), Image: "img.png"}
	}

	tests := []struct {
		name   string
		mutate func(*ListingInput)
	}{
		{"missing price", func(in *ListingInput) { in.Price = nil }},
		{"missing quantity", func(in *ListingInput) { in.Quantity = nil }},
		{"negative price", func(in *ListingInput) { in.Price = int64Ptr(-1) }},
		{"negative quantity", func(in *ListingInput) { in.Quantity = intPtr(-1) }},
		{"blank title", func(in *ListingInput) { in.Title = "  " }},
		{"missing image", func(in *ListingInput) { in.Image = "" }},
		{"unknown category", func(in *ListingInput) { in.Category = "toys" }},
	}

	svc := NewCatalogService(storage.NewMemoryAdapter())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			if _, err := svc.CreateListing(context.Background(), seller, in); !errors.Is(err, domain.ErrInvalidListing) {
				t.Errorf("expected ErrInvalidListing, got: %v", err)
			}
		})
	}

	if _, err := svc.CreateListing(context.Background(), buyer, valid()); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("expected buyer to be refused, got: %v", err)
	}

	zero := valid()
	zero.Price, zero.Quantity = int64Ptr(0), intPtr(0)
	if _, err := svc.CreateListing(context.Background(), seller, zero); err != nil {
		t.Errorf("expected zero price and quantity to be accepted, got: %v", err)
	}
}

func TestListPublic_OnlyApprovedInStock(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []domain.Product{
		{ID: "approved-late", Quantity: 1, Status: domain.ApprovalApproved},
		{ID: "pending", Quantity: 1, Status: domain.ApprovalPending},
		{ID: "sold-out", Quantity: 0, Status: domain.ApprovalApproved},
		{ID: "rejected", Quantity: 3, Status: domain.ApprovalRejected},
		{ID: "approved-early", Quantity: 2, Status: domain.ApprovalApproved},
	} {
		p.SellerID = "s1"
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if p.ID == "approved-early" {
			p.CreatedAt = base.Add(-time.Minute)
		}
		mem.CreateProduct(context.Background(), p)
	}

	svc := NewCatalogService(mem)
	got, err := svc.ListPublic(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "approved-early" || got[1].ID != "approved-late" {
		t.Errorf("unexpected public listing: %+v", got)
	}
}

func TestSetApproval(t *testing.T) {
	mem := seedStore()
	svc := NewCatalogService(mem)
	ctx := context.Background()

	created, err := svc.CreateListing(ctx, seller, ListingInput{Title: "Vase", Price: int64Ptr(80), Quantity: intPtr(1), Image: "vase.png"})
	if err != nil {
		t.Fatalf("CreateListing failed: %v", err)
	}

	pending, _ := svc.ListPending(ctx, admin)
	if len(pending) != 1 || pending[0].ID != created.ID {
		t.Fatalf("expected the new listing pending, got %+v", pending)
	}

	// Same verdict twice is a no-op success
	for i := 0; i < 2; i++ {
		p, err := svc.SetApproval(ctx, admin, created.ID, domain.ApprovalApproved)
		if err != nil {
			t.Fatalf("SetApproval call %d failed: %v", i+1, err)
		}
		if p.Status != domain.ApprovalApproved {
			t.Errorf("expected approved, got %s", p.Status)
		}
	}

	if _, err := svc.SetApproval(ctx, admin, "ghost", domain.ApprovalApproved); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got: %v", err)
	}
	if _, err := svc.SetApproval(ctx, admin, created.ID, domain.ApprovalPending); !errors.Is(err, domain.ErrInvalidListing) {
		t.Errorf("expected pending verdict refused, got: %v", err)
	}
	if _, err := svc.SetApproval(ctx, seller, created.ID, domain.ApprovalRejected); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("expected seller refused, got: %v", err)
	}
	if _, err := svc.ListPending(ctx, seller); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("expected seller refused the queue, got: %v", err)
	}
}

func TestListBySeller(t *testing.T) {
	mem := seedStore()
	svc := NewCatalogService(mem)

	mine, err := svc.ListBySeller(context.Background(), seller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "p1" {
		t.Errorf("expected only p1, got %+v", mine)
	}
	if _, err := svc.ListBySeller(context.Background(), buyer); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("expected buyer refused, got: %v", err)
	}
}

func TestCatalogDecrementStock(t *testing.T) {
	mem := seedStore()
	svc := NewCatalogService(mem)
	ctx := context.Background()

	if err := svc.DecrementStock(ctx, "p1", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.DecrementStock(ctx, "p1", 4); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got: %v", err)
	}
	if err := svc.DecrementStock(ctx, "ghost", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got: %v", err)
	}

	p, _ := svc.GetProduct(ctx, "p1")
	if p.Quantity != 3 {
		t.Errorf("expected stock 3, got %d", p.Quantity)
	}
}

func TestCatalogDecrementStock_Concurrent(t *testing.T) {
	mem := seedStore()
	svc := NewCatalogService(mem)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.DecrementStock(context.Background(), "p1", 1); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 5 {
		t.Errorf("expected 5 successes, got %d", successCount.Load())
	}
}

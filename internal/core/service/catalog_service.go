package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
	"github.com/rl1809/marketplace/internal/port"
)

// ListingInput carries seller-supplied attributes. Price and Quantity are
// pointers so a missing value can be told apart from zero.
type ListingInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    domain.Category `json:"productType"`
	Price       *int64          `json:"price"`
	Quantity    *int            `json:"quantity"`
	Image       string          `json:"image"`
	Model3D     string          `json:"model3D"`
}

type CatalogOption func(*CatalogService)

// WithOfferSource replaces the random source used for promotional offers.
// intn must return a value in [0, n).
func WithOfferSource(intn func(n int) int) CatalogOption {
	return func(s *CatalogService) { s.intn = intn }
}

func WithCatalogClock(now func() time.Time) CatalogOption {
	return func(s *CatalogService) { s.now = now }
}

type CatalogService struct {
	products port.ProductRepository
	intn     func(n int) int
	now      func() time.Time
}

func NewCatalogService(products port.ProductRepository, opts ...CatalogOption) *CatalogService {
	s := &CatalogService{
		products: products,
		intn:     rand.Intn,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CatalogService) CreateListing(ctx context.Context, p domain.Principal, in ListingInput) (*domain.Product, error) {
	if err := p.Require(domain.CapCreateListing); err != nil {
		return nil, err
	}
	if err := validateListing(&in); err != nil {
		return nil, err
	}

	price := *in.Price
	offer := 0
	if price >= domain.OfferThreshold {
		offer = domain.MinOfferPercent + s.intn(domain.MaxOfferPercent-domain.MinOfferPercent+1)
	}

	now := s.now().UTC()
	product := domain.Product{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Category:        in.Category,
		Price:           price,
		OfferPercentage: offer,
		OriginalPrice:   domain.OriginalPrice(price, offer),
		Quantity:        *in.Quantity,
		Image:           in.Image,
		Model3D:         in.Model3D,
		SellerID:        p.UserID,
		Status:          domain.ApprovalPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.products.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	logging.FromCtx(ctx).Info("listing created", "product_id", product.ID, "seller_id", p.UserID, "offer", offer)
	return &product, nil
}

// ListPublic returns approved, in-stock listings in creation order.
func (s *CatalogService) ListPublic(ctx context.Context) ([]domain.Product, error) {
	return s.products.ListProducts(ctx, domain.ProductFilter{
		Status:      domain.ApprovalApproved,
		InStockOnly: true,
	})
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if p == nil {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

// DecrementStock atomically removes qty units, failing if fewer remain.
func (s *CatalogService) DecrementStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidCart)
	}
	ok, err := s.products.DecrementStock(ctx, id, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if ok {
		return nil
	}

	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("load product: %w", err)
	}
	if p == nil {
		return domain.ErrProductNotFound
	}
	return domain.ErrInsufficientStock
}

// SetApproval records an admin verdict. Repeating the same verdict is a no-op success.
func (s *CatalogService) SetApproval(ctx context.Context, p domain.Principal, id string, verdict domain.ApprovalStatus) (*domain.Product, error) {
	if err := p.Require(domain.CapApproveListing); err != nil {
		return nil, err
	}
	if !verdict.Verdict() {
		return nil, fmt.Errorf("%w: verdict must be approved or rejected", domain.ErrInvalidListing)
	}

	found, err := s.products.SetProductStatus(ctx, id, verdict)
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	if !found {
		return nil, domain.ErrProductNotFound
	}
	logging.FromCtx(ctx).Info("listing reviewed", "product_id", id, "status", verdict, "admin_id", p.UserID)
	return s.GetProduct(ctx, id)
}

// ListBySeller returns the caller's own listings in any status, newest first.
func (s *CatalogService) ListBySeller(ctx context.Context, p domain.Principal) ([]domain.Product, error) {
	if err := p.Require(domain.CapCreateListing); err != nil {
		return nil, err
	}
	return s.products.ListProducts(ctx, domain.ProductFilter{SellerID: p.UserID, NewestFirst: true})
}

// ListPending returns the approval queue, oldest first.
func (s *CatalogService) ListPending(ctx context.Context, p domain.Principal) ([]domain.Product, error) {
	if err := p.Require(domain.CapApproveListing); err != nil {
		return nil, err
	}
	return s.products.ListProducts(ctx, domain.ProductFilter{Status: domain.ApprovalPending})
}

func validateListing(in *ListingInput) error {
	switch {
	case in.Price == nil || in.Quantity == nil:
		return fmt.Errorf("%w: price and quantity are required", domain.ErrInvalidListing)
	case *in.Price < 0 || *in.Quantity < 0:
		return fmt.Errorf("%w: price and quantity must not be negative", domain.ErrInvalidListing)
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", domain.ErrInvalidListing)
	case in.Image == "":
		return fmt.Errorf("%w: image is required", domain.ErrInvalidListing)
	}
	if in.Category == "" {
		in.Category = domain.CategoryElectronics
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", domain.ErrInvalidListing, in.Category)
	}
	return nil
}

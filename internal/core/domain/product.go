package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryFurniture   Category = "furniture"
	CategoryPainting    Category = "painting"
	CategoryDrawings    Category = "drawings"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryElectronics, CategoryFurniture, CategoryPainting, CategoryDrawings:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Verdict reports whether s is a status an admin may assign.
func (s ApprovalStatus) Verdict() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// Promotional pricing bounds. Listings priced below OfferThreshold never carry an offer.
const (
	OfferThreshold  int64 = 100
	MinOfferPercent       = 5
	MaxOfferPercent       = 30
)

type Product struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Category        Category       `json:"category"`
	Price           int64          `json:"price"`
	OfferPercentage int            `json:"offerPercentage"`
	OriginalPrice   int64          `json:"originalPrice"`
	Quantity        int            `json:"quantity"`
	Image           string         `json:"image"`
	Model3D         string         `json:"model3D,omitempty"`
	SellerID        string         `json:"seller"`
	Status          ApprovalStatus `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Public reports whether the listing may appear in the public catalog.
func (p Product) Public() bool {
	return p.Status == ApprovalApproved && p.Quantity > 0
}

// OriginalPrice inflates price by the offer: round(price*100 / (100-offer)).
// Without an offer the original price is the price itself.
func OriginalPrice(price int64, offerPercentage int) int64 {
	if offerPercentage <= 0 {
		return price
	}
	return decimal.NewFromInt(price).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(100 - offerPercentage))).
		Round(0).
		IntPart()
}

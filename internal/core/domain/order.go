package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

type DeliveryStatus string

const (
	DeliveryNotDelivered DeliveryStatus = "Not Delivered"
	DeliveryDelivered    DeliveryStatus = "Delivered"
)

// LineItem references a product and carries a snapshot of the listing at checkout.
type LineItem struct {
	ProductID string `json:"product"`
	Quantity  int    `json:"quantity"`
	SellerID  string `json:"seller"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unitPrice"`
}

type Order struct {
	ID                    string         `json:"id"`
	BuyerID               string         `json:"buyer"`
	Lines                 []LineItem     `json:"products"`
	TotalAmount           int64          `json:"totalAmount"`
	CommissionAmount      int64          `json:"commissionAmount"`
	Status                OrderStatus    `json:"status"`
	DeliveryStatus        DeliveryStatus `json:"deliveryStatus"`
	DeliveryCodeHash      string         `json:"-"`
	DeliveryCodeExpiresAt *time.Time     `json:"-"`
	ShippingAddress       Address        `json:"shippingAddress"`
	DeliveredAt           *time.Time     `json:"deliveredAt,omitempty"`
	CreatedAt             time.Time      `json:"createdAt"`
}

func (o Order) Delivered() bool {
	return o.DeliveryStatus == DeliveryDelivered
}

// HasSeller reports whether sellerID owns at least one line of the order.
func (o Order) HasSeller(sellerID string) bool {
	for _, l := range o.Lines {
		if l.SellerID == sellerID {
			return true
		}
	}
	return false
}

// SellerIDs returns the distinct sellers of the order in line order.
func (o Order) SellerIDs() []string {
	seen := make(map[string]struct{}, len(o.Lines))
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if _, ok := seen[l.SellerID]; ok {
			continue
		}
		seen[l.SellerID] = struct{}{}
		ids = append(ids, l.SellerID)
	}
	return ids
}

// LinesOf returns the lines that belong to sellerID.
func (o Order) LinesOf(sellerID string) []LineItem {
	var lines []LineItem
	for _, l := range o.Lines {
		if l.SellerID == sellerID {
			lines = append(lines, l)
		}
	}
	return lines
}

// OrderFilter narrows ledger queries. Empty fields match everything.
type OrderFilter struct {
	BuyerID  string
	SellerID string
	Status   OrderStatus
}

// ProductFilter narrows catalog queries. Empty fields match everything.
type ProductFilter struct {
	SellerID    string
	Status      ApprovalStatus
	InStockOnly bool
	NewestFirst bool
}

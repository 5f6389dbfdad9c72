package domain

import "time"

// SellerItems groups the lines of an order that one seller fulfils.
type SellerItems struct {
	Seller Contact    `json:"seller"`
	Items  []LineItem `json:"items"`
}

type BuyerConfirmation struct {
	OrderID     string        `json:"orderId"`
	Buyer       Contact       `json:"buyer"`
	TotalAmount int64         `json:"totalAmount"`
	Sellers     []SellerItems `json:"sellers"`
	PlacedAt    time.Time     `json:"placedAt"`
}

type SellerNotification struct {
	OrderID         string     `json:"orderId"`
	Seller          Contact    `json:"seller"`
	Buyer           Contact    `json:"buyer"`
	ShippingAddress Address    `json:"shippingAddress"`
	Items           []LineItem `json:"items"`
	PlacedAt        time.Time  `json:"placedAt"`
}

// DeliveryCodeNotice carries the plaintext code. It is transmitted once and never stored.
type DeliveryCodeNotice struct {
	OrderID   string     `json:"orderId"`
	Buyer     Contact    `json:"buyer"`
	Code      string     `json:"code"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type OrderEventType string

const (
	OrderPlaced    OrderEventType = "order.placed"
	OrderDelivered OrderEventType = "order.delivered"
)

type OrderEvent struct {
	Type       OrderEventType `json:"type"`
	OrderID    string         `json:"orderId"`
	BuyerID    string         `json:"buyerId"`
	SellerIDs  []string       `json:"sellerIds"`
	Total      int64          `json:"totalAmount"`
	Commission int64          `json:"commissionAmount"`
	OccurredAt time.Time      `json:"occurredAt"`
}

func NewOrderEvent(t OrderEventType, o Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:       t,
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		SellerIDs:  o.SellerIDs(),
		Total:      o.TotalAmount,
		Commission: o.CommissionAmount,
		OccurredAt: at,
	}
}

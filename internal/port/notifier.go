package port

import (
	"context"

	"github.com/rl1809/marketplace/internal/core/domain"
)

// Notifier delivers messages to buyers and sellers out of band.
// Callers treat every failure as non-fatal.
type Notifier interface {
	SendBuyerOrderConfirmation(ctx context.Context, msg domain.BuyerConfirmation) error
	SendSellerOrderNotification(ctx context.Context, msg domain.SellerNotification) error
	SendDeliveryCode(ctx context.Context, msg domain.DeliveryCodeNotice) error
}

// EventPublisher broadcasts order lifecycle events to downstream consumers.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, ev domain.OrderEvent) error
}

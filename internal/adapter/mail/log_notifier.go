package mail

import (
	"context"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
)

// LogNotifier writes notifications to the log instead of sending them.
// Delivery codes appear in plaintext, so it is meant for local development only.
type LogNotifier struct{}

func NewLogNotifier() LogNotifier {
	logging.New("notifier").Warn("log notifier active, delivery codes will be written to the log")
	return LogNotifier{}
}

func (LogNotifier) SendBuyerOrderConfirmation(ctx context.Context, msg domain.BuyerConfirmation) error {
	logging.FromCtx(ctx).Info("buyer confirmation",
		"order_id", msg.OrderID, "to", msg.Buyer.Email, "total", msg.TotalAmount, "sellers", len(msg.Sellers))
	return nil
}

func (LogNotifier) SendSellerOrderNotification(ctx context.Context, msg domain.SellerNotification) error {
	logging.FromCtx(ctx).Info("seller notification",
		"order_id", msg.OrderID, "to", msg.Seller.Email, "items", len(msg.Items))
	return nil
}

func (LogNotifier) SendDeliveryCode(ctx context.Context, msg domain.DeliveryCodeNotice) error {
	logging.FromCtx(ctx).Info("delivery code", "order_id", msg.OrderID, "to", msg.Buyer.Email, "code", msg.Code)
	return nil
}

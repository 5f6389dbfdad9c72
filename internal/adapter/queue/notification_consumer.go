package queue

import (
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

// RegisterNotifications routes each notification queue to the matching method of
// the downstream notifier, usually the mail sender.
func RegisterNotifications(r *Router, downstream port.Notifier) {
	r.Register(QueueName(RoutingBuyerConfirmation), JSONHandler[domain.BuyerConfirmation]{
		HandleFunc: downstream.SendBuyerOrderConfirmation,
	})
	r.Register(QueueName(RoutingSellerOrder), JSONHandler[domain.SellerNotification]{
		HandleFunc: downstream.SendSellerOrderNotification,
	})
	r.Register(QueueName(RoutingDeliveryCode), JSONHandler[domain.DeliveryCodeNotice]{
		HandleFunc: downstream.SendDeliveryCode,
	})
}

package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_orders_placed_total",
		Help: "Orders successfully placed",
	})

	checkoutRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_checkout_rejected_total",
			Help: "Checkout attempts rejected, by reason",
		},
		[]string{"reason"},
	)

	deliveryVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_delivery_verifications_total",
			Help: "Delivery code verifications, by outcome",
		},
		[]string{"outcome"},
	)

	dispatchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_dispatch_dropped_total",
		Help: "Background jobs dropped because the queue was full or closed",
	})

	dispatchFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_dispatch_failed_total",
			Help: "Background jobs that exhausted their retries",
		},
		[]string{"job"},
	)
)

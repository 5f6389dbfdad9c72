package service

import (
	"context"
	"fmt"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

// dispatchNotifications queues the buyer confirmation, one notice per seller
// (skipping a seller who is also the buyer), the delivery code and the placed event.
func (s *CheckoutService) dispatchNotifications(order domain.Order, code string) {
	s.dispatcher.Submit(Job{
		Name: "buyer_confirmation",
		Run: func(ctx context.Context) error {
			msg, err := s.buyerConfirmation(ctx, order)
			if err != nil {
				return err
			}
			return s.notifier.SendBuyerOrderConfirmation(ctx, msg)
		},
	})

	for _, sellerID := range order.SellerIDs() {
		if sellerID == order.BuyerID {
			continue
		}
		sellerID := sellerID
		s.dispatcher.Submit(Job{
			Name: "seller_notification",
			Run: func(ctx context.Context) error {
				seller, err := contactOf(ctx, s.users, sellerID)
				if err != nil {
					return err
				}
				buyer, err := contactOf(ctx, s.users, order.BuyerID)
				if err != nil {
					return err
				}
				return s.notifier.SendSellerOrderNotification(ctx, domain.SellerNotification{
					OrderID:         order.ID,
					Seller:          seller,
					Buyer:           buyer,
					ShippingAddress: order.ShippingAddress,
					Items:           order.LinesOf(sellerID),
					PlacedAt:        order.CreatedAt,
				})
			},
		})
	}

	s.dispatcher.Submit(Job{
		Name: "delivery_code",
		Run: func(ctx context.Context) error {
			buyer, err := contactOf(ctx, s.users, order.BuyerID)
			if err != nil {
				return err
			}
			return s.notifier.SendDeliveryCode(ctx, domain.DeliveryCodeNotice{
				OrderID:   order.ID,
				Buyer:     buyer,
				Code:      code,
				ExpiresAt: order.DeliveryCodeExpiresAt,
			})
		},
	})

	if s.events != nil {
		ev := domain.NewOrderEvent(domain.OrderPlaced, order, order.CreatedAt)
		s.dispatcher.Submit(Job{
			Name: "event_order_placed",
			Run:  func(ctx context.Context) error { return s.events.PublishOrderEvent(ctx, ev) },
		})
	}
}

func (s *CheckoutService) buyerConfirmation(ctx context.Context, order domain.Order) (domain.BuyerConfirmation, error) {
	buyer, err := contactOf(ctx, s.users, order.BuyerID)
	if err != nil {
		return domain.BuyerConfirmation{}, err
	}
	if !order.ShippingAddress.Empty() {
		buyer.Address = order.ShippingAddress
	}

	sellers := make([]domain.SellerItems, 0, len(order.Lines))
	for _, sellerID := range order.SellerIDs() {
		seller, err := contactOf(ctx, s.users, sellerID)
		if err != nil {
			return domain.BuyerConfirmation{}, err
		}
		sellers = append(sellers, domain.SellerItems{Seller: seller, Items: order.LinesOf(sellerID)})
	}

	return domain.BuyerConfirmation{
		OrderID:     order.ID,
		Buyer:       buyer,
		TotalAmount: order.TotalAmount,
		Sellers:     sellers,
		PlacedAt:    order.CreatedAt,
	}, nil
}

func contactOf(ctx context.Context, users port.UserRepository, id string) (domain.Contact, error) {
	u, err := users.GetUser(ctx, id)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("load user %s: %w", id, err)
	}
	if u == nil {
		return domain.Contact{}, fmt.Errorf("%w: %s", domain.ErrUserNotFound, id)
	}
	return u.Contact(), nil
}

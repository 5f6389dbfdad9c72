package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rl1809/marketplace/internal/core/domain"
)

const (
	RoutingBuyerConfirmation = "notify.buyer_confirmation"
	RoutingSellerOrder       = "notify.seller_order"
	RoutingDeliveryCode      = "notify.delivery_code"
)

var routingKeys = []string{RoutingBuyerConfirmation, RoutingSellerOrder, RoutingDeliveryCode}

// QueueName is the durable queue bound to a routing key.
func QueueName(routingKey string) string {
	return routingKey + ".q"
}

// RabbitNotifier implements port.Notifier by publishing each message to a topic
// exchange. A consumer registered with RegisterNotifications delivers them.
type RabbitNotifier struct {
	ch       *amqp.Channel
	exchange string
}

// NewRabbitNotifier sets up the exchange, queues, and bindings once at startup.
func NewRabbitNotifier(ch *amqp.Channel, exchange string) (*RabbitNotifier, error) {
	if err := Declare(ch, exchange); err != nil {
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	return &RabbitNotifier{ch: ch, exchange: exchange}, nil
}

// Declare creates the topic exchange and one durable queue per notification kind.
func Declare(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, key := range routingKeys {
		q, err := ch.QueueDeclare(
			QueueName(key),
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", key, err)
		}
		if err := ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			return fmt.Errorf("queue bind %s: %w", key, err)
		}
	}
	return nil
}

func (p *RabbitNotifier) SendBuyerOrderConfirmation(ctx context.Context, msg domain.BuyerConfirmation) error {
	return p.publish(ctx, RoutingBuyerConfirmation, msg.OrderID, msg)
}

func (p *RabbitNotifier) SendSellerOrderNotification(ctx context.Context, msg domain.SellerNotification) error {
	return p.publish(ctx, RoutingSellerOrder, msg.OrderID, msg)
}

func (p *RabbitNotifier) SendDeliveryCode(ctx context.Context, msg domain.DeliveryCodeNotice) error {
	return p.publish(ctx, RoutingDeliveryCode, msg.OrderID, msg)
}

// publish sends msg and waits for the broker to confirm it.
func (p *RabbitNotifier) publish(ctx context.Context, routingKey, orderID string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent, // survive broker restarts
		CorrelationId: orderID,
		Type:          routingKey,
		Body:          body,
	}

	conf, err := p.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		pub,
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	if conf == nil {
		return nil
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", routingKey, err)
	}
	if !acked {
		return errors.New("broker nacked " + routingKey)
	}
	return nil
}

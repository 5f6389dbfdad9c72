package event

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
)

// HandlerFunc processes a decoded event.
type HandlerFunc func(ctx context.Context, ev domain.OrderEvent) error

// Consumer consumes order events with a single handler.
type Consumer struct {
	Group  sarama.ConsumerGroup
	Topics []string
	Handle HandlerFunc
}

func NewConsumer(group sarama.ConsumerGroup, topics []string, h HandlerFunc) *Consumer {
	return &Consumer{
		Group:  group,
		Topics: topics,
		Handle: h,
	}
}

// Start blocks until ctx is cancelled or the group fails.
func (c *Consumer) Start(ctx context.Context) error {
	handler := &cgHandler{handle: c.Handle}
	for {
		if err := c.Group.Consume(ctx, c.Topics, handler); err != nil {
			return err
		}
		// Consume returns on rebalance or cancellation.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type cgHandler struct {
	handle HandlerFunc
}

func (h *cgHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *cgHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *cgHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	l := logging.New("kafka-consumer").With("topic", claim.Topic(), "partition", claim.Partition())
	for msg := range claim.Messages() {
		var ev domain.OrderEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			l.Warn("decode error", "offset", msg.Offset, "error", err)
			// mark to avoid reprocessing poison
			sess.MarkMessage(msg, "decode-error")
			continue
		}
		if err := h.handle(sess.Context(), ev); err != nil {
			l.Error("handler error", "key", string(msg.Key), "offset", msg.Offset, "error", err)
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

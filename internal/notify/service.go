package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/CodeLordGh/kash-catalogue-checkout/internal/kafka"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/orders"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Service fans terminal order events out into per-recipient push dispatch
// messages. Delivery itself (FCM etc.) is a downstream consumer's job.
type Service struct {
	Redis       *redis.Client
	Producer    *kafkax.Producer // notify.push
	ServiceName string
}

// HandleOrderCompleted is wired as the order.completed consumer handler.
func (s *Service) HandleOrderCompleted(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCompleted {
		return nil
	}
	if s.seen(ctx, env.EventID) {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderCompletedPayload](env.Payload)
	if err != nil {
		return err
	}

	s.push(env.TraceID, p.OrderID, orders.PushRequestedPayload{
		Recipient: p.BuyerID,
		Role:      "buyer",
		Title:     "Payment received",
		Body:      fmt.Sprintf("Your payment of %.2f for order %s went through.", p.Amount, p.OrderID),
		OrderID:   p.OrderID,
	})
	s.push(env.TraceID, p.OrderID, orders.PushRequestedPayload{
		Recipient: p.SellerID,
		Role:      "seller",
		Title:     "New paid order",
		Body:      fmt.Sprintf("Order %s has been paid. Time to prepare it.", p.OrderID),
		OrderID:   p.OrderID,
	})
	return nil
}

// HandleOrderFailed is wired as the order.failed consumer handler.
func (s *Service) HandleOrderFailed(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderFailed {
		return nil
	}
	if s.seen(ctx, env.EventID) {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderFailedPayload](env.Payload)
	if err != nil {
		return err
	}

	s.push(env.TraceID, p.OrderID, orders.PushRequestedPayload{
		Recipient: p.BuyerID,
		Role:      "buyer",
		Title:     "Payment failed",
		Body:      fmt.Sprintf("Payment for order %s failed: %s", p.OrderID, p.Reason),
		OrderID:   p.OrderID,
	})
	return nil
}

// seen dedups by event id so a redelivered Kafka message does not double
// up notifications.
func (s *Service) seen(ctx context.Context, eventID string) bool {
	dkey := fmt.Sprintf(redisx.KeyDedup, "notify", eventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return true
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return false
}

func (s *Service) push(trace, orderID string, p orders.PushRequestedPayload) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPushRequested,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(p),
	}
	s.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventPushRequested)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

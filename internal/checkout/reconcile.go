package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/CodeLordGh/kash-catalogue-checkout/internal/gateway"
	kafkax "github.com/CodeLordGh/kash-catalogue-checkout/internal/kafka"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/orders"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// ErrCorrelationMismatch rejects a poll whose correlation id does not
// match what the order recorded at initiation.
var ErrCorrelationMismatch = errors.New("correlation id does not match order")

// Reconciler drives an order to its terminal state from a provider
// result. The pushed callback and the client poll both end up in apply,
// so the transition guard exists exactly once.
type Reconciler struct {
	Orders       OrderStore
	Ledger       Ledger
	Gateway      Gateway
	ProducerOK   Publisher // order.completed
	ProducerFail Publisher // order.failed
	Redis        *redis.Client
	Service      string
}

type Outcome struct {
	OrderID string
	Status  orders.Status
	Reason  string
	Applied bool // false for stale/duplicate/no-op results
}

// HandleCallback applies a pushed provider result. An unknown correlation
// id returns orders.ErrNotFound; the HTTP layer still acknowledges it so
// the provider stops retrying.
func (r *Reconciler) HandleCallback(ctx context.Context, res gateway.Result) (*Outcome, error) {
	ord, err := r.Orders.FindByPaymentRef(ctx, res.CorrelationID)
	if errors.Is(err, orders.ErrNotFound) {
		log.Printf("reconcile: no order for correlation id %s payload=%s", res.CorrelationID, res.Raw)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return r.apply(ctx, ord, res)
}

// PollOrder is the pull path: fetch the provider status for an order the
// client is waiting on and apply it through the same guard.
func (r *Reconciler) PollOrder(ctx context.Context, orderID, correlationID string) (*Outcome, error) {
	ord, err := r.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.PaymentRef == "" || ord.PaymentRef != correlationID {
		return nil, ErrCorrelationMismatch
	}
	if ord.Status.Terminal() {
		return &Outcome{OrderID: ord.ID, Status: ord.Status, Reason: ord.FailureReason}, nil
	}

	res, err := r.Gateway.PollStatus(ctx, ord.PaymentRef)
	if err != nil {
		// provider unavailable or unaware of the payment yet: stay
		// pending, the next poll or the callback will settle it
		log.Printf("reconcile %s: poll: %v", ord.ID, err)
		return &Outcome{OrderID: ord.ID, Status: ord.Status}, nil
	}
	if res.Status == gateway.StatusPending {
		return &Outcome{OrderID: ord.ID, Status: ord.Status}, nil
	}
	return r.apply(ctx, ord, res)
}

func (r *Reconciler) apply(ctx context.Context, ord *orders.Order, res gateway.Result) (*Outcome, error) {
	if ord.Status.Terminal() {
		// replayed callback after settlement: report, never re-apply
		return &Outcome{OrderID: ord.ID, Status: ord.Status, Reason: ord.FailureReason}, nil
	}

	switch res.Status {
	case gateway.StatusCompleted:
		applied, err := r.Orders.MarkCompleted(ctx, ord.ID, res.TransactionID)
		if err != nil {
			return nil, err
		}
		if !applied {
			return r.staleOutcome(ctx, ord, res)
		}
		if err := r.Ledger.Commit(ctx, ord.ReservationToken); err != nil {
			log.Printf("reconcile %s: commit reservation: %v", ord.ID, err)
		}
		r.cacheStatus(ctx, ord.ID, orders.StatusCompleted, "")
		r.publish(r.ProducerOK, orders.EventOrderCompleted, ord.ID, kafkax.MustMarshal(orders.OrderCompletedPayload{
			OrderID:       ord.ID,
			BuyerID:       ord.BuyerID,
			SellerID:      ord.SellerID,
			Amount:        ord.TotalPrice,
			TransactionID: res.TransactionID,
		}))
		return &Outcome{OrderID: ord.ID, Status: orders.StatusCompleted, Applied: true}, nil

	case gateway.StatusFailed:
		reason := res.Reason
		if reason == "" {
			reason = "payment failed"
		}
		applied, err := r.Orders.MarkFailed(ctx, ord.ID, reason)
		if err != nil {
			return nil, err
		}
		if !applied {
			return r.staleOutcome(ctx, ord, res)
		}
		// the sale did not happen: put the stock back
		if err := r.Ledger.Release(ctx, ord.ReservationToken); err != nil {
			log.Printf("reconcile %s: release reservation: %v", ord.ID, err)
		}
		r.cacheStatus(ctx, ord.ID, orders.StatusFailed, reason)
		r.publish(r.ProducerFail, orders.EventOrderFailed, ord.ID, kafkax.MustMarshal(orders.OrderFailedPayload{
			OrderID:  ord.ID,
			BuyerID:  ord.BuyerID,
			SellerID: ord.SellerID,
			Reason:   reason,
		}))
		return &Outcome{OrderID: ord.ID, Status: orders.StatusFailed, Reason: reason, Applied: true}, nil

	default:
		// a pending result carries nothing to apply
		return &Outcome{OrderID: ord.ID, Status: ord.Status}, nil
	}
}

// staleOutcome reports the order as it is after a lost CAS race: someone
// else already drove it terminal.
func (r *Reconciler) staleOutcome(ctx context.Context, ord *orders.Order, res gateway.Result) (*Outcome, error) {
	cur, err := r.Orders.FindByID(ctx, ord.ID)
	if err != nil {
		return nil, err
	}
	log.Printf("reconcile %s: stale or duplicate result %s ignored, order already %s payload=%s",
		ord.ID, res.Status, cur.Status, res.Raw)
	return &Outcome{OrderID: cur.ID, Status: cur.Status, Reason: cur.FailureReason}, nil
}

func (r *Reconciler) cacheStatus(ctx context.Context, orderID string, st orders.Status, reason string) {
	if r.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyPaymentStatus, orderID)
	body := kafkax.MustMarshal(map[string]string{"status": string(st), "reason": reason})
	_ = r.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func (r *Reconciler) publish(p Publisher, eventType, orderID string, payload []byte) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      r.Service,
		CorrelationID: orderID,
		Payload:       payload,
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/CodeLordGh/kash-catalogue-checkout/internal/cart"
	kafkax "github.com/CodeLordGh/kash-catalogue-checkout/internal/kafka"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/orders"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Orchestrator runs the checkout sequence: validate -> reserve -> create
// order -> initiate payment -> attach correlation id. Any failure after the
// reservation compensates (order deleted, stock released) before returning.
type Orchestrator struct {
	Validator      *cart.Validator
	Orders         OrderStore
	Ledger         Ledger
	Gateway        Gateway
	Producer       Publisher // order.created
	Redis          *redis.Client
	Service        string
	Provider       string
	GatewayTimeout time.Duration
}

type Request struct {
	ExternalID      string
	BuyerID         string
	Phone           string
	DeliveryAddress string
	Lines           []cart.Line
	DeclaredTotal   float64
	TraceID         string
}

type Receipt struct {
	OrderID       string  `json:"order_id"`
	CorrelationID string  `json:"correlation_id"`
	TotalPrice    float64 `json:"total_price"`
	Idempotent    bool    `json:"idempotent"`
}

func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Receipt, error) {
	// replayed external_id returns the original receipt, no new attempt
	if req.ExternalID != "" {
		prev, err := o.Orders.FindByExternalID(ctx, req.ExternalID)
		if err == nil {
			return &Receipt{
				OrderID:       prev.ID,
				CorrelationID: prev.PaymentRef,
				TotalPrice:    prev.TotalPrice,
				Idempotent:    true,
			}, nil
		}
		if !errors.Is(err, orders.ErrNotFound) {
			return nil, err
		}
	}

	res, err := o.Validator.Validate(ctx, req.Lines, req.DeclaredTotal)
	if err != nil {
		return nil, err
	}

	// Past this point a client abort must not strand the reservation:
	// run to completion (or compensation) regardless of the request ctx.
	ctx = context.WithoutCancel(ctx)

	orderID := uuid.NewString()
	token, ok, shortages, err := o.Ledger.Reserve(ctx, orderID, res.Items)
	if err != nil {
		return nil, err
	}
	if !ok {
		s := shortages[0]
		return nil, &cart.StockError{
			ProductID: s.ProductID, Color: s.Color,
			Required: s.Required, Available: s.Available,
		}
	}

	ord := &orders.Order{
		ID:               orderID,
		ExternalID:       req.ExternalID,
		BuyerID:          req.BuyerID,
		SellerID:         res.SellerID,
		Status:           orders.StatusPending,
		Items:            res.Items,
		TotalPrice:       res.Total,
		DeliveryAddress:  req.DeliveryAddress,
		PhoneNumber:      req.Phone,
		ReservationToken: token,
	}
	if err := o.Orders.Create(ctx, ord); err != nil {
		if rerr := o.Ledger.Release(ctx, token); rerr != nil {
			log.Printf("checkout %s: release after create failure: %v", orderID, rerr)
		}
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, o.gatewayTimeout())
	ref, err := o.Gateway.Initiate(gctx, req.Phone, res.Total, orderID)
	cancel()
	if err != nil {
		o.compensate(ctx, orderID, token)
		return nil, err
	}

	applied, err := o.Orders.AttachPaymentRef(ctx, orderID, ref)
	if err != nil || !applied {
		o.compensate(ctx, orderID, token)
		if err == nil {
			err = fmt.Errorf("order %s changed state during checkout", orderID)
		}
		return nil, err
	}

	if err := o.Orders.CreatePaymentAttempt(ctx, orders.PaymentAttempt{
		OrderID:       orderID,
		CorrelationID: ref,
		Amount:        res.Total,
		Provider:      o.Provider,
		Status:        "INITIATED",
	}); err != nil {
		// the order itself is sound; the attempt row is bookkeeping
		log.Printf("checkout %s: record payment attempt: %v", orderID, err)
	}

	o.cacheStatus(ctx, orderID, orders.StatusPending, "")
	if req.ExternalID != "" && o.Redis != nil {
		idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, req.ExternalID)
		_ = o.Redis.Set(ctx, idemKey, orderID, redisx.TTLIdempotency).Err()
	}
	o.publishCreated(ord, req.TraceID)

	return &Receipt{OrderID: orderID, CorrelationID: ref, TotalPrice: res.Total}, nil
}

// compensate undoes order creation and the reservation after a failed
// initiation. Both halves are idempotent, so a partial compensation can
// be repaired by a retry or by hand.
func (o *Orchestrator) compensate(ctx context.Context, orderID, token string) {
	if err := o.Orders.DeletePending(ctx, orderID); err != nil {
		log.Printf("checkout %s: compensating delete: %v", orderID, err)
	}
	if err := o.Ledger.Release(ctx, token); err != nil {
		log.Printf("checkout %s: compensating release: %v", orderID, err)
	}
}

func (o *Orchestrator) gatewayTimeout() time.Duration {
	if o.GatewayTimeout > 0 {
		return o.GatewayTimeout
	}
	return 30 * time.Second
}

func (o *Orchestrator) cacheStatus(ctx context.Context, orderID string, st orders.Status, reason string) {
	if o.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyPaymentStatus, orderID)
	body := kafkax.MustMarshal(map[string]string{"status": string(st), "reason": reason})
	_ = o.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func (o *Orchestrator) publishCreated(ord *orders.Order, trace string) {
	if o.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      o.Service,
		TraceID:       trace,
		CorrelationID: ord.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:    ord.ID,
			ExternalID: ord.ExternalID,
			BuyerID:    ord.BuyerID,
			SellerID:   ord.SellerID,
			Items:      ord.Items,
			TotalPrice: ord.TotalPrice,
		}),
	}
	o.Producer.Publish(orders.PartitionKey(ord.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

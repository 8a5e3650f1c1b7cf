package checkout

import (
	"context"

	"github.com/CodeLordGh/kash-catalogue-checkout/internal/gateway"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

type OrderStore interface {
	Create(ctx context.Context, o *orders.Order) error
	FindByID(ctx context.Context, orderID string) (*orders.Order, error)
	FindByExternalID(ctx context.Context, externalID string) (*orders.Order, error)
	FindByPaymentRef(ctx context.Context, ref string) (*orders.Order, error)
	AttachPaymentRef(ctx context.Context, orderID, ref string) (bool, error)
	DeletePending(ctx context.Context, orderID string) error
	MarkCompleted(ctx context.Context, orderID, txnID string) (bool, error)
	MarkFailed(ctx context.Context, orderID, reason string) (bool, error)
	CreatePaymentAttempt(ctx context.Context, a orders.PaymentAttempt) error
}

type Ledger interface {
	Reserve(ctx context.Context, orderID string, items []orders.LineItem) (token string, ok bool, shortages []orders.Shortage, err error)
	Release(ctx context.Context, token string) error
	Commit(ctx context.Context, token string) error
}

type Gateway interface {
	Initiate(ctx context.Context, phone string, amount float64, orderID string) (string, error)
	PollStatus(ctx context.Context, correlationID string) (gateway.Result, error)
}

// Publisher matches the async producer; publishing never blocks checkout.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

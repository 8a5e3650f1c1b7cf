package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCompleted = "OrderCompleted"
	EventOrderFailed    = "OrderFailed"
	EventPushRequested  = "PushRequested"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "checkout-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- per-event payloads ----

type OrderCreatedPayload struct {
	OrderID    string     `json:"order_id"`
	ExternalID string     `json:"external_id"`
	BuyerID    string     `json:"buyer_id"`
	SellerID   string     `json:"seller_id"`
	Items      []LineItem `json:"items"`
	TotalPrice float64    `json:"total_price"`
}

type OrderCompletedPayload struct {
	OrderID       string  `json:"order_id"`
	BuyerID       string  `json:"buyer_id"`
	SellerID      string  `json:"seller_id"`
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transaction_id"`
}

type OrderFailedPayload struct {
	OrderID  string `json:"order_id"`
	BuyerID  string `json:"buyer_id"`
	SellerID string `json:"seller_id"`
	Reason   string `json:"reason"`
}

type PushRequestedPayload struct {
	Recipient string `json:"recipient"`
	Role      string `json:"role"` // buyer | seller
	Title     string `json:"title"`
	Body      string `json:"body"`
	OrderID   string `json:"order_id"`
}

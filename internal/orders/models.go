package orders

import "time"

type Product struct {
	ID        string
	SellerID  string
	Name      string
	Price     float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VariantStock is the per-color quantity counter for a product.
// quantity never goes below zero; it only moves inside a reservation
// transaction or its compensating release.
type VariantStock struct {
	ProductID string
	Color     string
	Quantity  int
}

type Order struct {
	ID              string
	ExternalID      string
	BuyerID         string
	SellerID        string
	Status          Status // see status.go
	Items           []LineItem
	TotalPrice      float64
	DeliveryAddress string
	PhoneNumber     string

	// ReservationToken ties the order to the stock it holds.
	ReservationToken string

	// PaymentRef is the gateway correlation id. Written at most once;
	// a later callback only matches the order through this value.
	PaymentRef string

	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type LineItem struct {
	ProductID string  `json:"product_id"`
	Color     string  `json:"color"`
	Qty       int     `json:"qty"`
	UnitPrice float64 `json:"unit_price"` // snapshotted at order creation
}

// Shortage describes one line a reservation could not satisfy.
type Shortage struct {
	ProductID string `json:"product_id"`
	Color     string `json:"color"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

type PaymentAttempt struct {
	OrderID       string
	CorrelationID string
	Amount        float64
	Provider      string
	Status        string // INITIATED | SETTLED | FAILED
	TransactionID string
	CreatedAt     time.Time
}

package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{external_id} -> order_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Payment status cache: payment_status:{order_id} -> {"status":"...","reason":"..."}
	KeyPaymentStatus = "payment_status:%s"

	// Dedup for event consumers: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{idempotency_key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Order snapshot cache: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// Cache generation, bumped on every invalidation: order_gen:{order_id} -> int
	KeyOrderGen = "order_gen:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLOrderGen    = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)

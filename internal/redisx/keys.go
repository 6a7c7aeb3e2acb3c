package redisx

import (
	"fmt"
	"time"
)

const (
	// Idempotency fast path for payment confirmation: idem:payment:verify:{intent_id} -> order_id.
	// DB payment_intents row stays the source of truth.
	KeyIdemPaymentVerify = "idem:payment:verify:%s"

	// Cache status order: order_status:{order_id} -> {"status":"...","payment_status":"..."}
	KeyOrderStatus = "order_status:%s"

	// Cart summary cache: cart:{owner_id} -> serialized cart
	KeyCartCache = "cart:%s"

	// Dedup event processing: dedup:{service}:{id} (id = gateway event_id or internal event_id)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLCartCache   = 2 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func KeyDedupFor(service, id string) string {
	return fmt.Sprintf(KeyDedup, service, id)
}

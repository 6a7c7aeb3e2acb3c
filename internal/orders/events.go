package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderRefunded      = "OrderRefunded"
)

// Envelope wraps every domain event so consumers can dedup and route
// without decoding the payload.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, traceID, orderID string, payload json.RawMessage) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       payload,
	}
}

type OrderCreatedPayload struct {
	OrderID     string   `json:"order_id"`
	OrderNumber string   `json:"order_number"`
	CustomerID  string   `json:"customer_id"`
	IntentID    string   `json:"intent_id"`
	TotalMinor  int64    `json:"total_minor"`
	Currency    string   `json:"currency"`
	VendorIDs   []string `json:"vendor_ids"`
}

type OrderStatusChangedPayload struct {
	OrderID       string `json:"order_id"`
	ItemID        string `json:"item_id,omitempty"` // set for per-item transitions
	OldStatus     string `json:"old_status"`
	NewStatus     string `json:"new_status"`
	PaymentStatus string `json:"payment_status"`
	Actor         string `json:"actor"`
	Reason        string `json:"reason,omitempty"`
}

type OrderRefundedPayload struct {
	OrderID     string `json:"order_id"`
	ItemID      string `json:"item_id"`
	RefundID    string `json:"refund_id"`
	AmountMinor int64  `json:"amount_minor"`
	FullRefund  bool   `json:"full_refund"`
}

package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentChanged     = "PaymentChanged"
	EventOrderRefunded      = "OrderRefunded"
	EventLowStock           = "LowStock"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id, or variant ref for stock events
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps an already encoded payload in a v1 envelope.
func NewEnvelope(eventType, producer, correlationID string, payload json.RawMessage, at time.Time) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// ---- payloads ----

type OrderCreatedPayload struct {
	OrderID         string     `json:"order_id"`
	CustomerID      string     `json:"customer_id"`
	Status          Status     `json:"status"`
	Items           []LineItem `json:"items"`
	Total           int64      `json:"total"`
	DepositRequired int64      `json:"deposit_required"`
	AmountPaid      int64      `json:"amount_paid"`
}

type OrderStatusChangedPayload struct {
	OrderID   string `json:"order_id"`
	From      Status `json:"from"`
	To        Status `json:"to"`
	Note      string `json:"note,omitempty"`
	Restocked bool   `json:"restocked"`
	ActorID   string `json:"actor_id"`
}

type PaymentChangedPayload struct {
	OrderID        string        `json:"order_id"`
	From           PaymentStatus `json:"from"`
	To             PaymentStatus `json:"to"`
	AmountPaid     int64         `json:"amount_paid"`
	AmountRefunded int64         `json:"amount_refunded"`
	ActorID        string        `json:"actor_id"`
}

type OrderRefundedPayload struct {
	OrderID        string `json:"order_id"`
	RefundID       string `json:"refund_id"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Restocked      bool   `json:"restocked"`
	Reason         string `json:"reason,omitempty"`
}

type LowStockPayload struct {
	VariantRef        string `json:"variant_ref"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	OrderID           string `json:"order_id,omitempty"`
}

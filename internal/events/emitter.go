// Package events publishes domain events after a unit of work has committed.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, env orders.Envelope) error
}

// Emitter wraps payloads in envelopes. Publishing happens after commit, so a
// broker failure is logged and never undoes the committed change.
type Emitter struct {
	Publisher Publisher
	Producer  string
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewEmitter(p Publisher, producer string, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{Publisher: p, Producer: producer, Logger: logger, Now: time.Now}
}

func (e *Emitter) Emit(ctx context.Context, topic, eventType, correlationID string, payload any) {
	if e == nil || e.Publisher == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		e.Logger.Error("encode event payload", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	env := orders.NewEnvelope(eventType, e.Producer, correlationID, b, e.Now())
	if err := e.Publisher.Publish(ctx, topic, orders.PartitionKey(correlationID), env); err != nil {
		e.Logger.Error("publish event",
			zap.String("topic", topic),
			zap.String("event_type", eventType),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
	}
}

// Recorder keeps published envelopes in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

type Recorded struct {
	Topic    string
	Key      []byte
	Envelope orders.Envelope
}

func (r *Recorder) Publish(_ context.Context, topic string, key []byte, env orders.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Topic: topic, Key: key, Envelope: env})
	return nil
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, ev := range r.Events {
		out = append(out, ev.Envelope.EventType)
	}
	return out
}

// EmitLowStock publishes one event per level at or below its threshold.
func (e *Emitter) EmitLowStock(ctx context.Context, orderID string, levels []inventory.Level) {
	for _, lv := range inventory.LowLevels(levels) {
		e.Emit(ctx, orders.TopicLowStock, orders.EventLowStock, lv.VariantRef, orders.LowStockPayload{
			VariantRef:        lv.VariantRef,
			Stock:             lv.Stock,
			LowStockThreshold: lv.LowStockThreshold,
			OrderID:           orderID,
		})
	}
}

package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
)

// Deduper remembers processed event ids.
type Deduper interface {
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// AlertService consumes low-stock events and raises one alert per event.
type AlertService struct {
	Dedup       Deduper
	Logger      *zap.Logger
	ServiceName string
	// Notify is called once per accepted alert; optional.
	Notify func(ctx context.Context, p orders.LowStockPayload) error
}

// HandleLowStock is installed as the consumer handler.
func (s *AlertService) HandleLowStock(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		// poison message: log and let the offset move on
		s.Logger.Error("decode envelope", zap.Error(err), zap.Int64("offset", m.Offset))
		return nil
	}
	if env.EventType != orders.EventLowStock {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	first, err := s.Dedup.FirstSeen(ctx, dkey, redisx.TTLDedup)
	if err != nil {
		return errors.Wrap(err, "dedup")
	}
	if !first {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.LowStockPayload](env.Payload)
	if err != nil {
		s.Logger.Error("decode low stock payload", zap.Error(err), zap.String("event_id", env.EventID))
		return nil
	}

	s.Logger.Warn("low stock",
		zap.String("variant_ref", p.VariantRef),
		zap.Int("stock", p.Stock),
		zap.Int("threshold", p.LowStockThreshold),
		zap.String("order_id", p.OrderID),
		zap.String("event_id", env.EventID))

	if s.Notify != nil {
		return s.Notify(ctx, p)
	}
	return nil
}

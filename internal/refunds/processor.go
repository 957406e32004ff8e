// Package refunds returns money to customers and optionally puts the order's
// items back into inventory.
package refunds

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/events"
	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/payments"
	"github.com/ariefcatur/go-order-lifecycle/internal/store"
)

type Command struct {
	OrderID string
	Amount  int64
	Reason  string
	Restock bool
	Actor   orders.Actor
}

type Processor struct {
	Store   store.Store
	Ledger  *inventory.Ledger
	Emitter *events.Emitter
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

func NewProcessor(s store.Store, em *events.Emitter, m *metrics.Metrics, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		Store:   s,
		Ledger:  inventory.NewLedger(logger),
		Emitter: em,
		Metrics: m,
		Logger:  logger,
		Now:     time.Now,
	}
}

// Refund applies the refund, the optional restock, the refund record and the
// payment journal entry as one unit of work. The order status is left alone.
func (p *Processor) Refund(ctx context.Context, cmd Command) (orders.RefundRecord, error) {
	var (
		rec     orders.RefundRecord
		updated *orders.Order
		levels  []inventory.Level
	)
	if strings.TrimSpace(cmd.Actor.ID) == "" {
		return rec, orders.Invalid("actor", "missing actor identity")
	}
	if cmd.Amount <= 0 {
		return rec, orders.Invalid("amount", "refund amount must be positive")
	}

	err := p.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		levels = nil
		o, err := tx.LockOrder(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if !o.PaymentStatus.Refundable() {
			return orders.RefundNotAllowed(o.PaymentStatus)
		}
		now := p.Now().UTC()
		entry, err := payments.ApplyRefund(o, cmd.Amount, cmd.Reason, cmd.Actor, now)
		if err != nil {
			return err
		}
		if cmd.Restock {
			if o.Restocked {
				return orders.Invalid("restock", "order items were already restocked")
			}
			if levels, err = p.Ledger.Restock(ctx, tx, o.Lines()); err != nil {
				return err
			}
			o.Restocked = true
		}
		if err := o.CheckInvariants(); err != nil {
			return err
		}
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		rec = orders.RefundRecord{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			Amount:    cmd.Amount,
			Reason:    cmd.Reason,
			Restocked: cmd.Restock,
			ActorID:   cmd.Actor.ID,
			ActorName: cmd.Actor.Name,
			At:        now,
		}
		if err := tx.InsertRefund(ctx, rec); err != nil {
			return err
		}
		if err := tx.AppendPayment(ctx, entry); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		p.Metrics.Refund(metrics.Result(orders.Code(err), err), 0)
		p.Logger.Info("refund rejected",
			zap.String("order_id", cmd.OrderID),
			zap.Int64("amount", cmd.Amount),
			zap.Error(err))
		return orders.RefundRecord{}, err
	}
	p.Metrics.Refund("ok", rec.Amount)

	p.Logger.Info("order refunded",
		zap.String("order_id", rec.OrderID),
		zap.String("refund_id", rec.ID),
		zap.Int64("amount", rec.Amount),
		zap.Int64("amount_refunded", updated.AmountRefunded),
		zap.Bool("restocked", rec.Restocked),
		zap.String("actor_id", rec.ActorID))
	p.Emitter.Emit(ctx, orders.TopicOrderRefunded, orders.EventOrderRefunded, rec.OrderID, orders.OrderRefundedPayload{
		OrderID:        rec.OrderID,
		RefundID:       rec.ID,
		Amount:         rec.Amount,
		AmountRefunded: updated.AmountRefunded,
		Restocked:      rec.Restocked,
		Reason:         rec.Reason,
	})
	p.Emitter.EmitLowStock(ctx, rec.OrderID, levels)
	return rec, nil
}

// List returns the refunds issued for an order, oldest first.
func (p *Processor) List(ctx context.Context, orderID string) ([]orders.RefundRecord, error) {
	return p.Store.Refunds(ctx, orderID)
}

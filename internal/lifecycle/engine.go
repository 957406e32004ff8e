// Package lifecycle moves orders through their statuses and keeps the
// payment and inventory side effects in the same unit of work.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/events"
	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/payments"
	"github.com/ariefcatur/go-order-lifecycle/internal/store"
)

type TransitionCommand struct {
	OrderID string
	To      orders.Status
	Note    string
	Actor   orders.Actor
	// Restock is required when To reverses fulfilment (cancelled, fake, returned).
	Restock *bool
}

type VerifyPaymentCommand struct {
	OrderID string
	Note    string
	Actor   orders.Actor
}

type PaymentStatusCommand struct {
	OrderID string
	Status  orders.PaymentStatus
	Note    string
	Actor   orders.Actor
}

// Outcome describes what a transition did beyond the status write.
type Outcome struct {
	Order     *orders.Order `json:"order"`
	NoOp      bool          `json:"no_op"`
	Restocked bool          `json:"restocked"`
	Reminder  string        `json:"reminder,omitempty"`
}

type Engine struct {
	store   store.Store
	policy  orders.Policy
	ledger  *inventory.Ledger
	emitter *events.Emitter
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Engine)

func WithPolicy(p orders.Policy) Option { return func(e *Engine) { e.policy = p } }
func WithEmitter(em *events.Emitter) Option { return func(e *Engine) { e.emitter = em } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithLedger(l *inventory.Ledger) Option { return func(e *Engine) { e.ledger = l } }

func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		policy: orders.TablePolicy{},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ledger == nil {
		e.ledger = inventory.NewLedger(e.logger)
	}
	return e
}

func (e *Engine) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	return e.store.GetOrder(ctx, orderID)
}

// History returns the status audit trail, oldest first.
func (e *Engine) History(ctx context.Context, orderID string) ([]orders.AuditEntry, error) {
	return e.store.History(ctx, orderID)
}

func (e *Engine) Payments(ctx context.Context, orderID string) ([]orders.PaymentEntry, error) {
	return e.store.Payments(ctx, orderID)
}

// NextStatuses lists what an operator may pick next for the order.
func (e *Engine) NextStatuses(ctx context.Context, orderID string) ([]orders.Status, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return e.policy.Next(o.Status), nil
}

func (e *Engine) Transition(ctx context.Context, cmd TransitionCommand) (Outcome, error) {
	var (
		out    Outcome
		from   orders.Status
		levels []inventory.Level
	)
	if !cmd.To.IsValid() {
		return out, orders.Invalid("status", "unknown order status %q", cmd.To)
	}
	if err := requireActor(cmd.Actor); err != nil {
		return out, err
	}

	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		out, levels = Outcome{}, nil
		o, err := tx.LockOrder(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		from = o.Status
		if o.Status == cmd.To {
			out = Outcome{Order: o, NoOp: true}
			return nil
		}
		if !e.policy.Allowed(o.Status, cmd.To) {
			return &orders.InvalidTransitionError{From: o.Status, To: cmd.To, Allowed: e.policy.Next(o.Status)}
		}
		if o.Status == orders.StatusPendingVerification && cmd.To == orders.StatusProcessing && o.PaymentVerified == nil {
			return orders.ErrPaymentNotVerified
		}

		note := strings.TrimSpace(cmd.Note)
		if cmd.To.NeedsRestockDecision() {
			if cmd.Restock == nil {
				return orders.Invalid("restock", "moving to %s requires an explicit restock decision", cmd.To)
			}
			if *cmd.Restock {
				if o.Restocked {
					return orders.Invalid("restock", "order items were already restocked")
				}
				if levels, err = e.ledger.Restock(ctx, tx, o.Lines()); err != nil {
					return err
				}
				o.Restocked = true
				out.Restocked = true
			} else if !o.Restocked {
				out.Reminder = fmt.Sprintf("order moved to %s without restocking; return items to inventory manually if needed", cmd.To)
			}
			note = joinNote(note, fmt.Sprintf("restock=%t", *cmd.Restock))
		}

		prev := o.Status
		o.Status = cmd.To
		o.UpdatedAt = e.now().UTC()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, orders.NewAuditEntry(o.ID, &prev, cmd.To, note, cmd.Actor, o.UpdatedAt)); err != nil {
			return err
		}
		out.Order = o
		return nil
	})
	e.metrics.Transition(string(cmd.To), metrics.Result(orders.Code(err), err))
	if err != nil {
		e.logger.Info("transition rejected",
			zap.String("order_id", cmd.OrderID),
			zap.String("to", string(cmd.To)),
			zap.String("actor_id", cmd.Actor.ID),
			zap.Error(err))
		return Outcome{}, err
	}
	if out.NoOp {
		return out, nil
	}

	e.logger.Info("order status changed",
		zap.String("order_id", out.Order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(out.Order.Status)),
		zap.Bool("restocked", out.Restocked),
		zap.String("actor_id", cmd.Actor.ID))
	e.emitter.Emit(ctx, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, out.Order.ID, orders.OrderStatusChangedPayload{
		OrderID:   out.Order.ID,
		From:      from,
		To:        out.Order.Status,
		Note:      cmd.Note,
		Restocked: out.Restocked,
		ActorID:   cmd.Actor.ID,
	})
	e.emitter.EmitLowStock(ctx, out.Order.ID, levels)
	return out, nil
}

// VerifyPayment confirms a pending deposit claim.
func (e *Engine) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (*orders.Order, error) {
	if err := requireActor(cmd.Actor); err != nil {
		return nil, err
	}
	return e.mutatePayment(ctx, cmd.OrderID, func(o *orders.Order, now time.Time) (orders.PaymentEntry, error) {
		return payments.Verify(o, cmd.Note, cmd.Actor, now)
	})
}

// SetPaymentStatus is the manual reconciliation override (e.g. COD collected).
func (e *Engine) SetPaymentStatus(ctx context.Context, cmd PaymentStatusCommand) (*orders.Order, error) {
	if err := requireActor(cmd.Actor); err != nil {
		return nil, err
	}
	return e.mutatePayment(ctx, cmd.OrderID, func(o *orders.Order, now time.Time) (orders.PaymentEntry, error) {
		return payments.MarkStatus(o, cmd.Status, cmd.Note, cmd.Actor, now)
	})
}

func (e *Engine) mutatePayment(ctx context.Context, orderID string, apply func(*orders.Order, time.Time) (orders.PaymentEntry, error)) (*orders.Order, error) {
	var (
		updated *orders.Order
		entry   orders.PaymentEntry
	)
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		now := e.now().UTC()
		if entry, err = apply(o, now); err != nil {
			return err
		}
		if err := o.CheckInvariants(); err != nil {
			return err
		}
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.AppendPayment(ctx, entry); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, errors.WithMessage(err, "update payment")
	}
	e.logger.Info("payment changed",
		zap.String("order_id", updated.ID),
		zap.String("from", string(entry.From)),
		zap.String("to", string(entry.To)),
		zap.String("kind", string(entry.Kind)),
		zap.String("actor_id", entry.ActorID))
	e.emitter.Emit(ctx, orders.TopicPaymentChanged, orders.EventPaymentChanged, updated.ID, orders.PaymentChangedPayload{
		OrderID:        updated.ID,
		From:           entry.From,
		To:             entry.To,
		AmountPaid:     updated.AmountPaid,
		AmountRefunded: updated.AmountRefunded,
		ActorID:        entry.ActorID,
	})
	return updated, nil
}

func requireActor(a orders.Actor) error {
	if strings.TrimSpace(a.ID) == "" {
		return orders.Invalid("actor", "missing actor identity")
	}
	return nil
}

func joinNote(note, extra string) string {
	if note == "" {
		return extra
	}
	return note + " (" + extra + ")"
}

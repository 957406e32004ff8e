// Package checkout turns a cart into an order: stock, payment seed and the
// creation audit entry are written in one unit of work.
package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/events"
	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/payments"
	"github.com/ariefcatur/go-order-lifecycle/internal/store"
)

type Item struct {
	VariantRef string `json:"variant_ref"`
	Qty        int    `json:"qty"`
}

type Request struct {
	Actor    orders.Actor
	Items    []Item
	Address  orders.Address
	Zone     string
	Proof    *orders.PaymentProof
	// Discount is staff-only; customer requests never carry one.
	Discount int64
}

// Catalog is the read-only variant snapshot used for pricing.
type Catalog interface {
	Variants(ctx context.Context, refs []string) (map[string]orders.Variant, error)
}

type Service struct {
	Store       store.Store
	Catalog     Catalog
	Zones       *Zones
	DepositRate decimal.Decimal
	Ledger      *inventory.Ledger
	Emitter     *events.Emitter
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	Now         func() time.Time
}

func NewService(s store.Store, zones *Zones, rate decimal.Decimal, em *events.Emitter, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if zones == nil {
		zones = DefaultZones()
	}
	return &Service{
		Store:       s,
		Catalog:     s,
		Zones:       zones,
		DepositRate: rate,
		Ledger:      inventory.NewLedger(logger),
		Emitter:     em,
		Metrics:     m,
		Logger:      logger,
		Now:         time.Now,
	}
}

func (s *Service) Checkout(ctx context.Context, req Request) (*orders.Order, error) {
	o, err := s.checkout(ctx, req)
	s.Metrics.Checkout(metrics.Result(orders.Code(err), err))
	if err != nil {
		if orders.Code(err) == orders.CodeInsufficientStock {
			s.Metrics.StockRejected()
		}
		s.Logger.Info("checkout rejected", zap.String("actor_id", req.Actor.ID), zap.Error(err))
		return nil, err
	}
	return o, nil
}

func (s *Service) checkout(ctx context.Context, req Request) (*orders.Order, error) {
	if strings.TrimSpace(req.Actor.ID) == "" {
		return nil, orders.Invalid("actor", "missing actor identity")
	}
	if err := validateAddress(req.Address); err != nil {
		return nil, err
	}
	fee, ok := s.Zones.Fee(req.Zone)
	if !ok {
		return nil, orders.Invalid("delivery_zone", "unknown delivery zone %q", req.Zone)
	}
	if req.Discount < 0 {
		return nil, orders.Invalid("discount", "discount cannot be negative")
	}
	if req.Discount > 0 && req.Actor.Role != orders.RoleAdmin {
		return nil, orders.Invalid("discount", "only staff may apply a discount")
	}

	lines := make([]orders.StockLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, orders.StockLine{VariantRef: it.VariantRef, Qty: it.Qty})
	}
	// merged and validated before anything is priced or touched
	lines, err := inventory.Normalize(lines)
	if err != nil {
		return nil, err
	}
	items, err := s.price(ctx, lines)
	if err != nil {
		return nil, err
	}

	var subtotal int64
	for _, it := range items {
		subtotal += it.Subtotal()
	}
	if req.Discount > subtotal+fee {
		return nil, orders.Invalid("discount", "discount %d exceeds subtotal plus shipping %d", req.Discount, subtotal+fee)
	}

	now := s.Now().UTC()
	o := orders.NewOrder(req.Actor.ID, items, fee, req.Discount, req.Address, req.Zone, now)
	deposit := Deposit(items, s.DepositRate)
	if deposit > o.Total {
		return nil, orders.Invalid("discount", "discount leaves total %d below the deposit %d", o.Total, deposit)
	}
	if deposit > 0 {
		if err := validateProof(req.Proof); err != nil {
			return nil, err
		}
		proof := *req.Proof
		proof.Provider = strings.ToLower(strings.TrimSpace(proof.Provider))
		o.PaymentProof = &proof
		o.Status = orders.StatusPendingVerification
	}
	o.DepositRequired = deposit

	var levels []inventory.Level
	err = s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		lv, err := s.Ledger.ReserveAndDeduct(ctx, tx, lines)
		if err != nil {
			return err
		}
		levels = lv
		entry, err := payments.Seed(o, deposit, req.Actor, now)
		if err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.AppendPayment(ctx, entry); err != nil {
			return errors.Wrap(err, "append payment seed")
		}
		return tx.AppendAudit(ctx, orders.NewAuditEntry(o.ID, nil, o.Status, "order created", req.Actor, now))
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.Int64("total", o.Total),
		zap.Int64("deposit_required", o.DepositRequired),
		zap.String("actor_id", req.Actor.ID))
	s.Emitter.Emit(ctx, orders.TopicOrderCreated, orders.EventOrderCreated, o.ID, orders.OrderCreatedPayload{
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		Status:          o.Status,
		Items:           o.Items,
		Total:           o.Total,
		DepositRequired: o.DepositRequired,
		AmountPaid:      o.AmountPaid,
	})
	s.Emitter.EmitLowStock(ctx, o.ID, levels)
	return o, nil
}

// price resolves every line against the catalog snapshot.
func (s *Service) price(ctx context.Context, lines []orders.StockLine) ([]orders.LineItem, error) {
	refs := make([]string, 0, len(lines))
	for _, ln := range lines {
		refs = append(refs, ln.VariantRef)
	}
	variants, err := s.Catalog.Variants(ctx, refs)
	if err != nil {
		return nil, errors.Wrap(err, "load variants")
	}
	items := make([]orders.LineItem, 0, len(lines))
	for _, ln := range lines {
		v, ok := variants[ln.VariantRef]
		if !ok {
			return nil, orders.Invalid("variant_ref", "unknown variant %s", ln.VariantRef)
		}
		items = append(items, orders.LineItem{
			VariantRef: v.Ref,
			ProductID:  v.ProductID,
			Name:       v.Name,
			Qty:        ln.Qty,
			UnitPrice:  v.Price,
			PreOrder:   v.PreOrder,
		})
	}
	return items, nil
}

func validateAddress(a orders.Address) error {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return orders.Invalid("address.name", "missing recipient name")
	case strings.TrimSpace(a.Phone) == "":
		return orders.Invalid("address.phone", "missing phone")
	case strings.TrimSpace(a.Line) == "":
		return orders.Invalid("address.line", "missing address line")
	}
	return nil
}

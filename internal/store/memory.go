package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store. Units of work are serialized by one mutex and
// rolled back from an undo log; it backs tests and STORE=memory dev runs.
type Memory struct {
	mu       sync.Mutex
	variants map[string]orders.Variant
	orders   map[string]*orders.Order
	audit    map[string][]orders.AuditEntry
	payments map[string][]orders.PaymentEntry
	refunds  map[string][]orders.RefundRecord
}

func NewMemory() *Memory {
	return &Memory{
		variants: map[string]orders.Variant{},
		orders:   map[string]*orders.Order{},
		audit:    map[string][]orders.AuditEntry{},
		payments: map[string][]orders.PaymentEntry{},
		refunds:  map[string][]orders.RefundRecord{},
	}
}

// PutVariant seeds or replaces a catalog entry.
func (m *Memory) PutVariant(v orders.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variants[v.Ref] = v
}

func (m *Memory) StockOf(ref string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.variants[ref].Stock
}

func (m *Memory) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (m *Memory) History(_ context.Context, orderID string) ([]orders.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return nil, orders.ErrOrderNotFound
	}
	return append([]orders.AuditEntry(nil), m.audit[orderID]...), nil
}

func (m *Memory) Payments(_ context.Context, orderID string) ([]orders.PaymentEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return nil, orders.ErrOrderNotFound
	}
	return append([]orders.PaymentEntry(nil), m.payments[orderID]...), nil
}

func (m *Memory) Refunds(_ context.Context, orderID string) ([]orders.RefundRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return nil, orders.ErrOrderNotFound
	}
	return append([]orders.RefundRecord(nil), m.refunds[orderID]...), nil
}

func (m *Memory) Variants(_ context.Context, refs []string) (map[string]orders.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]orders.Variant, len(refs))
	for _, ref := range refs {
		if v, ok := m.variants[ref]; ok {
			out[ref] = v
		}
	}
	return out, nil
}

// memTx runs with m.mu held.
type memTx struct {
	m    *Memory
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) DecrementStock(_ context.Context, lines []orders.StockLine) ([]inventory.Level, error) {
	levels := make([]inventory.Level, 0, len(lines))
	for _, ln := range lines {
		v, ok := t.m.variants[ln.VariantRef]
		if !ok {
			return nil, orders.Invalid("variant_ref", "unknown variant %s", ln.VariantRef)
		}
		if v.Stock < ln.Qty {
			return nil, &orders.InsufficientStockError{VariantRef: ln.VariantRef, Requested: ln.Qty, Available: v.Stock}
		}
		t.setStock(ln.VariantRef, v.Stock-ln.Qty)
		levels = append(levels, inventory.Level{VariantRef: v.Ref, Stock: v.Stock - ln.Qty, LowStockThreshold: v.LowStockThreshold})
	}
	return levels, nil
}

func (t *memTx) IncrementStock(_ context.Context, lines []orders.StockLine) ([]inventory.Level, error) {
	levels := make([]inventory.Level, 0, len(lines))
	for _, ln := range lines {
		v, ok := t.m.variants[ln.VariantRef]
		if !ok {
			return nil, orders.Invalid("variant_ref", "unknown variant %s", ln.VariantRef)
		}
		t.setStock(ln.VariantRef, v.Stock+ln.Qty)
		levels = append(levels, inventory.Level{VariantRef: v.Ref, Stock: v.Stock + ln.Qty, LowStockThreshold: v.LowStockThreshold})
	}
	return levels, nil
}

func (t *memTx) setStock(ref string, stock int) {
	v := t.m.variants[ref]
	prev := v.Stock
	v.Stock = stock
	t.m.variants[ref] = v
	t.undo = append(t.undo, func() {
		v := t.m.variants[ref]
		v.Stock = prev
		t.m.variants[ref] = v
	})
}

func (t *memTx) InsertOrder(_ context.Context, o *orders.Order) error {
	if _, ok := t.m.orders[o.ID]; ok {
		return errors.Errorf("order %s already exists", o.ID)
	}
	o.Version = 1
	t.m.orders[o.ID] = o.Clone()
	id := o.ID
	t.undo = append(t.undo, func() { delete(t.m.orders, id) })
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id string) (*orders.Order, error) {
	o, ok := t.m.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *orders.Order) error {
	prev, ok := t.m.orders[o.ID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	if prev.Version != o.Version {
		return errors.Errorf("order %s version conflict: have %d, stored %d", o.ID, o.Version, prev.Version)
	}
	o.Version++
	t.m.orders[o.ID] = o.Clone()
	t.undo = append(t.undo, func() { t.m.orders[prev.ID] = prev })
	return nil
}

func (t *memTx) AppendAudit(_ context.Context, e orders.AuditEntry) error {
	id := e.OrderID
	n := len(t.m.audit[id])
	t.m.audit[id] = append(t.m.audit[id], e)
	t.undo = append(t.undo, func() { t.m.audit[id] = t.m.audit[id][:n] })
	return nil
}

func (t *memTx) AppendPayment(_ context.Context, e orders.PaymentEntry) error {
	id := e.OrderID
	n := len(t.m.payments[id])
	t.m.payments[id] = append(t.m.payments[id], e)
	t.undo = append(t.undo, func() { t.m.payments[id] = t.m.payments[id][:n] })
	return nil
}

func (t *memTx) InsertRefund(_ context.Context, r orders.RefundRecord) error {
	id := r.OrderID
	n := len(t.m.refunds[id])
	t.m.refunds[id] = append(t.m.refunds[id], r)
	t.undo = append(t.undo, func() { t.m.refunds[id] = t.m.refunds[id][:n] })
	return nil
}

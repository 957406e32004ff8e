package store

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

func testOrder() *orders.Order {
	return orders.NewOrder("c1", []orders.LineItem{{VariantRef: "tee", Qty: 1, UnitPrice: 100}}, 0, 0, orders.Address{}, "z", time.Now())
}

func TestMemoryRollsBackEveryWrite(t *testing.T) {
	m := NewMemory()
	m.PutVariant(orders.Variant{Ref: "tee", Stock: 3})
	o := testOrder()

	boom := errors.New("boom")
	err := m.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.DecrementStock(ctx, o.Lines())
		require.NoError(t, err)
		require.NoError(t, tx.InsertOrder(ctx, o))
		require.NoError(t, tx.AppendAudit(ctx, orders.NewAuditEntry(o.ID, nil, o.Status, "", orders.Actor{ID: "a"}, time.Now())))
		require.NoError(t, tx.AppendPayment(ctx, orders.PaymentEntry{OrderID: o.ID}))
		require.NoError(t, tx.InsertRefund(ctx, orders.RefundRecord{OrderID: o.ID}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 3, m.StockOf("tee"))
	assert.Equal(t, 0, m.OrderCount())
	_, err = m.GetOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	assert.Empty(t, m.audit[o.ID])
	assert.Empty(t, m.payments[o.ID])
	assert.Empty(t, m.refunds[o.ID])
}

func TestMemoryUpdateBumpsVersion(t *testing.T) {
	m := NewMemory()
	o := testOrder()
	ctx := context.Background()
	require.NoError(t, m.InTx(ctx, func(ctx context.Context, tx Tx) error { return tx.InsertOrder(ctx, o) }))

	require.NoError(t, m.InTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		locked.Status = orders.StatusProcessing
		return tx.UpdateOrder(ctx, locked)
	}))

	got, err := m.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, orders.StatusProcessing, got.Status)

	// a stale copy is refused
	stale := got.Clone()
	stale.Version = 1
	err = m.InTx(ctx, func(ctx context.Context, tx Tx) error { return tx.UpdateOrder(ctx, stale) })
	assert.Error(t, err)
}

func TestMemoryReadersReturnCopies(t *testing.T) {
	m := NewMemory()
	o := testOrder()
	ctx := context.Background()
	require.NoError(t, m.InTx(ctx, func(ctx context.Context, tx Tx) error { return tx.InsertOrder(ctx, o) }))

	got, err := m.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	got.Items[0].Qty = 50

	again, err := m.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Qty)
}

func TestMemoryUnknownVariant(t *testing.T) {
	m := NewMemory()
	err := m.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.DecrementStock(ctx, []orders.StockLine{{VariantRef: "ghost", Qty: 1}})
		return err
	})
	assert.Equal(t, orders.CodeValidation, orders.Code(err))
}

func TestMemoryRefusesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := NewMemory().InTx(ctx, func(context.Context, Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-lifecycle/internal/checkout"
	"github.com/ariefcatur/go-order-lifecycle/internal/events"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/payments"
	"github.com/ariefcatur/go-order-lifecycle/internal/store"
)

var ops = orders.Actor{ID: "ops-1", Name: "Nadia", Role: "admin"}

func setup(t *testing.T, paid bool) (*Processor, *store.Memory, *events.Recorder, *orders.Order) {
	t.Helper()
	mem := store.NewMemory()
	mem.PutVariant(orders.Variant{Ref: "tee-m", Price: 1000, Stock: 10, LowStockThreshold: 1})
	mem.PutVariant(orders.Variant{Ref: "mug", Price: 500, Stock: 4})
	rec := &events.Recorder{}
	em := events.NewEmitter(rec, "test", nil)

	co := checkout.NewService(mem, nil, checkout.DefaultDepositRate, em, nil, nil)
	o, err := co.Checkout(context.Background(), checkout.Request{
		Actor:   orders.Actor{ID: "cust-1"},
		Items:   []checkout.Item{{VariantRef: "tee-m", Qty: 2}, {VariantRef: "mug", Qty: 1}},
		Address: orders.Address{Name: "R", Phone: "017", Line: "Road 1"},
		Zone:    "inside_dhaka",
	})
	require.NoError(t, err)

	if paid {
		require.NoError(t, mem.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			locked, err := tx.LockOrder(ctx, o.ID)
			if err != nil {
				return err
			}
			e, err := payments.MarkPaid(locked, "cod", ops, time.Now())
			if err != nil {
				return err
			}
			if err := tx.UpdateOrder(ctx, locked); err != nil {
				return err
			}
			return tx.AppendPayment(ctx, e)
		}))
		o, err = mem.GetOrder(context.Background(), o.ID)
		require.NoError(t, err)
	}
	return NewProcessor(mem, em, metrics.Nop(), nil), mem, rec, o
}

func TestPartialThenFullRefund(t *testing.T) {
	p, mem, rec, o := setup(t, true)
	ctx := context.Background()
	require.Equal(t, int64(8500), o.AmountPaid)

	r1, err := p.Refund(ctx, Command{OrderID: o.ID, Amount: 500, Reason: "mug chipped", Actor: ops})
	require.NoError(t, err)
	assert.Equal(t, int64(500), r1.Amount)
	assert.False(t, r1.Restocked)

	got, err := mem.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPartialRefund, got.PaymentStatus)
	assert.Equal(t, orders.StatusPending, got.Status, "refunds leave the order status alone")

	_, err = p.Refund(ctx, Command{OrderID: o.ID, Amount: 8000, Reason: "rest", Actor: ops})
	require.NoError(t, err)

	got, err = mem.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, got.AmountPaid, got.AmountRefunded)

	recs, err := p.List(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	hist, err := mem.History(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 1, "refunds do not add status audit entries")

	assert.Contains(t, rec.Types(), orders.EventOrderRefunded)
}

func TestRefundCeiling(t *testing.T) {
	p, mem, _, o := setup(t, true)
	ctx := context.Background()

	_, err := p.Refund(ctx, Command{OrderID: o.ID, Amount: 8501, Actor: ops})
	var ee *orders.ExceedsRefundableError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, int64(8500), ee.Refundable)

	got, err := mem.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AmountRefunded)

	recs, err := p.List(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRefundRestocksExactlyOnce(t *testing.T) {
	p, mem, _, o := setup(t, true)
	ctx := context.Background()
	require.Equal(t, 8, mem.StockOf("tee-m"))
	require.Equal(t, 3, mem.StockOf("mug"))

	_, err := p.Refund(ctx, Command{OrderID: o.ID, Amount: 1000, Restock: true, Actor: ops})
	require.NoError(t, err)
	assert.Equal(t, 10, mem.StockOf("tee-m"))
	assert.Equal(t, 4, mem.StockOf("mug"))

	_, err = p.Refund(ctx, Command{OrderID: o.ID, Amount: 1000, Restock: true, Actor: ops})
	assert.Equal(t, orders.CodeValidation, orders.Code(err))
	assert.Equal(t, 10, mem.StockOf("tee-m"))

	got, err := mem.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.AmountRefunded, "rejected refund rolled back")
}

func TestRefundWithoutRestockLeavesInventory(t *testing.T) {
	p, mem, _, o := setup(t, true)
	_, err := p.Refund(context.Background(), Command{OrderID: o.ID, Amount: o.AmountPaid, Actor: ops})
	require.NoError(t, err)
	assert.Equal(t, 8, mem.StockOf("tee-m"))
	assert.Equal(t, 3, mem.StockOf("mug"))
}

func TestRefundNeedsRefundablePayment(t *testing.T) {
	p, _, _, o := setup(t, false)
	_, err := p.Refund(context.Background(), Command{OrderID: o.ID, Amount: 100, Actor: ops})
	assert.Equal(t, orders.CodeRefundNotAllowed, orders.Code(err))
}

func TestRefundInputValidation(t *testing.T) {
	p, _, _, o := setup(t, true)
	ctx := context.Background()

	_, err := p.Refund(ctx, Command{OrderID: o.ID, Amount: 0, Actor: ops})
	assert.Equal(t, orders.CodeValidation, orders.Code(err))

	_, err = p.Refund(ctx, Command{OrderID: o.ID, Amount: 10})
	assert.Equal(t, orders.CodeValidation, orders.Code(err))

	_, err = p.Refund(ctx, Command{OrderID: "nope", Amount: 10, Actor: ops})
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-lifecycle/internal/checkout"
	"github.com/ariefcatur/go-order-lifecycle/internal/lifecycle"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/postgres"
	"github.com/ariefcatur/go-order-lifecycle/internal/refunds"
	"github.com/ariefcatur/go-order-lifecycle/internal/store"
)

// Runs against a real database only when POSTGRES_TEST_DSN is set.
func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, postgres.Migrate(ctx, db))
	require.NoError(t, postgres.Migrate(ctx, db), "migrations must be re-runnable")
	return postgres.NewStore(db, nil)
}

func seed(t *testing.T, s *postgres.Store, stock int) string {
	t.Helper()
	ref := "tee-" + uuid.NewString()[:8]
	require.NoError(t, s.UpsertVariants(context.Background(), []orders.Variant{
		{Ref: ref, ProductID: "tee", Name: "Tee", Price: 1000, Stock: stock, LowStockThreshold: 1},
	}))
	return ref
}

var buyer = orders.Actor{ID: "cust-1", Name: "Rahim"}

func order(ref string, qty int) checkout.Request {
	return checkout.Request{
		Actor:   buyer,
		Items:   []checkout.Item{{VariantRef: ref, Qty: qty}},
		Address: orders.Address{Name: "Rahim", Phone: "01700000000", Line: "Road 2"},
		Zone:    "inside_dhaka",
	}
}

func stockOf(t *testing.T, s *postgres.Store, ref string) int {
	t.Helper()
	vs, err := s.Variants(context.Background(), []string{ref})
	require.NoError(t, err)
	return vs[ref].Stock
}

func TestCheckoutNeverOversells(t *testing.T) {
	s := openStore(t)
	ref := seed(t, s, 10)
	svc := checkout.NewService(s, nil, checkout.DefaultDepositRate, nil, nil, nil)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Checkout(context.Background(), order(ref, 3)); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else {
				assert.Equal(t, orders.CodeInsufficientStock, orders.Code(err))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, stockOf(t, s, ref))
}

func TestFailedUnitOfWorkRollsBack(t *testing.T) {
	s := openStore(t)
	ref := seed(t, s, 5)

	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.DecrementStock(ctx, []orders.StockLine{{VariantRef: ref, Qty: 2}}); err != nil {
			return err
		}
		return orders.Invalid("test", "abort")
	})
	require.Error(t, err)
	assert.Equal(t, 5, stockOf(t, s, ref))
}

func TestLifecycleAndRefundOnPostgres(t *testing.T) {
	s := openStore(t)
	ref := seed(t, s, 5)
	ctx := context.Background()
	admin := orders.Actor{ID: "ops-1", Name: "Nadia", Role: "admin"}

	o, err := checkout.NewService(s, nil, checkout.DefaultDepositRate, nil, nil, nil).Checkout(ctx, order(ref, 2))
	require.NoError(t, err)

	eng := lifecycle.NewEngine(s)
	out, err := eng.Transition(ctx, lifecycle.TransitionCommand{OrderID: o.ID, To: orders.StatusProcessing, Actor: admin})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, out.Order.Status)

	_, err = eng.Transition(ctx, lifecycle.TransitionCommand{OrderID: o.ID, To: orders.StatusPending, Actor: admin})
	assert.Equal(t, orders.CodeInvalidTransition, orders.Code(err))

	_, err = eng.SetPaymentStatus(ctx, lifecycle.PaymentStatusCommand{OrderID: o.ID, Status: orders.PaymentPaid, Actor: admin})
	require.NoError(t, err)

	proc := refunds.NewProcessor(s, nil, nil, nil)
	_, err = proc.Refund(ctx, refunds.Command{OrderID: o.ID, Amount: 3000, Reason: "damaged", Restock: true, Actor: admin})
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, s, ref))

	_, err = proc.Refund(ctx, refunds.Command{OrderID: o.ID, Amount: 6000, Actor: admin})
	assert.Equal(t, orders.CodeExceedsRefundable, orders.Code(err))

	got, err := eng.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPartialRefund, got.PaymentStatus)
	assert.EqualValues(t, 3000, got.AmountRefunded)

	hist, err := eng.History(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
	pays, err := eng.Payments(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, pays, 3)
	recs, err := proc.List(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = eng.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

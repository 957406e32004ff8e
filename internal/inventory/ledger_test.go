package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/store"
)

func seeded(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	m.PutVariant(orders.Variant{Ref: "tee-m", ProductID: "tee", Price: 1000, Stock: 5, LowStockThreshold: 2})
	m.PutVariant(orders.Variant{Ref: "mug", ProductID: "mug", Price: 500, Stock: 1})
	return m
}

func TestNormalizeMergesAndSorts(t *testing.T) {
	got, err := inventory.Normalize([]orders.StockLine{
		{VariantRef: "b", Qty: 1},
		{VariantRef: "a", Qty: 2},
		{VariantRef: " b ", Qty: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []orders.StockLine{{VariantRef: "a", Qty: 2}, {VariantRef: "b", Qty: 4}}, got)
}

func TestNormalizeRejectsBadLines(t *testing.T) {
	for name, lines := range map[string][]orders.StockLine{
		"empty":    nil,
		"zero qty": {{VariantRef: "a", Qty: 0}},
		"no ref":   {{VariantRef: " ", Qty: 1}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := inventory.Normalize(lines)
			assert.Equal(t, orders.CodeValidation, orders.Code(err))
		})
	}
}

func TestReserveAndDeductAllOrNothing(t *testing.T) {
	m := seeded(t)
	l := inventory.NewLedger(nil)

	err := m.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := l.ReserveAndDeduct(ctx, tx, []orders.StockLine{
			{VariantRef: "tee-m", Qty: 2},
			{VariantRef: "mug", Qty: 2},
		})
		return err
	})

	var se *orders.InsufficientStockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "mug", se.VariantRef)
	assert.Equal(t, 2, se.Requested)
	assert.Equal(t, 1, se.Available)
	assert.Equal(t, 5, m.StockOf("tee-m"), "first line must be rolled back")
	assert.Equal(t, 1, m.StockOf("mug"))
}

func TestReserveReportsLowLevels(t *testing.T) {
	m := seeded(t)
	l := inventory.NewLedger(nil)

	var levels []inventory.Level
	err := m.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		levels, err = l.ReserveAndDeduct(ctx, tx, []orders.StockLine{{VariantRef: "tee-m", Qty: 3}})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, m.StockOf("tee-m"))
	assert.Equal(t, []inventory.Level{{VariantRef: "tee-m", Stock: 2, LowStockThreshold: 2}}, inventory.LowLevels(levels))
}

func TestRestockAddsBack(t *testing.T) {
	m := seeded(t)
	l := inventory.NewLedger(nil)

	err := m.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := l.Restock(ctx, tx, []orders.StockLine{{VariantRef: "mug", Qty: 4}})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 5, m.StockOf("mug"))
}

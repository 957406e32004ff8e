// Package inventory owns per-variant stock counters.
package inventory

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

// Level is the stock of one variant after a movement.
type Level struct {
	VariantRef        string `json:"variant_ref"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
}

// Low is an alerting signal only; the ledger never enforces it.
func (l Level) Low() bool { return l.Stock <= l.LowStockThreshold }

// Stock is the storage port behind the ledger. Implementations run inside the
// caller's unit of work.
type Stock interface {
	// DecrementStock applies a conditional decrement per line (never below zero).
	// On the first short line it returns *orders.InsufficientStockError; the caller
	// rolls the unit of work back so no line stays applied.
	DecrementStock(ctx context.Context, lines []orders.StockLine) ([]Level, error)
	IncrementStock(ctx context.Context, lines []orders.StockLine) ([]Level, error)
}

type Ledger struct {
	Logger *zap.Logger
}

func NewLedger(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{Logger: logger}
}

// ReserveAndDeduct takes every line out of stock or none of them.
func (l *Ledger) ReserveAndDeduct(ctx context.Context, stock Stock, lines []orders.StockLine) ([]Level, error) {
	norm, err := Normalize(lines)
	if err != nil {
		return nil, err
	}
	levels, err := stock.DecrementStock(ctx, norm)
	if err != nil {
		var se *orders.InsufficientStockError
		if errors.As(err, &se) {
			l.Logger.Info("stock rejected",
				zap.String("variant_ref", se.VariantRef),
				zap.Int("requested", se.Requested),
				zap.Int("available", se.Available))
			return nil, err
		}
		return nil, errors.Wrap(err, "decrement stock")
	}
	return levels, nil
}

// Restock puts quantities back on the shelf.
func (l *Ledger) Restock(ctx context.Context, stock Stock, lines []orders.StockLine) ([]Level, error) {
	norm, err := Normalize(lines)
	if err != nil {
		return nil, err
	}
	levels, err := stock.IncrementStock(ctx, norm)
	if err != nil {
		return nil, errors.Wrap(err, "increment stock")
	}
	l.Logger.Debug("restocked", zap.Int("lines", len(norm)))
	return levels, nil
}

// Normalize merges duplicate variants and sorts by ref so concurrent units of
// work always lock rows in the same order.
func Normalize(lines []orders.StockLine) ([]orders.StockLine, error) {
	if len(lines) == 0 {
		return nil, orders.Invalid("items", "no stock lines")
	}
	byRef := make(map[string]int, len(lines))
	for _, ln := range lines {
		ref := strings.TrimSpace(ln.VariantRef)
		if ref == "" {
			return nil, orders.Invalid("variant_ref", "missing variant reference")
		}
		if ln.Qty <= 0 {
			return nil, orders.Invalid("qty", "invalid qty %d for %s", ln.Qty, ref)
		}
		byRef[ref] += ln.Qty
	}
	out := make([]orders.StockLine, 0, len(byRef))
	for ref, qty := range byRef {
		out = append(out, orders.StockLine{VariantRef: ref, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantRef < out[j].VariantRef })
	return out, nil
}

// LowLevels filters the levels that crossed their alert threshold.
func LowLevels(levels []Level) []Level {
	var out []Level
	for _, lv := range levels {
		if lv.Low() {
			out = append(out, lv)
		}
	}
	return out
}

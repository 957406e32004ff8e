// Package store defines the unit of work the order core runs in.
package store

import (
	"context"

	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

// Tx is everything a single checkout, transition or refund may touch. All
// writes made through one Tx commit together or not at all.
type Tx interface {
	inventory.Stock

	InsertOrder(ctx context.Context, o *orders.Order) error
	// LockOrder loads the order and holds it exclusively until the unit of work ends.
	LockOrder(ctx context.Context, id string) (*orders.Order, error)
	// UpdateOrder persists o and bumps its Version.
	UpdateOrder(ctx context.Context, o *orders.Order) error

	AppendAudit(ctx context.Context, e orders.AuditEntry) error
	AppendPayment(ctx context.Context, e orders.PaymentEntry) error
	InsertRefund(ctx context.Context, r orders.RefundRecord) error
}

type Reader interface {
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	History(ctx context.Context, orderID string) ([]orders.AuditEntry, error)
	Payments(ctx context.Context, orderID string) ([]orders.PaymentEntry, error)
	Refunds(ctx context.Context, orderID string) ([]orders.RefundRecord, error)
	// Variants returns the catalog snapshot for the given refs; unknown refs are absent.
	Variants(ctx context.Context, refs []string) (map[string]orders.Variant, error)
}

type Store interface {
	Reader
	// InTx runs fn as one unit of work. A non-nil error from fn rolls back every
	// write fn made.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

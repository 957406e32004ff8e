package orders

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentUnpaid              PaymentStatus = "unpaid"
	PaymentPendingVerification PaymentStatus = "pending_verification"
	PaymentPartialPaid         PaymentStatus = "partial_paid"
	PaymentPaid                PaymentStatus = "paid"
	PaymentPartialRefund       PaymentStatus = "partial_refund"
	PaymentRefunded            PaymentStatus = "refunded"
)

func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentUnpaid, PaymentPendingVerification, PaymentPartialPaid, PaymentPaid, PaymentPartialRefund, PaymentRefunded:
		return true
	}
	return false
}

// Refundable reports payment states that hold collected money.
func (p PaymentStatus) Refundable() bool {
	switch p {
	case PaymentPaid, PaymentPartialPaid, PaymentPartialRefund:
		return true
	}
	return false
}

// RoleAdmin marks staff actors allowed to run back-office operations.
const RoleAdmin = "admin"

// Actor is the already-authenticated identity performing an operation.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type Address struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Line    string `json:"line"`
	City    string `json:"city,omitempty"`
	Area    string `json:"area,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// PaymentProof is a manual mobile-money deposit claim awaiting verification.
type PaymentProof struct {
	Provider      string `json:"provider"`
	TransactionID string `json:"transaction_id"`
	SenderPhone   string `json:"sender_phone"`
}

type LineItem struct {
	VariantRef string `json:"variant_ref"`
	ProductID  string `json:"product_id"`
	Name       string `json:"name,omitempty"`
	Qty        int    `json:"qty"`
	UnitPrice  int64  `json:"unit_price"`
	PreOrder   bool   `json:"pre_order"`
}

func (l LineItem) Subtotal() int64 { return l.UnitPrice * int64(l.Qty) }

type Order struct {
	ID              string        `json:"id"`
	CustomerID      string        `json:"customer_id"`
	Items           []LineItem    `json:"items"`
	Subtotal        int64         `json:"subtotal"`
	ShippingFee     int64         `json:"shipping_fee"`
	Discount        int64         `json:"discount"`
	Total           int64         `json:"total"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	AmountPaid      int64         `json:"amount_paid"`
	AmountRefunded  int64         `json:"amount_refunded"`
	DepositRequired int64         `json:"deposit_required"`
	PaymentProof    *PaymentProof `json:"payment_proof,omitempty"`
	PaymentVerified *time.Time    `json:"payment_verified_at,omitempty"`
	Address         Address       `json:"address"`
	DeliveryZone    string        `json:"delivery_zone"`
	PreOrder        bool          `json:"pre_order"`
	Restocked       bool          `json:"restocked"`
	Version         int           `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewOrder builds an order in its creation state; totals are computed here and
// stay fixed afterwards.
func NewOrder(customerID string, items []LineItem, shippingFee, discount int64, addr Address, zone string, now time.Time) *Order {
	o := &Order{
		ID:           uuid.NewString(),
		CustomerID:   customerID,
		Items:        items,
		ShippingFee:  shippingFee,
		Discount:     discount,
		Status:       StatusPending,
		Address:      addr,
		DeliveryZone: zone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, it := range items {
		o.Subtotal += it.Subtotal()
		if it.PreOrder {
			o.PreOrder = true
		}
	}
	o.Total = expectedTotal(o.Subtotal, o.ShippingFee, o.Discount)
	return o
}

func expectedTotal(subtotal, shipping, discount int64) int64 {
	if t := subtotal + shipping - discount; t > 0 {
		return t
	}
	return 0
}

// Refundable is the remaining amount that can still be returned to the customer.
func (o *Order) Refundable() int64 { return o.AmountPaid - o.AmountRefunded }

func (o *Order) Lines() []StockLine {
	out := make([]StockLine, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, StockLine{VariantRef: it.VariantRef, Qty: it.Qty})
	}
	return out
}

// CheckInvariants verifies the payment figures are consistent.
func (o *Order) CheckInvariants() error {
	switch {
	case o.AmountPaid < 0 || o.AmountRefunded < 0:
		return Invalid("amount", "negative payment amounts")
	case o.AmountRefunded > o.AmountPaid:
		return Invalid("amount_refunded", "refunded %d exceeds paid %d", o.AmountRefunded, o.AmountPaid)
	case o.Total != expectedTotal(o.Subtotal, o.ShippingFee, o.Discount):
		return Invalid("total", "total %d does not match subtotal+shipping-discount", o.Total)
	}
	return nil
}

func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	if o.PaymentProof != nil {
		p := *o.PaymentProof
		c.PaymentProof = &p
	}
	if o.PaymentVerified != nil {
		t := *o.PaymentVerified
		c.PaymentVerified = &t
	}
	return &c
}

// StockLine is a (variant, quantity) pair moved in or out of inventory.
type StockLine struct {
	VariantRef string `json:"variant_ref"`
	Qty        int    `json:"qty"`
}

// AuditEntry records one accepted status change. From is nil for the creation entry.
type AuditEntry struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	From      *Status   `json:"from,omitempty"`
	To        Status    `json:"to"`
	Note      string    `json:"note,omitempty"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	At        time.Time `json:"at"`
}

func NewAuditEntry(orderID string, from *Status, to Status, note string, actor Actor, at time.Time) AuditEntry {
	return AuditEntry{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		From:      from,
		To:        to,
		Note:      note,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		At:        at,
	}
}

type PaymentEntryKind string

const (
	PaymentEntrySeed     PaymentEntryKind = "seed"
	PaymentEntryVerify   PaymentEntryKind = "verify"
	PaymentEntryOverride PaymentEntryKind = "override"
	PaymentEntryRefund   PaymentEntryKind = "refund"
)

// PaymentEntry is one line of the per-order payment journal.
type PaymentEntry struct {
	ID             string           `json:"id"`
	OrderID        string           `json:"order_id"`
	Kind           PaymentEntryKind `json:"kind"`
	From           PaymentStatus    `json:"from,omitempty"`
	To             PaymentStatus    `json:"to"`
	Amount         int64            `json:"amount"`
	AmountPaid     int64            `json:"amount_paid"`
	AmountRefunded int64            `json:"amount_refunded"`
	Note           string           `json:"note,omitempty"`
	ActorID        string           `json:"actor_id"`
	ActorName      string           `json:"actor_name"`
	At             time.Time        `json:"at"`
}

type RefundRecord struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Restocked bool      `json:"restocked"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	At        time.Time `json:"at"`
}

// Variant is the read-only catalog snapshot checkout prices against.
type Variant struct {
	Ref               string `json:"ref"`
	ProductID         string `json:"product_id"`
	Name              string `json:"name"`
	Price             int64  `json:"price"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	PreOrder          bool   `json:"pre_order"`
}

// Package payments tracks amount due, paid and refunded per order.
//
// The ledger mutates the order aggregate in place and returns the journal entry
// describing the change; persisting both is the caller's unit of work.
package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

// Classify derives the payment status from the order figures.
func Classify(total, paid, refunded int64) orders.PaymentStatus {
	switch {
	case refunded > 0 && refunded >= paid:
		return orders.PaymentRefunded
	case refunded > 0:
		return orders.PaymentPartialRefund
	case paid <= 0:
		return orders.PaymentUnpaid
	case paid >= total:
		return orders.PaymentPaid
	default:
		return orders.PaymentPartialPaid
	}
}

// Seed records the initial payment state: the deposit for pre-order lines, or
// nothing for a cash-on-delivery order. A deposit backed by an unverified proof
// stays pending_verification until Verify.
func Seed(o *orders.Order, initialPaid int64, actor orders.Actor, now time.Time) (orders.PaymentEntry, error) {
	if initialPaid < 0 || initialPaid > o.Total {
		return orders.PaymentEntry{}, orders.Invalid("amount_paid", "initial payment %d outside 0..%d", initialPaid, o.Total)
	}
	o.AmountPaid = initialPaid
	o.AmountRefunded = 0
	if initialPaid > 0 && o.PaymentProof != nil && o.PaymentVerified == nil {
		o.PaymentStatus = orders.PaymentPendingVerification
	} else {
		o.PaymentStatus = Classify(o.Total, o.AmountPaid, 0)
	}
	return entry(o, orders.PaymentEntrySeed, "", initialPaid, "", actor, now), nil
}

// MarkPaid confirms the full amount was collected (e.g. cash on delivery).
func MarkPaid(o *orders.Order, note string, actor orders.Actor, now time.Time) (orders.PaymentEntry, error) {
	return MarkStatus(o, orders.PaymentPaid, note, actor, now)
}

// MarkStatus is the manual reconciliation override. Only paid moves amountPaid
// (up to the total); any other target must already agree with the recorded
// figures. Refund states go through ApplyRefund and a pending deposit claim
// through Verify.
func MarkStatus(o *orders.Order, status orders.PaymentStatus, note string, actor orders.Actor, now time.Time) (orders.PaymentEntry, error) {
	if !status.IsValid() {
		return orders.PaymentEntry{}, orders.Invalid("payment_status", "unknown payment status %q", status)
	}
	switch status {
	case orders.PaymentRefunded, orders.PaymentPartialRefund:
		return orders.PaymentEntry{}, orders.Invalid("payment_status", "%s is set by issuing a refund", status)
	}
	if o.AmountRefunded > 0 {
		return orders.PaymentEntry{}, orders.Invalid("payment_status", "order already has refunds; use the refund flow")
	}
	if o.PaymentStatus == orders.PaymentPendingVerification {
		return orders.PaymentEntry{}, orders.Invalid("payment_status", "deposit claim is awaiting verification; verify it first")
	}
	from := o.PaymentStatus
	var delta int64
	if status == orders.PaymentPaid {
		if o.AmountPaid < o.Total {
			delta = o.Total - o.AmountPaid
			o.AmountPaid = o.Total
		}
	} else if want := Classify(o.Total, o.AmountPaid, o.AmountRefunded); status != want {
		return orders.PaymentEntry{}, orders.Invalid("payment_status",
			"%s contradicts amount paid %d of %d (expected %s)", status, o.AmountPaid, o.Total, want)
	}
	o.PaymentStatus = status
	return entry(o, orders.PaymentEntryOverride, from, delta, note, actor, now), nil
}

// Verify confirms a pending mobile-money deposit claim. It is the only path that
// unlocks processing for a pending_verification order.
func Verify(o *orders.Order, note string, actor orders.Actor, now time.Time) (orders.PaymentEntry, error) {
	if o.PaymentStatus != orders.PaymentPendingVerification {
		return orders.PaymentEntry{}, orders.Invalid("payment_status", "payment is %s, nothing to verify", o.PaymentStatus)
	}
	from := o.PaymentStatus
	t := now
	o.PaymentVerified = &t
	o.PaymentStatus = Classify(o.Total, o.AmountPaid, o.AmountRefunded)
	return entry(o, orders.PaymentEntryVerify, from, 0, note, actor, now), nil
}

// ApplyRefund moves amount from paid to refunded, bounded by what is left.
func ApplyRefund(o *orders.Order, amount int64, reason string, actor orders.Actor, now time.Time) (orders.PaymentEntry, error) {
	if amount <= 0 {
		return orders.PaymentEntry{}, orders.Invalid("amount", "refund amount must be positive")
	}
	if amount > o.Refundable() {
		return orders.PaymentEntry{}, &orders.ExceedsRefundableError{Requested: amount, Refundable: o.Refundable()}
	}
	from := o.PaymentStatus
	o.AmountRefunded += amount
	if o.AmountRefunded >= o.AmountPaid {
		o.PaymentStatus = orders.PaymentRefunded
	} else {
		o.PaymentStatus = orders.PaymentPartialRefund
	}
	return entry(o, orders.PaymentEntryRefund, from, amount, reason, actor, now), nil
}

func entry(o *orders.Order, kind orders.PaymentEntryKind, from orders.PaymentStatus, amount int64, note string, actor orders.Actor, now time.Time) orders.PaymentEntry {
	return orders.PaymentEntry{
		ID:             uuid.NewString(),
		OrderID:        o.ID,
		Kind:           kind,
		From:           from,
		To:             o.PaymentStatus,
		Amount:         amount,
		AmountPaid:     o.AmountPaid,
		AmountRefunded: o.AmountRefunded,
		Note:           note,
		ActorID:        actor.ID,
		ActorName:      actor.Name,
		At:             now,
	}
}

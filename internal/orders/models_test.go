package orders

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderTotals(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	o := NewOrder("c1", []LineItem{
		{VariantRef: "tee-m", Qty: 2, UnitPrice: 1000},
		{VariantRef: "hoodie-l", Qty: 1, UnitPrice: 2000, PreOrder: true},
	}, 120, 20, Address{Name: "A"}, "inside_dhaka", now)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(4000), o.Subtotal)
	assert.Equal(t, int64(4100), o.Total)
	assert.True(t, o.PreOrder)
	assert.NotEmpty(t, o.ID)
	require.NoError(t, o.CheckInvariants())
}

func TestTotalNeverNegative(t *testing.T) {
	o := NewOrder("c1", []LineItem{{VariantRef: "x", Qty: 1, UnitPrice: 100}}, 0, 500, Address{}, "z", time.Now())
	assert.Equal(t, int64(0), o.Total)
	assert.NoError(t, o.CheckInvariants())
}

func TestCheckInvariants(t *testing.T) {
	o := NewOrder("c1", []LineItem{{VariantRef: "x", Qty: 1, UnitPrice: 100}}, 0, 0, Address{}, "z", time.Now())
	o.AmountPaid = 50
	o.AmountRefunded = 60
	assert.Error(t, o.CheckInvariants())

	o.AmountRefunded = 10
	o.Total = 99
	assert.Error(t, o.CheckInvariants())
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	o := NewOrder("c1", []LineItem{{VariantRef: "x", Qty: 1, UnitPrice: 100}}, 0, 0, Address{}, "z", now)
	o.PaymentProof = &PaymentProof{Provider: "bkash"}
	o.PaymentVerified = &now

	c := o.Clone()
	c.Items[0].Qty = 9
	c.PaymentProof.Provider = "nagad"

	assert.Equal(t, 1, o.Items[0].Qty)
	assert.Equal(t, "bkash", o.PaymentProof.Provider)
}

func TestCode(t *testing.T) {
	cases := map[string]error{
		CodeValidation:         Invalid("qty", "bad"),
		CodeInsufficientStock:  &InsufficientStockError{VariantRef: "x"},
		CodeInvalidTransition:  &InvalidTransitionError{From: StatusShipped, To: StatusPending},
		CodeExceedsRefundable:  &ExceedsRefundableError{Requested: 2, Refundable: 1},
		CodePaymentNotVerified: errors.Wrap(ErrPaymentNotVerified, "transition"),
		CodeOrderNotFound:      errors.WithMessage(ErrOrderNotFound, "load"),
		CodeRefundNotAllowed:   RefundNotAllowed(PaymentUnpaid),
		"":                     errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Code(err), err.Error())
	}
	assert.Equal(t, "", Code(nil))
}

func TestInvalidTransitionErrorListsAllowed(t *testing.T) {
	err := &InvalidTransitionError{From: StatusShipped, To: StatusPending, Allowed: TablePolicy{}.Next(StatusShipped)}
	assert.Contains(t, err.Error(), "shipped")
	assert.Contains(t, err.Error(), "delivered, returned, cancelled")
}

package orders

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Error codes surfaced to callers. Each distinguishable failure has its own code.
const (
	CodeValidation         = "validation_error"
	CodeInsufficientStock  = "insufficient_stock"
	CodeInvalidTransition  = "invalid_transition"
	CodePaymentNotVerified = "payment_not_verified"
	CodeExceedsRefundable  = "exceeds_refundable"
	CodeOrderNotFound      = "order_not_found"
	CodeRefundNotAllowed   = "refund_not_allowed"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrPaymentNotVerified = errors.New("deposit payment has not been verified")
)

type ValidationError struct {
	Field  string
	Reason string
	// Kind overrides CodeValidation for a narrower, still caller-fixable, rejection.
	Kind string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RefundNotAllowed rejects a refund against an order whose payment state has
// nothing refundable.
func RefundNotAllowed(status PaymentStatus) error {
	return &ValidationError{
		Field:  "payment_status",
		Reason: fmt.Sprintf("cannot refund an order whose payment is %s", status),
		Kind:   CodeRefundNotAllowed,
	}
}

type InsufficientStockError struct {
	VariantRef string
	Requested  int
	Available  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.VariantRef, e.Requested, e.Available)
}

type InvalidTransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}
	return fmt.Sprintf("cannot move order from %s to %s (allowed: %s)", e.From, e.To, strings.Join(allowed, ", "))
}

type ExceedsRefundableError struct {
	Requested  int64
	Refundable int64
}

func (e *ExceedsRefundableError) Error() string {
	return fmt.Sprintf("refund of %d exceeds refundable amount %d", e.Requested, e.Refundable)
}

// Code maps an error to its caller-facing code; "" means an unclassified failure.
func Code(err error) string {
	var (
		ve *ValidationError
		se *InsufficientStockError
		te *InvalidTransitionError
		re *ExceedsRefundableError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		if ve.Kind != "" {
			return ve.Kind
		}
		return CodeValidation
	case errors.As(err, &se):
		return CodeInsufficientStock
	case errors.As(err, &te):
		return CodeInvalidTransition
	case errors.As(err, &re):
		return CodeExceedsRefundable
	case errors.Is(err, ErrPaymentNotVerified):
		return CodePaymentNotVerified
	case errors.Is(err, ErrOrderNotFound):
		return CodeOrderNotFound
	}
	return ""
}

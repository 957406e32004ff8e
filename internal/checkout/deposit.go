package checkout

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

// DefaultDepositRate is the share of each pre-order line paid up front.
var DefaultDepositRate = decimal.RequireFromString("0.5")

// Deposit sums the pre-order lines and applies rate, rounding half up to the
// minor unit.
func Deposit(items []orders.LineItem, rate decimal.Decimal) int64 {
	sum := decimal.Zero
	for _, it := range items {
		if it.PreOrder {
			sum = sum.Add(decimal.NewFromInt(it.Subtotal()))
		}
	}
	return sum.Mul(rate).Round(0).IntPart()
}

var proofProviders = map[string]bool{
	"bkash":  true,
	"nagad":  true,
	"rocket": true,
}

func validateProof(p *orders.PaymentProof) error {
	if p == nil {
		return orders.Invalid("payment_proof", "deposit payment proof is required for pre-order items")
	}
	if !proofProviders[strings.ToLower(strings.TrimSpace(p.Provider))] {
		return orders.Invalid("payment_proof.provider", "unsupported provider %q", p.Provider)
	}
	if strings.TrimSpace(p.TransactionID) == "" {
		return orders.Invalid("payment_proof.transaction_id", "missing transaction id")
	}
	if strings.TrimSpace(p.SenderPhone) == "" {
		return orders.Invalid("payment_proof.sender_phone", "missing sender phone")
	}
	return nil
}

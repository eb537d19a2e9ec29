package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/medlemshub/medlemshub/internal/pkg/pricing"
)

// Split is the result of applying the fee policy to one payment.
type Split struct {
	// Deduction is the part of the payment diverted to pay down the
	// organization's subscription balance.
	Deduction decimal.Decimal
	// ServiceFee is the platform's per-transaction fee. Only charged once
	// the subscription balance is cleared.
	ServiceFee decimal.Decimal
	// Payout is what the organization receives from this payment.
	Payout decimal.Decimal
	// BalanceAfter is the subscription balance after this payment.
	BalanceAfter decimal.Decimal
	// FullyPaidNow is true when this payment brought the balance to zero.
	FullyPaidNow bool
}

// ComputeSplit decides how an incoming payment is divided between paying
// down the subscription balance and paying out to the organization.
//
// While a balance is outstanding the full payment (up to the balance) is
// deducted and no service fee is charged. A payment that exceeds the
// remaining balance clears it and pays out the remainder fee-free; the
// triggering transaction is treated as a one-time grace boundary rather
// than charging the per-transaction fee on the tail amount. Once the
// balance is cleared, every payment carries the flat + percentage service
// fee and the rest is paid out.
func ComputeSplit(cfg pricing.FeeConfig, balanceBefore, amount decimal.Decimal) Split {
	if balanceBefore.LessThanOrEqual(decimal.Zero) {
		fee := cfg.FlatFee.Add(amount.Mul(cfg.Rate)).Round(2)
		return Split{
			Deduction:    decimal.Zero,
			ServiceFee:   fee,
			Payout:       amount.Sub(fee),
			BalanceAfter: balanceBefore,
			FullyPaidNow: false,
		}
	}

	deduction := decimal.Min(balanceBefore, amount)
	remainder := amount.Sub(deduction)
	if remainder.GreaterThan(decimal.Zero) {
		// Crossover: this payment clears the balance and pays out the rest.
		return Split{
			Deduction:    deduction,
			ServiceFee:   decimal.Zero,
			Payout:       remainder,
			BalanceAfter: decimal.Zero,
			FullyPaidNow: true,
		}
	}

	balanceAfter := balanceBefore.Sub(deduction)
	return Split{
		Deduction:    deduction,
		ServiceFee:   decimal.Zero,
		Payout:       decimal.Zero,
		BalanceAfter: balanceAfter,
		FullyPaidNow: balanceAfter.LessThanOrEqual(decimal.Zero),
	}
}

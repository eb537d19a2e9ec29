package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/medlemshub/medlemshub/internal/pkg/pricing"
)

func testFeeConfig() pricing.FeeConfig {
	return pricing.FeeConfig{
		AnnualFee: decimal.NewFromInt(990),
		FlatFee:   decimal.NewFromInt(5),
		Rate:      decimal.RequireFromString("0.025"),
	}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeSplitPartialDeduction(t *testing.T) {
	split := ComputeSplit(testFeeConfig(), d("990"), d("100"))

	assert.True(t, split.Deduction.Equal(d("100")), "deduction = %s", split.Deduction)
	assert.True(t, split.ServiceFee.IsZero(), "service fee = %s", split.ServiceFee)
	assert.True(t, split.Payout.IsZero(), "payout = %s", split.Payout)
	assert.True(t, split.BalanceAfter.Equal(d("890")), "balance after = %s", split.BalanceAfter)
	assert.False(t, split.FullyPaidNow)
}

func TestComputeSplitCrossover(t *testing.T) {
	split := ComputeSplit(testFeeConfig(), d("50"), d("100"))

	assert.True(t, split.Deduction.Equal(d("50")), "deduction = %s", split.Deduction)
	assert.True(t, split.ServiceFee.IsZero(), "no service fee on the crossover remainder")
	assert.True(t, split.Payout.Equal(d("50")), "payout = %s", split.Payout)
	assert.True(t, split.BalanceAfter.IsZero(), "balance after = %s", split.BalanceAfter)
	assert.True(t, split.FullyPaidNow)
}

func TestComputeSplitPhaseTwoFee(t *testing.T) {
	split := ComputeSplit(testFeeConfig(), decimal.Zero, d("100"))

	// 5 + 100 * 0.025 must be exactly 7.50, not 7.4999...
	assert.True(t, split.ServiceFee.Equal(d("7.50")), "service fee = %s", split.ServiceFee)
	assert.True(t, split.Payout.Equal(d("92.50")), "payout = %s", split.Payout)
	assert.True(t, split.Deduction.IsZero())
	assert.True(t, split.BalanceAfter.IsZero())
	assert.False(t, split.FullyPaidNow)
}

func TestComputeSplitExactAbsorption(t *testing.T) {
	split := ComputeSplit(testFeeConfig(), d("100"), d("100"))

	assert.True(t, split.Deduction.Equal(d("100")))
	assert.True(t, split.ServiceFee.IsZero())
	assert.True(t, split.Payout.IsZero())
	assert.True(t, split.BalanceAfter.IsZero())
	assert.True(t, split.FullyPaidNow, "exact absorption clears the balance")
}

func TestComputeSplitProperties(t *testing.T) {
	cfg := testFeeConfig()

	tests := []struct {
		name          string
		balanceBefore string
		amount        string
	}{
		{name: "small payment big balance", balanceBefore: "990", amount: "1"},
		{name: "payment equals balance", balanceBefore: "250", amount: "250"},
		{name: "fractional amounts", balanceBefore: "123.45", amount: "67.89"},
		{name: "crossover fractional", balanceBefore: "10.01", amount: "199.99"},
		{name: "phase two fractional", balanceBefore: "0", amount: "333.33"},
		{name: "negative balance stays", balanceBefore: "-5", amount: "80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balance := d(tt.balanceBefore)
			amount := d(tt.amount)
			split := ComputeSplit(cfg, balance, amount)

			// Money conservation: deduction + fee + payout == amount.
			total := split.Deduction.Add(split.ServiceFee).Add(split.Payout)
			assert.True(t, total.Equal(amount), "conservation violated: %s != %s", total, amount)

			if balance.GreaterThan(decimal.Zero) {
				if amount.LessThanOrEqual(balance) {
					assert.True(t, split.Deduction.Equal(amount))
					assert.True(t, split.ServiceFee.IsZero())
					assert.True(t, split.Payout.IsZero())
					assert.True(t, split.BalanceAfter.Equal(balance.Sub(amount)))
				} else {
					assert.True(t, split.Deduction.Equal(balance))
					assert.True(t, split.ServiceFee.IsZero())
					assert.True(t, split.Payout.Equal(amount.Sub(balance)))
					assert.True(t, split.BalanceAfter.IsZero())
					assert.True(t, split.FullyPaidNow)
				}
				// Balance never goes negative from a deduction.
				assert.False(t, split.BalanceAfter.IsNegative())
			} else {
				wantFee := cfg.FlatFee.Add(amount.Mul(cfg.Rate)).Round(2)
				assert.True(t, split.ServiceFee.Equal(wantFee))
				assert.True(t, split.Payout.Equal(amount.Sub(wantFee)))
				assert.True(t, split.Deduction.IsZero())
				assert.True(t, split.BalanceAfter.Equal(balance))
			}
		})
	}
}

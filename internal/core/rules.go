package core

import "github.com/shopspring/decimal"

// BaseStep is the smallest BTC increment the exchange accepts.
var BaseStep = decimal.New(1, -8)

func RoundDown(value, step decimal.Decimal) decimal.Decimal {
	if step.Cmp(decimal.Zero) <= 0 {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

// Quantize drops residue below BaseStep left over from proportional splits.
func Quantize(value decimal.Decimal) decimal.Decimal {
	if value.Abs().Cmp(BaseStep) < 0 {
		return decimal.Zero
	}
	return value
}

func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Percent returns num/den*100, or zero when den is zero.
func Percent(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den).Mul(decimal.NewFromInt(100))
}

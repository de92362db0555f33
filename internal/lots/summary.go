package lots

import (
	"github.com/shopspring/decimal"

	"gemini-desk/internal/core"
)

// Row is one trade of the history with its basis (buys) or proceeds (sells).
type Row struct {
	Trade           core.Trade
	BasisOrProceeds decimal.Decimal
}

type Summary struct {
	Rows          []Row
	BuyAmount     decimal.Decimal
	BuyBasis      decimal.Decimal
	BuyFees       decimal.Decimal
	SellAmount    decimal.Decimal
	SellProceeds  decimal.Decimal
	SellFees      decimal.Decimal
	AvgCostBasis  decimal.Decimal
	CurrentAmount decimal.Decimal
	CurrentValue  decimal.Decimal
	Gain          decimal.Decimal
	GainPct       decimal.Decimal
}

// Summarize totals the trade history without lot matching: gain is sell
// proceeds plus the value of the remaining position minus everything bought.
func Summarize(trades []core.Trade, last decimal.Decimal) Summary {
	var s Summary
	for _, t := range trades {
		notional := t.Price.Mul(t.Amount)
		switch t.Side {
		case core.Buy:
			basis := notional.Add(t.FeeAmount)
			s.Rows = append(s.Rows, Row{Trade: t, BasisOrProceeds: basis})
			s.BuyAmount = s.BuyAmount.Add(t.Amount)
			s.BuyBasis = s.BuyBasis.Add(basis)
			s.BuyFees = s.BuyFees.Add(t.FeeAmount)
		case core.Sell:
			proceeds := notional.Sub(t.FeeAmount)
			s.Rows = append(s.Rows, Row{Trade: t, BasisOrProceeds: proceeds})
			s.SellAmount = s.SellAmount.Add(t.Amount)
			s.SellProceeds = s.SellProceeds.Add(proceeds)
			s.SellFees = s.SellFees.Add(t.FeeAmount)
		}
	}
	if s.BuyAmount.IsPositive() {
		s.AvgCostBasis = s.BuyBasis.Div(s.BuyAmount)
	}
	s.CurrentAmount = decimal.Max(s.BuyAmount.Sub(s.SellAmount), decimal.Zero)
	s.CurrentValue = s.CurrentAmount.Mul(last)
	s.Gain = s.SellProceeds.Add(s.CurrentValue).Sub(s.BuyBasis)
	s.GainPct = core.Percent(s.Gain, s.BuyBasis)
	return s
}

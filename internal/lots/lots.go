package lots

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"gemini-desk/internal/core"
)

type ClosedLot struct {
	Amount      decimal.Decimal
	BuyDate     time.Time
	SellDate    time.Time
	Proceeds    decimal.Decimal
	Basis       decimal.Decimal
	Gain        decimal.Decimal
	GainPct     decimal.Decimal
	BuyFees     decimal.Decimal
	SellFees    decimal.Decimal
	TotalFees   decimal.Decimal
	BuyOrderID  string
	SellOrderID string
}

// OpenLot is the unmatched remainder of a buy trade valued at the last price.
type OpenLot struct {
	Trade   core.Trade
	Amount  decimal.Decimal
	Fees    decimal.Decimal
	Basis   decimal.Decimal
	Current decimal.Decimal
	Gain    decimal.Decimal
	GainPct decimal.Decimal
}

type Totals struct {
	Amount       decimal.Decimal
	Proceeds     decimal.Decimal
	Basis        decimal.Decimal
	Current      decimal.Decimal
	Gain         decimal.Decimal
	GainPct      decimal.Decimal
	AvgCostBasis decimal.Decimal
	BuyFees      decimal.Decimal
	SellFees     decimal.Decimal
	TotalFees    decimal.Decimal
}

type Report struct {
	// Closed is ordered by the most recent sell first.
	Closed       []ClosedLot
	Open         []OpenLot
	ClosedTotals Totals
	OpenTotals   Totals
}

type lot struct {
	trade  core.Trade
	amount decimal.Decimal
	fees   decimal.Decimal
}

// Match pairs every sell with the earliest unconsumed buys (FIFO). Fees are
// split in proportion to the matched amount.
func Match(trades []core.Trade, last decimal.Decimal) Report {
	book := chronological(trades)
	var closed []ClosedLot
	var ct Totals

	for _, sell := range book {
		if sell.trade.Side != core.Sell || !sell.amount.IsPositive() {
			continue
		}
		for _, buy := range book {
			if buy.trade.Side != core.Buy || !buy.amount.IsPositive() {
				continue
			}
			matched := core.MinDecimal(sell.amount, buy.amount)
			sellFees := sell.fees.Div(sell.amount).Mul(matched)
			buyFees := buy.fees.Div(buy.amount).Mul(matched)
			proceeds := sell.trade.Price.Mul(matched).Sub(sellFees)
			basis := buy.trade.Price.Mul(matched).Add(buyFees)
			gain := proceeds.Sub(basis)

			closed = append(closed, ClosedLot{
				Amount:      matched,
				BuyDate:     buy.trade.Time,
				SellDate:    sell.trade.Time,
				Proceeds:    proceeds,
				Basis:       basis,
				Gain:        gain,
				GainPct:     core.Percent(gain, basis),
				BuyFees:     buyFees,
				SellFees:    sellFees,
				TotalFees:   buyFees.Add(sellFees),
				BuyOrderID:  buy.trade.OrderID,
				SellOrderID: sell.trade.OrderID,
			})
			ct.Amount = ct.Amount.Add(matched)
			ct.Proceeds = ct.Proceeds.Add(proceeds)
			ct.Basis = ct.Basis.Add(basis)
			ct.Gain = ct.Gain.Add(gain)
			ct.BuyFees = ct.BuyFees.Add(buyFees)
			ct.SellFees = ct.SellFees.Add(sellFees)
			ct.TotalFees = ct.TotalFees.Add(buyFees).Add(sellFees)

			sell.amount = core.Quantize(sell.amount.Sub(matched))
			buy.amount = core.Quantize(buy.amount.Sub(matched))
			sell.fees = sell.fees.Sub(sellFees)
			buy.fees = buy.fees.Sub(buyFees)
			if !sell.amount.IsPositive() {
				break
			}
		}
	}
	if ct.Amount.IsPositive() {
		ct.AvgCostBasis = ct.Basis.Div(ct.Amount)
	}
	if ct.Basis.IsPositive() {
		ct.GainPct = core.Percent(ct.Proceeds, ct.Basis).Sub(decimal.NewFromInt(100))
	}
	for i, j := 0, len(closed)-1; i < j; i, j = i+1, j-1 {
		closed[i], closed[j] = closed[j], closed[i]
	}

	open, ot := openLots(book, last)
	return Report{Closed: closed, Open: open, ClosedTotals: ct, OpenTotals: ot}
}

func openLots(book []*lot, last decimal.Decimal) ([]OpenLot, Totals) {
	var open []OpenLot
	var t Totals
	for _, l := range book {
		if l.trade.Side != core.Buy || !l.amount.IsPositive() {
			continue
		}
		basis := l.trade.Price.Mul(l.amount).Add(l.fees)
		current := l.amount.Mul(last)
		gain := current.Sub(basis)
		open = append(open, OpenLot{
			Trade:   l.trade,
			Amount:  l.amount,
			Fees:    l.fees,
			Basis:   basis,
			Current: current,
			Gain:    gain,
			GainPct: core.Percent(gain, basis),
		})
		t.Amount = t.Amount.Add(l.amount)
		t.Basis = t.Basis.Add(basis)
		t.Current = t.Current.Add(current)
		t.BuyFees = t.BuyFees.Add(l.fees)
	}
	t.TotalFees = t.BuyFees
	t.Gain = t.Current.Sub(t.Basis)
	if t.Amount.IsPositive() {
		t.AvgCostBasis = t.Basis.Div(t.Amount)
	}
	if t.Basis.IsPositive() {
		t.GainPct = core.Percent(t.Current, t.Basis).Sub(decimal.NewFromInt(100))
	}
	return open, t
}

// chronological copies trades oldest first; trades at the same instant keep
// their input order.
func chronological(trades []core.Trade) []*lot {
	book := make([]*lot, 0, len(trades))
	for _, t := range trades {
		book = append(book, &lot{trade: t, amount: t.Amount, fees: t.FeeAmount})
	}
	sort.SliceStable(book, func(i, j int) bool {
		return book[i].trade.Time.Before(book[j].trade.Time)
	})
	return book
}

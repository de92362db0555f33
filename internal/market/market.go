package market

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"gemini-desk/internal/core"
)

// Ceilings reserved under the max policy, as fractions of notional.
var (
	MaxMakerFee = decimal.RequireFromString("0.0010")
	MaxTakerFee = decimal.RequireFromString("0.0035")
)

var hundred = decimal.NewFromInt(100)

type QuoteSource interface {
	Quote(ctx context.Context) (core.Quote, error)
}

type FeeSource interface {
	Fees(ctx context.Context) (core.FeeRates, error)
}

// Quotes is the quote provider for the traded pair.
type Quotes struct {
	src QuoteSource
}

func NewQuotes(src QuoteSource) *Quotes {
	return &Quotes{src: src}
}

func (q *Quotes) Quote(ctx context.Context) (core.Quote, error) {
	quote, err := q.src.Quote(ctx)
	if err != nil {
		return core.Quote{}, err
	}
	if !quote.Bid.IsPositive() || !quote.Ask.IsPositive() {
		return core.Quote{}, fmt.Errorf("invalid quote: bid=%s ask=%s", quote.Bid, quote.Ask)
	}
	return quote, nil
}

// MarketPrice resolves a "market" price: ask plus overUnder for buys, bid
// minus overUnder for sells.
func MarketPrice(q core.Quote, side core.Side, overUnder decimal.Decimal) (decimal.Decimal, error) {
	switch side {
	case core.Buy:
		return q.Ask.Add(overUnder), nil
	case core.Sell:
		return q.Bid.Sub(overUnder), nil
	}
	return decimal.Zero, &core.InvalidOrderError{Field: "side", Value: string(side)}
}

// Fees is the fee schedule.
type Fees struct {
	src FeeSource
}

func NewFees(src FeeSource) *Fees {
	return &Fees{src: src}
}

func (f *Fees) Rates(ctx context.Context) (core.FeeRates, error) {
	return f.src.Fees(ctx)
}

// Reserved returns the fee fraction to reserve on an order. Only the actual
// policy reaches the exchange.
func (f *Fees) Reserved(ctx context.Context, policy core.FeePolicy, makerOrCancel bool) (decimal.Decimal, error) {
	switch policy {
	case core.FeeNone:
		return decimal.Zero, nil
	case core.FeeMax:
		if makerOrCancel {
			return MaxMakerFee, nil
		}
		return MaxTakerFee, nil
	case core.FeeActual:
		rates, err := f.src.Fees(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		if makerOrCancel {
			return rates.APIMakerPct.Div(hundred), nil
		}
		return rates.APITakerPct.Div(hundred), nil
	}
	return decimal.Zero, &core.InvalidOrderError{Field: "reserve_api_fees", Value: string(policy)}
}

type FeeDeltas struct {
	Web decimal.Decimal
	API decimal.Decimal
}

// Deltas returns taker minus maker percent for each tier.
func Deltas(r core.FeeRates) FeeDeltas {
	return FeeDeltas{
		Web: r.WebTakerPct.Sub(r.WebMakerPct),
		API: r.APITakerPct.Sub(r.APIMakerPct),
	}
}

package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type Unit string

type FeePolicy string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// USD is the quote currency and BTC the base asset of the traded pair.
const (
	USD Unit = "USD"
	BTC Unit = "BTC"
)

const (
	FeeNone   FeePolicy = "none"
	FeeActual FeePolicy = "actual"
	FeeMax    FeePolicy = "max"
)

const OrderTypeExchangeLimit = "exchange limit"

func ParseSide(v string) (Side, bool) {
	switch Side(strings.ToLower(strings.TrimSpace(v))) {
	case Buy:
		return Buy, true
	case Sell:
		return Sell, true
	}
	return "", false
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (u Unit) Valid() bool { return u == USD || u == BTC }

func (p FeePolicy) Valid() bool { return p == FeeNone || p == FeeActual || p == FeeMax }

type Quote struct {
	Bid  decimal.Decimal
	Ask  decimal.Decimal
	Last decimal.Decimal
}

func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// FeeRates are percentages, e.g. 0.35 means 0.35%.
type FeeRates struct {
	APIMakerPct decimal.Decimal
	APITakerPct decimal.Decimal
	WebMakerPct decimal.Decimal
	WebTakerPct decimal.Decimal
}

type Balance struct {
	Currency  string
	Amount    decimal.Decimal
	Available decimal.Decimal
}

type OrderRequest struct {
	ClientOrderID string
	Side          Side
	Price         decimal.Decimal
	Amount        decimal.Decimal
	MakerOrCancel bool
}

type OrderRecord struct {
	OrderID           string
	ClientOrderID     string
	Symbol            string
	Timestamp         time.Time
	Side              Side
	Type              string
	Price             decimal.Decimal
	OriginalAmount    decimal.Decimal
	ExecutedAmount    decimal.Decimal
	RemainingAmount   decimal.Decimal
	AvgExecutionPrice decimal.Decimal
	IsLive            bool
	IsCancelled       bool
	Options           []string
}

func (r OrderRecord) Total() decimal.Decimal {
	return r.Price.Mul(r.OriginalAmount)
}

type Trade struct {
	OrderID     string
	TradeID     string
	Side        Side
	Price       decimal.Decimal
	Amount      decimal.Decimal
	FeeAmount   decimal.Decimal
	FeeCurrency string
	Time        time.Time
}

type CancelAllResult struct {
	Cancelled []string
	Rejected  []string
}

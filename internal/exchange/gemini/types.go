package gemini

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gemini-desk/internal/core"
)

type apiError struct {
	Result  string `json:"result"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type tickerResponse struct {
	Bid  decimal.Decimal `json:"bid"`
	Ask  decimal.Decimal `json:"ask"`
	Last decimal.Decimal `json:"last"`
}

type notionalVolumeResponse struct {
	APIMakerFeeBps decimal.Decimal `json:"api_maker_fee_bps"`
	APITakerFeeBps decimal.Decimal `json:"api_taker_fee_bps"`
	WebMakerFeeBps decimal.Decimal `json:"web_maker_fee_bps"`
	WebTakerFeeBps decimal.Decimal `json:"web_taker_fee_bps"`
}

type balanceResponse struct {
	Type      string          `json:"type"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Available decimal.Decimal `json:"available"`
}

type orderResponse struct {
	OrderID           string          `json:"order_id"`
	ClientOrderID     string          `json:"client_order_id"`
	Symbol            string          `json:"symbol"`
	Side              string          `json:"side"`
	Type              string          `json:"type"`
	OrderType         string          `json:"order_type"`
	Timestamp         string          `json:"timestamp"`
	TimestampMs       int64           `json:"timestampms"`
	Price             decimal.Decimal `json:"price"`
	OriginalAmount    decimal.Decimal `json:"original_amount"`
	ExecutedAmount    decimal.Decimal `json:"executed_amount"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount"`
	AvgExecutionPrice decimal.Decimal `json:"avg_execution_price"`
	IsLive            bool            `json:"is_live"`
	IsCancelled       bool            `json:"is_cancelled"`
	Options           []string        `json:"options"`
}

type tradeResponse struct {
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   int64           `json:"timestamp"`
	TimestampMs int64           `json:"timestampms"`
	Type        string          `json:"type"`
	FeeCurrency string          `json:"fee_currency"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	TID         json.Number     `json:"tid"`
	OrderID     string          `json:"order_id"`
}

type cancelAllResponse struct {
	Result  string `json:"result"`
	Details struct {
		CancelledOrders []json.Number `json:"cancelledOrders"`
		CancelRejects   []json.Number `json:"cancelRejects"`
	} `json:"details"`
}

type orderEvent struct {
	orderResponse
	EventType string `json:"type"`
	Reason    string `json:"reason"`
}

func parseOrder(src orderResponse) core.OrderRecord {
	typ := src.Type
	if typ == "" {
		typ = src.OrderType
	}
	side, _ := core.ParseSide(src.Side)
	return core.OrderRecord{
		OrderID:           src.OrderID,
		ClientOrderID:     src.ClientOrderID,
		Symbol:            src.Symbol,
		Timestamp:         parseTimestamp(src.Timestamp, src.TimestampMs),
		Side:              side,
		Type:              typ,
		Price:             src.Price,
		OriginalAmount:    src.OriginalAmount,
		ExecutedAmount:    src.ExecutedAmount,
		RemainingAmount:   src.RemainingAmount,
		AvgExecutionPrice: src.AvgExecutionPrice,
		IsLive:            src.IsLive,
		IsCancelled:       src.IsCancelled,
		Options:           src.Options,
	}
}

func parseTrade(src tradeResponse) core.Trade {
	side, _ := core.ParseSide(src.Type)
	ts := time.Unix(src.Timestamp, 0)
	if src.TimestampMs > 0 {
		ts = time.UnixMilli(src.TimestampMs)
	}
	return core.Trade{
		OrderID:     src.OrderID,
		TradeID:     src.TID.String(),
		Side:        side,
		Price:       src.Price,
		Amount:      src.Amount,
		FeeAmount:   src.FeeAmount,
		FeeCurrency: src.FeeCurrency,
		Time:        ts,
	}
}

func parseTimestamp(seconds string, ms int64) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms)
	}
	if v, err := strconv.ParseInt(strings.TrimSpace(seconds), 10, 64); err == nil && v > 0 {
		return time.Unix(v, 0)
	}
	return time.Time{}
}

func numbersToStrings(src []json.Number) []string {
	out := make([]string, 0, len(src))
	for _, n := range src {
		out = append(out, n.String())
	}
	return out
}

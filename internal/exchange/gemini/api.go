package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gemini-desk/internal/core"
)

const optionMakerOrCancel = "maker-or-cancel"

var bpsPerPercent = decimal.NewFromInt(100)

func (c *Client) Quote(ctx context.Context) (core.Quote, error) {
	body, err := c.doPublic(ctx, "/v1/pubticker/"+c.symbol)
	if err != nil {
		return core.Quote{}, err
	}
	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Quote{}, err
	}
	return core.Quote{Bid: resp.Bid, Ask: resp.Ask, Last: resp.Last}, nil
}

func (c *Client) Fees(ctx context.Context) (core.FeeRates, error) {
	body, err := c.doPrivate(ctx, "/v1/notionalvolume", nil)
	if err != nil {
		return core.FeeRates{}, err
	}
	var resp notionalVolumeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.FeeRates{}, err
	}
	return core.FeeRates{
		APIMakerPct: resp.APIMakerFeeBps.Div(bpsPerPercent),
		APITakerPct: resp.APITakerFeeBps.Div(bpsPerPercent),
		WebMakerPct: resp.WebMakerFeeBps.Div(bpsPerPercent),
		WebTakerPct: resp.WebTakerFeeBps.Div(bpsPerPercent),
	}, nil
}

func (c *Client) Balances(ctx context.Context) ([]core.Balance, error) {
	body, err := c.doPrivate(ctx, "/v1/balances", nil)
	if err != nil {
		return nil, err
	}
	var resp []balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make([]core.Balance, 0, len(resp))
	for _, b := range resp {
		out = append(out, core.Balance{
			Currency:  b.Currency,
			Amount:    b.Amount,
			Available: b.Available,
		})
	}
	return out, nil
}

func (c *Client) SubmitOrder(ctx context.Context, req core.OrderRequest) (core.OrderRecord, error) {
	if !req.Side.Valid() {
		return core.OrderRecord{}, errors.New("invalid order side")
	}
	amount := core.RoundDown(req.Amount, core.BaseStep)
	if amount.Cmp(decimal.Zero) <= 0 {
		return core.OrderRecord{}, errors.New("invalid order amount")
	}
	if req.Price.Cmp(decimal.Zero) <= 0 {
		return core.OrderRecord{}, errors.New("invalid order price")
	}
	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.New().String()
	}
	options := []string{}
	if req.MakerOrCancel {
		options = append(options, optionMakerOrCancel)
	}
	params := map[string]interface{}{
		"client_order_id": clientID,
		"symbol":          c.symbol,
		"amount":          amount.StringFixed(8),
		"price":           req.Price.String(),
		"side":            string(req.Side),
		"type":            core.OrderTypeExchangeLimit,
		"options":         options,
	}
	body, err := c.doPrivate(ctx, "/v1/order/new", params)
	if err != nil {
		return core.OrderRecord{}, err
	}
	return decodeOrder(body)
}

func (c *Client) OrderStatus(ctx context.Context, orderID string) (core.OrderRecord, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return core.OrderRecord{}, err
	}
	body, err := c.doPrivate(ctx, "/v1/order/status", map[string]interface{}{"order_id": id})
	if err != nil {
		return core.OrderRecord{}, err
	}
	return decodeOrder(body)
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (core.OrderRecord, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return core.OrderRecord{}, err
	}
	body, err := c.doPrivate(ctx, "/v1/order/cancel", map[string]interface{}{"order_id": id})
	if err != nil {
		return core.OrderRecord{}, err
	}
	return decodeOrder(body)
}

func (c *Client) CancelAllOrders(ctx context.Context) (core.CancelAllResult, error) {
	body, err := c.doPrivate(ctx, "/v1/order/cancel/all", nil)
	if err != nil {
		return core.CancelAllResult{}, err
	}
	var resp cancelAllResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.CancelAllResult{}, err
	}
	return core.CancelAllResult{
		Cancelled: numbersToStrings(resp.Details.CancelledOrders),
		Rejected:  numbersToStrings(resp.Details.CancelRejects),
	}, nil
}

func (c *Client) ActiveOrders(ctx context.Context) ([]core.OrderRecord, error) {
	body, err := c.doPrivate(ctx, "/v1/orders", nil)
	if err != nil {
		return nil, err
	}
	var resp []orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make([]core.OrderRecord, 0, len(resp))
	for _, o := range resp {
		out = append(out, parseOrder(o))
	}
	return out, nil
}

// TradeHistory returns the most recent trades for the pair, oldest first.
func (c *Client) TradeHistory(ctx context.Context, limit int) ([]core.Trade, error) {
	params := map[string]interface{}{"symbol": c.symbol}
	if limit > 0 {
		params["limit_trades"] = limit
	}
	body, err := c.doPrivate(ctx, "/v1/mytrades", params)
	if err != nil {
		return nil, err
	}
	var resp []tradeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make([]core.Trade, len(resp))
	for i, t := range resp {
		out[len(resp)-1-i] = parseTrade(t)
	}
	return out, nil
}

func decodeOrder(body []byte) (core.OrderRecord, error) {
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.OrderRecord{}, err
	}
	return parseOrder(resp), nil
}

func parseOrderID(orderID string) (int64, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.InvalidOrderError{Field: "order_id", Value: orderID}
	}
	return id, nil
}

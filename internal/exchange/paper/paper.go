package paper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gemini-desk/internal/config"
	"gemini-desk/internal/core"
	"gemini-desk/internal/exchange"
	"gemini-desk/internal/market"
)

const optionMakerOrCancel = "maker-or-cancel"

var bpsPerUnit = decimal.NewFromInt(10000)

// Exchange is an in-memory single-pair exchange. Buy orders hold funds at the
// fee ceiling even when the account tier is cheaper. Crossing maker-or-cancel
// orders are cancelled on arrival and other crossing orders fill immediately
// at the touch.
type Exchange struct {
	mu       sync.Mutex
	symbol   string
	bid      decimal.Decimal
	ask      decimal.Decimal
	last     decimal.Decimal
	makerFee decimal.Decimal
	takerFee decimal.Decimal
	usd      decimal.Decimal
	btc      decimal.Decimal

	orders   map[string]*core.OrderRecord
	orderSeq int64
	trades   []core.Trade
	tradeSeq int64
	watchers map[string][]chan exchange.OrderEvent

	failNext    map[string]error
	cancelCalls int
	now         func() time.Time
}

func New(symbol string, cfg config.PaperConfig) *Exchange {
	if symbol == "" {
		symbol = "btcusd"
	}
	mid := cfg.Bid.Add(cfg.Ask.Decimal).Div(decimal.NewFromInt(2))
	return &Exchange{
		symbol:   symbol,
		bid:      cfg.Bid.Decimal,
		ask:      cfg.Ask.Decimal,
		last:     mid,
		makerFee: cfg.MakerFeeBps.Div(bpsPerUnit),
		takerFee: cfg.TakerFeeBps.Div(bpsPerUnit),
		usd:      cfg.InitialUSD.Decimal,
		btc:      cfg.InitialBTC.Decimal,
		orders:   make(map[string]*core.OrderRecord),
		orderSeq: 1000,
		watchers: make(map[string][]chan exchange.OrderEvent),
		failNext: make(map[string]error),
		now:      time.Now,
	}
}

func (s *Exchange) Name() string { return "paper" }

func (s *Exchange) Symbol() string { return s.symbol }

// FailNext makes the next call of op return err. Ops: quote, fees, balances,
// submit, status, cancel, history.
func (s *Exchange) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[op] = err
}

// CancelCalls reports how many cancel requests reached the exchange.
func (s *Exchange) CancelCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCalls
}

func (s *Exchange) takeFailure(op string) error {
	err := s.failNext[op]
	delete(s.failNext, op)
	return err
}

// SetQuote moves the book and fills resting orders the new touch crosses.
func (s *Exchange) SetQuote(bid, ask decimal.Decimal) error {
	if !bid.IsPositive() || ask.Cmp(bid) < 0 {
		return errors.New("bid must be > 0 and ask >= bid")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bid = bid
	s.ask = ask
	for _, id := range s.liveIDs() {
		ord := s.orders[id]
		if (ord.Side == core.Buy && ord.Price.Cmp(ask) >= 0) || (ord.Side == core.Sell && ord.Price.Cmp(bid) <= 0) {
			s.fill(ord, ord.RemainingAmount, ord.Price, s.makerFee)
		}
	}
	return nil
}

// FillOrder executes amount of a resting order at its limit price as maker.
func (s *Exchange) FillOrder(orderID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ord, ok := s.orders[orderID]
	if !ok || !ord.IsLive {
		return orderNotFound(orderID)
	}
	if !amount.IsPositive() || amount.Cmp(ord.RemainingAmount) > 0 {
		return fmt.Errorf("fill amount %s outside (0, %s]", amount, ord.RemainingAmount)
	}
	s.fill(ord, amount, ord.Price, s.makerFee)
	return nil
}

func (s *Exchange) Quote(ctx context.Context) (core.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("quote"); err != nil {
		return core.Quote{}, err
	}
	return core.Quote{Bid: s.bid, Ask: s.ask, Last: s.last}, nil
}

func (s *Exchange) Fees(ctx context.Context) (core.FeeRates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("fees"); err != nil {
		return core.FeeRates{}, err
	}
	hundred := decimal.NewFromInt(100)
	return core.FeeRates{
		APIMakerPct: s.makerFee.Mul(hundred),
		APITakerPct: s.takerFee.Mul(hundred),
		WebMakerPct: s.takerFee.Mul(hundred),
		WebTakerPct: s.takerFee.Mul(hundred),
	}, nil
}

func (s *Exchange) Balances(ctx context.Context) ([]core.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("balances"); err != nil {
		return nil, err
	}
	heldUSD, heldBTC := s.held()
	return []core.Balance{
		{Currency: "USD", Amount: s.usd, Available: s.usd.Sub(heldUSD)},
		{Currency: "BTC", Amount: s.btc, Available: s.btc.Sub(heldBTC)},
	}, nil
}

func (s *Exchange) SubmitOrder(ctx context.Context, req core.OrderRequest) (core.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("submit"); err != nil {
		return core.OrderRecord{}, err
	}
	if !req.Side.Valid() {
		return core.OrderRecord{}, rejected(http.StatusBadRequest, "InvalidSide", "Invalid side for symbol "+s.symbol)
	}
	if !req.Price.IsPositive() {
		return core.OrderRecord{}, rejected(http.StatusBadRequest, "InvalidPrice", "Invalid price for symbol "+s.symbol+": "+req.Price.String())
	}
	amount := core.RoundDown(req.Amount, core.BaseStep)
	if !amount.IsPositive() {
		return core.OrderRecord{}, rejected(http.StatusBadRequest, "InvalidQuantity", "Invalid quantity for symbol "+s.symbol+": "+req.Amount.String())
	}
	heldUSD, heldBTC := s.held()
	switch req.Side {
	case core.Buy:
		if buyHold(req.Price, amount, s.holdRate(req.MakerOrCancel)).Cmp(s.usd.Sub(heldUSD)) > 0 {
			return core.OrderRecord{}, insufficientFunds(req.Side, s.symbol)
		}
	case core.Sell:
		if amount.Cmp(s.btc.Sub(heldBTC)) > 0 {
			return core.OrderRecord{}, insufficientFunds(req.Side, s.symbol)
		}
	}

	s.orderSeq++
	rec := &core.OrderRecord{
		OrderID:         strconv.FormatInt(s.orderSeq, 10),
		ClientOrderID:   req.ClientOrderID,
		Symbol:          s.symbol,
		Timestamp:       s.now(),
		Side:            req.Side,
		Type:            core.OrderTypeExchangeLimit,
		Price:           req.Price,
		OriginalAmount:  amount,
		ExecutedAmount:  decimal.Zero,
		RemainingAmount: amount,
		IsLive:          true,
	}
	if req.MakerOrCancel {
		rec.Options = []string{optionMakerOrCancel}
	}
	s.orders[rec.OrderID] = rec

	crosses := (req.Side == core.Buy && req.Price.Cmp(s.ask) >= 0) || (req.Side == core.Sell && req.Price.Cmp(s.bid) <= 0)
	switch {
	case crosses && req.MakerOrCancel:
		rec.IsLive = false
		rec.IsCancelled = true
	case crosses:
		touch := s.ask
		if req.Side == core.Sell {
			touch = s.bid
		}
		s.fill(rec, amount, touch, s.takerFee)
	}
	return *rec, nil
}

func (s *Exchange) OrderStatus(ctx context.Context, orderID string) (core.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("status"); err != nil {
		return core.OrderRecord{}, err
	}
	ord, ok := s.orders[orderID]
	if !ok {
		return core.OrderRecord{}, orderNotFound(orderID)
	}
	return *ord, nil
}

func (s *Exchange) CancelOrder(ctx context.Context, orderID string) (core.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCalls++
	if err := s.takeFailure("cancel"); err != nil {
		return core.OrderRecord{}, err
	}
	ord, ok := s.orders[orderID]
	if !ok || !ord.IsLive {
		return core.OrderRecord{}, orderNotFound(orderID)
	}
	s.cancel(ord)
	return *ord, nil
}

func (s *Exchange) CancelAllOrders(ctx context.Context) (core.CancelAllResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCalls++
	if err := s.takeFailure("cancel"); err != nil {
		return core.CancelAllResult{}, err
	}
	res := core.CancelAllResult{Cancelled: []string{}, Rejected: []string{}}
	for _, id := range s.liveIDs() {
		s.cancel(s.orders[id])
		res.Cancelled = append(res.Cancelled, id)
	}
	return res, nil
}

func (s *Exchange) ActiveOrders(ctx context.Context) ([]core.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.OrderRecord, 0)
	for _, id := range s.liveIDs() {
		out = append(out, *s.orders[id])
	}
	return out, nil
}

// TradeHistory returns up to limit of the most recent trades, oldest first.
func (s *Exchange) TradeHistory(ctx context.Context, limit int) ([]core.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("history"); err != nil {
		return nil, err
	}
	start := 0
	if limit > 0 && len(s.trades) > limit {
		start = len(s.trades) - limit
	}
	out := make([]core.Trade, len(s.trades)-start)
	copy(out, s.trades[start:])
	return out, nil
}

// WatchOrder reports the current state of the order and every later change
// until the order closes, fn returns false, or ctx ends.
func (s *Exchange) WatchOrder(ctx context.Context, orderID string, fn func(exchange.OrderEvent) bool) error {
	s.mu.Lock()
	ord, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return orderNotFound(orderID)
	}
	initial := exchange.OrderEvent{Type: "initial", Order: *ord}
	ch := make(chan exchange.OrderEvent, 16)
	if ord.IsLive {
		s.watchers[orderID] = append(s.watchers[orderID], ch)
	}
	s.mu.Unlock()
	defer s.unwatch(orderID, ch)

	if !fn(initial) || !initial.Order.IsLive {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-ch:
			if !fn(ev) || ev.Type == "closed" || ev.Type == "cancelled" {
				return nil
			}
		}
	}
}

func (s *Exchange) unwatch(orderID string, ch chan exchange.OrderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.watchers[orderID]
	for i, c := range list {
		if c == ch {
			s.watchers[orderID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.watchers[orderID]) == 0 {
		delete(s.watchers, orderID)
	}
}

func (s *Exchange) notify(typ string, ord *core.OrderRecord) {
	for _, ch := range s.watchers[ord.OrderID] {
		select {
		case ch <- exchange.OrderEvent{Type: typ, Order: *ord}:
		default:
		}
	}
}

func (s *Exchange) fill(ord *core.OrderRecord, qty, price, feeRate decimal.Decimal) {
	notional := price.Mul(qty)
	fee := notional.Mul(feeRate)
	switch ord.Side {
	case core.Buy:
		s.usd = s.usd.Sub(notional).Sub(fee)
		s.btc = s.btc.Add(qty)
	case core.Sell:
		s.btc = s.btc.Sub(qty)
		s.usd = s.usd.Add(notional).Sub(fee)
	}
	prevNotional := ord.AvgExecutionPrice.Mul(ord.ExecutedAmount)
	ord.ExecutedAmount = ord.ExecutedAmount.Add(qty)
	ord.RemainingAmount = core.Quantize(ord.RemainingAmount.Sub(qty))
	ord.AvgExecutionPrice = prevNotional.Add(notional).Div(ord.ExecutedAmount)
	if ord.RemainingAmount.IsZero() {
		ord.IsLive = false
	}
	s.last = price
	s.tradeSeq++
	s.trades = append(s.trades, core.Trade{
		OrderID:     ord.OrderID,
		TradeID:     strconv.FormatInt(s.tradeSeq, 10),
		Side:        ord.Side,
		Price:       price,
		Amount:      qty,
		FeeAmount:   fee,
		FeeCurrency: "USD",
		Time:        s.now(),
	})
	s.notify("fill", ord)
	if !ord.IsLive {
		s.notify("closed", ord)
	}
}

func (s *Exchange) cancel(ord *core.OrderRecord) {
	ord.IsLive = false
	ord.IsCancelled = true
	s.notify("cancelled", ord)
}

func (s *Exchange) held() (usd, btc decimal.Decimal) {
	for _, ord := range s.orders {
		if !ord.IsLive {
			continue
		}
		switch ord.Side {
		case core.Buy:
			usd = usd.Add(buyHold(ord.Price, ord.RemainingAmount, s.holdRate(isMakerOrCancel(ord))))
		case core.Sell:
			btc = btc.Add(ord.RemainingAmount)
		}
	}
	return usd, btc
}

func (s *Exchange) liveIDs() []string {
	ids := make([]string, 0)
	for id, ord := range s.orders {
		if ord.IsLive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.ParseInt(ids[i], 10, 64)
		b, _ := strconv.ParseInt(ids[j], 10, 64)
		return a < b
	})
	return ids
}

func (s *Exchange) holdRate(makerOrCancel bool) decimal.Decimal {
	if makerOrCancel {
		return decimal.Max(s.makerFee, market.MaxMakerFee)
	}
	return decimal.Max(s.takerFee, market.MaxTakerFee)
}

func isMakerOrCancel(ord *core.OrderRecord) bool {
	for _, opt := range ord.Options {
		if opt == optionMakerOrCancel {
			return true
		}
	}
	return false
}

func buyHold(price, amount, feeRate decimal.Decimal) decimal.Decimal {
	return price.Mul(amount).Mul(decimal.NewFromInt(1).Add(feeRate))
}

func rejected(status int, reason, msg string) error {
	return core.ExchangeError{Status: status, Reason: reason, Message: msg}
}

func insufficientFunds(side core.Side, symbol string) error {
	return errors.Join(
		core.ExchangeError{
			Status:  http.StatusNotAcceptable,
			Reason:  core.ReasonInsufficientFunds,
			Message: fmt.Sprintf("Failed to place %s order on symbol '%s' because of insufficient funds", side, symbol),
		},
		core.ErrInsufficientFunds,
	)
}

func orderNotFound(orderID string) error {
	return errors.Join(
		core.ExchangeError{Status: http.StatusBadRequest, Reason: "OrderNotFound", Message: "Order " + orderID + " not found"},
		core.ErrOrderNotFound,
	)
}

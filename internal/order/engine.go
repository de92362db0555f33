package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gemini-desk/internal/config"
	"gemini-desk/internal/core"
	"gemini-desk/internal/exchange"
	"gemini-desk/internal/market"
	"gemini-desk/internal/metrics"
)

// Warnings are raised for spreads wider than this many dollars.
var wideSpread = decimal.RequireFromString("0.05")

var one = decimal.NewFromInt(1)

type Outcome string

const (
	OK                Outcome = "ok"
	InsufficientFunds Outcome = "insufficient_funds"
	AutoCancelled     Outcome = "auto_cancelled"
	Rejected          Outcome = "rejected"
	// Declined is only produced by Place and Replace when the operator says no.
	Declined Outcome = "declined"
)

// Result is the outcome of one submission. Err carries the exchange failure
// for InsufficientFunds and rejected outcomes.
type Result struct {
	Outcome  Outcome
	Status   *Status
	Err      error
	Warnings []string
}

type Engine struct {
	ex     exchange.Exchange
	quotes *market.Quotes
	fees   *market.Fees
	newID  func() string

	mu   sync.Mutex
	opts config.Options
}

func NewEngine(ex exchange.Exchange, opts config.Options) *Engine {
	e := &Engine{
		ex:     ex,
		quotes: market.NewQuotes(ex),
		fees:   market.NewFees(ex),
		newID:  uuid.NewString,
	}
	e.SetOptions(opts)
	return e
}

func (e *Engine) Options() config.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

// SetOptions replaces the defaults used by NewOrder. Orders already created
// keep their settings.
func (e *Engine) SetOptions(opts config.Options) {
	e.mu.Lock()
	e.opts = opts
	e.mu.Unlock()
	if d, ok := e.ex.(interface{ SetDebug(bool) }); ok {
		d.SetDebug(bool(opts.Debug))
	}
}

// NewOrder returns an unprepared order carrying the current options.
func (e *Engine) NewOrder(side core.Side, price, quantity decimal.Decimal, unit core.Unit) *Order {
	opts := e.Options()
	o := New(side, price, quantity, unit)
	o.policy = opts.ReserveAPIFees
	o.makerOrCancel = bool(opts.MakerOrCancel)
	return o
}

// Load builds an order from an existing exchange order, quantity in BTC.
func (e *Engine) Load(ctx context.Context, orderID string) (*Order, error) {
	rec, err := e.ex.OrderStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o := e.NewOrder(rec.Side, rec.Price, rec.OriginalAmount, core.BTC)
	o.status = newStatus(e.ex, rec)
	return o, nil
}

// Prepare computes the base amount, subtotal, fee and total of o. On any
// failure o is left unprepared.
func (e *Engine) Prepare(ctx context.Context, o *Order) error {
	o.reset()
	if err := o.validate(); err != nil {
		return err
	}
	p, err := e.fees.Reserved(ctx, o.policy, o.makerOrCancel)
	if err != nil {
		return err
	}

	var base decimal.Decimal
	switch {
	case o.unit == core.BTC:
		base = o.quantity
	case o.side == core.Buy:
		// the USD budget covers principal and fee
		base = o.quantity.Div(one.Add(p)).Div(o.price)
	default:
		// sells target net proceeds but size the order from the raw amount
		base = o.quantity.Div(o.price)
	}
	subtotal := base.Mul(o.price)
	fee := subtotal.Mul(p)
	if o.side == core.Sell {
		fee = fee.Neg()
	}

	quote, err := e.quotes.Quote(ctx)
	if err != nil {
		return err
	}
	var warnings []string
	if spread := quote.Spread(); spread.GreaterThan(wideSpread) {
		warnings = append(warnings, fmt.Sprintf("warning: spread: %s", core.FormatUSD(spread)))
	}
	if o.side == core.Buy && o.price.GreaterThan(quote.Ask) {
		warnings = append(warnings, fmt.Sprintf("warning: buy price (%s) is higher than ask (%s) - TAKER", core.FormatUSD(o.price), core.FormatUSD(quote.Ask)))
	}
	if o.side == core.Sell && o.price.LessThan(quote.Bid) {
		warnings = append(warnings, fmt.Sprintf("warning: sell price (%s) is lower than bid (%s) - TAKER", core.FormatUSD(o.price), core.FormatUSD(quote.Bid)))
	}

	o.baseAmount = base
	o.subtotal = subtotal
	o.feePct = p
	o.fee = fee
	o.total = subtotal.Add(fee)
	o.warnings = warnings
	o.prepared = true
	o.state = StatePrepared
	return nil
}

// Execute submits a prepared order. The returned error is reserved for
// sequencing and validation problems; exchange outcomes are in Result.
// An order is submitted once per preparation, so a live, cancelled or
// rejected order has to go through Prepare or a retry first.
func (e *Engine) Execute(ctx context.Context, o *Order) (Result, error) {
	if err := o.validate(); err != nil {
		return Result{}, err
	}
	if o.state != StatePrepared || !o.baseAmount.IsPositive() {
		return Result{}, core.ErrNotPrepared
	}
	req := core.OrderRequest{
		ClientOrderID: e.newID(),
		Side:          o.side,
		Price:         o.price,
		Amount:        o.baseAmount,
		MakerOrCancel: o.makerOrCancel,
	}
	o.state = StateSubmitted
	rec, err := e.ex.SubmitOrder(ctx, req)
	if err != nil {
		o.state = StateRejected
		outcome := Rejected
		if isInsufficientFunds(err) && o.policy != core.FeeMax {
			outcome = InsufficientFunds
		}
		log.Printf("level=WARN event=order_rejected client_order_id=%s side=%s outcome=%s err=%q", req.ClientOrderID, req.Side, outcome, err)
		metrics.ObserveOrder(string(o.side), string(outcome))
		return Result{Outcome: outcome, Err: err}, nil
	}

	o.status = newStatus(e.ex, rec)
	res := Result{Outcome: OK, Status: o.status}
	switch {
	case rec.IsCancelled && o.makerOrCancel:
		o.state = StateCancelled
		res.Outcome = AutoCancelled
		log.Printf("level=WARN event=order_auto_cancelled order_id=%s side=%s price=%s", rec.OrderID, rec.Side, rec.Price)
	case rec.IsCancelled:
		o.state = StateCancelled
		res.Outcome = Rejected
		res.Err = fmt.Errorf("order %s cancelled by exchange", rec.OrderID)
		log.Printf("level=WARN event=order_cancelled_by_exchange order_id=%s side=%s", rec.OrderID, rec.Side)
	default:
		o.state = StateLive
		log.Printf("level=INFO event=order_submitted order_id=%s client_order_id=%s side=%s price=%s amount=%s maker_or_cancel=%t live=%t",
			rec.OrderID, req.ClientOrderID, rec.Side, rec.Price, rec.OriginalAmount, o.makerOrCancel, rec.IsLive)
	}
	metrics.ObserveOrder(string(o.side), string(res.Outcome))
	return res, nil
}

// RetryWithMaxFees switches o to the max fee reservation and prepares it
// again. It fails once o already reserves the max.
func (e *Engine) RetryWithMaxFees(ctx context.Context, o *Order) error {
	if o.policy == core.FeeMax {
		return core.ErrRetryExhausted
	}
	o.SetFeePolicy(core.FeeMax)
	metrics.ObserveRetry(metrics.RetryMaxFees)
	log.Printf("level=INFO event=order_retry kind=%s side=%s", metrics.RetryMaxFees, o.side)
	return e.Prepare(ctx, o)
}

// RetryAsTaker drops maker-or-cancel and prepares o against the taker fee.
// An order is retried as taker at most once.
func (e *Engine) RetryAsTaker(ctx context.Context, o *Order) error {
	if o.takerRetries > 0 {
		return core.ErrRetryExhausted
	}
	o.takerRetries++
	o.SetMakerOrCancel(false)
	metrics.ObserveRetry(metrics.RetryTaker)
	log.Printf("level=INFO event=order_retry kind=%s side=%s", metrics.RetryTaker, o.side)
	return e.Prepare(ctx, o)
}

// CancelAndReplace cancels the live order behind o and submits its
// remaining amount as a new order at o's current price.
func (e *Engine) CancelAndReplace(ctx context.Context, o *Order) (Result, error) {
	if o.status == nil {
		return Result{}, core.ErrNoActiveOrder
	}
	if err := o.status.Cancel(ctx); err != nil {
		return Result{}, err
	}
	if err := o.status.Refresh(ctx); err != nil {
		return Result{}, err
	}
	log.Printf("level=INFO event=order_cancelled order_id=%s remaining=%s", o.status.OrderID(), o.status.RemainingAmount())
	o.quantity = o.status.RemainingAmount()
	o.unit = core.BTC
	o.reset()
	if err := e.Prepare(ctx, o); err != nil {
		return Result{}, err
	}
	return e.Execute(ctx, o)
}

func isInsufficientFunds(err error) bool {
	if errors.Is(err, core.ErrInsufficientFunds) {
		return true
	}
	exErr, ok := core.AsExchangeError(err)
	return ok && exErr.Reason == core.ReasonInsufficientFunds
}

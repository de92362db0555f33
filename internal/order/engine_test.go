package order

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemini-desk/internal/config"
	"gemini-desk/internal/core"
	"gemini-desk/internal/exchange/paper"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newPaper(usd, btc, makerBps, takerBps string) *paper.Exchange {
	return paper.New("btcusd", config.PaperConfig{
		InitialUSD:  config.Decimal{Decimal: d(usd)},
		InitialBTC:  config.Decimal{Decimal: d(btc)},
		Bid:         config.Decimal{Decimal: d("100")},
		Ask:         config.Decimal{Decimal: d("101")},
		MakerFeeBps: config.Decimal{Decimal: d(makerBps)},
		TakerFeeBps: config.Decimal{Decimal: d(takerBps)},
	})
}

func newEngine(ex *paper.Exchange, policy core.FeePolicy, moc bool) *Engine {
	return NewEngine(ex, config.Options{ReserveAPIFees: policy, MakerOrCancel: config.Switch(moc)})
}

func TestNewOrderAppliesOptions(t *testing.T) {
	e := newEngine(newPaper("0", "0", "10", "35"), core.FeeActual, true)
	o := e.NewOrder(core.Buy, d("100"), d("10"), core.USD)
	assert.Equal(t, core.FeeActual, o.FeePolicy())
	assert.True(t, o.MakerOrCancel())
	assert.False(t, o.Prepared())
	assert.True(t, o.BaseAmount().Equal(d("-1")))
	assert.Equal(t, StateUnprepared, o.State())
}

func TestPrepareUSDBuyCoversFee(t *testing.T) {
	e := newEngine(newPaper("0", "0", "10", "35"), core.FeeActual, false)
	o := e.NewOrder(core.Buy, d("95"), d("1000"), core.USD)
	require.NoError(t, e.Prepare(context.Background(), o))

	p := d("0.0035")
	assert.True(t, o.FeePercent().Equal(p))
	roundTrip := o.BaseAmount().Mul(o.Price()).Mul(decimal.NewFromInt(1).Add(p))
	assert.True(t, roundTrip.Sub(d("1000")).Abs().LessThan(d("0.0000001")), "round trip = %s", roundTrip)
	assert.True(t, o.Subtotal().Equal(o.BaseAmount().Mul(o.Price())))
	assert.True(t, o.Fee().Equal(o.Subtotal().Mul(p)))
	assert.True(t, o.Total().Equal(o.Subtotal().Add(o.Fee())))
	assert.Equal(t, StatePrepared, o.State())
}

func TestPrepareUSDSellTargetsRequestedAmount(t *testing.T) {
	e := newEngine(newPaper("0", "0", "10", "35"), core.FeeMax, true)
	o := e.NewOrder(core.Sell, d("105"), d("500"), core.USD)
	require.NoError(t, e.Prepare(context.Background(), o))

	assert.True(t, o.BaseAmount().Mul(o.Price()).Sub(d("500")).Abs().LessThan(d("0.0000001")))
	assert.True(t, o.FeePercent().Equal(d("0.001")))
	// sell fees are credits against proceeds
	assert.True(t, o.Fee().IsNegative())
	assert.True(t, o.Fee().Abs().Sub(d("0.5")).Abs().LessThan(d("0.0000001")), "fee = %s", o.Fee())
	assert.True(t, o.Total().LessThan(o.Subtotal()))
}

func TestPrepareBTCQuantityIsBaseAmount(t *testing.T) {
	e := newEngine(newPaper("0", "0", "10", "35"), core.FeeNone, false)
	o := e.NewOrder(core.Buy, d("100"), d("0.25"), core.BTC)
	require.NoError(t, e.Prepare(context.Background(), o))

	assert.True(t, o.BaseAmount().Equal(d("0.25")))
	assert.True(t, o.Subtotal().Equal(d("25")))
	assert.True(t, o.Fee().IsZero())
	assert.True(t, o.Total().Equal(d("25")))
}

func TestPrepareIsIdempotent(t *testing.T) {
	e := newEngine(newPaper("0", "0", "10", "35"), core.FeeActual, true)
	o := e.NewOrder(core.Buy, d("99.5"), d("1234.56"), core.USD)
	require.NoError(t, e.Prepare(context.Background(), o))
	base, subtotal, fee, total := o.BaseAmount(), o.Subtotal(), o.Fee(), o.Total()
	warnings := o.Warnings()

	require.NoError(t, e.Prepare(context.Background(), o))
	assert.True(t, base.Equal(o.BaseAmount()))
	assert.True(t, subtotal.Equal(o.Subtotal()))
	assert.True(t, fee.Equal(o.Fee()))
	assert.True(t, total.Equal(o.Total()))
	assert.Equal(t, warnings, o.Warnings())
}

func TestSettersResetDerivedFields(t *testing.T) {
	mutators := map[string]func(o *Order){
		"price":           func(o *Order) { o.SetPrice(d("101")) },
		"quantity":        func(o *Order) { o.SetQuantity(d("2")) },
		"unit":            func(o *Order) { o.SetUnit(core.USD) },
		"side":            func(o *Order) { o.SetSide(core.Sell) },
		"maker_or_cancel": func(o *Order) { o.SetMakerOrCancel(true) },
		"fee_policy":      func(o *Order) { o.SetFeePolicy(core.FeeActual) },
	}
	e := newEngine(newPaper("0", "0", "10", "35"), core.FeeMax, false)
	for name, mutate := range mutators {
		t.Run(name, func(t *testing.T) {
			o := e.NewOrder(core.Buy, d("100"), d("1"), core.BTC)
			require.NoError(t, e.Prepare(context.Background(), o))
			require.True(t, o.Prepared())

			mutate(o)
			assert.False(t, o.Prepared())
			assert.True(t, o.BaseAmount().Equal(d("-1")))
			assert.True(t, o.Subtotal().IsZero())
			assert.True(t, o.Fee().IsZero())
			assert.True(t, o.Total().IsZero())
			assert.Empty(t, o.Warnings())
		})
	}
}

func TestPrepareRejectsInvalidInput(t *testing.T) {
	e := newEngine(newPaper("0", "0", "10", "35"), core.FeeMax, false)
	cases := []struct {
		field string
		order *Order
	}{
		{"price", New(core.Buy, decimal.Zero, d("1"), core.BTC)},
		{"quantity", New(core.Buy, d("100"), d("-1"), core.BTC)},
		{"quantity unit", New(core.Buy, d("100"), d("1"), core.Unit("EUR"))},
		{"side", New(core.Side("hold"), d("100"), d("1"), core.BTC)},
	}
	for _, tc := range cases {
		err := e.Prepare(context.Background(), tc.order)
		var invalid *core.InvalidOrderError
		require.ErrorAs(t, err, &invalid, tc.field)
		assert.Equal(t, tc.field, invalid.Field)
		assert.ErrorIs(t, err, core.ErrInvalidOrder)
		assert.False(t, tc.order.Prepared())
	}
}

func TestPrepareFailureLeavesOrderUnprepared(t *testing.T) {
	ex := newPaper("0", "0", "10", "35")
	e := newEngine(ex, core.FeeActual, false)
	o := e.NewOrder(core.Buy, d("100"), d("1"), core.BTC)
	require.NoError(t, e.Prepare(context.Background(), o))

	boom := core.ExchangeError{Status: 503, Reason: "Maintenance", Message: "down"}
	ex.FailNext("quote", boom)
	err := e.Prepare(context.Background(), o)
	assert.ErrorIs(t, err, boom)
	assert.False(t, o.Prepared())
	assert.True(t, o.BaseAmount().Equal(d("-1")))

	ex.FailNext("fees", boom)
	assert.Error(t, e.Prepare(context.Background(), o))
	assert.False(t, o.Prepared())
}

func TestPrepareWarnings(t *testing.T) {
	e := newEngine(newPaper("0", "0", "10", "35"), core.FeeNone, false)

	buy := e.NewOrder(core.Buy, d("102"), d("1"), core.BTC)
	require.NoError(t, e.Prepare(context.Background(), buy))
	assert.Equal(t, []string{
		"warning: spread: $1.00",
		"warning: buy price ($102.00) is higher than ask ($101.00) - TAKER",
	}, buy.Warnings())

	sell := e.NewOrder(core.Sell, d("99"), d("1"), core.BTC)
	require.NoError(t, e.Prepare(context.Background(), sell))
	assert.Contains(t, sell.Warnings(), "warning: sell price ($99.00) is lower than bid ($100.00) - TAKER")

	inside := e.NewOrder(core.Sell, d("100.50"), d("1"), core.BTC)
	require.NoError(t, e.Prepare(context.Background(), inside))
	assert.Len(t, inside.Warnings(), 1)
}

func TestExecuteRequiresPreparation(t *testing.T) {
	e := newEngine(newPaper("1000", "0", "10", "35"), core.FeeMax, false)
	o := e.NewOrder(core.Buy, d("99"), d("1"), core.BTC)
	_, err := e.Execute(context.Background(), o)
	assert.ErrorIs(t, err, core.ErrNotPrepared)

	require.NoError(t, e.Prepare(context.Background(), o))
	o.SetPrice(d("98"))
	_, err = e.Execute(context.Background(), o)
	assert.ErrorIs(t, err, core.ErrNotPrepared)
}

func TestExecuteLiveOrder(t *testing.T) {
	ex := newPaper("1000", "0", "10", "35")
	e := newEngine(ex, core.FeeMax, true)
	o := e.NewOrder(core.Buy, d("99"), d("100"), core.USD)
	require.NoError(t, e.Prepare(context.Background(), o))

	res, err := e.Execute(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, OK, res.Outcome)
	require.NotNil(t, res.Status)
	assert.True(t, res.Status.IsLive())
	assert.Equal(t, StateLive, o.State())
	assert.Same(t, res.Status, o.Status())

	rec := res.Status.Record()
	assert.Equal(t, []string{"maker-or-cancel"}, rec.Options)
	assert.True(t, rec.OriginalAmount.Equal(core.RoundDown(o.BaseAmount(), core.BaseStep)))
	assert.Len(t, rec.ClientOrderID, 36)
}

func TestExecuteSubmitsOncePerPreparation(t *testing.T) {
	ex := newPaper("1000", "0", "10", "35")
	e := newEngine(ex, core.FeeMax, false)
	ctx := context.Background()
	o := e.NewOrder(core.Buy, d("99"), d("1"), core.BTC)
	require.NoError(t, e.Prepare(ctx, o))

	res, err := e.Execute(ctx, o)
	require.NoError(t, err)
	require.Equal(t, OK, res.Outcome)

	_, err = e.Execute(ctx, o)
	assert.ErrorIs(t, err, core.ErrNotPrepared)
	assert.Equal(t, StateLive, o.State())

	active, err := ex.ActiveOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestAutoCancelledOrderIsNotResubmittedWithoutRetry(t *testing.T) {
	ex := newPaper("1000", "0", "10", "35")
	e := newEngine(ex, core.FeeActual, true)
	ctx := context.Background()
	o := e.NewOrder(core.Buy, d("101"), d("1"), core.BTC)
	require.NoError(t, e.Prepare(ctx, o))

	res, err := e.Execute(ctx, o)
	require.NoError(t, err)
	require.Equal(t, AutoCancelled, res.Outcome)
	first := res.Status.OrderID()

	for i := 0; i < 2; i++ {
		_, err = e.Execute(ctx, o)
		assert.ErrorIs(t, err, core.ErrNotPrepared)
	}
	assert.True(t, o.MakerOrCancel())
	assert.Equal(t, first, o.Status().OrderID())

	seq, err := strconv.Atoi(first)
	require.NoError(t, err)
	_, err = ex.OrderStatus(ctx, strconv.Itoa(seq+1))
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
}

func TestExecuteInsufficientFundsIsRetryableBelowMax(t *testing.T) {
	ex := newPaper("100", "0", "0", "35")
	e := newEngine(ex, core.FeeActual, true)
	o := e.NewOrder(core.Buy, d("99"), d("100"), core.USD)
	require.NoError(t, e.Prepare(context.Background(), o))

	res, err := e.Execute(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, InsufficientFunds, res.Outcome)
	assert.ErrorIs(t, res.Err, core.ErrInsufficientFunds)
	assert.Equal(t, StateRejected, o.State())

	require.NoError(t, e.RetryWithMaxFees(context.Background(), o))
	assert.Equal(t, core.FeeMax, o.FeePolicy())
	assert.True(t, o.Prepared())

	res, err = e.Execute(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, OK, res.Outcome)

	assert.ErrorIs(t, e.RetryWithMaxFees(context.Background(), o), core.ErrRetryExhausted)
}

func TestExecuteInsufficientFundsUnderMaxIsRejected(t *testing.T) {
	e := newEngine(newPaper("10", "0", "10", "35"), core.FeeMax, false)
	o := e.NewOrder(core.Buy, d("99"), d("1"), core.BTC)
	require.NoError(t, e.Prepare(context.Background(), o))

	res, err := e.Execute(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome)
	exErr, ok := core.AsExchangeError(res.Err)
	require.True(t, ok)
	assert.Equal(t, 406, exErr.Status)
}

func TestAutoCancelAllowsSingleTakerRetry(t *testing.T) {
	ex := newPaper("1000", "0", "10", "35")
	e := newEngine(ex, core.FeeActual, true)
	o := e.NewOrder(core.Buy, d("101"), d("1"), core.BTC)
	require.NoError(t, e.Prepare(context.Background(), o))
	assert.True(t, o.FeePercent().Equal(d("0.001")))

	res, err := e.Execute(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, AutoCancelled, res.Outcome)
	assert.Equal(t, StateCancelled, o.State())

	require.NoError(t, e.RetryAsTaker(context.Background(), o))
	assert.False(t, o.MakerOrCancel())
	assert.True(t, o.FeePercent().Equal(d("0.0035")))

	res, err = e.Execute(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, OK, res.Outcome)
	assert.True(t, res.Status.ExecutedAmount().Equal(d("1")))

	assert.ErrorIs(t, e.RetryAsTaker(context.Background(), o), core.ErrRetryExhausted)
}

func TestCancelledWithoutMakerOrCancelIsRejected(t *testing.T) {
	ex := &cancellingExchange{Exchange: newPaper("1000", "0", "10", "35")}
	e := NewEngine(ex, config.Options{ReserveAPIFees: core.FeeMax})
	o := e.NewOrder(core.Buy, d("99"), d("1"), core.BTC)
	require.NoError(t, e.Prepare(context.Background(), o))

	res, err := e.Execute(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome)
	assert.Error(t, res.Err)
}

func TestStatusCancelIsOneWay(t *testing.T) {
	ex := newPaper("1000", "0", "10", "35")
	e := newEngine(ex, core.FeeMax, false)
	o := e.NewOrder(core.Buy, d("99"), d("1"), core.BTC)
	require.NoError(t, e.Prepare(context.Background(), o))
	res, err := e.Execute(context.Background(), o)
	require.NoError(t, err)

	require.NoError(t, res.Status.Cancel(context.Background()))
	assert.True(t, res.Status.IsCancelled())
	assert.Equal(t, 1, ex.CancelCalls())

	assert.ErrorIs(t, res.Status.Cancel(context.Background()), core.ErrAlreadyCancelled)
	assert.Equal(t, 1, ex.CancelCalls())

	_, err = e.CancelAndReplace(context.Background(), o)
	assert.ErrorIs(t, err, core.ErrAlreadyCancelled)
	assert.Equal(t, 1, ex.CancelCalls())
}

func TestCancelAndReplaceRequiresStatus(t *testing.T) {
	ex := newPaper("1000", "0", "10", "35")
	e := newEngine(ex, core.FeeMax, false)
	o := e.NewOrder(core.Buy, d("99"), d("1"), core.BTC)
	_, err := e.CancelAndReplace(context.Background(), o)
	assert.ErrorIs(t, err, core.ErrNoActiveOrder)
	assert.Equal(t, 0, ex.CancelCalls())
}

func TestCancelAndReplaceResubmitsRemaining(t *testing.T) {
	ex := newPaper("1000", "0", "10", "35")
	e := newEngine(ex, core.FeeMax, false)
	ctx := context.Background()
	o := e.NewOrder(core.Buy, d("99"), d("2"), core.BTC)
	require.NoError(t, e.Prepare(ctx, o))
	first, err := e.Execute(ctx, o)
	require.NoError(t, err)
	require.NoError(t, ex.FillOrder(first.Status.OrderID(), d("0.5")))

	o.SetPrice(d("98"))
	res, err := e.CancelAndReplace(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, OK, res.Outcome)
	assert.NotEqual(t, first.Status.OrderID(), res.Status.OrderID())
	assert.Equal(t, core.BTC, o.Unit())
	assert.True(t, o.Quantity().Equal(d("1.5")))
	assert.True(t, res.Status.Record().Price.Equal(d("98")))
	assert.True(t, res.Status.Record().OriginalAmount.Equal(d("1.5")))

	old, err := ex.OrderStatus(ctx, first.Status.OrderID())
	require.NoError(t, err)
	assert.True(t, old.IsCancelled)
}

func TestLoadBuildsOrderFromExchange(t *testing.T) {
	ex := newPaper("0", "3", "10", "35")
	e := newEngine(ex, core.FeeActual, true)
	rec, err := ex.SubmitOrder(context.Background(), core.OrderRequest{Side: core.Sell, Price: d("120"), Amount: d("2")})
	require.NoError(t, err)

	o, err := e.Load(context.Background(), rec.OrderID)
	require.NoError(t, err)
	assert.Equal(t, core.Sell, o.Side())
	assert.True(t, o.Price().Equal(d("120")))
	assert.True(t, o.Quantity().Equal(d("2")))
	assert.Equal(t, core.BTC, o.Unit())
	assert.Equal(t, core.FeeActual, o.FeePolicy())
	require.NotNil(t, o.Status())
	assert.True(t, o.Status().IsLive())

	_, err = e.Load(context.Background(), "424242")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
}

func TestSetOptionsAffectsNewOrdersOnly(t *testing.T) {
	e := newEngine(newPaper("0", "0", "10", "35"), core.FeeMax, false)
	before := e.NewOrder(core.Buy, d("1"), d("1"), core.BTC)
	e.SetOptions(config.Options{ReserveAPIFees: core.FeeNone, MakerOrCancel: true})
	after := e.NewOrder(core.Buy, d("1"), d("1"), core.BTC)

	assert.Equal(t, core.FeeMax, before.FeePolicy())
	assert.False(t, before.MakerOrCancel())
	assert.Equal(t, core.FeeNone, after.FeePolicy())
	assert.True(t, after.MakerOrCancel())
}

func TestIsInsufficientFundsMatchesReason(t *testing.T) {
	assert.True(t, isInsufficientFunds(core.ExchangeError{Status: 406, Reason: "InsufficientFunds"}))
	assert.True(t, isInsufficientFunds(errors.Join(errors.New("x"), core.ErrInsufficientFunds)))
	assert.False(t, isInsufficientFunds(core.ExchangeError{Status: 400, Reason: "InvalidPrice"}))
}

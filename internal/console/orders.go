package console

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/shopspring/decimal"

	"gemini-desk/internal/core"
	"gemini-desk/internal/exchange"
	"gemini-desk/internal/market"
	"gemini-desk/internal/order"
)

func (c *Console) trade(side core.Side, unit core.Unit) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		fmt.Fprintf(c.out, "%s %s\n", strings.ToUpper(string(side)), unit)
		price, err := c.readPrice(ctx, side)
		if err != nil {
			return err
		}
		qty, err := c.readQuantity(ctx, side, unit)
		if err != nil {
			return err
		}
		o := c.engine.NewOrder(side, price, qty, unit)
		res, err := c.engine.Place(ctx, o, c)
		if err != nil {
			return err
		}
		return c.report(res, "OK!")
	}
}

func (c *Console) readPrice(ctx context.Context, side core.Side) (decimal.Decimal, error) {
	in, err := c.Ask("Price (USD): ")
	if err != nil {
		return decimal.Zero, err
	}
	if strings.EqualFold(in, "market") {
		q, err := c.quotes.Quote(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		over := decimal.Zero
		raw, err := c.Ask("Max over/under bid/ask (default: 0): ")
		if err != nil {
			return decimal.Zero, err
		}
		if raw != "" {
			if over, err = decimal.NewFromString(raw); err != nil {
				return decimal.Zero, errors.New("not a valid USD value")
			}
		}
		return market.MarketPrice(q, side, over)
	}
	price, err := decimal.NewFromString(in)
	if err != nil {
		return decimal.Zero, errors.New("invalid price")
	}
	return price, nil
}

// readQuantity accepts "max" for the available USD of a USD buy or the
// available BTC of a BTC sell.
func (c *Console) readQuantity(ctx context.Context, side core.Side, unit core.Unit) (decimal.Decimal, error) {
	in, err := c.Ask(fmt.Sprintf("Quantity (%s): ", unit))
	if err != nil {
		return decimal.Zero, err
	}
	if strings.EqualFold(in, "max") {
		switch {
		case side == core.Buy && unit == core.USD:
			a, err := c.account(ctx)
			return a.AvailableUSD, err
		case side == core.Sell && unit == core.BTC:
			a, err := c.account(ctx)
			return a.AvailableBTC, err
		}
	}
	qty, err := decimal.NewFromString(in)
	if err != nil {
		return decimal.Zero, errors.New("invalid quantity")
	}
	return qty, nil
}

// report prints the outcome of a placement. Exchange failures come back as
// the error so the command loop prints them.
func (c *Console) report(res order.Result, done string) error {
	for _, w := range res.Warnings {
		fmt.Fprintln(c.out, w)
	}
	switch res.Outcome {
	case order.OK:
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, done)
		c.printOrders("", []core.OrderRecord{res.Status.Record()})
	case order.AutoCancelled:
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "AUTO CANCELLED - MAKER FEE NOT AVAILABLE!")
		c.printOrders("", []core.OrderRecord{res.Status.Record()})
	case order.Declined:
	default:
		if res.Err != nil {
			return res.Err
		}
		return fmt.Errorf("order %s", res.Outcome)
	}
	return nil
}

func (c *Console) ConfirmOrder(o *order.Order) bool {
	c.header(fmt.Sprintf("CONFIRM %s:", strings.ToUpper(string(o.Side()))))
	rows := [][]string{
		{"PRICE", "", ""},
		{"", core.FormatNumber(o.Price()), string(core.USD)},
		{"", "", ""},
		{"QUANTITY", "", ""},
		{"", core.FormatBTC(o.BaseAmount()), string(core.BTC)},
		{"", core.FormatNumber(o.Subtotal()), string(core.USD)},
		{"", "", ""},
		{"Subtotal", core.FormatUSD(o.Subtotal()), string(core.USD)},
		{"Fee", core.FormatUSD(o.Fee()), string(core.USD)},
		{"Total", core.FormatUSD(o.Total()), string(core.USD)},
	}
	c.table("", nil, rows)
	for _, w := range o.Warnings() {
		fmt.Fprintln(c.out, w)
	}
	return c.Confirm("Execute Order?")
}

func (c *Console) ConfirmMaxFees(*order.Order) bool {
	return c.Confirm("Insufficient funds, adjust for max API fee?")
}

func (c *Console) ConfirmTaker(o *order.Order) bool {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "AUTO CANCELLED - MAKER FEE NOT AVAILABLE!")
	return c.Confirm(fmt.Sprintf("Accept TAKER fee of %s??", core.FormatUSD(o.Fee())))
}

func (c *Console) cancel(ctx context.Context) error {
	id, err := c.Ask("order_id: ")
	if err != nil {
		return err
	}
	o, err := c.engine.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := o.Status().Cancel(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Cancelled order_id: %s\n", id)
	return nil
}

func (c *Console) cancelAll(ctx context.Context) error {
	res, err := c.ex.CancelAllOrders(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "all orders cancelled")
	if len(res.Rejected) > 0 {
		fmt.Fprintf(c.out, "not cancelled: %s\n", strings.Join(res.Rejected, ", "))
	}
	return nil
}

func (c *Console) cancelReplace(ctx context.Context) error {
	id, err := c.Ask("order_id: ")
	if err != nil {
		return err
	}
	o, err := c.engine.Load(ctx, id)
	if err != nil {
		return err
	}
	if !o.Status().IsLive() {
		fmt.Fprintln(c.out, "Order is not live.")
		return nil
	}
	price, err := c.readPrice(ctx, o.Side())
	if err != nil {
		return err
	}
	o.SetPrice(price)
	res, err := c.engine.Replace(ctx, o, c)
	if err != nil {
		return err
	}
	return c.report(res, "ORDER REPLACED")
}

func (c *Console) watch(ctx context.Context) error {
	w, ok := c.ex.(exchange.OrderWatcher)
	if !ok {
		return fmt.Errorf("%s does not stream order events", c.ex.Name())
	}
	id, err := c.Ask("order_id: ")
	if err != nil {
		return err
	}
	wctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintf(c.out, "watching order %s (ctrl-c to stop)\n", id)
	err = w.WatchOrder(wctx, id, func(ev exchange.OrderEvent) bool {
		r := ev.Order
		fmt.Fprintf(c.out, "%-10s executed=%s remaining=%s avg_price=%s live=%t cancelled=%t",
			ev.Type, core.FormatBTC(r.ExecutedAmount), core.FormatBTC(r.RemainingAmount), core.FormatUSD(r.AvgExecutionPrice), r.IsLive, r.IsCancelled)
		if ev.Reason != "" {
			fmt.Fprintf(c.out, " reason=%s", ev.Reason)
		}
		fmt.Fprintln(c.out)
		return true
	})
	if err != nil && !(errors.Is(err, context.Canceled) && ctx.Err() == nil) {
		return err
	}
	fmt.Fprintln(c.out, "watch ended")
	return nil
}

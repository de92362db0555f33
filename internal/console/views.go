package console

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"gemini-desk/internal/config"
	"gemini-desk/internal/core"
	"gemini-desk/internal/lots"
	"gemini-desk/internal/market"
)

const dateLayout = "01/02/2006"

// Account is the balance overview valued at the last trade price.
type Account struct {
	Value        decimal.Decimal
	AvailableUSD decimal.Decimal
	AvailableBTC decimal.Decimal
}

func valueAccount(balances []core.Balance, last decimal.Decimal) Account {
	var a Account
	for _, b := range balances {
		switch strings.ToUpper(b.Currency) {
		case "USD":
			a.Value = a.Value.Add(b.Amount)
			a.AvailableUSD = b.Available
		case "BTC":
			a.Value = a.Value.Add(b.Amount.Mul(last))
			a.AvailableBTC = b.Available
		}
	}
	return a
}

func (c *Console) account(ctx context.Context) (Account, error) {
	q, err := c.quotes.Quote(ctx)
	if err != nil {
		return Account{}, err
	}
	balances, err := c.ex.Balances(ctx)
	if err != nil {
		return Account{}, err
	}
	return valueAccount(balances, q.Last), nil
}

func (c *Console) showBalances(ctx context.Context) error {
	a, err := c.account(ctx)
	if err != nil {
		return err
	}
	c.table("BALANCES",
		[]string{"Notational Account Value", "Available to Trade (USD)", "Available to Trade (BTC)"},
		[][]string{{core.FormatUSD(a.Value), core.FormatUSD(a.AvailableUSD), core.FormatBTC(a.AvailableBTC)}})
	return nil
}

func (c *Console) showQuote(ctx context.Context) error {
	q, err := c.quotes.Quote(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "QUOTE")
	fmt.Fprintln(c.out, separator)
	fmt.Fprintf(c.out, "%s ASK\n", core.FormatNumber(q.Ask))
	fmt.Fprintf(c.out, "Spread of %s, LAST: %s\n", core.FormatNumber(q.Spread()), core.FormatNumber(q.Last))
	fmt.Fprintf(c.out, "%s BID\n", core.FormatNumber(q.Bid))
	fmt.Fprintln(c.out, separator)
	return nil
}

func (c *Console) showFees(ctx context.Context) error {
	rates, err := c.fees.Rates(ctx)
	if err != nil {
		return err
	}
	d := market.Deltas(rates)
	c.table("FEES", []string{"Web Maker Fee", "Web Taker Fee", "Delta"},
		[][]string{{core.FormatPercent(rates.WebMakerPct), core.FormatPercent(rates.WebTakerPct), core.FormatPercent(d.Web)}})
	c.table("", []string{"API Maker Fee", "API Taker Fee", "Delta"},
		[][]string{{core.FormatPercent(rates.APIMakerPct), core.FormatPercent(rates.APITakerPct), core.FormatPercent(d.API)}})
	return nil
}

var orderHeaders = []string{"date", "side", "total", "type", "price", "original_amount", "symbol", "executed_amount", "avg_execution_price", "remaining_amount", "is_live", "is_cancelled", "order_id"}

func orderRow(r core.OrderRecord) []string {
	return []string{
		r.Timestamp.Local().Format(dateLayout),
		string(r.Side),
		core.FormatUSD(r.Total()),
		r.Type,
		core.FormatUSD(r.Price),
		core.FormatBTC(r.OriginalAmount),
		r.Symbol,
		core.FormatBTC(r.ExecutedAmount),
		core.FormatUSD(r.AvgExecutionPrice),
		core.FormatBTC(r.RemainingAmount),
		fmt.Sprint(r.IsLive),
		fmt.Sprint(r.IsCancelled),
		r.OrderID,
	}
}

func (c *Console) printOrders(title string, records []core.OrderRecord) {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, orderRow(r))
	}
	c.table(title, orderHeaders, rows)
}

func (c *Console) showOrders(ctx context.Context) error {
	records, err := c.ex.ActiveOrders(ctx)
	if err != nil {
		return err
	}
	c.printOrders("OPEN ORDERS", records)
	return nil
}

func (c *Console) showStatus(ctx context.Context) error {
	id, err := c.Ask("order_id: ")
	if err != nil {
		return err
	}
	rec, err := c.ex.OrderStatus(ctx, id)
	if err != nil {
		return err
	}
	c.printOrders("ORDER STATUS", []core.OrderRecord{rec})
	return nil
}

func (c *Console) history(ctx context.Context) ([]core.Trade, core.Quote, error) {
	trades, err := c.ex.TradeHistory(ctx, c.historyLimit)
	if err != nil {
		return nil, core.Quote{}, err
	}
	q, err := c.quotes.Quote(ctx)
	if err != nil {
		return nil, core.Quote{}, err
	}
	return trades, q, nil
}

var historyHeaders = []string{"date", "type", "price", "amount", "basis/proceeds", "symbol", "fee_amount", "order_id"}

func (c *Console) historyRows(s lots.Summary) [][]string {
	rows := make([][]string, 0, len(s.Rows))
	for _, r := range s.Rows {
		rows = append(rows, []string{
			r.Trade.Time.Local().Format(dateLayout),
			string(r.Trade.Side),
			core.FormatUSD(r.Trade.Price),
			core.FormatBTC(r.Trade.Amount),
			core.FormatUSD(r.BasisOrProceeds),
			c.ex.Symbol(),
			core.FormatUSD(r.Trade.FeeAmount),
			r.Trade.OrderID,
		})
	}
	return rows
}

func (c *Console) printStats(s lots.Summary) {
	c.table("TRANSACTION STATS",
		[]string{"avg cost basis/btc", "cost basis", "proceeds", "current amount", "current value", "gain", "gain %", "buy fees", "sell fees"},
		[][]string{{
			core.FormatUSD(s.AvgCostBasis),
			core.FormatUSD(s.BuyBasis),
			core.FormatUSD(s.SellProceeds),
			core.FormatBTC(s.CurrentAmount),
			core.FormatUSD(s.CurrentValue),
			core.FormatUSD(s.Gain),
			core.FormatPercent(s.GainPct),
			core.FormatUSD(s.BuyFees),
			core.FormatUSD(s.SellFees),
		}})
}

func (c *Console) showStats(ctx context.Context) error {
	trades, q, err := c.history(ctx)
	if err != nil {
		return err
	}
	c.printStats(lots.Summarize(trades, q.Last))
	return nil
}

func (c *Console) showHistory(ctx context.Context) error {
	trades, q, err := c.history(ctx)
	if err != nil {
		return err
	}
	s := lots.Summarize(trades, q.Last)
	c.table("TRANSACTION HISTORY", historyHeaders, c.historyRows(s))
	c.printStats(s)
	return nil
}

func (c *Console) exportHistory(ctx context.Context) error {
	trades, q, err := c.history(ctx)
	if err != nil {
		return err
	}
	name, err := c.Ask("Filename (default: history.csv): ")
	if err != nil {
		return err
	}
	if name == "" {
		name = "history.csv"
	}
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "writing history to %s\n", name)
	if err := writeHistoryCSV(name, historyHeaders, c.historyRows(lots.Summarize(trades, q.Last))); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "done.")
	return nil
}

func writeHistoryCSV(path string, headers []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(headers); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c *Console) showClosedLots(ctx context.Context) error {
	trades, q, err := c.history(ctx)
	if err != nil {
		return err
	}
	rep := lots.Match(trades, q.Last)
	rows := make([][]string, 0, len(rep.Closed))
	for _, l := range rep.Closed {
		rows = append(rows, []string{
			core.FormatBTC(l.Amount),
			l.BuyDate.Local().Format(dateLayout),
			l.SellDate.Local().Format(dateLayout),
			core.FormatUSD(l.Proceeds),
			core.FormatUSD(l.Basis),
			core.FormatUSD(l.Gain),
			core.FormatPercent(l.GainPct),
			core.FormatUSD(l.BuyFees),
			core.FormatUSD(l.SellFees),
			core.FormatUSD(l.TotalFees),
			l.BuyOrderID,
			l.SellOrderID,
		})
	}
	c.table("CLOSED LOTS - FIFO ORDERING",
		[]string{"amount", "buy_date", "sell_date", "proceeds", "basis", "gain", "gain_pct", "buy_fees", "sell_fees", "total_fees", "buy_order_id", "sell_order_id"},
		rows)

	t := rep.ClosedTotals
	c.table("CLOSED LOT STATS",
		[]string{"amount", "proceeds", "basis", "gain/loss", "gain/loss %", "avg cost basis/btc", "buy fees", "sell fees", "total fees"},
		[][]string{{
			core.FormatBTC(t.Amount),
			core.FormatUSD(t.Proceeds),
			core.FormatUSD(t.Basis),
			core.FormatUSD(t.Gain),
			core.FormatPercent(t.GainPct),
			core.FormatUSD(t.AvgCostBasis),
			core.FormatUSD(t.BuyFees),
			core.FormatUSD(t.SellFees),
			core.FormatUSD(t.TotalFees),
		}})
	return nil
}

func (c *Console) showOpenLots(ctx context.Context) error {
	trades, q, err := c.history(ctx)
	if err != nil {
		return err
	}
	rep := lots.Match(trades, q.Last)
	rows := make([][]string, 0, len(rep.Open))
	for _, l := range rep.Open {
		rows = append(rows, []string{
			l.Trade.Time.Local().Format(dateLayout),
			string(l.Trade.Side),
			core.FormatUSD(l.Trade.Price),
			core.FormatBTC(l.Amount),
			core.FormatUSD(l.Basis),
			core.FormatUSD(l.Current),
			core.FormatUSD(l.Gain),
			core.FormatPercent(l.GainPct),
			c.ex.Symbol(),
			core.FormatUSD(l.Fees),
			l.Trade.OrderID,
		})
	}
	c.table("OPEN LOTS - FIFO ORDERING",
		[]string{"date", "type", "price", "amount", "basis", "current", "gain", "gain_pct", "symbol", "fee_amount", "order_id"},
		rows)

	t := rep.OpenTotals
	if !t.Amount.IsPositive() {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "OPEN LOT STATS")
		fmt.Fprintln(c.out, separator)
		fmt.Fprintln(c.out, "NO OPEN LOTS")
		fmt.Fprintln(c.out, separator)
		return nil
	}
	c.table("OPEN LOT STATS",
		[]string{"amount", "basis", "current value", "gain/loss", "gain/loss %", "avg cost basis/btc", "total fees"},
		[][]string{{
			core.FormatBTC(t.Amount),
			core.FormatUSD(t.Basis),
			core.FormatUSD(t.Current),
			core.FormatUSD(t.Gain),
			core.FormatPercent(t.GainPct),
			core.FormatUSD(t.AvgCostBasis),
			core.FormatUSD(t.TotalFees),
		}})
	return nil
}

func (c *Console) showOptions(context.Context) error {
	opts := c.engine.Options()
	rows := make([][]string, 0, 3)
	for _, name := range config.OptionNames() {
		v, _ := opts.Get(name)
		rows = append(rows, []string{name, v, strings.Join(config.AllowedValues(name), ", ")})
	}
	c.table("OPTIONS", []string{"option", "value", "allowed"}, rows)
	return nil
}

func (c *Console) setOption(context.Context) error {
	fmt.Fprintln(c.out)
	name, err := c.Ask("opt to configure? ")
	if err != nil {
		return err
	}
	allowed := config.AllowedValues(name)
	if allowed == nil {
		fmt.Fprintln(c.out, "invalid opt name")
		return nil
	}
	val, err := c.Ask(fmt.Sprintf("value [%s]? ", strings.Join(allowed, ", ")))
	if err != nil {
		return err
	}
	opts, err := c.engine.Options().Set(name, val)
	if err != nil {
		fmt.Fprintln(c.out, "invalid value")
		return nil
	}
	c.engine.SetOptions(opts)
	fmt.Fprintf(c.out, "option set: %s = %s\n", name, val)
	return nil
}

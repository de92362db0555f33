package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"text/tabwriter"

	"gemini-desk/internal/config"
	"gemini-desk/internal/core"
	"gemini-desk/internal/exchange"
	"gemini-desk/internal/market"
	"gemini-desk/internal/order"
)

const separator = "-----------------------------------------------------------------------------"

var errExit = errors.New("exit")

type Settings struct {
	Mode         config.ExchangeMode
	HistoryLimit int
}

// Console is the interactive command loop of one operator session.
type Console struct {
	*Prompter

	ex           exchange.Exchange
	engine       *order.Engine
	quotes       *market.Quotes
	fees         *market.Fees
	mode         config.ExchangeMode
	historyLimit int
	cmds         []command
}

type command struct {
	name string
	info string
	run  func(ctx context.Context) error
}

func New(p *Prompter, ex exchange.Exchange, engine *order.Engine, s Settings) *Console {
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = 500
	}
	c := &Console{
		Prompter:     p,
		ex:           ex,
		engine:       engine,
		quotes:       market.NewQuotes(ex),
		fees:         market.NewFees(ex),
		mode:         s.Mode,
		historyLimit: s.HistoryLimit,
	}
	c.cmds = []command{
		{"bal", "balances and available amounts", c.showBalances},
		{"stat", "avg. cost basis, gain/loss, perf", c.showStats},
		{"list", "list open orders", c.showOrders},
		{"tick", "price quote", c.showQuote},
		{"buy", "buy in USD quantity including fees", c.trade(core.Buy, core.USD)},
		{"buy btc", "buy in BTC quantity", c.trade(core.Buy, core.BTC)},
		{"sell", "sell in net USD quantity including fees", c.trade(core.Sell, core.USD)},
		{"sell btc", "sell in BTC quantity", c.trade(core.Sell, core.BTC)},
		{"status", "order status", c.showStatus},
		{"cancel", "cancel an order", c.cancel},
		{"cancel all", "cancel all orders", c.cancelAll},
		{"cancel replace", "cancel and replace order", c.cancelReplace},
		{"history", "list past trades", c.showHistory},
		{"open", "list open lots", c.showOpenLots},
		{"closed", "list closed lots", c.showClosedLots},
		{"history export", "export history to CSV", c.exportHistory},
		{"fees", "show fees", c.showFees},
		{"opts", "view options", c.showOptions},
		{"set opt", "set option", c.setOption},
		{"watch", "follow an order until it closes", c.watch},
		{"exit", "exit the console app", func(context.Context) error { return errExit }},
	}
	return c
}

// Start prints the session banner and the account overview.
func (c *Console) Start(ctx context.Context) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "***************************")
	fmt.Fprintln(c.out, "****      GEMINI       ****")
	switch c.mode {
	case config.ExchangeLive:
		fmt.Fprintln(c.out, "****   LIVE EXCHANGE   ****")
	case config.ExchangePaper:
		fmt.Fprintln(c.out, "****   PAPER TRADING   ****")
	default:
		fmt.Fprintln(c.out, "****      SANDBOX      ****")
	}
	fmt.Fprintln(c.out, "***************************")

	for _, show := range []func(context.Context) error{c.showBalances, c.showStats, c.showOrders, c.showQuote} {
		if err := show(ctx); err != nil {
			c.printErr(err)
		}
	}
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "help or ? for commands")
}

// Run reads commands until exit, end of input or ctx ends.
func (c *Console) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintln(c.out)
		line, err := c.Ask("$ > ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := c.Exec(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				fmt.Fprintln(c.out, "Have a good one!")
				return nil
			}
			c.printErr(err)
		}
	}
}

// Exec runs a single command line. Unknown commands print the help table.
func (c *Console) Exec(ctx context.Context, line string) error {
	name := strings.Join(strings.Fields(strings.ToLower(line)), " ")
	for _, cmd := range c.cmds {
		if cmd.name == name {
			return cmd.run(ctx)
		}
	}
	c.showHelp()
	return nil
}

func (c *Console) showHelp() {
	rows := make([][]string, 0, len(c.cmds)+1)
	for _, cmd := range c.cmds {
		rows = append(rows, []string{cmd.name, cmd.info})
	}
	rows = append(rows, []string{"help, ?", "this list"})
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "command\tinfo\t")
	fmt.Fprintln(tw, "-------\t----\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t\n", r[0], r[1])
	}
	_ = tw.Flush()
}

// ErrorLine renders err for the operator, with the status and reason of
// exchange failures.
func ErrorLine(err error) string {
	if exErr, ok := core.AsExchangeError(err); ok {
		return fmt.Sprintf("ERROR: [%d] %s: %s", exErr.Status, exErr.Reason, exErr.Message)
	}
	return fmt.Sprintf("ERROR: %v", err)
}

func (c *Console) printErr(err error) {
	fmt.Fprintln(c.out, ErrorLine(err))
	if bool(c.engine.Options().Debug) {
		log.Printf("level=DEBUG event=command_failed err=%q", err.Error())
	}
}

// table writes a titled, right aligned table between separator lines.
func (c *Console) table(title string, headers []string, rows [][]string) {
	fmt.Fprintln(c.out)
	if title != "" {
		fmt.Fprintln(c.out, title)
	}
	fmt.Fprintln(c.out, separator)
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	if len(headers) > 0 {
		fmt.Fprintln(tw, strings.Join(headers, "\t")+"\t")
	}
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t")+"\t")
	}
	_ = tw.Flush()
	fmt.Fprintln(c.out, separator)
}

func (c *Console) header(title string) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "**********************************")
	fmt.Fprintln(c.out, title)
	fmt.Fprintln(c.out, "**********************************")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gemini-desk/internal/config"
	"gemini-desk/internal/console"
	"gemini-desk/internal/exchange"
	"gemini-desk/internal/exchange/gemini"
	"gemini-desk/internal/exchange/paper"
	"gemini-desk/internal/metrics"
	"gemini-desk/internal/order"
	"gemini-desk/internal/session"
)

const separator = "-----------------------------------------------------------------------------"

func main() {
	var configPath, exchangeName string
	flag.StringVar(&configPath, "config", config.DefaultPath, "config yaml path")
	flag.StringVar(&exchangeName, "exchange", "", "sandbox, live or paper; asked at startup when empty")
	flag.Parse()

	if err := run(configPath, exchangeName, os.Stdin, os.Stdout); err != nil {
		fatal(err.Error())
	}
}

func run(configPath, exchangeName string, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := applyExchangeFlag(&cfg, exchangeName); err != nil {
		return err
	}

	ctx := context.Background()
	p := console.NewPrompter(in, out)
	ex, err := connect(ctx, p, out, &cfg)
	if err != nil {
		return err
	}

	lock, err := session.Acquire(cfg.State.Dir, string(cfg.Exchange), session.Options{
		StaleAfter: time.Duration(cfg.State.LockStaleSec) * time.Second,
	})
	if err != nil {
		return err
	}
	defer func() {
		if relErr := lock.Release(); relErr != nil {
			fmt.Fprintf(os.Stderr, "release session lock failed: %v\n", relErr)
		}
	}()

	if cfg.Metrics.ListenAddr != "" {
		srv, err := metrics.Listen(cfg.Metrics.ListenAddr)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Close(closeCtx); err != nil {
				fmt.Fprintf(os.Stderr, "close metrics server failed: %v\n", err)
			}
		}()
	}

	eng := order.NewEngine(ex, cfg.Options)
	c := console.New(p, ex, eng, console.Settings{Mode: cfg.Exchange, HistoryLimit: cfg.Gemini.HistoryLimit})
	c.Start(ctx)
	return c.Run(ctx)
}

func applyExchangeFlag(cfg *config.Config, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	mode := config.ExchangeMode(name)
	if !mode.Valid() {
		return fmt.Errorf("-exchange must be sandbox, live, or paper")
	}
	cfg.Exchange = mode
	return nil
}

// connect asks for the exchange and keys until the exchange accepts them or
// the operator gives up. The chosen mode is stored in cfg.
func connect(ctx context.Context, p *console.Prompter, out io.Writer, cfg *config.Config) (exchange.Exchange, error) {
	fixed := cfg.Exchange
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			fmt.Fprintln(out)
			again, err := p.Ask("Try again (yes/no)? ")
			if err != nil || (again != "yes" && again != "y") {
				return nil, errors.New("login aborted")
			}
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, separator)
		fmt.Fprintln(out, "GEMINI API LOGIN")
		fmt.Fprintln(out, separator)

		mode := fixed
		if mode == "" {
			var err error
			if mode, err = p.ChooseExchange(); err != nil {
				if errors.Is(err, io.EOF) {
					return nil, err
				}
				fmt.Fprintln(out, console.ErrorLine(err))
				continue
			}
		}
		if mode == config.ExchangePaper {
			cfg.Exchange = mode
			return paper.New(cfg.Symbol, cfg.Paper), nil
		}

		next := *cfg
		next.Exchange = mode
		creds, err := p.Login(next)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, err
			}
			fmt.Fprintln(out, console.ErrorLine(err))
			continue
		}
		next.ApplyExchangeDefaults()
		client, err := gemini.NewClient(next.Gemini, creds, next.Symbol, mode == config.ExchangeSandbox, bool(next.Options.Debug))
		if err != nil {
			fmt.Fprintln(out, console.ErrorLine(err))
			continue
		}
		if _, err := client.Balances(ctx); err != nil {
			fmt.Fprintln(out, console.ErrorLine(err))
			continue
		}
		*cfg = next
		return client, nil
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

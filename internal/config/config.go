package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"gemini-desk/internal/core"
)

type ExchangeMode string

const (
	ExchangeSandbox ExchangeMode = "sandbox"
	ExchangeLive    ExchangeMode = "live"
	ExchangePaper   ExchangeMode = "paper"
)

func (m ExchangeMode) Valid() bool {
	return m == ExchangeSandbox || m == ExchangeLive || m == ExchangePaper
}

const DefaultPath = "config/config.yaml"

type Config struct {
	Exchange    ExchangeMode      `yaml:"exchange"`
	Symbol      string            `yaml:"symbol"`
	Options     Options           `yaml:"options"`
	Gemini      GeminiConfig      `yaml:"gemini"`
	Paper       PaperConfig       `yaml:"paper"`
	State       StateConfig       `yaml:"state"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

type GeminiConfig struct {
	RestBaseURL    string `yaml:"rest_base_url"`
	WSBaseURL      string `yaml:"ws_base_url"`
	HTTPTimeoutSec int64  `yaml:"http_timeout_sec"`
	RetryCount     *int   `yaml:"retry_count"`
	HistoryLimit   int    `yaml:"history_limit"`
}

// Retries returns the configured retry count for public requests.
func (g GeminiConfig) Retries() int {
	if g.RetryCount == nil {
		return 0
	}
	return *g.RetryCount
}

type PaperConfig struct {
	InitialUSD  Decimal `yaml:"initial_usd"`
	InitialBTC  Decimal `yaml:"initial_btc"`
	Bid         Decimal `yaml:"bid"`
	Ask         Decimal `yaml:"ask"`
	MakerFeeBps Decimal `yaml:"maker_fee_bps"`
	TakerFeeBps Decimal `yaml:"taker_fee_bps"`
}

type StateConfig struct {
	Dir          string `yaml:"dir"`
	LockStaleSec int64  `yaml:"lock_stale_sec"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type CredentialsConfig struct {
	SandboxFile string `yaml:"sandbox_file"`
	LiveFile    string `yaml:"live_file"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	var cfg Config
	cfg.normalize()
	cfg.applyDefaults()
	return cfg
}

// Load reads path; a missing file yields Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, err
		}
		var extra yaml.Node
		if err := dec.Decode(&extra); err != io.EOF {
			if err == nil {
				return Config{}, fmt.Errorf("config must contain a single YAML document")
			}
			return Config{}, err
		}
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Exchange = ExchangeMode(strings.ToLower(strings.TrimSpace(string(c.Exchange))))
	c.Symbol = strings.ToLower(strings.TrimSpace(c.Symbol))
	c.Options.ReserveAPIFees = core.FeePolicy(strings.ToLower(strings.TrimSpace(string(c.Options.ReserveAPIFees))))
	c.Gemini.RestBaseURL = strings.TrimSpace(c.Gemini.RestBaseURL)
	c.Gemini.WSBaseURL = strings.TrimSpace(c.Gemini.WSBaseURL)
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	c.Metrics.ListenAddr = strings.TrimSpace(c.Metrics.ListenAddr)
	c.Credentials.SandboxFile = strings.TrimSpace(c.Credentials.SandboxFile)
	c.Credentials.LiveFile = strings.TrimSpace(c.Credentials.LiveFile)
}

func (c *Config) applyDefaults() {
	if c.Symbol == "" {
		c.Symbol = "btcusd"
	}
	if c.Options.ReserveAPIFees == "" {
		c.Options.ReserveAPIFees = core.FeeMax
	}
	if c.Gemini.HTTPTimeoutSec == 0 {
		c.Gemini.HTTPTimeoutSec = 15
	}
	if c.Gemini.RetryCount == nil {
		retries := 2
		c.Gemini.RetryCount = &retries
	}
	if c.Gemini.HistoryLimit == 0 {
		c.Gemini.HistoryLimit = 500
	}
	if c.Paper.InitialUSD.IsZero() && c.Paper.InitialBTC.IsZero() {
		c.Paper.InitialUSD = decimalOf("10000")
	}
	if c.Paper.Bid.IsZero() && c.Paper.Ask.IsZero() {
		c.Paper.Bid = decimalOf("30000.00")
		c.Paper.Ask = decimalOf("30000.50")
	}
	if !c.Paper.MakerFeeBps.IsSet() && !c.Paper.TakerFeeBps.IsSet() {
		c.Paper.MakerFeeBps = decimalOf("10")
		c.Paper.TakerFeeBps = decimalOf("35")
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.State.LockStaleSec == 0 {
		c.State.LockStaleSec = 600
	}
	if c.Credentials.SandboxFile == "" {
		c.Credentials.SandboxFile = "config/sandbox.yaml"
	}
	if c.Credentials.LiveFile == "" {
		c.Credentials.LiveFile = "config/live.yaml"
	}
}

// ApplyExchangeDefaults fills Gemini endpoints once the exchange mode is known,
// which may only happen after the operator answers the startup prompt.
func (c *Config) ApplyExchangeDefaults() {
	if c.Gemini.RestBaseURL == "" {
		switch c.Exchange {
		case ExchangeSandbox:
			c.Gemini.RestBaseURL = "https://api.sandbox.gemini.com"
		case ExchangeLive:
			c.Gemini.RestBaseURL = "https://api.gemini.com"
		}
	}
	if c.Gemini.WSBaseURL == "" {
		switch c.Exchange {
		case ExchangeSandbox:
			c.Gemini.WSBaseURL = "wss://api.sandbox.gemini.com"
		case ExchangeLive:
			c.Gemini.WSBaseURL = "wss://api.gemini.com"
		}
	}
}

func (c Config) Validate() error {
	if c.Exchange != "" && !c.Exchange.Valid() {
		return fmt.Errorf("exchange must be sandbox, live, or paper")
	}
	if !isValidSymbol(c.Symbol) {
		return fmt.Errorf("symbol must match [a-z0-9], length 6..12")
	}
	if !c.Options.ReserveAPIFees.Valid() {
		return fmt.Errorf("options.reserve_api_fees must be none, actual, or max")
	}
	if c.Gemini.HTTPTimeoutSec < 1 || c.Gemini.HTTPTimeoutSec > 120 {
		return fmt.Errorf("gemini.http_timeout_sec must be between 1 and 120")
	}
	if r := c.Gemini.Retries(); r < 0 || r > 10 {
		return fmt.Errorf("gemini.retry_count must be between 0 and 10")
	}
	if c.Gemini.HistoryLimit < 1 || c.Gemini.HistoryLimit > 500 {
		return fmt.Errorf("gemini.history_limit must be between 1 and 500")
	}
	if c.Gemini.RestBaseURL != "" {
		if err := validateURL(c.Gemini.RestBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("gemini.rest_base_url %v", err)
		}
	}
	if c.Gemini.WSBaseURL != "" {
		if err := validateURL(c.Gemini.WSBaseURL, "ws", "wss"); err != nil {
			return fmt.Errorf("gemini.ws_base_url %v", err)
		}
	}
	if c.Paper.InitialUSD.IsNegative() || c.Paper.InitialBTC.IsNegative() {
		return fmt.Errorf("paper initial balances must be >= 0")
	}
	if !c.Paper.Bid.IsPositive() || c.Paper.Ask.Cmp(c.Paper.Bid.Decimal) < 0 {
		return fmt.Errorf("paper bid must be > 0 and ask >= bid")
	}
	if c.Paper.MakerFeeBps.IsNegative() || c.Paper.TakerFeeBps.IsNegative() {
		return fmt.Errorf("paper fee bps must be >= 0")
	}
	if c.State.LockStaleSec < 0 || c.State.LockStaleSec > 86400 {
		return fmt.Errorf("state.lock_stale_sec must be between 0 and 86400")
	}
	return nil
}

// CredentialFile returns the credential file for the selected exchange.
func (c Config) CredentialFile() string {
	if c.Exchange == ExchangeLive {
		return c.Credentials.LiveFile
	}
	return c.Credentials.SandboxFile
}

func isValidSymbol(v string) bool {
	if len(v) < 6 || len(v) > 12 {
		return false
	}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}

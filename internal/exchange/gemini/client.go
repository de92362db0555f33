package gemini

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"gemini-desk/internal/config"
	"gemini-desk/internal/metrics"
)

const (
	headerAPIKey    = "X-GEMINI-APIKEY"
	headerPayload   = "X-GEMINI-PAYLOAD"
	headerSignature = "X-GEMINI-SIGNATURE"
)

type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsBaseURL string
	symbol    string
	sandbox   bool

	public  *resty.Client
	private *resty.Client

	mu        sync.Mutex
	lastNonce int64
	debug     bool
	now       func() time.Time
}

type Options struct {
	APIKey         string
	APISecret      string
	RestBaseURL    string
	WSBaseURL      string
	Symbol         string
	Sandbox        bool
	HTTPTimeoutSec int64
	RetryCount     int
	Debug          bool
}

func NewClient(cfg config.GeminiConfig, creds config.Credentials, symbol string, sandbox, debug bool) (*Client, error) {
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, errors.New("api_key/secret_key required")
	}
	return NewClientWithOptions(Options{
		APIKey:         creds.APIKey,
		APISecret:      creds.SecretKey,
		RestBaseURL:    cfg.RestBaseURL,
		WSBaseURL:      cfg.WSBaseURL,
		Symbol:         symbol,
		Sandbox:        sandbox,
		HTTPTimeoutSec: cfg.HTTPTimeoutSec,
		RetryCount:     cfg.Retries(),
		Debug:          debug,
	}), nil
}

func NewClientWithOptions(opts Options) *Client {
	timeout := 15 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	symbol := strings.ToLower(strings.TrimSpace(opts.Symbol))
	if symbol == "" {
		symbol = "btcusd"
	}
	public := resty.New().
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryableStatus)
	// Private calls are never retried: a resent payload reuses its nonce and would be rejected.
	private := resty.New().SetTimeout(timeout)
	for _, rc := range []*resty.Client{public, private} {
		rc.OnRequestLog(redactRequestLog)
	}
	c := &Client{
		apiKey:    opts.APIKey,
		apiSecret: opts.APISecret,
		baseURL:   strings.TrimRight(opts.RestBaseURL, "/"),
		wsBaseURL: strings.TrimRight(opts.WSBaseURL, "/"),
		symbol:    symbol,
		sandbox:   opts.Sandbox,
		public:    public,
		private:   private,
		now:       time.Now,
	}
	c.SetDebug(opts.Debug)
	return c
}

func (c *Client) Name() string {
	if c.sandbox {
		return "gemini-sandbox"
	}
	return "gemini"
}

func (c *Client) Symbol() string { return c.symbol }

func (c *Client) SetDebug(on bool) {
	c.mu.Lock()
	c.debug = on
	c.mu.Unlock()
	c.public.SetDebug(on)
	c.private.SetDebug(on)
}

func (c *Client) debugEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debug
}

func redactRequestLog(rl *resty.RequestLog) error {
	if rl.Header.Get(headerAPIKey) != "" {
		rl.Header.Set(headerAPIKey, "***")
	}
	if rl.Header.Get(headerSignature) != "" {
		rl.Header.Set(headerSignature, "***")
	}
	return nil
}

func retryableStatus(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && (resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500)
}

// nextNonce returns a millisecond nonce that is strictly increasing for this client.
func (c *Client) nextNonce() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.now().UnixMilli()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

func (c *Client) signedHeaders(path string, params map[string]interface{}) (http.Header, error) {
	if c.apiKey == "" || c.apiSecret == "" {
		return nil, errors.New("api_key/secret_key required")
	}
	payload := map[string]interface{}{
		"request": path,
		"nonce":   c.nextNonce(),
	}
	for k, v := range params {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	h.Set("Cache-Control", "no-cache")
	h.Set(headerAPIKey, c.apiKey)
	h.Set(headerPayload, encoded)
	h.Set(headerSignature, sign(c.apiSecret, encoded))
	return h, nil
}

func (c *Client) doPublic(ctx context.Context, path string) ([]byte, error) {
	started := c.now()
	resp, err := c.public.R().SetContext(ctx).Get(c.baseURL + path)
	body, err := c.finish(path, started, resp, err)
	metrics.ObserveRequest(publicEndpoint(path), err)
	return body, err
}

func (c *Client) doPrivate(ctx context.Context, path string, params map[string]interface{}) ([]byte, error) {
	headers, err := c.signedHeaders(path, params)
	if err != nil {
		return nil, err
	}
	started := c.now()
	resp, err := c.private.R().SetContext(ctx).SetHeaderMultiValues(headers).Post(c.baseURL + path)
	body, err := c.finish(path, started, resp, err)
	metrics.ObserveRequest(path, err)
	return body, err
}

func (c *Client) finish(path string, started time.Time, resp *resty.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if c.debugEnabled() {
		log.Printf("level=DEBUG event=gemini_response path=%q status=%d duration_ms=%d", path, resp.StatusCode(), c.now().Sub(started).Milliseconds())
	}
	if resp.StatusCode()/100 != 2 {
		return nil, parseAPIError(resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

// publicEndpoint strips the symbol so metric labels stay bounded.
func publicEndpoint(path string) string {
	if i := strings.LastIndex(path, "/"); i > 0 {
		return path[:i]
	}
	return path
}

func sign(secret, payload string) string {
	mac := hmac.New(sha512.New384, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gemini-desk/internal/core"
)

func newTestClient(url string) *Client {
	return NewClientWithOptions(Options{
		APIKey:      "k",
		APISecret:   "s",
		RestBaseURL: url,
		Symbol:      "BTCUSD",
		Sandbox:     true,
	})
}

func decodePayload(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	encoded := r.Header.Get(headerPayload)
	if got, want := r.Header.Get(headerSignature), sign("s", encoded); got != want {
		t.Fatalf("signature = %q, want %q", got, want)
	}
	if r.Header.Get(headerAPIKey) != "k" {
		t.Fatalf("api key header = %q, want k", r.Header.Get(headerAPIKey))
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["request"] != r.URL.Path {
		t.Fatalf("payload request = %v, want %s", payload["request"], r.URL.Path)
	}
	return payload
}

func TestNextNonceStrictlyIncreasing(t *testing.T) {
	c := newTestClient("http://unused")
	fixed := time.UnixMilli(1_700_000_000_000)
	c.now = func() time.Time { return fixed }
	first := c.nextNonce()
	second := c.nextNonce()
	if first != fixed.UnixMilli() || second != first+1 {
		t.Fatalf("nonces = %d,%d, want %d,%d", first, second, fixed.UnixMilli(), fixed.UnixMilli()+1)
	}
}

func TestQuoteParsesTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/pubticker/btcusd" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"bid":"9345.70","ask":"9347.67","last":"9346.20","volume":{"BTC":"1"}}`))
	}))
	defer srv.Close()

	q, err := newTestClient(srv.URL).Quote(context.Background())
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if !q.Spread().Equal(decimal.RequireFromString("1.97")) {
		t.Fatalf("spread = %s, want 1.97", q.Spread())
	}
	if !q.Last.Equal(decimal.RequireFromString("9346.20")) {
		t.Fatalf("last = %s, want 9346.20", q.Last)
	}
}

func TestFeesConvertsBasisPointsToPercent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodePayload(t, r)
		_, _ = w.Write([]byte(`{"api_maker_fee_bps":10,"api_taker_fee_bps":35,"web_maker_fee_bps":100,"web_taker_fee_bps":100}`))
	}))
	defer srv.Close()

	fees, err := newTestClient(srv.URL).Fees(context.Background())
	if err != nil {
		t.Fatalf("Fees() error = %v", err)
	}
	if !fees.APIMakerPct.Equal(decimal.RequireFromString("0.1")) || !fees.APITakerPct.Equal(decimal.RequireFromString("0.35")) {
		t.Fatalf("api fees = %s/%s, want 0.1/0.35", fees.APIMakerPct, fees.APITakerPct)
	}
	if !fees.WebTakerPct.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("web taker fee = %s, want 1", fees.WebTakerPct)
	}
}

func TestSubmitOrderPayload(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/order/new" {
			http.NotFound(w, r)
			return
		}
		payload = decodePayload(t, r)
		_, _ = w.Write([]byte(`{"order_id":"106817811","client_order_id":"cid-1","symbol":"btcusd","side":"buy","type":"exchange limit","timestamp":"1547220404","timestampms":1547220404836,"is_live":true,"is_cancelled":false,"executed_amount":"0","remaining_amount":"0.12345678","original_amount":"0.12345678","price":"3633.00","avg_execution_price":"0.00","options":["maker-or-cancel"]}`))
	}))
	defer srv.Close()

	rec, err := newTestClient(srv.URL).SubmitOrder(context.Background(), core.OrderRequest{
		ClientOrderID: "cid-1",
		Side:          core.Buy,
		Price:         decimal.RequireFromString("3633.00"),
		Amount:        decimal.RequireFromString("0.123456789"),
		MakerOrCancel: true,
	})
	if err != nil {
		t.Fatalf("SubmitOrder() error = %v", err)
	}
	if payload["amount"] != "0.12345678" {
		t.Fatalf("amount = %v, want 0.12345678", payload["amount"])
	}
	if payload["type"] != "exchange limit" || payload["side"] != "buy" || payload["symbol"] != "btcusd" {
		t.Fatalf("payload = %v", payload)
	}
	opts, _ := payload["options"].([]interface{})
	if len(opts) != 1 || opts[0] != "maker-or-cancel" {
		t.Fatalf("options = %v, want [maker-or-cancel]", payload["options"])
	}
	if rec.OrderID != "106817811" || !rec.IsLive || rec.Side != core.Buy {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Timestamp.UnixMilli() != 1547220404836 {
		t.Fatalf("timestamp = %v", rec.Timestamp)
	}
}

func TestSubmitOrderGeneratesClientOrderID(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload = decodePayload(t, r)
		_, _ = w.Write([]byte(`{"order_id":"1","side":"sell","is_live":true}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SubmitOrder(context.Background(), core.OrderRequest{
		Side:   core.Sell,
		Price:  decimal.NewFromInt(100),
		Amount: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("SubmitOrder() error = %v", err)
	}
	if id, _ := payload["client_order_id"].(string); len(id) != 36 {
		t.Fatalf("client_order_id = %v, want uuid", payload["client_order_id"])
	}
	if opts, _ := payload["options"].([]interface{}); len(opts) != 0 {
		t.Fatalf("options = %v, want empty", payload["options"])
	}
}

func TestSubmitOrderInsufficientFunds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"result":"error","reason":"InsufficientFunds","message":"Failed to place buy order"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SubmitOrder(context.Background(), core.OrderRequest{
		Side:   core.Buy,
		Price:  decimal.NewFromInt(100),
		Amount: decimal.NewFromInt(1),
	})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("SubmitOrder() error = %v, want ErrInsufficientFunds", err)
	}
	exErr, ok := core.AsExchangeError(err)
	if !ok || exErr.Status != http.StatusNotAcceptable || exErr.Reason != "InsufficientFunds" {
		t.Fatalf("exchange error = %+v ok=%v", exErr, ok)
	}
}

func TestOrderStatusRejectsNonNumericID(t *testing.T) {
	_, err := newTestClient("http://unused").OrderStatus(context.Background(), "abc")
	if !errors.Is(err, core.ErrInvalidOrder) {
		t.Fatalf("OrderStatus(abc) error = %v, want ErrInvalidOrder", err)
	}
}

func TestTradeHistoryOldestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := decodePayload(t, r)
		if payload["limit_trades"] != float64(50) {
			t.Fatalf("limit_trades = %v, want 50", payload["limit_trades"])
		}
		_, _ = w.Write([]byte(`[
			{"price":"110","amount":"1","timestamp":1547232912,"timestampms":1547232912000,"type":"Sell","fee_currency":"USD","fee_amount":"1","tid":2,"order_id":"20"},
			{"price":"100","amount":"1","timestamp":1547232911,"timestampms":1547232911000,"type":"Buy","fee_currency":"USD","fee_amount":"1","tid":1,"order_id":"10"}
		]`))
	}))
	defer srv.Close()

	trades, err := newTestClient(srv.URL).TradeHistory(context.Background(), 50)
	if err != nil {
		t.Fatalf("TradeHistory() error = %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("len(trades) = %d, want 2", len(trades))
	}
	if trades[0].Side != core.Buy || trades[0].TradeID != "1" || trades[1].Side != core.Sell {
		t.Fatalf("trades = %+v", trades)
	}
}

func TestCancelAllOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodePayload(t, r)
		_, _ = w.Write([]byte(`{"result":"ok","details":{"cancelledOrders":[330429345,330429346],"cancelRejects":[]}}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).CancelAllOrders(context.Background())
	if err != nil {
		t.Fatalf("CancelAllOrders() error = %v", err)
	}
	if len(res.Cancelled) != 2 || res.Cancelled[0] != "330429345" || len(res.Rejected) != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestPublicRequestsRetryButPrivateDoNot(t *testing.T) {
	var publicCalls, privateCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if atomic.AddInt32(&publicCalls, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`{"bid":"1","ask":"2","last":"1.5"}`))
			return
		}
		atomic.AddInt32(&privateCalls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", RestBaseURL: srv.URL, RetryCount: 2})
	if _, err := c.Quote(context.Background()); err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if atomic.LoadInt32(&publicCalls) != 2 {
		t.Fatalf("public calls = %d, want 2", publicCalls)
	}
	if _, err := c.Balances(context.Background()); err == nil {
		t.Fatalf("Balances() error = nil, want 502")
	}
	if atomic.LoadInt32(&privateCalls) != 1 {
		t.Fatalf("private calls = %d, want 1", privateCalls)
	}
}

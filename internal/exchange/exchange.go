package exchange

import (
	"context"

	"gemini-desk/internal/core"
)

// Exchange is the fixed-pair view of the exchange the console trades on.
// Failures that the exchange reports carry a core.ExchangeError.
type Exchange interface {
	Name() string
	Symbol() string
	Quote(ctx context.Context) (core.Quote, error)
	Fees(ctx context.Context) (core.FeeRates, error)
	Balances(ctx context.Context) ([]core.Balance, error)
	SubmitOrder(ctx context.Context, req core.OrderRequest) (core.OrderRecord, error)
	OrderStatus(ctx context.Context, orderID string) (core.OrderRecord, error)
	CancelOrder(ctx context.Context, orderID string) (core.OrderRecord, error)
	CancelAllOrders(ctx context.Context) (core.CancelAllResult, error)
	ActiveOrders(ctx context.Context) ([]core.OrderRecord, error)
	TradeHistory(ctx context.Context, limit int) ([]core.Trade, error)
}

type OrderEvent struct {
	Type   string
	Order  core.OrderRecord
	Reason string
}

// OrderWatcher is implemented by exchanges that can stream order lifecycle events.
type OrderWatcher interface {
	WatchOrder(ctx context.Context, orderID string, fn func(OrderEvent) bool) error
}

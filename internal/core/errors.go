package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder     = errors.New("invalid order")
	ErrNotPrepared      = errors.New("order not prepared")
	ErrAlreadyCancelled = errors.New("order already cancelled")
	ErrNoActiveOrder    = errors.New("no order to replace")
	ErrRetryExhausted   = errors.New("retry already attempted")
)

var (
	// ErrInsufficientFunds indicates the exchange rejected the action due to insufficient funds.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrOrderNotFound indicates the order does not exist on exchange.
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidNonce  = errors.New("invalid nonce")
	ErrRateLimited   = errors.New("rate limited")
	ErrMaintenance   = errors.New("exchange maintenance")
)

const ReasonInsufficientFunds = "InsufficientFunds"

type InvalidOrderError struct {
	Field string
	Value string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Value)
}

func (e *InvalidOrderError) Is(target error) bool {
	return target == ErrInvalidOrder
}

// ExchangeError is a failed exchange call as reported by the exchange.
type ExchangeError struct {
	Status  int
	Reason  string
	Message string
}

func (e ExchangeError) Error() string {
	return fmt.Sprintf("[%d] %s: %s", e.Status, e.Reason, e.Message)
}

func AsExchangeError(err error) (ExchangeError, bool) {
	if err == nil {
		return ExchangeError{}, false
	}
	var exErr ExchangeError
	if !errors.As(err, &exErr) {
		return ExchangeError{}, false
	}
	return exErr, true
}

package order

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gemini-desk/internal/core"
)

// Confirmer is the operator gate between preparation and submission.
type Confirmer interface {
	// ConfirmOrder shows the prepared order and asks to execute it.
	ConfirmOrder(o *Order) bool
	// ConfirmMaxFees asks to re-prepare with the max fee reservation after
	// the exchange reported insufficient funds.
	ConfirmMaxFees(o *Order) bool
	// ConfirmTaker asks to accept the taker fee of o after a maker-or-cancel
	// order was cancelled on arrival.
	ConfirmTaker(o *Order) bool
}

// Place prepares, confirms and executes o, walking the insufficient-funds
// and auto-cancel retries. Each retry happens at most once.
func (e *Engine) Place(ctx context.Context, o *Order, c Confirmer) (Result, error) {
	if err := e.Prepare(ctx, o); err != nil {
		return Result{}, err
	}
	if !c.ConfirmOrder(o) {
		return Result{Outcome: Declined}, nil
	}
	res, err := e.Execute(ctx, o)
	if err != nil {
		return res, err
	}

	if res.Outcome == InsufficientFunds {
		if !c.ConfirmMaxFees(o) {
			return Result{Outcome: Declined, Err: res.Err}, nil
		}
		if err := e.RetryWithMaxFees(ctx, o); err != nil {
			return res, err
		}
		if !c.ConfirmOrder(o) {
			return Result{Outcome: Declined, Err: res.Err}, nil
		}
		if res, err = e.Execute(ctx, o); err != nil {
			return res, err
		}
	}

	if res.Outcome == AutoCancelled {
		return e.retryAsTaker(ctx, o, c, res)
	}
	return res, nil
}

// Replace cancels the order behind o and resubmits its remaining amount at
// o's current price, after the operator confirmed the replacement. The
// confirmed amount is taken before the cancel; fills that land in between
// shrink the replacement, which is reported in Result.Warnings.
func (e *Engine) Replace(ctx context.Context, o *Order, c Confirmer) (Result, error) {
	if o.status == nil {
		return Result{}, core.ErrNoActiveOrder
	}
	o.SetQuantity(o.status.RemainingAmount())
	o.SetUnit(core.BTC)
	if err := e.Prepare(ctx, o); err != nil {
		return Result{}, err
	}
	if !c.ConfirmOrder(o) {
		return Result{Outcome: Declined}, nil
	}
	confirmed := o.baseAmount
	res, err := e.CancelAndReplace(ctx, o)
	if err != nil {
		return res, err
	}
	if o.baseAmount.LessThan(confirmed) {
		log.Printf("level=WARN event=order_replace_resized confirmed_amount=%s amount=%s", confirmed, o.baseAmount)
		res.Warnings = append(res.Warnings, fmt.Sprintf("warning: %s BTC filled before the cancel, replaced %s BTC",
			core.FormatBTC(confirmed.Sub(o.baseAmount)), core.FormatBTC(o.baseAmount)))
	}
	if res.Outcome == AutoCancelled {
		warnings := res.Warnings
		res.Warnings = nil
		res, err = e.retryAsTaker(ctx, o, c, res)
		res.Warnings = append(warnings, res.Warnings...)
		return res, err
	}
	return res, nil
}

func (e *Engine) retryAsTaker(ctx context.Context, o *Order, c Confirmer, prev Result) (Result, error) {
	if err := e.RetryAsTaker(ctx, o); err != nil {
		if errors.Is(err, core.ErrRetryExhausted) {
			return prev, nil
		}
		return prev, err
	}
	if !c.ConfirmTaker(o) || !c.ConfirmOrder(o) {
		return Result{Outcome: Declined, Status: prev.Status}, nil
	}
	return e.Execute(ctx, o)
}

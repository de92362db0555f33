package order

import (
	"github.com/shopspring/decimal"

	"gemini-desk/internal/core"
)

type State string

const (
	StateUnprepared State = "unprepared"
	StatePrepared   State = "prepared"
	StateSubmitted  State = "submitted"
	// StateLive means the exchange accepted the order; it may already be filled.
	StateLive      State = "live"
	StateCancelled State = "cancelled"
	StateRejected  State = "rejected"
)

var unpreparedAmount = decimal.NewFromInt(-1)

// Order is the operator's working order. It is owned by a single caller and
// is not safe for concurrent use. Every input setter discards the derived
// values, so they are only meaningful while Prepared() is true.
type Order struct {
	side          core.Side
	price         decimal.Decimal
	quantity      decimal.Decimal
	unit          core.Unit
	makerOrCancel bool
	policy        core.FeePolicy

	baseAmount decimal.Decimal
	subtotal   decimal.Decimal
	feePct     decimal.Decimal
	fee        decimal.Decimal
	total      decimal.Decimal
	warnings   []string
	prepared   bool

	state        State
	status       *Status
	takerRetries int
}

// New returns an unprepared order. Policy defaults to max and
// maker-or-cancel to off; Engine.NewOrder applies the operator options.
func New(side core.Side, price, quantity decimal.Decimal, unit core.Unit) *Order {
	o := &Order{
		side:     side,
		price:    price,
		quantity: quantity,
		unit:     unit,
		policy:   core.FeeMax,
	}
	o.reset()
	return o
}

func (o *Order) reset() {
	o.baseAmount = unpreparedAmount
	o.subtotal = decimal.Zero
	o.feePct = decimal.Zero
	o.fee = decimal.Zero
	o.total = decimal.Zero
	o.warnings = nil
	o.prepared = false
	o.state = StateUnprepared
}

func (o *Order) Side() core.Side { return o.side }
func (o *Order) Price() decimal.Decimal { return o.price }
func (o *Order) Quantity() decimal.Decimal { return o.quantity }
func (o *Order) Unit() core.Unit { return o.unit }
func (o *Order) MakerOrCancel() bool { return o.makerOrCancel }
func (o *Order) FeePolicy() core.FeePolicy { return o.policy }
func (o *Order) BaseAmount() decimal.Decimal { return o.baseAmount }
func (o *Order) Subtotal() decimal.Decimal { return o.subtotal }
func (o *Order) FeePercent() decimal.Decimal { return o.feePct }
func (o *Order) Fee() decimal.Decimal { return o.fee }
func (o *Order) Total() decimal.Decimal { return o.total }
func (o *Order) Prepared() bool { return o.prepared }
func (o *Order) State() State { return o.state }
func (o *Order) Status() *Status { return o.status }

func (o *Order) Warnings() []string {
	out := make([]string, len(o.warnings))
	copy(out, o.warnings)
	return out
}

func (o *Order) SetSide(side core.Side) {
	o.side = side
	o.reset()
}

func (o *Order) SetPrice(price decimal.Decimal) {
	o.price = price
	o.reset()
}

func (o *Order) SetQuantity(quantity decimal.Decimal) {
	o.quantity = quantity
	o.reset()
}

func (o *Order) SetUnit(unit core.Unit) {
	o.unit = unit
	o.reset()
}

func (o *Order) SetMakerOrCancel(on bool) {
	o.makerOrCancel = on
	o.reset()
}

func (o *Order) SetFeePolicy(policy core.FeePolicy) {
	o.policy = policy
	o.reset()
}

func (o *Order) validate() error {
	if !o.price.IsPositive() {
		return &core.InvalidOrderError{Field: "price", Value: o.price.String()}
	}
	if !o.quantity.IsPositive() {
		return &core.InvalidOrderError{Field: "quantity", Value: o.quantity.String()}
	}
	if !o.unit.Valid() {
		return &core.InvalidOrderError{Field: "quantity unit", Value: string(o.unit)}
	}
	if !o.side.Valid() {
		return &core.InvalidOrderError{Field: "side", Value: string(o.side)}
	}
	if !o.policy.Valid() {
		return &core.InvalidOrderError{Field: "reserve_api_fees", Value: string(o.policy)}
	}
	return nil
}

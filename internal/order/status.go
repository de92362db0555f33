package order

import (
	"context"

	"github.com/shopspring/decimal"

	"gemini-desk/internal/core"
)

type statusSource interface {
	OrderStatus(ctx context.Context, orderID string) (core.OrderRecord, error)
	CancelOrder(ctx context.Context, orderID string) (core.OrderRecord, error)
}

// Status is the last known exchange record of a submitted order.
type Status struct {
	src statusSource
	rec core.OrderRecord
}

func newStatus(src statusSource, rec core.OrderRecord) *Status {
	return &Status{src: src, rec: rec}
}

func (s *Status) Record() core.OrderRecord { return s.rec }
func (s *Status) OrderID() string { return s.rec.OrderID }
func (s *Status) IsLive() bool { return s.rec.IsLive }
func (s *Status) IsCancelled() bool { return s.rec.IsCancelled }
func (s *Status) RemainingAmount() decimal.Decimal { return s.rec.RemainingAmount }
func (s *Status) ExecutedAmount() decimal.Decimal { return s.rec.ExecutedAmount }

func (s *Status) Refresh(ctx context.Context) error {
	rec, err := s.src.OrderStatus(ctx, s.rec.OrderID)
	if err != nil {
		return err
	}
	s.rec = rec
	return nil
}

// Cancel cancels the order on the exchange. A cancelled status never reaches
// the exchange again.
func (s *Status) Cancel(ctx context.Context) error {
	if s.rec.IsCancelled {
		return core.ErrAlreadyCancelled
	}
	rec, err := s.src.CancelOrder(ctx, s.rec.OrderID)
	if err != nil {
		return err
	}
	if rec.OrderID != "" {
		s.rec = rec
	}
	s.rec.IsCancelled = true
	s.rec.IsLive = false
	return nil
}

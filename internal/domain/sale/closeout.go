package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// closeoutSettle is how long after midnight a day is still considered open,
// covering sales stamped just before midnight that commit just after.
const closeoutSettle = time.Minute

// Closeout is the end-of-day summary of one UTC day.
type Closeout struct {
	Date       time.Time
	SalesCount int
	ItemsQty   int
	Total      decimal.Decimal
	TotalCash  decimal.Decimal
	TotalCard  decimal.Decimal
}

// CloseoutCache stores summaries of finished days.
type CloseoutCache interface {
	Get(ctx context.Context, day time.Time) (*Closeout, bool, error)
	Set(ctx context.Context, c *Closeout) error
}

// Summarize aggregates sales into the closeout of day.
func Summarize(day time.Time, sales []Sale) Closeout {
	c := Closeout{
		Date:      StartOfDay(day),
		Total:     decimal.Zero,
		TotalCash: decimal.Zero,
		TotalCard: decimal.Zero,
	}
	for i := range sales {
		s := &sales[i]
		c.SalesCount++
		c.ItemsQty += s.ItemsQty()
		c.Total = c.Total.Add(s.Total)
		switch s.PaymentMethod {
		case PaymentCash:
			c.TotalCash = c.TotalCash.Add(s.Total)
		case PaymentCard:
			c.TotalCard = c.TotalCard.Add(s.Total)
		}
	}
	return c
}

// Closeout summarizes all sales of the UTC day containing day.
func (s *Service) Closeout(ctx context.Context, day time.Time) (*Closeout, error) {
	ctx, span := s.tracer.Start(ctx, "sale.Closeout")
	defer span.End()

	lg := zctx.From(ctx)
	start := StartOfDay(day)
	cacheable := s.cache != nil && start.Add(24*time.Hour+closeoutSettle).Before(s.now())

	if cacheable {
		c, ok, err := s.cache.Get(ctx, start)
		switch {
		case err != nil:
			lg.Warn("Closeout cache read failed", zap.Error(err))
		case ok:
			return c, nil
		}
	}

	sales, err := s.ListSales(ctx, Filter{From: &start, To: &start, ToDateOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "closeout")
	}
	c := Summarize(start, sales)

	if cacheable {
		if err := s.cache.Set(ctx, &c); err != nil {
			lg.Warn("Closeout cache write failed", zap.Error(err))
		}
	}
	return &c, nil
}

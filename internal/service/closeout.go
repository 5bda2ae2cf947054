package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/repository"
)

// CostModel prices running a day.  It is supplied from outside the core.
type CostModel interface {
	DayCost(day model.EventDay, slots []model.Slot, bookings []model.Booking) int64
}

// FixedCostModel charges a flat amount per day plus one per scheduled slot.
type FixedCostModel struct {
	PerDay  int64
	PerSlot int64
}

// DayCost implements CostModel.
func (c FixedCostModel) DayCost(_ model.EventDay, slots []model.Slot, _ []model.Booking) int64 {
	return c.PerDay + int64(len(slots))*c.PerSlot
}

// Closeout freezes a day's bookings into its DailySummary and keeps the
// monthly aggregates derived from them.
type Closeout struct {
	store repository.Store
	cost  CostModel
	pub   Publisher
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewCloseout wires the closeout engine.  Nil collaborators fall back to
// a zero cost model, a no-op publisher, the standard logger and time.Now.
func NewCloseout(store repository.Store, cost CostModel, pub Publisher, log logrus.FieldLogger, now func() time.Time) *Closeout {
	if cost == nil {
		cost = FixedCostModel{}
	}
	if pub == nil {
		pub = NopPublisher{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if now == nil {
		now = time.Now
	}
	return &Closeout{store: store, cost: cost, pub: pub, log: log, now: now}
}

// CloseDay aggregates every booking of the day that still holds capacity
// (CANCELLED and EXPIRED are left out), writes the day's summary and
// marks the day CLOSED, all in one transaction.  Bookings never
// reconciled get their expected total frozen as final.  A second call
// fails with ErrAlreadyClosed.
func (c *Closeout) CloseDay(ctx context.Context, dayID uint64) (*model.DailySummary, error) {
	now := c.now().UTC()
	var out model.DailySummary
	err := c.store.InTx(ctx, func(tx repository.Tx) error {
		day, err := tx.EventDay(ctx, dayID, repository.LockExclusive)
		if err != nil {
			return err
		}
		if day.IsClosed() {
			return fmt.Errorf("%w: day %d (%s)", ErrAlreadyClosed, day.ID, day.Date.Format("2006-01-02"))
		}
		slots, err := tx.SlotsByDay(ctx, dayID)
		if err != nil {
			return err
		}
		all, err := tx.BookingsByDay(ctx, dayID)
		if err != nil {
			return err
		}

		sum := model.DailySummary{EventDayID: day.ID, Date: day.Date, CreatedAt: now}
		counted := make([]model.Booking, 0, len(all))
		for i := range all {
			b := &all[i]
			if !b.Status.Occupies() {
				continue
			}
			if b.FinalTotal == nil {
				final := b.ExpectedTotal
				b.FinalTotal = &final
				b.UpdatedAt = now
				if err := tx.UpdateBooking(ctx, b); err != nil {
					return err
				}
			}
			sum.BookingCount++
			sum.RevenueTotal += b.ChargedTotal()
			sum.AttendanceTotal += b.AttendanceCount()
			counted = append(counted, *b)
		}
		sum.CostTotal = c.cost.DayCost(*day, slots, counted)
		sum.Margin = sum.RevenueTotal - sum.CostTotal

		if err := tx.InsertDailySummary(ctx, &sum); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: summary for %s exists", ErrAlreadyClosed, day.Date.Format("2006-01-02"))
			}
			return err
		}
		if err := tx.CloseEventDay(ctx, dayID, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: day %d", ErrAlreadyClosed, dayID)
			}
			return err
		}
		out = sum
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}
	c.log.WithFields(logrus.Fields{
		"event_day_id": dayID,
		"date":         out.Date.Format("2006-01-02"),
		"bookings":     out.BookingCount,
		"revenue":      out.RevenueTotal,
		"attendance":   out.AttendanceTotal,
		"margin":       out.Margin,
	}).Info("day closed")
	if err := c.pub.Publish(ctx, Event{Type: EventDayClosed, EventDayID: dayID, TotalCents: out.RevenueTotal, Headcount: out.AttendanceTotal, OccurredAt: now}); err != nil {
		c.log.WithError(err).WithField("event_day_id", dayID).Warn("publish event failed")
	}
	return &out, nil
}

// DailySummary returns the summary written by the closeout of date.
func (c *Closeout) DailySummary(ctx context.Context, date time.Time) (*model.DailySummary, error) {
	return c.store.DailySummaryByDate(ctx, date)
}

// MonthlySummary recomputes a month from its daily summaries at read
// time.  Months without closed days yield a zero summary.
func (c *Closeout) MonthlySummary(ctx context.Context, year int, month time.Month) (*model.MonthlySummary, error) {
	if err := validMonth(year, month); err != nil {
		return nil, err
	}
	from, to := monthRange(year, month)
	days, err := c.store.DailySummariesBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	m := aggregateMonth(year, month, days, c.now().UTC())
	return &m, nil
}

// StoredMonthlySummary returns the last rebuilt monthly row.
func (c *Closeout) StoredMonthlySummary(ctx context.Context, year int, month time.Month) (*model.MonthlySummary, error) {
	if err := validMonth(year, month); err != nil {
		return nil, err
	}
	return c.store.MonthlySummary(ctx, year, month)
}

// RebuildMonth re-aggregates a month from scratch and replaces its
// stored row.  Running it again yields the same figures.
func (c *Closeout) RebuildMonth(ctx context.Context, year int, month time.Month) (*model.MonthlySummary, error) {
	if err := validMonth(year, month); err != nil {
		return nil, err
	}
	from, to := monthRange(year, month)
	var out model.MonthlySummary
	err := c.store.InTx(ctx, func(tx repository.Tx) error {
		days, err := tx.DailySummariesBetween(ctx, from, to)
		if err != nil {
			return err
		}
		out = aggregateMonth(year, month, days, c.now().UTC())
		return tx.UpsertMonthlySummary(ctx, &out)
	})
	if err != nil {
		return nil, transient(err)
	}
	c.log.WithFields(logrus.Fields{"year": year, "month": int(month), "days": out.DayCount}).Info("monthly summary rebuilt")
	return &out, nil
}

func aggregateMonth(year int, month time.Month, days []model.DailySummary, at time.Time) model.MonthlySummary {
	m := model.MonthlySummary{Year: year, Month: month, RebuiltAt: at}
	for _, d := range days {
		m.DayCount++
		m.BookingCount += d.BookingCount
		m.RevenueTotal += d.RevenueTotal
		m.AttendanceTotal += d.AttendanceTotal
		m.CostTotal += d.CostTotal
		m.Margin += d.Margin
	}
	return m
}

func monthRange(year int, month time.Month) (time.Time, time.Time) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func validMonth(year int, month time.Month) error {
	if year < 1 || month < time.January || month > time.December {
		return fmt.Errorf("%w: bad month %04d-%02d", ErrInvalidInput, year, int(month))
	}
	return nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/repository"
)

// tx operates on a private copy of the state; lock modes are implied by
// the store mutex.
type tx struct {
	st  *state
	now func() time.Time
}

var _ repository.Tx = (*tx)(nil)

func (t *tx) SlotForUpdate(_ context.Context, slotID uint64) (*model.Slot, error) {
	sl, ok := t.st.slots[slotID]
	if !ok {
		return nil, fmt.Errorf("slot %d: %w", slotID, repository.ErrNotFound)
	}
	return &sl, nil
}

func (t *tx) SetAvailableCapacity(_ context.Context, slotID uint64, available int) error {
	sl, ok := t.st.slots[slotID]
	if !ok {
		return fmt.Errorf("slot %d: %w", slotID, repository.ErrNotFound)
	}
	sl.AvailableCapacity = available
	sl.UpdatedAt = t.now().UTC()
	t.st.slots[slotID] = sl
	return nil
}

func (t *tx) SlotOccupancy(_ context.Context, slotID uint64) (int, error) {
	occ := 0
	for _, b := range t.st.bookings {
		if b.SlotID == slotID && b.Status.Occupies() {
			occ += b.Requested.Total()
		}
	}
	return occ, nil
}

func (t *tx) SlotsByDay(_ context.Context, dayID uint64) ([]model.Slot, error) {
	var out []model.Slot
	for _, sl := range t.st.slots {
		if sl.EventDayID == dayID {
			out = append(out, sl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) EventDay(_ context.Context, dayID uint64, _ repository.LockMode) (*model.EventDay, error) {
	d, ok := t.st.days[dayID]
	if !ok {
		return nil, fmt.Errorf("event day %d: %w", dayID, repository.ErrNotFound)
	}
	return &d, nil
}

func (t *tx) CloseEventDay(_ context.Context, dayID uint64, at time.Time) error {
	d, ok := t.st.days[dayID]
	if !ok || d.Status != model.DayOpen {
		return fmt.Errorf("event day %d not open: %w", dayID, repository.ErrNotFound)
	}
	at = at.UTC()
	d.Status = model.DayClosed
	d.ClosedAt = &at
	t.st.days[dayID] = d
	return nil
}

func (t *tx) InsertBooking(_ context.Context, b *model.Booking) error {
	b.ID = t.st.id("bookings")
	t.st.bookings[b.ID] = b.Clone()
	return nil
}

func (t *tx) BookingForUpdate(_ context.Context, bookingID uint64) (*model.Booking, error) {
	b, ok := t.st.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", bookingID, repository.ErrNotFound)
	}
	c := b.Clone()
	return &c, nil
}

func (t *tx) UpdateBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.st.bookings[b.ID]; !ok {
		return fmt.Errorf("booking %d: %w", b.ID, repository.ErrNotFound)
	}
	t.st.bookings[b.ID] = b.Clone()
	return nil
}

func (t *tx) DeleteBooking(_ context.Context, bookingID uint64) error {
	if _, ok := t.st.bookings[bookingID]; !ok {
		return fmt.Errorf("booking %d: %w", bookingID, repository.ErrNotFound)
	}
	delete(t.st.bookings, bookingID)
	return nil
}

func (t *tx) BookingsByDay(_ context.Context, dayID uint64) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range t.st.bookings {
		if sl, ok := t.st.slots[b.SlotID]; ok && sl.EventDayID == dayID {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) PricingRules(_ context.Context, product model.ProductType) ([]model.PricingRule, error) {
	return t.st.rulesFor(product), nil
}

func (t *tx) InsertDailySummary(_ context.Context, s *model.DailySummary) error {
	key := dateKey(s.Date)
	if _, exists := t.st.daily[key]; exists {
		return fmt.Errorf("daily summary %s: %w", key, repository.ErrDuplicate)
	}
	s.ID = t.st.id("daily")
	s.Date = model.DateOnly(s.Date)
	t.st.daily[key] = *s
	return nil
}

func (t *tx) DailySummariesBetween(_ context.Context, from, to time.Time) ([]model.DailySummary, error) {
	return t.st.dailyBetween(from, to), nil
}

func (t *tx) UpsertMonthlySummary(_ context.Context, m *model.MonthlySummary) error {
	t.st.monthly[monthKey(m.Year, m.Month)] = *m
	return nil
}

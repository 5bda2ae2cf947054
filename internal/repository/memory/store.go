// Package memory implements repository.Store in process.  A transaction
// works on a private copy of the state and swaps it in on success, so a
// failed or abandoned unit of work leaves nothing behind.  Transactions
// are serialised by a single mutex, which gives serializable isolation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/repository"
)

type state struct {
	days     map[uint64]model.EventDay
	slots    map[uint64]model.Slot
	bookings map[uint64]model.Booking
	rules    []model.PricingRule
	daily    map[string]model.DailySummary
	monthly  map[string]model.MonthlySummary
	nextID   map[string]uint64
}

func newState() *state {
	return &state{
		days:     make(map[uint64]model.EventDay),
		slots:    make(map[uint64]model.Slot),
		bookings: make(map[uint64]model.Booking),
		daily:    make(map[string]model.DailySummary),
		monthly:  make(map[string]model.MonthlySummary),
		nextID:   make(map[string]uint64),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.days {
		c.days[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v.Clone()
	}
	c.rules = append([]model.PricingRule(nil), s.rules...)
	for k, v := range s.daily {
		c.daily[k] = v
	}
	for k, v := range s.monthly {
		c.monthly[k] = v
	}
	for k, v := range s.nextID {
		c.nextID[k] = v
	}
	return c
}

func (s *state) id(table string) uint64 {
	s.nextID[table]++
	return s.nextID[table]
}

// Store is the in-process repository.Store.
type Store struct {
	mu       sync.RWMutex
	st       *state
	attempts int
	now      func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), attempts: repository.DefaultTxAttempts, now: time.Now}
}

var _ repository.Store = (*Store)(nil)

// InTx runs fn against a copy of the state and publishes the copy only
// when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return repository.RetryTx(ctx, s.attempts, 0, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		work := s.st.clone()
		if err := fn(&tx{st: work, now: s.now}); err != nil {
			return err
		}
		s.st = work
		return nil
	})
}

// AddEventDay seeds a day the way the day scheduling collaborator would.
func (s *Store) AddEventDay(d model.EventDay) model.EventDay {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.st.id("days")
	} else if d.ID > s.st.nextID["days"] {
		s.st.nextID["days"] = d.ID
	}
	if d.Status == "" {
		d.Status = model.DayOpen
	}
	d.Date = model.DateOnly(d.Date)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}
	s.st.days[d.ID] = d
	return d
}

// AddSlot schedules a fresh slot: AvailableCapacity starts at
// TotalCapacity when left at zero.  Use PutSlot to seed a slot whose
// counter is already spent.
func (s *Store) AddSlot(sl model.Slot) model.Slot {
	if sl.AvailableCapacity == 0 {
		sl.AvailableCapacity = sl.TotalCapacity
	}
	return s.PutSlot(sl)
}

// PutSlot stores a slot with AvailableCapacity taken as given, so a
// sold-out slot (zero available) can be seeded.
func (s *Store) PutSlot(sl model.Slot) model.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl.ID == 0 {
		sl.ID = s.st.id("slots")
	} else if sl.ID > s.st.nextID["slots"] {
		s.st.nextID["slots"] = sl.ID
	}
	if sl.Kind == "" {
		sl.Kind = model.KindTheater
	}
	now := s.now().UTC()
	sl.CreatedAt, sl.UpdatedAt = now, now
	s.st.slots[sl.ID] = sl
	return sl
}

// AddPricingRule appends a rule version the way the pricing
// administration collaborator would.
func (s *Store) AddPricingRule(r model.PricingRule) model.PricingRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.st.id("rules")
	} else if r.ID > s.st.nextID["rules"] {
		s.st.nextID["rules"] = r.ID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	s.st.rules = append(s.st.rules, r)
	return r
}

// EventDay returns a copy of a day.
func (s *Store) EventDay(dayID uint64) (model.EventDay, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.st.days[dayID]
	return d, ok
}

// DailySummaryCount reports how many daily summaries exist.
func (s *Store) DailySummaryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.daily)
}

func (s *Store) Slot(_ context.Context, slotID uint64) (*model.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.st.slots[slotID]
	if !ok {
		return nil, fmt.Errorf("slot %d: %w", slotID, repository.ErrNotFound)
	}
	return &sl, nil
}

func (s *Store) Booking(_ context.Context, bookingID uint64) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", bookingID, repository.ErrNotFound)
	}
	c := b.Clone()
	return &c, nil
}

func (s *Store) OpenBookings(_ context.Context) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Booking, 0)
	for _, b := range s.st.bookings {
		if b.Status == model.StatusHold || b.Status == model.StatusPending {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) OverdueHolds(_ context.Context, now time.Time, limit int) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []model.Booking
	for _, b := range s.st.bookings {
		if b.IsExpired(now) {
			due = append(due, b)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ExpiresAt.Equal(*due[j].ExpiresAt) {
			return due[i].ExpiresAt.Before(*due[j].ExpiresAt)
		}
		return due[i].ID < due[j].ID
	})
	ids := make([]uint64, 0, len(due))
	for _, b := range due {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func (s *Store) PricingRules(_ context.Context, product model.ProductType) ([]model.PricingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.rulesFor(product), nil
}

func (s *Store) DailySummaryByDate(_ context.Context, date time.Time) (*model.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.st.daily[dateKey(date)]
	if !ok {
		return nil, fmt.Errorf("daily summary %s: %w", dateKey(date), repository.ErrNotFound)
	}
	return &d, nil
}

func (s *Store) DailySummariesBetween(_ context.Context, from, to time.Time) ([]model.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.dailyBetween(from, to), nil
}

func (s *Store) MonthlySummary(_ context.Context, year int, month time.Month) (*model.MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.st.monthly[monthKey(year, month)]
	if !ok {
		return nil, fmt.Errorf("monthly summary %s: %w", monthKey(year, month), repository.ErrNotFound)
	}
	return &m, nil
}

func (s *state) rulesFor(product model.ProductType) []model.PricingRule {
	var out []model.PricingRule
	for _, r := range s.rules {
		if r.ProductType == product && r.Active {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *state) dailyBetween(from, to time.Time) []model.DailySummary {
	from, to = model.DateOnly(from), model.DateOnly(to)
	var out []model.DailySummary
	for _, d := range s.daily {
		if !d.Date.Before(from) && d.Date.Before(to) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func dateKey(t time.Time) string { return model.DateOnly(t).Format("2006-01-02") }

func monthKey(year int, month time.Month) string { return fmt.Sprintf("%04d-%02d", year, int(month)) }

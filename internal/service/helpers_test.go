package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/repository/memory"
)

var showDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store    *memory.Store
	ledger   *Ledger
	resolver *Resolver
	mgr      *Manager
	closeout *Closeout
	sweeper  *Sweeper
	clock    *fakeClock
	pub      *recordingPublisher
	hook     *logtest.Hook
	day      model.EventDay
	slot     model.Slot
}

// newFixture seeds one open day on 2024-03-15 with a theater slot of the
// given capacity and a theater rule priced student=1000, adult=1500.
func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	f := &fixture{
		store: memory.New(),
		clock: &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		pub:   &recordingPublisher{},
		hook:  hook,
	}
	f.day = f.store.AddEventDay(model.EventDay{Date: showDate})
	f.slot = f.store.AddSlot(model.Slot{
		EventDayID:    f.day.ID,
		WorkID:        7,
		StartsAt:      showDate.Add(10 * time.Hour),
		EndsAt:        showDate.Add(12 * time.Hour),
		TotalCapacity: capacity,
	})
	f.store.AddPricingRule(model.PricingRule{
		ProductType: model.ProductTheater,
		ValidFrom:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:     time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Values:      map[string]int64{model.FareStudent: 1000, model.FareAdult: 1500},
		Active:      true,
		CreatedAt:   time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
	})

	f.ledger = NewLedger(f.store, log)
	f.resolver = NewResolver(f.store)
	f.mgr = NewManager(f.store, f.ledger, f.resolver, log, WithClock(f.clock.Now), WithPublisher(f.pub))
	f.closeout = NewCloseout(f.store, FixedCostModel{PerDay: 5000, PerSlot: 1000}, f.pub, log, f.clock.Now)
	f.sweeper = NewSweeper(f.store, f.mgr, log, 0)
	return f
}

func (f *fixture) book(t *testing.T, students, adults int, hold bool) (*model.Booking, error) {
	t.Helper()
	return f.mgr.Create(context.Background(), CreateRequest{
		SlotID:        f.slot.ID,
		InstitutionID: 42,
		Headcount:     model.Headcount{Students: students, Adults: adults},
		BillingPolicy: model.BillReserved,
		AsHold:        hold,
	})
}

func (f *fixture) available(t *testing.T) int {
	t.Helper()
	sl, err := f.store.Slot(context.Background(), f.slot.ID)
	if err != nil {
		t.Fatalf("load slot: %v", err)
	}
	return sl.AvailableCapacity
}

func ptr[T any](v T) *T { return &v }

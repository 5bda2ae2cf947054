package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/school-show-booking/internal/model"
)

func TestCreateHoldsAndRejectsOversell(t *testing.T) {
	f := newFixture(t, 100)

	a, err := f.book(t, 60, 0, true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusHold, a.Status)
	assert.Equal(t, 40, f.available(t))

	_, err = f.book(t, 50, 0, false)
	require.Error(t, err)
	var ce *CapacityExceededError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 40, ce.Remaining)
	assert.Equal(t, 40, f.available(t))

	c, err := f.book(t, 40, 0, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, c.Status)
	assert.Nil(t, c.ExpiresAt)
	assert.Equal(t, 0, f.available(t))
}

func TestCreateSetsHoldExpiry(t *testing.T) {
	f := newFixture(t, 100)
	b, err := f.book(t, 10, 1, true)
	require.NoError(t, err)
	require.NotNil(t, b.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(72*time.Hour), *b.ExpiresAt)
	assert.Equal(t, []string{EventBookingCreated}, f.pub.types())
}

func TestConcurrentCreateNeverOversells(t *testing.T) {
	f := newFixture(t, 50)
	const callers = 24

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
		other    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, err := f.book(t, 4, 1, i%2 == 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrCapacityExceeded):
				full++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 10, ok)
	assert.Equal(t, callers-10, full)
	assert.Equal(t, 0, f.available(t))

	occ, err := f.ledger.Occupancy(context.Background(), f.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, occ)
}

func TestCreatePricesFromRuleAndReconcileAttended(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	b, err := f.book(t, 30, 0, false)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), b.ExpectedTotal)
	assert.Nil(t, b.FinalTotal)

	// A later rule must not reprice the existing booking.
	f.store.AddPricingRule(model.PricingRule{
		ProductType: model.ProductTheater,
		ValidFrom:   day(2024, 1, 1),
		ValidTo:     day(2024, 12, 31),
		Values:      map[string]int64{model.FareStudent: 5000},
		Active:      true,
		CreatedAt:   day(2024, 3, 2),
	})

	got, err := f.mgr.ReconcileAttendance(ctx, b.ID, ReconcileRequest{
		Attended:      model.Headcount{Students: 28},
		BillingPolicy: model.BillAttended,
	})
	require.NoError(t, err)
	require.NotNil(t, got.FinalTotal)
	assert.Equal(t, int64(28000), *got.FinalTotal)
	assert.Equal(t, int64(30000), got.ExpectedTotal)
	assert.Equal(t, model.BillAttended, got.BillingPolicy)
	assert.Equal(t, 70, f.available(t), "reconciliation must not touch capacity")
}

func TestReconcileCustomAmount(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	b, err := f.book(t, 10, 0, false)
	require.NoError(t, err)

	_, err = f.mgr.ReconcileAttendance(ctx, b.ID, ReconcileRequest{Attended: model.Headcount{Students: 9}, BillingPolicy: model.BillCustom})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.mgr.ReconcileAttendance(ctx, b.ID, ReconcileRequest{Attended: model.Headcount{Students: 9}, BillingPolicy: model.BillCustom, CustomAmount: ptr(int64(-5))})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := f.mgr.ReconcileAttendance(ctx, b.ID, ReconcileRequest{Attended: model.Headcount{Students: 9}, BillingPolicy: model.BillCustom, CustomAmount: ptr(int64(7500))})
	require.NoError(t, err)
	assert.Equal(t, int64(7500), *got.FinalTotal)
	assert.Equal(t, int64(7500), *got.CustomAmount)
}

func TestCreateCustomPolicyUsesAmount(t *testing.T) {
	f := newFixture(t, 100)
	b, err := f.mgr.Create(context.Background(), CreateRequest{
		SlotID:        f.slot.ID,
		InstitutionID: 1,
		Headcount:     model.Headcount{Students: 10},
		BillingPolicy: model.BillCustom,
		CustomAmount:  ptr(int64(4200)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4200), b.ExpectedTotal)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	b, err := f.book(t, 25, 5, true)
	require.NoError(t, err)
	require.Equal(t, 70, f.available(t))

	first, err := f.mgr.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, first.Status)
	assert.Nil(t, first.ExpiresAt)
	assert.Equal(t, 100, f.available(t))

	second, err := f.mgr.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, second.Status)
	assert.Equal(t, 100, f.available(t))
	assert.Equal(t, []string{EventBookingCreated, EventBookingCancelled}, f.pub.types())
}

func TestConcurrentCancelReleasesOnce(t *testing.T) {
	f := newFixture(t, 40)
	b, err := f.book(t, 30, 0, false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.mgr.Cancel(context.Background(), b.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 40, f.available(t))
}

func TestConfirmTransitions(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	hold, err := f.book(t, 10, 0, true)
	require.NoError(t, err)
	got, err := f.mgr.Confirm(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Nil(t, got.ExpiresAt)
	assert.Equal(t, 90, f.available(t))

	_, err = f.mgr.Confirm(ctx, hold.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	pending, err := f.book(t, 5, 0, false)
	require.NoError(t, err)
	_, err = f.mgr.Cancel(ctx, pending.ID)
	require.NoError(t, err)
	_, err = f.mgr.Confirm(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.mgr.Confirm(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmRejectsExpiredHold(t *testing.T) {
	f := newFixture(t, 100)
	b, err := f.book(t, 10, 0, true)
	require.NoError(t, err)

	f.clock.Advance(72 * time.Hour)
	_, err = f.mgr.Confirm(context.Background(), b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Lazy expiry: capacity stays held until cancel or sweep.
	assert.Equal(t, 90, f.available(t))
	_, err = f.mgr.Cancel(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, f.available(t))
}

func TestCompleteKeepsCapacity(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	b, err := f.book(t, 10, 0, false)
	require.NoError(t, err)

	_, err = f.mgr.Complete(ctx, b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.mgr.Confirm(ctx, b.ID)
	require.NoError(t, err)
	got, err := f.mgr.Complete(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 90, f.available(t))

	_, err = f.mgr.Cancel(ctx, b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMutationsFailAfterDayClosed(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	b, err := f.book(t, 10, 0, false)
	require.NoError(t, err)
	_, err = f.mgr.Confirm(ctx, b.ID)
	require.NoError(t, err)

	_, err = f.closeout.CloseDay(ctx, f.day.ID)
	require.NoError(t, err)

	_, err = f.mgr.ReconcileAttendance(ctx, b.ID, ReconcileRequest{Attended: model.Headcount{Students: 9}})
	assert.ErrorIs(t, err, ErrDayClosed)
	_, err = f.mgr.Cancel(ctx, b.ID)
	assert.ErrorIs(t, err, ErrDayClosed)
	_, err = f.book(t, 1, 0, false)
	assert.ErrorIs(t, err, ErrDayClosed)
	assert.Equal(t, 90, f.available(t))
}

func TestCreateWithoutPricingRuleLeavesCapacity(t *testing.T) {
	f := newFixture(t, 100)
	later := f.store.AddEventDay(model.EventDay{Date: day(2025, 2, 1)})
	sl := f.store.AddSlot(model.Slot{EventDayID: later.ID, TotalCapacity: 30})

	_, err := f.mgr.Create(context.Background(), CreateRequest{
		SlotID:        sl.ID,
		InstitutionID: 1,
		Headcount:     model.Headcount{Students: 5},
	})
	assert.ErrorIs(t, err, ErrPricingRuleNotFound)

	got, err := f.store.Slot(context.Background(), sl.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, got.AvailableCapacity)
}

func TestCreateOnSoldOutSlot(t *testing.T) {
	f := newFixture(t, 100)
	soldOut := f.store.PutSlot(model.Slot{EventDayID: f.day.ID, TotalCapacity: 10, AvailableCapacity: 0})

	_, err := f.mgr.Create(context.Background(), CreateRequest{
		SlotID:        soldOut.ID,
		InstitutionID: 1,
		Headcount:     model.Headcount{Students: 1},
	})
	var exceeded *CapacityExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 0, exceeded.Remaining)

	got, err := f.store.Slot(context.Background(), soldOut.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCapacity)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	cases := []CreateRequest{
		{SlotID: f.slot.ID, InstitutionID: 1},
		{SlotID: f.slot.ID, Headcount: model.Headcount{Students: 1}},
		{SlotID: f.slot.ID, InstitutionID: 1, Headcount: model.Headcount{Students: -1, Adults: 3}},
		{SlotID: f.slot.ID, InstitutionID: 1, Headcount: model.Headcount{Students: 1}, BillingPolicy: "FREE"},
		{SlotID: f.slot.ID, InstitutionID: 1, Headcount: model.Headcount{Students: 1}, Kind: model.KindTravel, Travel: &model.TravelDetails{Format: "HALF_DAY"}},
	}
	for _, req := range cases {
		_, err := f.mgr.Create(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", req)
	}
	assert.Equal(t, 100, f.available(t))
}

func TestTravelBookingLifecycleAndPurge(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	travel := f.store.AddSlot(model.Slot{EventDayID: f.day.ID, Kind: model.KindTravel, TotalCapacity: 200})
	f.store.AddPricingRule(model.PricingRule{
		ProductType: model.TravelProduct("HALF_DAY"),
		ValidFrom:   day(2024, 1, 1),
		ValidTo:     day(2024, 12, 31),
		Values:      map[string]int64{model.FareStudent: 500, model.FareFlat: 20000},
		Active:      true,
	})

	_, err := f.mgr.Create(ctx, CreateRequest{SlotID: travel.ID, InstitutionID: 3, Headcount: model.Headcount{Students: 40}})
	assert.ErrorIs(t, err, ErrInvalidInput, "travel needs a format")

	b, err := f.mgr.Create(ctx, CreateRequest{
		SlotID:        travel.ID,
		InstitutionID: 3,
		Headcount:     model.Headcount{Students: 40},
		Travel:        &model.TravelDetails{Format: "half_day", Location: "Riverside School"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.KindTravel, b.Kind)
	assert.Equal(t, "HALF_DAY", b.Travel.Format)
	assert.Equal(t, int64(40000), b.ExpectedTotal)

	err = f.mgr.Purge(ctx, b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.mgr.Cancel(ctx, b.ID)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Purge(ctx, b.ID))
	_, err = f.mgr.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	theater, err := f.book(t, 1, 0, false)
	require.NoError(t, err)
	_, err = f.mgr.Cancel(ctx, theater.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.mgr.Purge(ctx, theater.ID), ErrInvalidInput)
}

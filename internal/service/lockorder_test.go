package service

import (
	"context"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/repository"
	"github.com/iliyamo/school-show-booking/internal/repository/memory"
)

// lockRecorder notes which kind of row each transaction locks, in order.
type lockRecorder struct {
	*memory.Store
	mu    sync.Mutex
	locks []string
}

func (r *lockRecorder) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return r.Store.InTx(ctx, func(tx repository.Tx) error {
		return fn(&recordingTx{Tx: tx, r: r})
	})
}

func (r *lockRecorder) note(kind string) {
	r.mu.Lock()
	r.locks = append(r.locks, kind)
	r.mu.Unlock()
}

// order returns each row kind once, in the order it was first locked,
// and resets the log.
func (r *lockRecorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, k := range r.locks {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	r.locks = nil
	return out
}

type recordingTx struct {
	repository.Tx
	r *lockRecorder
}

func (t *recordingTx) EventDay(ctx context.Context, dayID uint64, lock repository.LockMode) (*model.EventDay, error) {
	t.r.note("day")
	return t.Tx.EventDay(ctx, dayID, lock)
}

func (t *recordingTx) SlotForUpdate(ctx context.Context, slotID uint64) (*model.Slot, error) {
	t.r.note("slot")
	return t.Tx.SlotForUpdate(ctx, slotID)
}

func (t *recordingTx) SlotsByDay(ctx context.Context, dayID uint64) ([]model.Slot, error) {
	t.r.note("slot")
	return t.Tx.SlotsByDay(ctx, dayID)
}

func (t *recordingTx) SlotOccupancy(ctx context.Context, slotID uint64) (int, error) {
	t.r.note("booking")
	return t.Tx.SlotOccupancy(ctx, slotID)
}

func (t *recordingTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	t.r.note("booking")
	return t.Tx.InsertBooking(ctx, b)
}

func (t *recordingTx) BookingForUpdate(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	t.r.note("booking")
	return t.Tx.BookingForUpdate(ctx, bookingID)
}

func (t *recordingTx) BookingsByDay(ctx context.Context, dayID uint64) ([]model.Booking, error) {
	t.r.note("booking")
	return t.Tx.BookingsByDay(ctx, dayID)
}

func TestOperationsLockDaySlotBookingInOrder(t *testing.T) {
	f := newFixture(t, 50)
	log, _ := logtest.NewNullLogger()
	rec := &lockRecorder{Store: f.store}
	ledger := NewLedger(rec, log)
	mgr := NewManager(rec, ledger, NewResolver(rec), log, WithClock(f.clock.Now))
	closeout := NewCloseout(rec, nil, nil, log, f.clock.Now)
	ctx := context.Background()
	want := []string{"day", "slot", "booking"}

	create := func(hold bool) *model.Booking {
		b, err := mgr.Create(ctx, CreateRequest{
			SlotID:        f.slot.ID,
			InstitutionID: 7,
			Headcount:     model.Headcount{Students: 4},
			BillingPolicy: model.BillReserved,
			AsHold:        hold,
		})
		require.NoError(t, err)
		return b
	}

	first := create(false)
	assert.Equal(t, want, rec.order(), "create")

	_, err := mgr.Confirm(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, want, rec.order(), "confirm")

	_, err = mgr.ReconcileAttendance(ctx, first.ID, ReconcileRequest{Attended: model.Headcount{Students: 4}})
	require.NoError(t, err)
	assert.Equal(t, want, rec.order(), "reconcile")

	second := create(false)
	rec.order()
	_, err = mgr.Cancel(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, want, rec.order(), "cancel")

	hold := create(true)
	rec.order()
	done, err := mgr.expire(ctx, hold.ID, f.clock.Now().Add(DefaultHoldTTL+time.Minute))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, want, rec.order(), "expire")

	_, err = ledger.Audit(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"slot", "booking"}, rec.order(), "audit")

	_, err = closeout.CloseDay(ctx, f.day.ID)
	require.NoError(t, err)
	assert.Equal(t, want, rec.order(), "close day")
}

func TestConcurrentCreateAndCancelKeepLedgerConsistent(t *testing.T) {
	f := newFixture(t, 40)
	ctx := context.Background()

	var seeded []uint64
	for i := 0; i < 10; i++ {
		b, err := f.book(t, 2, 0, false)
		require.NoError(t, err)
		seeded = append(seeded, b.ID)
	}
	require.Equal(t, 20, f.available(t))

	var wg sync.WaitGroup
	for _, id := range seeded {
		wg.Add(2)
		go func(id uint64) {
			defer wg.Done()
			_, err := f.mgr.Cancel(ctx, id)
			assert.NoError(t, err)
		}(id)
		go func() {
			defer wg.Done()
			_, err := f.book(t, 2, 0, false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	capacity, err := f.ledger.Audit(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, capacity.Available)
	assert.Equal(t, 20, capacity.Occupancy)
	assert.Zero(t, capacity.Drift)
}

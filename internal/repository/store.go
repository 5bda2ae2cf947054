package repository

import (
	"context"
	"time"

	"github.com/iliyamo/school-show-booking/internal/model"
)

// LockMode selects how a row read inside a transaction is locked.
type LockMode int

const (
	LockNone      LockMode = iota // plain read
	LockShare                     // blocks writers until commit
	LockExclusive                 // blocks readers-with-lock and writers
)

// Tx is the set of reads and writes available inside one atomic unit.
// Every capacity-affecting mutation must go through a Tx so that the
// slot row, its bookings and the day status change together.
type Tx interface {
	// SlotForUpdate loads and exclusively locks a slot.
	SlotForUpdate(ctx context.Context, slotID uint64) (*model.Slot, error)
	// SetAvailableCapacity writes the cached available capacity.
	SetAvailableCapacity(ctx context.Context, slotID uint64, available int) error
	// SlotOccupancy sums the head-count of every booking that occupies
	// the slot, reading the latest committed rows.
	SlotOccupancy(ctx context.Context, slotID uint64) (int, error)
	// SlotsByDay lists the slots scheduled under a day.
	SlotsByDay(ctx context.Context, dayID uint64) ([]model.Slot, error)

	// EventDay loads a day with the requested lock.
	EventDay(ctx context.Context, dayID uint64, lock LockMode) (*model.EventDay, error)
	// CloseEventDay flips a day to CLOSED.
	CloseEventDay(ctx context.Context, dayID uint64, at time.Time) error

	// InsertBooking stores a new booking and assigns its ID.
	InsertBooking(ctx context.Context, b *model.Booking) error
	// BookingForUpdate loads and exclusively locks a booking.
	BookingForUpdate(ctx context.Context, bookingID uint64) (*model.Booking, error)
	// UpdateBooking persists status, attendance and totals of b.
	UpdateBooking(ctx context.Context, b *model.Booking) error
	// DeleteBooking physically removes a booking.
	DeleteBooking(ctx context.Context, bookingID uint64) error
	// BookingsByDay lists every booking against the day's slots.
	BookingsByDay(ctx context.Context, dayID uint64) ([]model.Booking, error)

	// PricingRules lists the rules of a product type.
	PricingRules(ctx context.Context, product model.ProductType) ([]model.PricingRule, error)

	// InsertDailySummary stores a summary; ErrDuplicate when the date
	// already has one.
	InsertDailySummary(ctx context.Context, s *model.DailySummary) error
	// DailySummariesBetween lists summaries with from <= date < to.
	DailySummariesBetween(ctx context.Context, from, to time.Time) ([]model.DailySummary, error)
	// UpsertMonthlySummary replaces the summary of m.Year/m.Month.
	UpsertMonthlySummary(ctx context.Context, m *model.MonthlySummary) error
}

// Store runs transactions and serves reads that need not be consistent
// with concurrent writes.
type Store interface {
	// InTx runs fn atomically.  Conflicts are retried a bounded number
	// of times; ErrRetriesExhausted is returned after the last attempt.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Slot(ctx context.Context, slotID uint64) (*model.Slot, error)
	Booking(ctx context.Context, bookingID uint64) (*model.Booking, error)
	// OpenBookings lists bookings in HOLD or PENDING.
	OpenBookings(ctx context.Context) ([]model.Booking, error)
	// OverdueHolds lists IDs of HOLD bookings whose expiry is <= now.
	OverdueHolds(ctx context.Context, now time.Time, limit int) ([]uint64, error)
	PricingRules(ctx context.Context, product model.ProductType) ([]model.PricingRule, error)
	DailySummaryByDate(ctx context.Context, date time.Time) (*model.DailySummary, error)
	DailySummariesBetween(ctx context.Context, from, to time.Time) ([]model.DailySummary, error)
	MonthlySummary(ctx context.Context, year int, month time.Month) (*model.MonthlySummary, error)
}

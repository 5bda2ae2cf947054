package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/repository"
)

// DefaultHoldTTL is how long a HOLD keeps its capacity before it is
// considered expired.
const DefaultHoldTTL = 72 * time.Hour

// CreateRequest describes a new booking.
//
// Kind defaults to the slot's kind; a TRAVEL booking must carry Travel
// with a non-empty Format.  CustomAmount is only read under CUSTOM
// billing.
type CreateRequest struct {
	SlotID        uint64
	InstitutionID uint64
	Headcount     model.Headcount
	BillingPolicy model.BillingPolicy
	CustomAmount  *int64
	AsHold        bool
	Kind          model.BookingKind
	Travel        *model.TravelDetails
}

// ReconcileRequest carries the attendance recorded after the show.
type ReconcileRequest struct {
	Attended      model.Headcount
	BillingPolicy model.BillingPolicy // empty keeps the booking's policy
	CustomAmount  *int64
}

// Manager owns the booking state machine.  Every operation that touches
// capacity or status runs in one store transaction together with the
// ledger.  Rows are locked day first (shared), then slot, then booking,
// the order the closeout and the ledger audit also follow.
type Manager struct {
	store    repository.Store
	ledger   *Ledger
	resolver *Resolver
	pub      Publisher
	log      logrus.FieldLogger
	holdTTL  time.Duration
	now      func() time.Time
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithHoldTTL overrides DefaultHoldTTL.
func WithHoldTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.holdTTL = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithPublisher sets where committed events go.
func WithPublisher(p Publisher) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.pub = p
		}
	}
}

// NewManager wires a booking manager.
func NewManager(store repository.Store, ledger *Ledger, resolver *Resolver, log logrus.FieldLogger, opts ...ManagerOption) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{
		store:    store,
		ledger:   ledger,
		resolver: resolver,
		pub:      NopPublisher{},
		log:      log,
		holdTTL:  DefaultHoldTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time { return m.now() }

// Create reserves capacity and stores a HOLD (AsHold) or PENDING
// booking with its price snapshot, all in one transaction.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*model.Booking, error) {
	if err := validateCreate(&req); err != nil {
		return nil, err
	}
	path, err := m.slotPath(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	var (
		out   model.Booking
		dayID uint64
	)
	err = m.store.InTx(ctx, func(tx repository.Tx) error {
		slot, day, err := m.lockSlot(ctx, tx, path)
		if err != nil {
			return err
		}
		if err := checkOpen(day); err != nil {
			return err
		}
		kind := req.Kind
		if kind == "" {
			kind = slot.Kind
		}
		if kind != slot.Kind {
			return fmt.Errorf("%w: %s booking against %s slot %d", ErrInvalidInput, kind, slot.Kind, slot.ID)
		}
		b := model.Booking{
			Kind:          kind,
			SlotID:        slot.ID,
			InstitutionID: req.InstitutionID,
			Requested:     req.Headcount,
			BillingPolicy: req.BillingPolicy,
			CustomAmount:  req.CustomAmount,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if kind == model.KindTravel {
			if req.Travel == nil || strings.TrimSpace(req.Travel.Format) == "" {
				return fmt.Errorf("%w: travel booking needs a format", ErrInvalidInput)
			}
			t := *req.Travel
			t.Format = strings.ToUpper(strings.TrimSpace(t.Format))
			b.Travel = &t
		}

		rule, err := m.resolver.ResolveTx(ctx, tx, day.Date, b.ProductType(), slot.SeasonID)
		if err != nil {
			return err
		}
		b.PricingRuleID = rule.ID
		b.PriceValues = make(map[string]int64, len(rule.Values))
		for k, v := range rule.Values {
			b.PriceValues[k] = v
		}
		if b.ExpectedTotal, err = expectedTotal(b); err != nil {
			return err
		}

		if _, err := m.ledger.Reserve(ctx, tx, slot.ID, b.Requested.Total()); err != nil {
			return err
		}
		if req.AsHold {
			exp := now.Add(m.holdTTL)
			b.Status = model.StatusHold
			b.ExpiresAt = &exp
		} else {
			b.Status = model.StatusPending
		}
		if err := tx.InsertBooking(ctx, &b); err != nil {
			return err
		}
		if err := m.ledger.Verify(ctx, tx, slot.ID); err != nil {
			return err
		}
		out, dayID = b, day.ID
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}
	m.log.WithFields(logrus.Fields{
		"booking_id": out.ID,
		"slot_id":    out.SlotID,
		"status":     out.Status,
		"headcount":  out.Requested.Total(),
		"expected":   out.ExpectedTotal,
	}).Info("booking created")
	m.publish(ctx, bookingEvent(EventBookingCreated, &out, dayID, now))
	return &out, nil
}

// Confirm moves a HOLD or PENDING booking to CONFIRMED.  Capacity is
// untouched.  A HOLD past its expiry can no longer be confirmed.
func (m *Manager) Confirm(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return m.transition(ctx, bookingID, model.StatusConfirmed, EventBookingConfirmed, func(b *model.Booking, now time.Time) error {
		if b.IsExpired(now) {
			return fmt.Errorf("%w: hold %d expired at %s", ErrInvalidTransition, b.ID, b.ExpiresAt.Format(time.RFC3339))
		}
		b.ExpiresAt = nil
		return nil
	})
}

// Complete moves a CONFIRMED booking to COMPLETED.  Its head-count keeps
// occupying the slot.
func (m *Manager) Complete(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return m.transition(ctx, bookingID, model.StatusCompleted, EventBookingCompleted, nil)
}

// Cancel releases a booking's capacity and marks it CANCELLED.
// Cancelling an already cancelled booking returns it unchanged.
func (m *Manager) Cancel(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	path, err := m.bookingPath(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	var (
		out   model.Booking
		dayID uint64
		noop  bool
	)
	err = m.store.InTx(ctx, func(tx repository.Tx) error {
		b, day, err := m.lockBooking(ctx, tx, path, bookingID)
		if err != nil {
			return err
		}
		if b.Status == model.StatusCancelled {
			out, noop = *b, true
			return nil
		}
		if err := m.release(ctx, tx, b, day, model.StatusCancelled, now); err != nil {
			return err
		}
		out, dayID = *b, day.ID
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}
	if noop {
		return &out, nil
	}
	m.log.WithFields(logrus.Fields{"booking_id": out.ID, "slot_id": out.SlotID, "released": out.Requested.Total()}).Info("booking cancelled")
	m.publish(ctx, bookingEvent(EventBookingCancelled, &out, dayID, now))
	return &out, nil
}

// ReconcileAttendance stores the attended head-count and recomputes the
// final total under the requested billing policy from the price snapshot
// taken at creation.  Capacity is untouched.
func (m *Manager) ReconcileAttendance(ctx context.Context, bookingID uint64, req ReconcileRequest) (*model.Booking, error) {
	if req.Attended.Students < 0 || req.Attended.Adults < 0 {
		return nil, fmt.Errorf("%w: attended head-count must not be negative", ErrInvalidInput)
	}
	if req.BillingPolicy != "" && !req.BillingPolicy.Valid() {
		return nil, fmt.Errorf("%w: unknown billing policy %q", ErrInvalidInput, req.BillingPolicy)
	}
	path, err := m.bookingPath(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	var (
		out   model.Booking
		dayID uint64
	)
	err = m.store.InTx(ctx, func(tx repository.Tx) error {
		b, day, err := m.lockBooking(ctx, tx, path, bookingID)
		if err != nil {
			return err
		}
		if b.Status == model.StatusCancelled || b.Status == model.StatusExpired {
			return fmt.Errorf("%w: cannot reconcile a %s booking", ErrInvalidTransition, b.Status)
		}
		if err := checkOpen(day); err != nil {
			return err
		}
		policy := req.BillingPolicy
		if policy == "" {
			policy = b.BillingPolicy
		}
		attended := req.Attended
		final, err := Evaluate(policy, b.PriceValues, b.Requested, &attended, req.CustomAmount)
		if err != nil {
			return err
		}
		b.Attended = &attended
		b.BillingPolicy = policy
		if policy == model.BillCustom {
			b.CustomAmount = req.CustomAmount
		}
		b.FinalTotal = &final
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		out, dayID = *b, day.ID
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}
	m.log.WithFields(logrus.Fields{"booking_id": out.ID, "policy": out.BillingPolicy, "final": *out.FinalTotal}).Info("attendance reconciled")
	m.publish(ctx, bookingEvent(EventAttendanceSet, &out, dayID, now))
	return &out, nil
}

// Purge physically removes a cancelled or expired travel booking.
// Theater bookings are retained for audit.
func (m *Manager) Purge(ctx context.Context, bookingID uint64) error {
	err := m.store.InTx(ctx, func(tx repository.Tx) error {
		b, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Kind != model.KindTravel {
			return fmt.Errorf("%w: only travel bookings can be deleted", ErrInvalidInput)
		}
		if b.Status != model.StatusCancelled && b.Status != model.StatusExpired {
			return fmt.Errorf("%w: booking %d is %s, cancel it first", ErrInvalidTransition, b.ID, b.Status)
		}
		return tx.DeleteBooking(ctx, b.ID)
	})
	if err != nil {
		return transient(err)
	}
	m.log.WithField("booking_id", bookingID).Info("travel booking purged")
	return nil
}

// Get returns one booking.
func (m *Manager) Get(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return m.store.Booking(ctx, bookingID)
}

// expire is the sweep's half of the shared release path.  It reports
// false when the booking is no longer an overdue hold.
func (m *Manager) expire(ctx context.Context, bookingID uint64, now time.Time) (bool, error) {
	path, err := m.bookingPath(ctx, bookingID)
	if err != nil {
		return false, err
	}
	var (
		out   model.Booking
		dayID uint64
		done  bool
	)
	err = m.store.InTx(ctx, func(tx repository.Tx) error {
		b, day, err := m.lockBooking(ctx, tx, path, bookingID)
		if err != nil {
			return err
		}
		if !b.IsExpired(now) {
			return nil
		}
		if err := m.release(ctx, tx, b, day, model.StatusExpired, now); err != nil {
			return err
		}
		out, dayID, done = *b, day.ID, true
		return nil
	})
	if err != nil || !done {
		return false, transient(err)
	}
	m.publish(ctx, bookingEvent(EventBookingExpired, &out, dayID, now))
	return true, nil
}

// release is the single path that hands a booking's head-count back to
// the ledger: cancel and expiry both go through it.
func (m *Manager) release(ctx context.Context, tx repository.Tx, b *model.Booking, day *model.EventDay, to model.BookingStatus, now time.Time) error {
	if !model.CanTransition(b.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	if err := checkOpen(day); err != nil {
		return err
	}
	if _, err := m.ledger.Release(ctx, tx, b.SlotID, b.Requested.Total()); err != nil {
		return err
	}
	b.Status = to
	b.ExpiresAt = nil
	b.UpdatedAt = now
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return err
	}
	return m.ledger.Verify(ctx, tx, b.SlotID)
}

// transition applies a status change that leaves capacity alone.
func (m *Manager) transition(ctx context.Context, bookingID uint64, to model.BookingStatus, evType string, mutate func(*model.Booking, time.Time) error) (*model.Booking, error) {
	path, err := m.bookingPath(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	var (
		out   model.Booking
		dayID uint64
	)
	err = m.store.InTx(ctx, func(tx repository.Tx) error {
		b, day, err := m.lockBooking(ctx, tx, path, bookingID)
		if err != nil {
			return err
		}
		if !model.CanTransition(b.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
		}
		if err := checkOpen(day); err != nil {
			return err
		}
		if mutate != nil {
			if err := mutate(b, now); err != nil {
				return err
			}
		}
		b.Status = to
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		out, dayID = *b, day.ID
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}
	m.log.WithFields(logrus.Fields{"booking_id": out.ID, "status": out.Status}).Info("booking status changed")
	m.publish(ctx, bookingEvent(evType, &out, dayID, now))
	return &out, nil
}

// lockPath names the rows a booking operation locks, outermost first.
// A slot never changes day and a booking never changes slot, so the path
// is read before the transaction opens.
type lockPath struct {
	dayID  uint64
	slotID uint64
}

func (m *Manager) slotPath(ctx context.Context, slotID uint64) (lockPath, error) {
	slot, err := m.store.Slot(ctx, slotID)
	if err != nil {
		return lockPath{}, err
	}
	return lockPath{dayID: slot.EventDayID, slotID: slot.ID}, nil
}

func (m *Manager) bookingPath(ctx context.Context, bookingID uint64) (lockPath, error) {
	b, err := m.store.Booking(ctx, bookingID)
	if err != nil {
		return lockPath{}, err
	}
	return m.slotPath(ctx, b.SlotID)
}

// lockSlot share-locks the day and then exclusively locks the slot.  The
// closeout takes the same day row exclusively before it reads the day's
// slots and bookings, so both sides queue on the day in one order.
func (m *Manager) lockSlot(ctx context.Context, tx repository.Tx, p lockPath) (*model.Slot, *model.EventDay, error) {
	day, err := tx.EventDay(ctx, p.dayID, repository.LockShare)
	if err != nil {
		return nil, nil, err
	}
	slot, err := tx.SlotForUpdate(ctx, p.slotID)
	if err != nil {
		return nil, nil, err
	}
	if slot.EventDayID != p.dayID {
		return nil, nil, fmt.Errorf("slot %d moved from day %d to %d", slot.ID, p.dayID, slot.EventDayID)
	}
	return slot, day, nil
}

// lockBooking locks day, slot and then the booking row.
func (m *Manager) lockBooking(ctx context.Context, tx repository.Tx, p lockPath, bookingID uint64) (*model.Booking, *model.EventDay, error) {
	_, day, err := m.lockSlot(ctx, tx, p)
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.BookingForUpdate(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if b.SlotID != p.slotID {
		return nil, nil, fmt.Errorf("booking %d moved from slot %d to %d", b.ID, p.slotID, b.SlotID)
	}
	return b, day, nil
}

// checkOpen fails once the day has been closed out.
func checkOpen(day *model.EventDay) error {
	if day.IsClosed() {
		return fmt.Errorf("%w: day %d (%s)", ErrDayClosed, day.ID, day.Date.Format("2006-01-02"))
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, ev Event) {
	if err := m.pub.Publish(ctx, ev); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{"event": ev.Type, "booking_id": ev.BookingID}).Warn("publish event failed")
	}
}

func validateCreate(req *CreateRequest) error {
	var problems []string
	if req.SlotID == 0 {
		problems = append(problems, "slot id is required")
	}
	if req.InstitutionID == 0 {
		problems = append(problems, "institution id is required")
	}
	if req.Headcount.Students < 0 || req.Headcount.Adults < 0 {
		problems = append(problems, "head-count must not be negative")
	} else if req.Headcount.Total() == 0 {
		problems = append(problems, "head-count must be positive")
	}
	if req.BillingPolicy == "" {
		req.BillingPolicy = model.BillReserved
	}
	if !req.BillingPolicy.Valid() {
		problems = append(problems, fmt.Sprintf("unknown billing policy %q", req.BillingPolicy))
	}
	if req.CustomAmount != nil && *req.CustomAmount < 0 {
		problems = append(problems, "custom amount must not be negative")
	}
	if req.Kind != "" && req.Kind != model.KindTheater && req.Kind != model.KindTravel {
		problems = append(problems, fmt.Sprintf("unknown booking kind %q", req.Kind))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// expectedTotal prices a new booking.  Attendance is unknown at creation,
// so ATTENDED bills the reserved head-count until reconciled and CUSTOM
// falls back to it when no amount was supplied.
func expectedTotal(b model.Booking) (int64, error) {
	switch b.BillingPolicy {
	case model.BillAttended:
		req := b.Requested
		return Evaluate(model.BillAttended, b.PriceValues, b.Requested, &req, nil)
	case model.BillCustom:
		if b.CustomAmount == nil {
			return Evaluate(model.BillReserved, b.PriceValues, b.Requested, nil, nil)
		}
	}
	return Evaluate(b.BillingPolicy, b.PriceValues, b.Requested, b.Attended, b.CustomAmount)
}

// IsRecoverable reports whether err is one of the typed, caller-facing
// outcomes rather than an infrastructure or consistency failure.
func IsRecoverable(err error) bool {
	for _, target := range []error{
		ErrCapacityExceeded, ErrInvalidTransition, ErrPricingRuleNotFound,
		ErrDayClosed, ErrAlreadyClosed, ErrInvalidInput, ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/repository"
)

// Ledger guards the per-slot capacity counter.  Reserve and Release run
// inside a caller's transaction so the counter moves together with the
// booking rows that justify it.  Once the booking rows are written the
// caller runs Verify, which re-reads the authoritative occupancy and
// aborts the transaction if the counter disagrees with it.
type Ledger struct {
	store repository.Store
	log   logrus.FieldLogger
}

// NewLedger returns a ledger over store.
func NewLedger(store repository.Store, log logrus.FieldLogger) *Ledger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{store: store, log: log}
}

// Reserve takes count units from the slot.  The slot row stays locked
// for the rest of the transaction, so concurrent reservations against
// the same slot are serialised and at most one of two overselling
// requests succeeds.
func (l *Ledger) Reserve(ctx context.Context, tx repository.Tx, slotID uint64, count int) (*model.Slot, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: reserve count must be positive", ErrInvalidInput)
	}
	slot, err := l.lock(ctx, tx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.AvailableCapacity-count < 0 {
		return nil, &CapacityExceededError{SlotID: slotID, Requested: count, Remaining: slot.AvailableCapacity}
	}
	slot.AvailableCapacity -= count
	if err := tx.SetAvailableCapacity(ctx, slotID, slot.AvailableCapacity); err != nil {
		return nil, err
	}
	return slot, nil
}

// Release returns count units to the slot.  Overflowing TotalCapacity is
// a consistency violation; the counter is left as it was.
func (l *Ledger) Release(ctx context.Context, tx repository.Tx, slotID uint64, count int) (*model.Slot, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: release count must be positive", ErrInvalidInput)
	}
	slot, err := l.lock(ctx, tx, slotID)
	if err != nil {
		return nil, err
	}
	next := slot.AvailableCapacity + count
	if next > slot.TotalCapacity {
		return nil, l.violation(&ConsistencyViolationError{
			SlotID:    slotID,
			Total:     slot.TotalCapacity,
			Available: slot.AvailableCapacity,
			Occupancy: slot.TotalCapacity - slot.AvailableCapacity,
			Reason:    fmt.Sprintf("release of %d would exceed total", count),
		})
	}
	slot.AvailableCapacity = next
	if err := tx.SetAvailableCapacity(ctx, slotID, next); err != nil {
		return nil, err
	}
	return slot, nil
}

// Verify checks available == total - occupancy against the booking rows
// as they stand in tx.
func (l *Ledger) Verify(ctx context.Context, tx repository.Tx, slotID uint64) error {
	slot, err := tx.SlotForUpdate(ctx, slotID)
	if err != nil {
		return err
	}
	occ, err := tx.SlotOccupancy(ctx, slotID)
	if err != nil {
		return err
	}
	if v := checkSlot(slot, occ); v != nil {
		return l.violation(v)
	}
	return nil
}

// lock loads the slot with an exclusive lock and checks the counter is
// within 0..total.
func (l *Ledger) lock(ctx context.Context, tx repository.Tx, slotID uint64) (*model.Slot, error) {
	slot, err := tx.SlotForUpdate(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.AvailableCapacity < 0 || slot.AvailableCapacity > slot.TotalCapacity {
		return nil, l.violation(&ConsistencyViolationError{
			SlotID:    slotID,
			Total:     slot.TotalCapacity,
			Available: slot.AvailableCapacity,
			Occupancy: slot.TotalCapacity - slot.AvailableCapacity,
			Reason:    "available capacity out of bounds",
		})
	}
	return slot, nil
}

// checkSlot returns nil when the cached counter is consistent.
func checkSlot(slot *model.Slot, occupancy int) *ConsistencyViolationError {
	v := &ConsistencyViolationError{
		SlotID:    slot.ID,
		Total:     slot.TotalCapacity,
		Available: slot.AvailableCapacity,
		Occupancy: occupancy,
	}
	switch {
	case slot.AvailableCapacity < 0:
		v.Reason = "available capacity is negative"
	case slot.AvailableCapacity > slot.TotalCapacity:
		v.Reason = "available capacity exceeds total"
	case slot.AvailableCapacity != slot.TotalCapacity-occupancy:
		v.Reason = "available capacity disagrees with occupancy"
	default:
		return nil
	}
	return v
}

func (l *Ledger) violation(v *ConsistencyViolationError) error {
	l.log.WithFields(logrus.Fields{
		"slot_id":   v.SlotID,
		"total":     v.Total,
		"available": v.Available,
		"occupancy": v.Occupancy,
	}).Error("capacity ledger violation: " + v.Reason)
	return v
}

// SlotCapacity is a point-in-time view of a slot's ledger.
type SlotCapacity struct {
	SlotID    uint64 `json:"slot_id"`
	Total     int    `json:"total_capacity"`
	Available int    `json:"available_capacity"`
	Occupancy int    `json:"occupancy"`
	Drift     int    `json:"drift"` // available - (total - occupancy); zero when consistent
}

// Audit recomputes a slot's occupancy and reports any drift of the
// cached counter.  Drift is logged, never corrected.
func (l *Ledger) Audit(ctx context.Context, slotID uint64) (*SlotCapacity, error) {
	var out SlotCapacity
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		slot, err := tx.SlotForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		occ, err := tx.SlotOccupancy(ctx, slotID)
		if err != nil {
			return err
		}
		out = SlotCapacity{
			SlotID:    slotID,
			Total:     slot.TotalCapacity,
			Available: slot.AvailableCapacity,
			Occupancy: occ,
			Drift:     slot.AvailableCapacity - (slot.TotalCapacity - occ),
		}
		if v := checkSlot(slot, occ); v != nil {
			_ = l.violation(v)
		}
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}
	return &out, nil
}

// Occupancy returns the head-count currently held against a slot.
func (l *Ledger) Occupancy(ctx context.Context, slotID uint64) (int, error) {
	var occ int
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		occ, err = tx.SlotOccupancy(ctx, slotID)
		return err
	})
	return occ, transient(err)
}

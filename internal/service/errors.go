// Package service implements the booking core: the capacity ledger,
// pricing resolution and billing, the booking lifecycle, the inbox
// projection and the daily closeout.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/school-show-booking/internal/repository"
)

var (
	// ErrCapacityExceeded is matched by *CapacityExceededError.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrInvalidTransition rejects a status change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid booking transition")
	// ErrPricingRuleNotFound means no rule covers the date and product.
	ErrPricingRuleNotFound = errors.New("pricing rule not found")
	// ErrDayClosed rejects mutations against a closed day's slots.
	ErrDayClosed = errors.New("event day closed")
	// ErrAlreadyClosed rejects a second closeout of the same day.
	ErrAlreadyClosed = errors.New("event day already closed")
	// ErrConsistencyViolation is matched by *ConsistencyViolationError.
	ErrConsistencyViolation = errors.New("capacity ledger consistency violation")
	// ErrTransient is returned when a transaction kept conflicting.
	ErrTransient = errors.New("transient storage conflict, retry later")
	// ErrInvalidInput covers malformed requests (negative amounts, empty head-count...).
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound wraps repository.ErrNotFound for callers of this package.
	ErrNotFound = repository.ErrNotFound
)

// CapacityExceededError reports the capacity that was actually left.
type CapacityExceededError struct {
	SlotID    uint64
	Requested int
	Remaining int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded on slot %d: requested %d, remaining %d", e.SlotID, e.Requested, e.Remaining)
}

// Is lets errors.Is(err, ErrCapacityExceeded) match.
func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

// ConsistencyViolationError describes a ledger whose cached available
// capacity disagrees with its bounds or with the recomputed occupancy.
// It is never corrected automatically.
type ConsistencyViolationError struct {
	SlotID    uint64
	Total     int
	Available int
	Occupancy int
	Reason    string
}

func (e *ConsistencyViolationError) Error() string {
	return fmt.Sprintf("ledger inconsistency on slot %d: %s (total=%d available=%d occupancy=%d)",
		e.SlotID, e.Reason, e.Total, e.Available, e.Occupancy)
}

// Is lets errors.Is(err, ErrConsistencyViolation) match.
func (e *ConsistencyViolationError) Is(target error) bool { return target == ErrConsistencyViolation }

// transient maps exhausted transaction retries onto ErrTransient and
// leaves every other error untouched.
func transient(err error) error {
	if errors.Is(err, repository.ErrRetriesExhausted) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

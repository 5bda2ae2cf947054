// Package repository defines the storage collaborator used by the
// booking core: a Store that runs atomic units of work (Tx) and serves
// non-transactional reads.  The MySQL implementation lives in this
// package; an in-process implementation lives in repository/memory.
//
// The sentinel values below let higher layers distinguish failure
// scenarios without depending on the driver.
package repository

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique key would be violated, for
	// example a second daily summary for the same date.
	ErrDuplicate = errors.New("duplicate")

	// ErrTxConflict marks a transaction that lost a race (deadlock or
	// lock wait timeout) and may succeed when retried.
	ErrTxConflict = errors.New("transaction conflict")

	// ErrRetriesExhausted is returned once a conflicting transaction
	// has been attempted the configured number of times.
	ErrRetriesExhausted = errors.New("transaction retries exhausted")
)

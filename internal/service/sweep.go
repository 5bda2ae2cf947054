package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/school-show-booking/internal/repository"
)

// DefaultSweepBatch caps how many overdue holds one sweep handles.
const DefaultSweepBatch = 500

// SweepResult counts what a sweep did.
type SweepResult struct {
	Overdue int `json:"overdue"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"` // already changed, or the day is closed
	Failed  int `json:"failed"`
}

// Sweeper implements the active expiry strategy: overdue HOLD bookings
// move to EXPIRED and their head-count goes back to the ledger through
// the same path Cancel uses.  Without a sweeper expiry stays lazy.
type Sweeper struct {
	store repository.Store
	mgr   *Manager
	log   logrus.FieldLogger
	batch int
}

// NewSweeper returns a sweeper handling at most batch holds per run.
func NewSweeper(store repository.Store, mgr *Manager, log logrus.FieldLogger, batch int) *Sweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if batch <= 0 {
		batch = DefaultSweepBatch
	}
	return &Sweeper{store: store, mgr: mgr, log: log, batch: batch}
}

// Sweep expires holds whose expiry is at or before now.  Each hold is
// its own transaction, so one failure does not undo the rest.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	ids, err := s.store.OverdueHolds(ctx, now, s.batch)
	if err != nil {
		return res, err
	}
	res.Overdue = len(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		done, err := s.mgr.expire(ctx, id, now)
		switch {
		case err == nil && done:
			res.Expired++
		case err == nil, errors.Is(err, ErrDayClosed), errors.Is(err, ErrNotFound):
			res.Skipped++
		default:
			res.Failed++
			s.log.WithError(err).WithField("booking_id", id).Error("expire hold failed")
		}
	}
	if res.Overdue > 0 {
		s.log.WithFields(logrus.Fields{
			"overdue": res.Overdue,
			"expired": res.Expired,
			"skipped": res.Skipped,
			"failed":  res.Failed,
		}).Info("hold sweep finished")
	}
	return res, nil
}

// SweepNow runs Sweep at the manager's clock.
func (s *Sweeper) SweepNow(ctx context.Context) (SweepResult, error) {
	return s.Sweep(ctx, s.mgr.Now())
}

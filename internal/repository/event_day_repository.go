package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/school-show-booking/internal/model"
)

func (t *mysqlTx) EventDay(ctx context.Context, dayID uint64, lock LockMode) (*model.EventDay, error) {
	q := `SELECT id, day_date, status, closed_at, created_at FROM event_days WHERE id = ?` + lockClause(lock)
	var d model.EventDay
	var status string
	var closedAt sql.NullTime
	err := t.q.QueryRowContext(ctx, q, dayID).Scan(&d.ID, &d.Date, &status, &closedAt, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event day %d: %w", dayID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load event day %d: %w", dayID, err)
	}
	d.Status = model.DayStatus(status)
	if closedAt.Valid {
		ts := closedAt.Time
		d.ClosedAt = &ts
	}
	return &d, nil
}

// CloseEventDay only matches an OPEN day so a racing second closeout
// updates nothing.
func (t *mysqlTx) CloseEventDay(ctx context.Context, dayID uint64, at time.Time) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE event_days SET status = 'CLOSED', closed_at = ? WHERE id = ? AND status = 'OPEN'`,
		at.UTC(), dayID)
	if err != nil {
		return fmt.Errorf("close event day %d: %w", dayID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close event day %d: %w", dayID, err)
	}
	if n == 0 {
		return fmt.Errorf("event day %d not open: %w", dayID, ErrNotFound)
	}
	return nil
}

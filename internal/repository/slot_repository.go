package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/school-show-booking/internal/model"
)

const slotColumns = `id, event_day_id, work_id, kind, season_id, starts_at, ends_at,
       total_capacity, available_capacity, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (*model.Slot, error) {
	var s model.Slot
	var kind string
	var season sql.NullInt64
	if err := row.Scan(&s.ID, &s.EventDayID, &s.WorkID, &kind, &season, &s.StartsAt, &s.EndsAt,
		&s.TotalCapacity, &s.AvailableCapacity, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Kind = model.BookingKind(kind)
	if season.Valid {
		v := uint64(season.Int64)
		s.SeasonID = &v
	}
	return &s, nil
}

func getSlot(ctx context.Context, q querier, slotID uint64, lock LockMode) (*model.Slot, error) {
	row := q.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`+lockClause(lock), slotID)
	s, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slot %d: %w", slotID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %d: %w", slotID, err)
	}
	return s, nil
}

// Slot returns a slot without locking it.
func (s *MySQLStore) Slot(ctx context.Context, slotID uint64) (*model.Slot, error) {
	return getSlot(ctx, s.db, slotID, LockNone)
}

func (t *mysqlTx) SlotForUpdate(ctx context.Context, slotID uint64) (*model.Slot, error) {
	return getSlot(ctx, t.q, slotID, LockExclusive)
}

func (t *mysqlTx) SetAvailableCapacity(ctx context.Context, slotID uint64, available int) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE slots SET available_capacity = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`, available, slotID)
	if err != nil {
		return fmt.Errorf("update slot %d capacity: %w", slotID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("slot %d: %w", slotID, ErrNotFound)
	}
	return nil
}

// SlotOccupancy uses a locking read so the sum reflects the latest
// committed bookings rather than the transaction's snapshot.
func (t *mysqlTx) SlotOccupancy(ctx context.Context, slotID uint64) (int, error) {
	const q = `SELECT COALESCE(SUM(students + adults), 0)
               FROM bookings
               WHERE slot_id = ? AND status IN ('HOLD', 'PENDING', 'CONFIRMED', 'COMPLETED')
               LOCK IN SHARE MODE`
	var occ int
	if err := t.q.QueryRowContext(ctx, q, slotID).Scan(&occ); err != nil {
		return 0, fmt.Errorf("sum occupancy of slot %d: %w", slotID, err)
	}
	return occ, nil
}

func (t *mysqlTx) SlotsByDay(ctx context.Context, dayID uint64) ([]model.Slot, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE event_day_id = ? ORDER BY starts_at, id`, dayID)
	if err != nil {
		return nil, fmt.Errorf("list slots of day %d: %w", dayID, err)
	}
	defer rows.Close()
	var out []model.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

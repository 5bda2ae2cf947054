package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/school-show-booking/internal/model"
)

const dailyColumns = `id, event_day_id, summary_date, booking_count, revenue_total_cents,
       attendance_total, cost_total_cents, margin_cents, created_at`

func scanDaily(row rowScanner) (*model.DailySummary, error) {
	var d model.DailySummary
	if err := row.Scan(&d.ID, &d.EventDayID, &d.Date, &d.BookingCount, &d.RevenueTotal,
		&d.AttendanceTotal, &d.CostTotal, &d.Margin, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// InsertDailySummary relies on the unique key on summary_date; a second
// row for the same date surfaces as ErrDuplicate.
func (t *mysqlTx) InsertDailySummary(ctx context.Context, s *model.DailySummary) error {
	const q = `INSERT INTO daily_summaries (event_day_id, summary_date, booking_count, revenue_total_cents,
                   attendance_total, cost_total_cents, margin_cents, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.q.ExecContext(ctx, q, s.EventDayID, dbDate(s.Date), s.BookingCount, s.RevenueTotal,
		s.AttendanceTotal, s.CostTotal, s.Margin, s.CreatedAt.UTC())
	if err != nil {
		return classify(fmt.Errorf("insert daily summary %s: %w", dbDate(s.Date), err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert daily summary: %w", err)
	}
	s.ID = uint64(id)
	return nil
}

func dailyBetween(ctx context.Context, q querier, from, to time.Time) ([]model.DailySummary, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+dailyColumns+` FROM daily_summaries
               WHERE summary_date >= ? AND summary_date < ? ORDER BY summary_date`, dbDate(from), dbDate(to))
	if err != nil {
		return nil, fmt.Errorf("list daily summaries: %w", err)
	}
	defer rows.Close()
	var out []model.DailySummary
	for rows.Next() {
		d, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (t *mysqlTx) DailySummariesBetween(ctx context.Context, from, to time.Time) ([]model.DailySummary, error) {
	return dailyBetween(ctx, t.q, from, to)
}

func (t *mysqlTx) UpsertMonthlySummary(ctx context.Context, m *model.MonthlySummary) error {
	const q = `INSERT INTO monthly_summaries (year, month, day_count, booking_count, revenue_total_cents,
                   attendance_total, cost_total_cents, margin_cents, rebuilt_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
               ON DUPLICATE KEY UPDATE day_count = VALUES(day_count), booking_count = VALUES(booking_count),
                   revenue_total_cents = VALUES(revenue_total_cents), attendance_total = VALUES(attendance_total),
                   cost_total_cents = VALUES(cost_total_cents), margin_cents = VALUES(margin_cents),
                   rebuilt_at = VALUES(rebuilt_at)`
	if _, err := t.q.ExecContext(ctx, q, m.Year, int(m.Month), m.DayCount, m.BookingCount, m.RevenueTotal,
		m.AttendanceTotal, m.CostTotal, m.Margin, m.RebuiltAt.UTC()); err != nil {
		return fmt.Errorf("upsert monthly summary %d-%02d: %w", m.Year, m.Month, err)
	}
	return nil
}

// DailySummaryByDate returns the closeout summary of a date.
func (s *MySQLStore) DailySummaryByDate(ctx context.Context, date time.Time) (*model.DailySummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dailyColumns+` FROM daily_summaries WHERE summary_date = ?`, dbDate(date))
	d, err := scanDaily(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("daily summary %s: %w", dbDate(date), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load daily summary %s: %w", dbDate(date), err)
	}
	return d, nil
}

// DailySummariesBetween lists summaries with from <= date < to.
func (s *MySQLStore) DailySummariesBetween(ctx context.Context, from, to time.Time) ([]model.DailySummary, error) {
	return dailyBetween(ctx, s.db, from, to)
}

// MonthlySummary returns the last rebuilt summary of a month.
func (s *MySQLStore) MonthlySummary(ctx context.Context, year int, month time.Month) (*model.MonthlySummary, error) {
	const q = `SELECT year, month, day_count, booking_count, revenue_total_cents, attendance_total,
                      cost_total_cents, margin_cents, rebuilt_at
               FROM monthly_summaries WHERE year = ? AND month = ?`
	var m model.MonthlySummary
	var mon int
	err := s.db.QueryRowContext(ctx, q, year, int(month)).Scan(&m.Year, &mon, &m.DayCount, &m.BookingCount,
		&m.RevenueTotal, &m.AttendanceTotal, &m.CostTotal, &m.Margin, &m.RebuiltAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("monthly summary %d-%02d: %w", year, month, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load monthly summary %d-%02d: %w", year, month, err)
	}
	m.Month = time.Month(mon)
	return &m, nil
}

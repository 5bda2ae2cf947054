package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/school-show-booking/internal/model"
)

const bookingColumns = `b.id, b.kind, b.slot_id, b.institution_id, b.students, b.adults,
       b.attended_students, b.attended_adults, b.billing_policy, b.custom_amount_cents,
       b.pricing_rule_id, b.price_values, b.expected_total_cents, b.final_total_cents,
       b.status, b.expires_at, b.travel_format, b.travel_location, b.created_at, b.updated_at`

// scanBooking maps one bookings row, converting nullable columns into
// pointer fields.
func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	var (
		kind, policy, status       string
		attStudents, attAdults     sql.NullInt64
		custom, final              sql.NullInt64
		prices                     []byte
		expiresAt                  sql.NullTime
		travelFormat, travelLocale sql.NullString
	)
	err := row.Scan(&b.ID, &kind, &b.SlotID, &b.InstitutionID, &b.Requested.Students, &b.Requested.Adults,
		&attStudents, &attAdults, &policy, &custom,
		&b.PricingRuleID, &prices, &b.ExpectedTotal, &final,
		&status, &expiresAt, &travelFormat, &travelLocale, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Kind = model.BookingKind(kind)
	b.BillingPolicy = model.BillingPolicy(policy)
	b.Status = model.BookingStatus(status)
	if attStudents.Valid || attAdults.Valid {
		b.Attended = &model.Headcount{Students: int(attStudents.Int64), Adults: int(attAdults.Int64)}
	}
	if custom.Valid {
		v := custom.Int64
		b.CustomAmount = &v
	}
	if final.Valid {
		v := final.Int64
		b.FinalTotal = &v
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		b.ExpiresAt = &t
	}
	if travelFormat.Valid {
		b.Travel = &model.TravelDetails{Format: travelFormat.String, Location: travelLocale.String}
	}
	if len(prices) > 0 {
		if err := json.Unmarshal(prices, &b.PriceValues); err != nil {
			return nil, fmt.Errorf("decode price values of booking %d: %w", b.ID, err)
		}
	}
	return &b, nil
}

func getBooking(ctx context.Context, q querier, bookingID uint64, lock LockMode) (*model.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`+lockClause(lock), bookingID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", bookingID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	return b, nil
}

func listBookings(ctx context.Context, q querier, query string, args ...any) ([]model.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

// bookingArgs returns the mutable columns shared by insert and update.
func bookingArgs(b *model.Booking) ([]any, error) {
	prices, err := json.Marshal(b.PriceValues)
	if err != nil {
		return nil, fmt.Errorf("encode price values: %w", err)
	}
	var attStudents, attAdults any
	if b.Attended != nil {
		attStudents, attAdults = b.Attended.Students, b.Attended.Adults
	}
	var format, location any
	if b.Travel != nil {
		format, location = b.Travel.Format, b.Travel.Location
	}
	return []any{
		attStudents, attAdults, string(b.BillingPolicy), nullableInt(b.CustomAmount),
		string(prices), b.ExpectedTotal, nullableInt(b.FinalTotal),
		string(b.Status), nullableTime(b.ExpiresAt), format, location,
	}, nil
}

func (t *mysqlTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	mutable, err := bookingArgs(b)
	if err != nil {
		return err
	}
	const q = `INSERT INTO bookings (kind, slot_id, institution_id, students, adults, pricing_rule_id,
                   attended_students, attended_adults, billing_policy, custom_amount_cents,
                   price_values, expected_total_cents, final_total_cents,
                   status, expires_at, travel_format, travel_location, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{string(b.Kind), b.SlotID, b.InstitutionID, b.Requested.Students, b.Requested.Adults, b.PricingRuleID}
	args = append(args, mutable...)
	args = append(args, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	res, err := t.q.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	b.ID = uint64(id)
	return nil
}

func (t *mysqlTx) BookingForUpdate(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return getBooking(ctx, t.q, bookingID, LockExclusive)
}

func (t *mysqlTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	mutable, err := bookingArgs(b)
	if err != nil {
		return err
	}
	const q = `UPDATE bookings SET attended_students = ?, attended_adults = ?, billing_policy = ?,
                   custom_amount_cents = ?, price_values = ?, expected_total_cents = ?, final_total_cents = ?,
                   status = ?, expires_at = ?, travel_format = ?, travel_location = ?, updated_at = ?
               WHERE id = ?`
	args := append(mutable, b.UpdatedAt.UTC(), b.ID)
	res, err := t.q.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update booking %d: %w", b.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("booking %d: %w", b.ID, ErrNotFound)
	}
	return nil
}

func (t *mysqlTx) DeleteBooking(ctx context.Context, bookingID uint64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, bookingID)
	if err != nil {
		return fmt.Errorf("delete booking %d: %w", bookingID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("booking %d: %w", bookingID, ErrNotFound)
	}
	return nil
}

// BookingsByDay reads with a shared lock so a closeout sees every
// booking committed before it took the day lock.
func (t *mysqlTx) BookingsByDay(ctx context.Context, dayID uint64) ([]model.Booking, error) {
	return listBookings(ctx, t.q, `SELECT `+bookingColumns+`
               FROM bookings b
               JOIN slots s ON s.id = b.slot_id
               WHERE s.event_day_id = ?
               ORDER BY b.id
               LOCK IN SHARE MODE`, dayID)
}

// Booking returns a booking without locking it.
func (s *MySQLStore) Booking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return getBooking(ctx, s.db, bookingID, LockNone)
}

// OpenBookings lists bookings in HOLD or PENDING ordered by creation.
func (s *MySQLStore) OpenBookings(ctx context.Context) ([]model.Booking, error) {
	return listBookings(ctx, s.db, `SELECT `+bookingColumns+`
               FROM bookings b
               WHERE b.status IN ('HOLD', 'PENDING')
               ORDER BY b.created_at, b.id`)
}

// OverdueHolds returns IDs of holds whose expires_at is not after now.
func (s *MySQLStore) OverdueHolds(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	q := `SELECT id FROM bookings WHERE status = 'HOLD' AND expires_at <= ? ORDER BY expires_at, id`
	args := []any{now.UTC()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list overdue holds: %w", err)
	}
	defer rows.Close()
	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/school-show-booking/internal/model"
)

var slotCols = []string{"id", "event_day_id", "work_id", "kind", "season_id", "starts_at", "ends_at",
	"total_capacity", "available_capacity", "created_at", "updated_at"}

func newMockStore(t *testing.T, attempts int) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewMySQLStore(db, attempts)
	s.backoff = time.Millisecond
	return s, mock
}

func slotRow(id uint64, total, available int) *sqlmock.Rows {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(slotCols).AddRow(id, 1, 7, "THEATER", nil, now, now.Add(time.Hour), total, available, now, now)
}

func TestInTxRetriesDeadlock(t *testing.T) {
	s, mock := newMockStore(t, 3)
	lockSlot := regexp.QuoteMeta("FROM slots WHERE id = ? FOR UPDATE")

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlot).WithArgs(5).WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery(lockSlot).WithArgs(5).WillReturnRows(slotRow(5, 100, 40))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET available_capacity = ?")).WithArgs(30, 5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(tx Tx) error {
		sl, err := tx.SlotForUpdate(context.Background(), 5)
		if err != nil {
			return err
		}
		return tx.SetAvailableCapacity(context.Background(), 5, sl.AvailableCapacity-10)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxExhaustsOnLockWaitTimeout(t *testing.T) {
	s, mock := newMockStore(t, 2)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery("FROM event_days").WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout"})
		mock.ExpectRollback()
	}
	err := s.InTx(context.Background(), func(tx Tx) error {
		_, err := tx.EventDay(context.Background(), 1, LockExclusive)
		return err
	})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDailySummaryDuplicate(t *testing.T) {
	s, mock := newMockStore(t, 3)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_summaries").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '2024-03-15'"})
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertDailySummary(context.Background(), &model.DailySummary{EventDayID: 1, Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)})
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotOccupancyCountsOccupyingStatuses(t *testing.T) {
	s, mock := newMockStore(t, 1)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("status IN ('HOLD', 'PENDING', 'CONFIRMED', 'COMPLETED')")).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"occ"}).AddRow(64))
	mock.ExpectCommit()

	var occ int
	err := s.InTx(context.Background(), func(tx Tx) error {
		var err error
		occ, err = tx.SlotOccupancy(context.Background(), 9)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 64, occ)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseEventDayRequiresOpen(t *testing.T) {
	s, mock := newMockStore(t, 1)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE event_days SET status = 'CLOSED'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.CloseEventDay(context.Background(), 3, time.Now())
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRoundTripsNullableColumns(t *testing.T) {
	s, mock := newMockStore(t, 1)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	exp := now.Add(72 * time.Hour)
	cols := []string{"id", "kind", "slot_id", "institution_id", "students", "adults",
		"attended_students", "attended_adults", "billing_policy", "custom_amount_cents",
		"pricing_rule_id", "price_values", "expected_total_cents", "final_total_cents",
		"status", "expires_at", "travel_format", "travel_location", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings b WHERE b.id = ?")).WithArgs(11).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(11, "TRAVEL", 2, 8, 30, 2,
			nil, nil, "RESERVED", nil,
			4, []byte(`{"student":500,"flat":20000}`), 35000, nil,
			"HOLD", exp, "HALF_DAY", "Riverside", now, now))

	b, err := s.Booking(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, model.KindTravel, b.Kind)
	assert.Nil(t, b.Attended)
	assert.Nil(t, b.FinalTotal)
	require.NotNil(t, b.ExpiresAt)
	assert.Equal(t, exp, *b.ExpiresAt)
	assert.Equal(t, model.TravelProduct("half_day"), b.ProductType())
	assert.Equal(t, int64(20000), b.PriceValues[model.FareFlat])

	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings b WHERE b.id = ?")).WithArgs(12).WillReturnError(sql.ErrNoRows)
	_, err = s.Booking(context.Background(), 12)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverdueHoldsAppliesLimit(t *testing.T) {
	s, mock := newMockStore(t, 1)
	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'HOLD' AND expires_at <= ? ORDER BY expires_at, id LIMIT ?")).
		WithArgs(now, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(8))

	ids, err := s.OverdueHolds(context.Background(), now, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 8}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

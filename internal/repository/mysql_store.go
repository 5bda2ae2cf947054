package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQL error numbers that signal a lost race rather than a bad request.
const (
	mysqlErrDeadlock        = 1213
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDupEntry        = 1062
)

// querier is satisfied by both *sql.DB and *sql.Tx so that read helpers
// can run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQLStore implements Store on InnoDB.  Transactions run at
// REPEATABLE READ and take row locks (SELECT ... FOR UPDATE / LOCK IN
// SHARE MODE) on the slot, booking and day rows they mutate, which
// serialises conflicting writers per slot.
type MySQLStore struct {
	db       *sql.DB
	attempts int
	backoff  time.Duration
}

// NewMySQLStore returns a store bound to db.  attempts bounds the retry
// loop for deadlocks and lock wait timeouts.
func NewMySQLStore(db *sql.DB, attempts int) *MySQLStore {
	return &MySQLStore{db: db, attempts: attempts, backoff: 20 * time.Millisecond}
}

// DB exposes the underlying pool, mainly for health checks.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// InTx begins a transaction, runs fn and commits.  Any error rolls the
// transaction back; conflicts are retried.
func (s *MySQLStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return RetryTx(ctx, s.attempts, s.backoff, func() error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
		if err != nil {
			return classify(fmt.Errorf("begin transaction: %w", err))
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()
		if err := fn(&mysqlTx{q: tx}); err != nil {
			return classify(err)
		}
		if err := tx.Commit(); err != nil {
			return classify(fmt.Errorf("commit transaction: %w", err))
		}
		committed = true
		return nil
	})
}

// classify tags retryable driver errors with ErrTxConflict and unique
// key violations with ErrDuplicate.
func classify(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case mysqlErrDeadlock, mysqlErrLockWaitTimeout:
		return fmt.Errorf("%w: %v", ErrTxConflict, err)
	case mysqlErrDupEntry:
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// mysqlTx implements Tx on a *sql.Tx.
type mysqlTx struct {
	q querier
}

var (
	_ Store = (*MySQLStore)(nil)
	_ Tx    = (*mysqlTx)(nil)
)

func lockClause(lock LockMode) string {
	switch lock {
	case LockShare:
		return " LOCK IN SHARE MODE"
	case LockExclusive:
		return " FOR UPDATE"
	}
	return ""
}

// dbDate formats a calendar date for DATE columns.
func dbDate(t time.Time) string { return t.UTC().Format("2006-01-02") }

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTxAttempts is used when a store is built with a non-positive
// attempt count.
const DefaultTxAttempts = 5

// RetryTx calls attempt until it succeeds, fails with an error that is
// not ErrTxConflict, or has been called attempts times.  backoff grows
// linearly between attempts and is cut short when ctx is done.
func RetryTx(ctx context.Context, attempts int, backoff time.Duration, attempt func() error) error {
	if attempts <= 0 {
		attempts = DefaultTxAttempts
	}
	var last error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = attempt()
		if last == nil || !errors.Is(last, ErrTxConflict) {
			return last
		}
		if i < attempts && backoff > 0 {
			t := time.NewTimer(time.Duration(i) * backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, last)
}

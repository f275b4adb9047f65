package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && *err == nil {
		*err = rErr
	}
}

// interrupted marks err as an interrupted injection when ctx was cancelled
// while the write was in flight.
func interrupted(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrInjectionInterrupted, err)
	}
	return err
}

// dayString is the stored form of a station day.
func dayString(day time.Time) string {
	return day.UTC().Format(time.DateOnly)
}

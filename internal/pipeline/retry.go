package pipeline

import (
	"context"
	"time"

	"ragforge/internal/apperr"
)

// backoffSchedule is the delay before each of the three retry attempts a
// stage gets after its first failure (SPEC_FULL.md §4.1: "retried up to 3
// times with 60s/120s/240s backoff").
var backoffSchedule = []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second}

// withRetry runs fn, retrying on apperr.Transient failures per
// backoffSchedule and giving up immediately on any other error kind
// (apperr.Permanent, validation, cancellation, ...).
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !apperr.IsRetryable(err) || attempt >= len(backoffSchedule) {
			return err
		}
		select {
		case <-time.After(backoffSchedule[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ragforge/internal/apperr"
)

func TestWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	old := backoffSchedule
	backoffSchedule = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { backoffSchedule = old }()

	attempts := 0
	err := withRetry(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return apperr.Transientf(nil, "transient failure")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestWithRetry_GivesUpImmediatelyOnPermanent(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), func(ctx context.Context) error {
		attempts++
		return apperr.Permanentf(nil, "bad input")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestWithRetry_ExhaustsScheduleAndReturnsError(t *testing.T) {
	old := backoffSchedule
	backoffSchedule = []time.Duration{time.Millisecond}
	defer func() { backoffSchedule = old }()

	attempts := 0
	err := withRetry(context.Background(), func(ctx context.Context) error {
		attempts++
		return apperr.Transientf(nil, "always fails")
	})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

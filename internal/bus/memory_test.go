package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PublishAndGetProgress(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	_, ok, err := b.GetProgress(ctx, "doc-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.PublishProgress(ctx, "doc-1", ProgressState{Stage: "chunk", Percent: 30}))

	state, ok, err := b.GetProgress(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "chunk", state.Stage)
	require.Equal(t, 30, state.Percent)
}

func TestMemoryBus_SubscribeReceivesUpdates(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	ch, cancel := b.SubscribeProgress(ctx, "doc-2")
	defer cancel()

	require.NoError(t, b.PublishProgress(ctx, "doc-2", ProgressState{Stage: "embed", Percent: 50}))

	select {
	case state := <-ch:
		require.Equal(t, "embed", state.Stage)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for progress update")
	}
}

func TestMemoryBus_Cancellation(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	cancelled, err := b.IsCancelled(ctx, "session-1")
	require.NoError(t, err)
	require.False(t, cancelled)

	require.NoError(t, b.RequestCancel(ctx, "session-1"))

	cancelled, err = b.IsCancelled(ctx, "session-1")
	require.NoError(t, err)
	require.True(t, cancelled)
}

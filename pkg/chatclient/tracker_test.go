package chatclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerMarksOnFocusGain(t *testing.T) {
	calls := 0
	tracker := NewReadTracker(func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	ctx := context.Background()

	updated, err := tracker.SetFocus(ctx, true)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 1, calls)

	// setting focus again without losing it does not re-mark
	_, err = tracker.SetFocus(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = tracker.SetFocus(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = tracker.SetFocus(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTrackerMarksInboundOnlyWhileFocused(t *testing.T) {
	calls := 0
	tracker := NewReadTracker(func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	ctx := context.Background()

	updated, err := tracker.OnInbound(ctx)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Zero(t, calls)

	_, err = tracker.SetFocus(ctx, true)
	require.NoError(t, err)

	updated, err = tracker.OnInbound(ctx)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 2, calls)
}

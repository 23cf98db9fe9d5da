package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBooking_Lifecycle(t *testing.T) {
	b := NewBooking(1, "cand@example.com", "ivr@example.com",
		time.Now().Add(24*time.Hour), time.Now().Add(25*time.Hour))

	assert.Equal(t, StatusScheduled, b.Status)
	assert.True(t, b.Active())

	require.NoError(t, b.Confirm())
	assert.Equal(t, StatusConfirmed, b.Status)

	require.NoError(t, b.Complete())
	assert.Equal(t, StatusCompleted, b.Status)
	assert.False(t, b.Active())
}

func TestBooking_InvalidTransitions(t *testing.T) {
	b := NewBooking(1, "c@example.com", "i@example.com", time.Now(), time.Now())

	// Cannot complete before confirming.
	assert.ErrorIs(t, b.Complete(), ErrInvalidTransition)

	require.NoError(t, b.Confirm())
	assert.ErrorIs(t, b.Confirm(), ErrInvalidTransition)

	require.NoError(t, b.Complete())
	assert.ErrorIs(t, b.Cancel(), ErrInvalidTransition)
	assert.ErrorIs(t, b.Reschedule(time.Now(), time.Now()), ErrInvalidTransition)
}

func TestBooking_CancelIsIdempotent(t *testing.T) {
	b := NewBooking(1, "c@example.com", "i@example.com", time.Now(), time.Now())

	require.NoError(t, b.Cancel())
	assert.Equal(t, StatusCanceled, b.Status)

	// A second cancel is a no-op, not an error.
	require.NoError(t, b.Cancel())
	assert.Equal(t, StatusCanceled, b.Status)
}

func TestBooking_Reschedule(t *testing.T) {
	b := NewBooking(1, "c@example.com", "i@example.com",
		time.Now().Add(24*time.Hour), time.Now().Add(25*time.Hour))
	require.NoError(t, b.Confirm())

	newStart := time.Now().Add(72 * time.Hour)
	newEnd := newStart.Add(time.Hour)
	require.NoError(t, b.Reschedule(newStart, newEnd))

	assert.True(t, b.StartsAt.Equal(newStart))
	assert.True(t, b.EndsAt.Equal(newEnd))
	assert.Equal(t, StatusConfirmed, b.Status)
}

func TestBooking_AttentionFlag(t *testing.T) {
	b := NewBooking(1, "c@example.com", "i@example.com", time.Now(), time.Now())

	b.FlagForAttention("calendar event missing")
	assert.Equal(t, SyncFlagRequiresAttention, b.SyncFlag)
	assert.Equal(t, "calendar event missing", b.LastError)

	b.MarkSynced()
	assert.Equal(t, SyncFlagNone, b.SyncFlag)
	assert.Empty(t, b.LastError)
	assert.False(t, b.LastSyncedAt.IsZero())
}

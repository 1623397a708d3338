package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedoosh/internal/schedule"
)

// noon on a known Monday, local time
var monday = time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)

func classOn(day time.Time, hour, minute int) schedule.Class {
	return schedule.Class{
		ID:      "c1",
		UserID:  "u1",
		Title:   "Biology",
		Weekday: Weekday(day),
		Hour:    hour,
		Minute:  minute,
		Enabled: true,
	}
}

func TestResolveOccurrence(t *testing.T) {
	require.Equal(t, time.Monday, monday.Weekday())

	t.Run("disabled class resolves to nothing", func(t *testing.T) {
		c := classOn(monday, 9, 0)
		c.Enabled = false
		_, ok, err := ResolveOccurrence(c, monday)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("weekday mismatch resolves to nothing", func(t *testing.T) {
		c := classOn(monday, 9, 0)
		tuesday := monday.AddDate(0, 0, 1)
		_, ok, err := ResolveOccurrence(c, tuesday)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("start is today's date at the class time", func(t *testing.T) {
		c := classOn(monday, 9, 30)
		occ, ok, err := ResolveOccurrence(c, monday)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.Local), occ.Start)
		assert.Equal(t, "c1::2026-03-02", occ.Key)
	})

	t.Run("key ignores time of day", func(t *testing.T) {
		c := classOn(monday, 9, 0)
		early, _, err := ResolveOccurrence(c, monday.Add(-11*time.Hour))
		require.NoError(t, err)
		late, _, err := ResolveOccurrence(c, monday.Add(11*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, early.Key, late.Key)
	})

	t.Run("malformed time is an error, not a skip", func(t *testing.T) {
		c := classOn(monday, 25, 0)
		_, _, err := ResolveOccurrence(c, monday)
		assert.ErrorIs(t, err, ErrTimeResolution)
	})
}

func TestWeekday(t *testing.T) {
	sunday := time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local)
	require.Equal(t, time.Sunday, sunday.Weekday())

	for i := 0; i < 7; i++ {
		assert.Equal(t, i+1, Weekday(sunday.AddDate(0, 0, i)))
	}
}

func TestKeyDate(t *testing.T) {
	d, ok := KeyDate("c1::2026-03-02")
	require.True(t, ok)
	assert.Equal(t, "2026-03-02", d)

	// uuid ids contain no "::", so the last separator wins
	d, ok = KeyDate("a::b::2026-03-02")
	require.True(t, ok)
	assert.Equal(t, "2026-03-02", d)

	_, ok = KeyDate("no-separator")
	assert.False(t, ok)

	_, ok = KeyDate("c1::not-a-date")
	assert.False(t, ok)
}

package attendance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedgerDisjointSets(t *testing.T) {
	ctx := context.Background()
	led := NewMemoryLedger()

	require.NoError(t, led.RecordCheckedIn(ctx, "a::2026-03-02"))
	assert.ErrorIs(t, led.RecordMissed(ctx, "a::2026-03-02"), ErrAlreadyResolved)
	assert.ErrorIs(t, led.RecordCheckedIn(ctx, "a::2026-03-02"), ErrAlreadyResolved)

	res, err := led.Resolution(ctx, "a::2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, ResolvedCheckedIn, res)

	require.NoError(t, led.RecordMissed(ctx, "b::2026-03-02"))
	assert.ErrorIs(t, led.RecordMissed(ctx, "b::2026-03-02"), ErrAlreadyResolved)
	assert.ErrorIs(t, led.RecordCheckedIn(ctx, "b::2026-03-02"), ErrAlreadyResolved)

	res, err = led.Resolution(ctx, "b::2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, ResolvedMissed, res)
}

func TestMemoryLedgerReset(t *testing.T) {
	ctx := context.Background()
	led := NewMemoryLedger()
	require.NoError(t, led.RecordCheckedIn(ctx, "a::2026-03-02"))
	require.NoError(t, led.RecordMissed(ctx, "b::2026-03-02"))

	require.NoError(t, led.Reset(ctx))

	for _, key := range []string{"a::2026-03-02", "b::2026-03-02"} {
		res, err := led.Resolution(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, ResolvedNone, res)
	}
}

func TestMemoryLedgerPrune(t *testing.T) {
	ctx := context.Background()
	led := NewMemoryLedger()
	require.NoError(t, led.RecordMissed(ctx, "old::2026-02-20"))
	require.NoError(t, led.RecordMissed(ctx, "new::2026-03-02"))
	require.NoError(t, led.RecordCheckedIn(ctx, "garbled"))

	require.NoError(t, led.PruneBefore(ctx, "2026-02-23"))

	res, err := led.Resolution(ctx, "old::2026-02-20")
	require.NoError(t, err)
	assert.Equal(t, ResolvedNone, res, "stale key should be forgotten")

	res, err = led.Resolution(ctx, "new::2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, ResolvedMissed, res, "recent key must survive pruning")

	res, err = led.Resolution(ctx, "garbled")
	require.NoError(t, err)
	assert.Equal(t, ResolvedNone, res, "undated keys are dropped")
}

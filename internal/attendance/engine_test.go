package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedoosh/internal/schedule"
)

type fakeRegistry struct {
	classes []schedule.Class
}

func (r *fakeRegistry) ListEnabled(context.Context) ([]schedule.Class, error) {
	var out []schedule.Class
	for _, c := range r.classes {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeScores struct {
	penalties map[string]int
}

func (s *fakeScores) AddPenalty(_ context.Context, userID string) (int, error) {
	if s.penalties == nil {
		s.penalties = make(map[string]int)
	}
	s.penalties[userID]++
	return s.penalties[userID], nil
}

func pinClock(t *testing.T, at time.Time) {
	t.Helper()
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = time.Now })
}

func newTestEngine(classes ...schedule.Class) (*Engine, *fakeScores, *MemoryLedger) {
	scores := &fakeScores{}
	led := NewMemoryLedger()
	eng := NewEngine(&fakeRegistry{classes: classes}, led, scores, nil)
	return eng, scores, led
}

func TestCheckInAtStart(t *testing.T) {
	ctx := context.Background()
	c := classOn(monday, 9, 0)
	startOfClass := time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)
	pinClock(t, startOfClass)
	eng, scores, _ := newTestEngine(c)

	assert.True(t, eng.CanCheckIn(ctx, c))

	msg, err := eng.CheckIn(ctx, c, nil)
	require.NoError(t, err)
	assert.Equal(t, "Checked in: Biology", msg)
	assert.Equal(t, msg, eng.LastMessage())

	st, err := eng.ClassStatus(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, st)
	assert.Empty(t, scores.penalties, "checking in never scores")

	// second attempt is a safe no-op
	msg, err = eng.CheckIn(ctx, c, nil)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
	assert.Equal(t, "Already checked in for Biology.", msg)
}

func TestScorerMarksMissed(t *testing.T) {
	ctx := context.Background()
	c := classOn(monday, 9, 0)
	pinClock(t, time.Date(2026, 3, 2, 9, 15, 0, 0, time.Local))
	eng, scores, led := newTestEngine(c)

	scored, err := eng.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, scored)
	assert.Equal(t, 1, scores.penalties["u1"])
	assert.Equal(t, "Missed Biology (09:00): +1 point", eng.LastMessage())

	res, err := led.Resolution(ctx, "c1::2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, ResolvedMissed, res)

	st, err := eng.ClassStatus(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, StatusMissed, st)

	// a second sweep never scores the same occurrence again
	scored, err = eng.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, scored)
	assert.Equal(t, 1, scores.penalties["u1"])
}

func TestScorerLeavesOpenWindowAlone(t *testing.T) {
	ctx := context.Background()
	c := classOn(monday, 9, 0)
	pinClock(t, time.Date(2026, 3, 2, 9, 5, 0, 0, time.Local))
	eng, scores, _ := newTestEngine(c)

	scored, err := eng.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, scored)
	assert.Empty(t, scores.penalties)

	st, err := eng.ClassStatus(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, st)
}

func TestForcedRunAlwaysLeavesFeedback(t *testing.T) {
	ctx := context.Background()
	pinClock(t, monday)
	eng, _, _ := newTestEngine()

	scored, err := eng.RunOnce(ctx, true)
	require.NoError(t, err)
	assert.Zero(t, scored)
	assert.Equal(t, "Checked: nothing to score right now.", eng.LastMessage())
}

func TestScorerSkipsBrokenTemplate(t *testing.T) {
	ctx := context.Background()
	broken := classOn(monday, 9, 0)
	broken.ID = "broken"
	broken.Hour = 25 // bypassed validation upstream
	missed := classOn(monday, 8, 0)

	pinClock(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local))
	eng, scores, _ := newTestEngine(broken, missed)

	scored, err := eng.RunOnce(ctx, false)
	require.NoError(t, err, "one malformed template must not abort the sweep")
	assert.Equal(t, 1, scored)
	assert.Equal(t, 1, scores.penalties["u1"])
}

func TestCheckInOutsideWindow(t *testing.T) {
	ctx := context.Background()
	c := classOn(monday, 9, 0)

	pinClock(t, time.Date(2026, 3, 2, 8, 30, 0, 0, time.Local))
	eng, _, led := newTestEngine(c)

	msg, err := eng.CheckIn(ctx, c, nil)
	assert.ErrorIs(t, err, ErrWindowNotOpen)
	assert.Equal(t, "Check-in window isn't open for Biology.", msg)

	res, err := led.Resolution(ctx, "c1::2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, ResolvedNone, res, "failed check-in records nothing")
}

func TestCheckInAfterScorerWon(t *testing.T) {
	ctx := context.Background()
	c := classOn(monday, 9, 0)
	pinClock(t, time.Date(2026, 3, 2, 9, 15, 0, 0, time.Local))
	eng, scores, _ := newTestEngine(c)

	_, err := eng.RunOnce(ctx, false)
	require.NoError(t, err)

	msg, err := eng.CheckIn(ctx, c, nil)
	assert.ErrorIs(t, err, ErrAlreadyMissed)
	assert.Equal(t, "Too late to check in for Biology.", msg)
	assert.Equal(t, 1, scores.penalties["u1"], "losing the race never double-scores")
}

func TestCheckInNotToday(t *testing.T) {
	ctx := context.Background()
	c := classOn(monday, 9, 0)
	tuesday := time.Date(2026, 3, 3, 9, 0, 0, 0, time.Local)
	pinClock(t, tuesday)
	eng, _, _ := newTestEngine(c)

	_, err := eng.CheckIn(ctx, c, nil)
	assert.ErrorIs(t, err, ErrNotToday)
	assert.False(t, eng.CanCheckIn(ctx, c))
}

func TestGuardDenialIsAtomic(t *testing.T) {
	ctx := context.Background()
	c := classOn(monday, 9, 0)
	pinClock(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local))
	eng, scores, led := newTestEngine(c)

	denied := errors.New("too far from building")
	msg, err := eng.CheckIn(ctx, c, func(context.Context) error { return denied })
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, denied.Error(), msg)

	res, lerr := led.Resolution(ctx, "c1::2026-03-02")
	require.NoError(t, lerr)
	assert.Equal(t, ResolvedNone, res)
	assert.Empty(t, scores.penalties)

	// retry with a passing guard succeeds
	_, err = eng.CheckIn(ctx, c, func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestPruneLedgerUsesHorizon(t *testing.T) {
	ctx := context.Background()
	pinClock(t, monday) // 2026-03-02; default horizon 7 days => cutoff 2026-02-23
	eng, _, led := newTestEngine()

	require.NoError(t, led.RecordMissed(ctx, "old::2026-02-22"))
	require.NoError(t, led.RecordMissed(ctx, "kept::2026-02-23"))

	require.NoError(t, eng.PruneLedger(ctx))

	res, err := led.Resolution(ctx, "old::2026-02-22")
	require.NoError(t, err)
	assert.Equal(t, ResolvedNone, res)

	res, err = led.Resolution(ctx, "kept::2026-02-23")
	require.NoError(t, err)
	assert.Equal(t, ResolvedMissed, res)
}

package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"schedoosh/internal/notify"
	"schedoosh/internal/queue"
	"schedoosh/internal/schedule"
)

// nowFunc is swapped out in tests to pin the clock.
var nowFunc = time.Now

// DefaultScanInterval is how often the scorer sweeps enabled classes. Any
// interval up to a minute resolves a 10-minute window comfortably.
const DefaultScanInterval = 10 * time.Second

// defaultPruneHorizonDays bounds ledger growth; occurrences are never
// re-examined after their day passes, so week-old keys are dead weight.
const defaultPruneHorizonDays = 7

var (
	// ErrNotToday means the class is disabled or today is not its weekday.
	ErrNotToday = errors.New("class does not occur today")
	// ErrAlreadyCheckedIn is the idempotent duplicate check-in outcome.
	ErrAlreadyCheckedIn = errors.New("already checked in")
	// ErrAlreadyMissed means the scorer resolved the occurrence first.
	ErrAlreadyMissed = errors.New("too late, occurrence already missed")
	// ErrWindowNotOpen means now is outside [start-10m, start+10m].
	ErrWindowNotOpen = errors.New("check-in window is not open")
)

// Registry supplies the classes the scorer sweeps. Read-only from the
// engine's point of view.
type Registry interface {
	ListEnabled(ctx context.Context) ([]schedule.Class, error)
}

// ScoreSink awards penalty points. The new total is returned for messages.
type ScoreSink interface {
	AddPenalty(ctx context.Context, userID string) (int, error)
}

// CheckInGuard runs after the window check passes and before the ledger
// write. Check-in geofencing plugs in here; a nil guard means time-only
// check-in. A guard error leaves ledger and score untouched.
type CheckInGuard func(ctx context.Context) error

// Engine owns the attendance rules: occurrence resolution, the check-in
// window, the ledger, and penalty scoring. All ledger and score mutations
// funnel through its mutex, so a manual check-in racing the scorer resolves
// to whichever got the lock first and the loser no-ops.
type Engine struct {
	registry Registry
	ledger   Ledger
	scores   ScoreSink
	events   queue.Queue // nil disables event publishing

	mu          sync.Mutex // held across guard calls too; see CheckIn
	lastMessage string

	pruneHorizonDays int
}

// NewEngine wires the engine. events may be nil.
func NewEngine(registry Registry, ledger Ledger, scores ScoreSink, events queue.Queue) *Engine {
	return &Engine{
		registry:         registry,
		ledger:           ledger,
		scores:           scores,
		events:           events,
		pruneHorizonDays: defaultPruneHorizonDays,
	}
}

// LastMessage returns the most recent human-readable feedback line.
func (e *Engine) LastMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastMessage
}

func (e *Engine) setMessage(msg string) {
	e.lastMessage = msg
}

// ClassStatus classifies today's occurrence of c for display.
func (e *Engine) ClassStatus(ctx context.Context, c schedule.Class) (Status, error) {
	occ, ok, err := ResolveOccurrence(c, nowFunc())
	if err != nil {
		return StatusNotToday, err
	}
	if !ok {
		return StatusNotToday, nil
	}
	return Classify(ctx, e.ledger, occ, nowFunc())
}

// CanCheckIn reports whether a check-in for c would be accepted right now,
// ignoring any geofence guard.
func (e *Engine) CanCheckIn(ctx context.Context, c schedule.Class) bool {
	st, err := e.ClassStatus(ctx, c)
	return err == nil && st == StatusOpen
}

// CheckIn attempts a user check-in for c. On success the key lands in the
// checked-in set and the returned message names the class. Every failure is
// atomic: nothing is recorded.
func (e *Engine) CheckIn(ctx context.Context, c schedule.Class, guard CheckInGuard) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := nowFunc()
	occ, ok, err := ResolveOccurrence(c, now)
	if err != nil {
		msg := fmt.Sprintf("Couldn't read time for %s.", c.Title)
		e.setMessage(msg)
		return msg, err
	}
	if !ok {
		return fmt.Sprintf("%s doesn't meet today.", c.Title), ErrNotToday
	}

	res, err := e.ledger.Resolution(ctx, occ.Key)
	if err != nil {
		return "", err
	}
	switch res {
	case ResolvedCheckedIn:
		msg := fmt.Sprintf("Already checked in for %s.", c.Title)
		e.setMessage(msg)
		return msg, ErrAlreadyCheckedIn
	case ResolvedMissed:
		msg := fmt.Sprintf("Too late to check in for %s.", c.Title)
		e.setMessage(msg)
		return msg, ErrAlreadyMissed
	}

	if !CheckInWindow(occ.Start).Contains(now) {
		msg := fmt.Sprintf("Check-in window isn't open for %s.", c.Title)
		e.setMessage(msg)
		return msg, ErrWindowNotOpen
	}

	if guard != nil {
		if err := guard(ctx); err != nil {
			e.setMessage(err.Error())
			return err.Error(), err
		}
	}

	if err := e.ledger.RecordCheckedIn(ctx, occ.Key); err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			msg := fmt.Sprintf("Already checked in for %s.", c.Title)
			e.setMessage(msg)
			return msg, ErrAlreadyCheckedIn
		}
		return "", err
	}
	checkInsTotal.Inc()

	msg := fmt.Sprintf("Checked in: %s", c.Title)
	e.setMessage(msg)
	e.publish(ctx, notify.Event{
		UserID:  c.UserID,
		ClassID: c.ID,
		Kind:    notify.KindCheckedIn,
		Body:    msg,
	})
	return msg, nil
}

// RunOnce sweeps every enabled class and scores any occurrence whose window
// closed unresolved. A forced run always leaves feedback, even when nothing
// scored. Resolution failures on one class never abort the sweep.
func (e *Engine) RunOnce(ctx context.Context, force bool) (scored int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sweepStart := time.Now()
	defer func() { scanDuration.Observe(time.Since(sweepStart).Seconds()) }()

	classes, err := e.registry.ListEnabled(ctx)
	if err != nil {
		return 0, err
	}

	now := nowFunc()
	for _, c := range classes {
		occ, ok, rerr := ResolveOccurrence(c, now)
		if rerr != nil {
			log.Printf("scorer: skipping %s: %v", c.ID, rerr)
			continue
		}
		if !ok {
			continue
		}

		res, lerr := e.ledger.Resolution(ctx, occ.Key)
		if lerr != nil {
			log.Printf("scorer: ledger lookup failed for %s: %v", occ.Key, lerr)
			continue
		}
		if res != ResolvedNone {
			continue
		}
		if !now.After(CheckInWindow(occ.Start).ClosesAt) {
			continue
		}

		if lerr := e.ledger.RecordMissed(ctx, occ.Key); lerr != nil {
			if !errors.Is(lerr, ErrAlreadyResolved) {
				log.Printf("scorer: record missed failed for %s: %v", occ.Key, lerr)
			}
			continue
		}
		if _, serr := e.scores.AddPenalty(ctx, c.UserID); serr != nil {
			log.Printf("scorer: penalty for user %s failed: %v", c.UserID, serr)
		}
		missesTotal.Inc()
		scored++

		msg := fmt.Sprintf("Missed %s (%s): +1 point", c.Title, c.TimeString())
		e.setMessage(msg)
		e.publish(ctx, notify.Event{
			UserID:  c.UserID,
			ClassID: c.ID,
			Kind:    notify.KindMissed,
			Body:    msg,
		})
	}

	if force && scored == 0 {
		e.setMessage("Checked: nothing to score right now.")
	}
	return scored, nil
}

// ResetLedger clears both sets. Only the explicit full data reset calls
// this; tying it to login/logout would let old occurrences score again.
func (e *Engine) ResetLedger(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Reset(ctx)
}

// PruneLedger drops resolved keys older than the retention horizon.
func (e *Engine) PruneLedger(ctx context.Context) error {
	cutoff := nowFunc().AddDate(0, 0, -e.pruneHorizonDays).Format(dayFormat)
	return e.ledger.PruneBefore(ctx, cutoff)
}

// Start launches the periodic scorer. It prunes the ledger once at startup,
// then sweeps on every tick until ctx is cancelled.
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	go func() {
		if err := e.PruneLedger(ctx); err != nil {
			log.Printf("scorer: ledger prune failed: %v", err)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		prune := time.NewTicker(12 * time.Hour)
		defer prune.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-prune.C:
				if err := e.PruneLedger(ctx); err != nil {
					log.Printf("scorer: ledger prune failed: %v", err)
				}
			case <-ticker.C:
				if _, err := e.RunOnce(ctx, false); err != nil {
					log.Printf("scorer: sweep failed: %v", err)
				}
			}
		}
	}()
}

func (e *Engine) publish(ctx context.Context, ev notify.Event) {
	if e.events == nil {
		return
	}
	body, err := ev.Encode()
	if err != nil {
		log.Printf("engine: event encode failed: %v", err)
		return
	}
	if err := e.events.Publish(ctx, queue.Message{Type: "score", Body: body}); err != nil {
		log.Printf("engine: event publish failed: %v", err)
	}
}

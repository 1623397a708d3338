package attendance

import (
	"context"
	"time"
)

// CheckInBuffer is the fixed symmetric window half-width around a class
// start: check-in opens 10 minutes before and closes 10 minutes after.
const CheckInBuffer = 10 * time.Minute

// Status classifies one occurrence at a point in time.
type Status int

const (
	// StatusNotToday means the class does not occur today (or is disabled).
	StatusNotToday Status = iota
	// StatusUpcoming means the window has not opened yet.
	StatusUpcoming
	// StatusOpen means check-in is currently accepted.
	StatusOpen
	// StatusAwaitingScore means the window closed unresolved and the scorer
	// has not converted it to missed yet. Cosmetic only; nothing may base a
	// scoring decision on it.
	StatusAwaitingScore
	// StatusCheckedIn is terminal for the day.
	StatusCheckedIn
	// StatusMissed is terminal for the day.
	StatusMissed
)

func (s Status) String() string {
	switch s {
	case StatusUpcoming:
		return "upcoming"
	case StatusOpen:
		return "open"
	case StatusAwaitingScore:
		return "awaiting_score"
	case StatusCheckedIn:
		return "checked_in"
	case StatusMissed:
		return "missed"
	default:
		return "not_today"
	}
}

// Label returns the human-readable form shown in status lists.
func (s Status) Label() string {
	switch s {
	case StatusUpcoming:
		return "Upcoming"
	case StatusOpen:
		return "Check-in open"
	case StatusAwaitingScore:
		return "Waiting to score"
	case StatusCheckedIn:
		return "Checked in"
	case StatusMissed:
		return "Missed (+1)"
	default:
		return "Not today"
	}
}

// Window is the inclusive interval during which check-in is accepted.
type Window struct {
	OpensAt  time.Time
	ClosesAt time.Time
}

// CheckInWindow returns [start-buffer, start+buffer].
func CheckInWindow(start time.Time) Window {
	return Window{
		OpensAt:  start.Add(-CheckInBuffer),
		ClosesAt: start.Add(CheckInBuffer),
	}
}

// Contains reports whether t falls inside the window, boundaries included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.OpensAt) && !t.After(w.ClosesAt)
}

// Classify resolves the status of occ at time now, consulting the ledger
// first: a resolved key is terminal regardless of the clock.
func Classify(ctx context.Context, led Ledger, occ Occurrence, now time.Time) (Status, error) {
	res, err := led.Resolution(ctx, occ.Key)
	if err != nil {
		return StatusNotToday, err
	}
	switch res {
	case ResolvedCheckedIn:
		return StatusCheckedIn, nil
	case ResolvedMissed:
		return StatusMissed, nil
	}
	w := CheckInWindow(occ.Start)
	switch {
	case now.Before(w.OpensAt):
		return StatusUpcoming, nil
	case !now.After(w.ClosesAt):
		return StatusOpen, nil
	default:
		return StatusAwaitingScore, nil
	}
}

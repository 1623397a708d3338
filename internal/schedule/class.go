package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Weekday bounds follow the Sunday-start convention: 1=Sunday .. 7=Saturday.
const (
	MinWeekday = 1
	MaxWeekday = 7
)

var (
	ErrTitleRequired = errors.New("title required")
	ErrBadWeekday    = errors.New("weekday must be 1 (Sunday) through 7 (Saturday)")
	ErrBadHour       = errors.New("hour must be 0 through 23")
	ErrBadMinute     = errors.New("minute must be 0 through 59")
)

// Class is a recurring weekly class template owned by a user.
type Class struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Weekday      int       `json:"weekday"`
	Hour         int       `json:"hour"`
	Minute       int       `json:"minute"`
	Enabled      bool      `json:"enabled"`
	BuildingCode string    `json:"building_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks the schedule fields against their allowed ranges.
func (c Class) Validate() error {
	if c.Title == "" {
		return ErrTitleRequired
	}
	if c.Weekday < MinWeekday || c.Weekday > MaxWeekday {
		return ErrBadWeekday
	}
	if c.Hour < 0 || c.Hour > 23 {
		return ErrBadHour
	}
	if c.Minute < 0 || c.Minute > 59 {
		return ErrBadMinute
	}
	return nil
}

// TimeString renders the start time as HH:MM for user-facing messages.
func (c Class) TimeString() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// WeekdayName returns the English day name for display.
func (c Class) WeekdayName() string {
	if c.Weekday < MinWeekday || c.Weekday > MaxWeekday {
		return "?"
	}
	return time.Weekday(c.Weekday - 1).String()
}

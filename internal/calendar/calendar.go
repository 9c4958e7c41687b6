// Package calendar reads and writes Google Calendar events over the REST API.
package calendar

import (
	"context"
	"time"
)

// Event is a read-only snapshot of one calendar entry. All-day events carry
// the day bounds in Start/End.
type Event struct {
	Title      string
	Start      time.Time
	End        time.Time
	AllDay     bool
	CalendarID string
}

// Provider lists a day's events across the read calendars and creates
// events on the plan calendar.
type Provider interface {
	ListDay(ctx context.Context, day time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, title string, start, end time.Time) (string, error)
}

// dayBounds returns local midnight of day and of the following day.
func dayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Package freebusy merges calendar events into busy and spare minutes
// within a working window.
package freebusy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chris/daylog/internal/calendar"
)

// MaxListedEvents caps the event lines in a formatted summary.
const MaxListedEvents = 8

// Interval is a closed-open range [Start, End).
type Interval struct {
	Start, End time.Time
}

func (i Interval) Minutes() int {
	return int(i.End.Sub(i.Start) / time.Minute)
}

// Merge sorts intervals by start and folds each one whose start is at or
// before the running end into it. Touching intervals merge. The input is
// not modified.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []Interval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !cur.Start.After(last.End) {
			if cur.End.After(last.End) {
				last.End = cur.End
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

// Clip maps events onto the window. All-day events fill the whole window;
// events that do not overlap it are dropped.
func Clip(window Interval, events []calendar.Event) []Interval {
	var out []Interval
	for _, ev := range events {
		iv := Interval{Start: ev.Start, End: ev.End}
		if ev.AllDay {
			iv = window
		}
		if !iv.End.After(window.Start) || !iv.Start.Before(window.End) {
			continue
		}
		if iv.Start.Before(window.Start) {
			iv.Start = window.Start
		}
		if iv.End.After(window.End) {
			iv.End = window.End
		}
		if iv.End.After(iv.Start) {
			out = append(out, iv)
		}
	}
	return out
}

// Summary is the busy/spare accounting of one day.
type Summary struct {
	Window        Interval
	Events        []calendar.Event
	Busy          []Interval
	BusyMinutes   int
	SpareMinutes  int
	WindowMinutes int
}

// Summarize computes busy and spare minutes for events within window.
// BusyMinutes + SpareMinutes == WindowMinutes whenever the window is
// non-empty.
func Summarize(window Interval, events []calendar.Event) Summary {
	busy := Merge(Clip(window, events))
	total := 0
	for _, iv := range busy {
		total += iv.Minutes()
	}
	windowMinutes := window.Minutes()
	spare := windowMinutes - total
	if spare < 0 {
		spare = 0
	}
	return Summary{
		Window:        window,
		Events:        events,
		Busy:          busy,
		BusyMinutes:   total,
		SpareMinutes:  spare,
		WindowMinutes: windowMinutes,
	}
}

// Format renders the summary message shown to the user.
func (s Summary) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today\nWorking window: %s-%s\n", s.Window.Start.Format("15:04"), s.Window.End.Format("15:04"))

	if len(s.Events) == 0 {
		b.WriteString("Events: (none)\n")
	} else {
		b.WriteString("Events:\n")
		loc := s.Window.Start.Location()
		for i, ev := range s.Events {
			if i == MaxListedEvents {
				break
			}
			if ev.AllDay {
				fmt.Fprintf(&b, "- All-day: %s (%s)\n", ev.Title, ev.CalendarID)
				continue
			}
			fmt.Fprintf(&b, "- %s-%s %s (%s)\n",
				ev.Start.In(loc).Format("15:04"), ev.End.In(loc).Format("15:04"), ev.Title, ev.CalendarID)
		}
	}

	fmt.Fprintf(&b, "Busy: %s\nSpare: %s", FormatMinutes(s.BusyMinutes), FormatMinutes(s.SpareMinutes))
	return b.String()
}

// FormatMinutes renders 150 as "2h 30m", 120 as "2h" and 45 as "45m".
func FormatMinutes(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dm", m)
}

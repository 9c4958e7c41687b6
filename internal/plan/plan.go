// Package plan turns free text like "3pm 2h Lombard" into a timed block.
package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	DefaultDuration  = 60 // minutes
	MaxDuration      = 24 * 60
	PlaceholderTitle = "Planned Block"
)

// Plan is a compiled calendar block awaiting confirmation.
type Plan struct {
	Title           string    `json:"title"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	RawText         string    `json:"raw"`
}

// Range formats the block as "HH:MM-HH:MM" in the plan's own zone.
func (p *Plan) Range() string {
	return p.Start.Format("15:04") + "-" + p.End.Format("15:04")
}

func (p *Plan) String() string {
	return p.Range() + " " + p.Title
}

// Analysis is everything the extractors found in one piece of text.
type Analysis struct {
	Time      *TimeOfDay
	TimeErr   error // ErrNoTime or ErrInvalidTime when Time is nil
	Durations []Duration
	Residual  string // text with time and duration tokens removed
}

// HasTimeToken reports whether a time-like token was found, valid or not.
func (a Analysis) HasTimeToken() bool {
	return a.Time != nil || errors.Is(a.TimeErr, ErrInvalidTime)
}

// TotalMinutes sums every duration token.
func (a Analysis) TotalMinutes() int {
	total := 0
	for _, d := range a.Durations {
		total += d.Minutes
	}
	return total
}

// Analyze runs the time and duration extractors over text.
func Analyze(text string) Analysis {
	durations := FindDurations(text)
	a := Analysis{}

	tod, err := findTime(text, durations)
	var cut []Span
	if err != nil {
		a.TimeErr = err
	} else {
		a.Time = &tod
		cut = append(cut, tod.Span)
	}

	// Durations overlapping the time token belong to it.
	for _, d := range durations {
		if a.Time != nil && d.overlaps(a.Time.Span) {
			continue
		}
		a.Durations = append(a.Durations, d)
		cut = append(cut, d.Span)
	}

	a.Residual = strip(text, cut)
	return a
}

// Compile builds a Plan on the calendar day of ref in loc. The text must
// carry a valid time; durations are summed and default to an hour.
func Compile(text string, ref time.Time, loc *time.Location) (*Plan, error) {
	if loc == nil {
		loc = time.Local
	}
	text = strings.TrimSpace(text)
	a := Analyze(text)
	if a.Time == nil {
		return nil, fmt.Errorf("compile plan %q: %w", text, a.TimeErr)
	}

	minutes := a.TotalMinutes()
	if minutes <= 0 {
		minutes = DefaultDuration
	}
	if minutes > MaxDuration {
		return nil, fmt.Errorf("compile plan %q: %w", text, ErrTooLong)
	}

	title := a.Residual
	if title == "" {
		title = PlaceholderTitle
	}

	day := ref.In(loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), a.Time.Hour, a.Time.Minute, 0, 0, loc)
	return &Plan{
		Title:           title,
		Start:           start,
		End:             start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
		RawText:         text,
	}, nil
}

const titleTrim = " \t\r\n,，、;；:：-"

// strip removes spans from text, collapses whitespace and trims separators.
func strip(text string, spans []Span) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	var b strings.Builder
	pos := 0
	for _, s := range spans {
		if s.Start < pos {
			continue
		}
		b.WriteString(text[pos:s.Start])
		b.WriteByte(' ')
		pos = s.End
	}
	b.WriteString(text[pos:])
	return strings.Trim(strings.Join(strings.Fields(b.String()), " "), titleTrim)
}

// Package classify holds the pure text predicates used to guess what a
// free-text message is when no explicit wait state applies.
package classify

import (
	"regexp"
	"strings"

	"github.com/chris/daylog/internal/plan"
)

// Shape is the tagged outcome of classification.
type Shape int

const (
	Chat Shape = iota
	Morning
	Night
	PlanCandidate
)

func (s Shape) String() string {
	switch s {
	case Morning:
		return "morning"
	case Night:
		return "night"
	case PlanCandidate:
		return "plan"
	}
	return "chat"
}

// Result carries each predicate independently. They may overlap; callers
// resolve ties with their own precedence order.
type Result struct {
	Morning bool
	Night   bool
	Plan    bool
}

// Has reports whether the predicate for s held.
func (r Result) Has(s Shape) bool {
	switch s {
	case Morning:
		return r.Morning
	case Night:
		return r.Night
	case PlanCandidate:
		return r.Plan
	}
	return false
}

func Classify(text string) Result {
	return Result{
		Morning: IsMorning(text),
		Night:   IsNight(text),
		Plan:    IsPlan(text),
	}
}

const labelAlt = `mood|worry|must[- ]do|心情|担心|担忧|必做|要做`

var (
	labelledLineRe = regexp.MustCompile(`(?i)^\s*(` + labelAlt + `)\s*[:：]`)
	labelStartRe   = regexp.MustCompile(`(?i)^\s*(` + labelAlt + `)`)

	morningKeywords = []string{
		"mood", "worry", "must", "tired", "energy", "slept", "sleep", "feel",
		"心情", "担心", "焦虑", "必做", "要做", "睡",
	}

	dayWords   = []string{"today", "day", "今天", "今日", "一天"}
	howWasRe   = regexp.MustCompile(`(?i)\bhow\s+was\b|怎么样|怎樣|如何|过得|過得`)
	checkinRe  = regexp.MustCompile(`(?i)\b(check[- ]?in|retro|retrospective|reflection)\b|复盘|回顾|总结`)
	questionRe = regexp.MustCompile(`[?？]\s*$`)
)

// IsMorning matches a mood/worry/must-do style answer.
func IsMorning(text string) bool {
	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		return false
	}
	for _, l := range lines {
		if labelledLineRe.MatchString(l) {
			return true
		}
	}
	if labelStartRe.MatchString(lines[0]) {
		return true
	}
	if len(lines) < 2 {
		return false
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, k := range morningKeywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}
	return hits >= 2
}

// IsNight matches a reflective evening check-in that is not itself a
// question.
func IsNight(text string) bool {
	if questionRe.MatchString(text) {
		return false
	}
	if checkinRe.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	return howWasRe.MatchString(lower) && containsAny(lower, dayWords)
}

// IsPlan matches text with a time token plus either a duration or a title.
// Questions are never plans.
func IsPlan(text string) bool {
	if IsMorning(text) || IsNight(text) || questionRe.MatchString(text) {
		return false
	}
	a := plan.Analyze(text)
	if !a.HasTimeToken() {
		return false
	}
	return len(a.Durations) > 0 || a.Residual != ""
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

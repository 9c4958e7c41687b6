package plan

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrNoTime      = errors.New("no time expression")
	ErrInvalidTime = errors.New("time expression out of range")
	ErrTooLong     = errors.New("duration longer than a day")
)

// Span is a byte range [Start, End) of the source text.
type Span struct {
	Start, End int
}

func (s Span) overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// TimeOfDay is a time token resolved to 24-hour form.
type TimeOfDay struct {
	Hour   int
	Minute int
	Span
}

// Duration is one duration token, in minutes.
type Duration struct {
	Minutes int
	Span
}

type meridiem int

const (
	noMeridiem meridiem = iota
	am
	pm
)

// cnNum matches arabic digits or Chinese numerals up to 99.
const cnNum = `(\d{1,2}|[零〇一二两兩三四五六七八九十]{1,3})`

var (
	// 下午3点半, 上午10点15分, 晚上八点
	zhTimeRe = regexp.MustCompile(`(凌晨|早上|早晨|上午|中午|下午|傍晚|晚上|今晚)?\s*` + cnNum + `\s*[点點时時](?:钟|鐘)?`)
	// minutes following the hour marker of zhTimeRe
	zhMinuteRe = regexp.MustCompile(`^(半|一刻|三刻|` + cnNum + `)(分钟|分鐘|分)?`)

	// half past 3, 3 o'clock in the afternoon
	enClockRe = regexp.MustCompile(`(?i)\b(?:(half|quarter)\s+past\s+(\d{1,2})|(\d{1,2})(?::(\d{2}))?\s*o'?clock)(?:\s+(in\s+the\s+morning|in\s+the\s+afternoon|in\s+the\s+evening|at\s+night|tonight))?`)
	// 3 in the afternoon, 7:30 tonight
	enDaypartRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s+(in\s+the\s+morning|in\s+the\s+afternoon|in\s+the\s+evening|at\s+night|tonight)\b`)

	genericTimeRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?`)

	amWordRe = regexp.MustCompile(`(?i)\b(?:a\.m\.|morning)|凌晨|早上|早晨|上午`)
	pmWordRe = regexp.MustCompile(`(?i)\b(?:pm|p\.m\.|afternoon|evening|tonight|night)\b|中午|下午|傍晚|晚上|今晚`)

	enHoursRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(hours?|hrs?|h)`)
	enMinutesRe = regexp.MustCompile(`(?i)(\d+)\s*(minutes?|mins?|m)`)
	enHalfRe    = regexp.MustCompile(`(?i)\b(half\s+(?:an\s+)?hour|an\s+hour)\b`)
	zhHoursRe   = regexp.MustCompile(cnNum + `\s*[个個]?\s*(半)?\s*(小时|小時|钟头|鐘頭)`)
	zhHalfRe    = regexp.MustCompile(`半\s*[个個]?\s*(小时|小時|钟头|鐘頭)`)
	zhMinutesRe = regexp.MustCompile(cnNum + `\s*(分钟|分鐘)`)
)

// timePattern extracts a time from one regexp match (submatch indices).
type timePattern struct {
	re      *regexp.Regexp
	extract func(text string, m []int) (hour, minute int, mer meridiem, end int, ok bool)
}

// Language-specific patterns come before the generic H[:MM][am|pm] one.
var timePatterns = []timePattern{
	{re: zhTimeRe, extract: extractZh},
	{re: enClockRe, extract: extractEnClock},
	{re: enDaypartRe, extract: extractEnDaypart},
	{re: genericTimeRe, extract: extractGeneric},
}

// FindDurations returns every duration token in text, in order, without
// overlaps.
func FindDurations(text string) []Duration {
	var found []Duration
	add := func(re *regexp.Regexp, value func(m []int) (int, bool), boundary bool) {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if boundary && letterAt(text, m[1]) {
				continue
			}
			if v, ok := value(m); ok {
				found = append(found, Duration{Minutes: v, Span: Span{m[0], m[1]}})
			}
		}
	}

	add(enHoursRe, func(m []int) (int, bool) {
		f, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		return clampMinutes(f * 60), true
	}, true)
	add(enMinutesRe, func(m []int) (int, bool) {
		f, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		return clampMinutes(f), true
	}, true)
	add(enHalfRe, func(m []int) (int, bool) {
		if strings.HasPrefix(strings.ToLower(text[m[2]:m[3]]), "half") {
			return 30, true
		}
		return 60, true
	}, false)
	add(zhHoursRe, func(m []int) (int, bool) {
		n, ok := parseNumber(text[m[2]:m[3]])
		if !ok {
			return 0, false
		}
		minutes := n * 60
		if m[4] >= 0 {
			minutes += 30
		}
		return minutes, true
	}, false)
	add(zhHalfRe, func(m []int) (int, bool) { return 30, true }, false)
	add(zhMinutesRe, func(m []int) (int, bool) {
		return parseNumber(text[m[2]:m[3]])
	}, false)

	sort.SliceStable(found, func(i, j int) bool { return found[i].Start < found[j].Start })
	out := found[:0]
	for _, d := range found {
		if len(out) > 0 && out[len(out)-1].overlaps(d.Span) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// FindTime returns the first time token in text. Patterns are tried in
// order and the first candidate of the first matching pattern decides: an
// out-of-range hour or minute yields ErrInvalidTime rather than a later
// candidate. Candidates inside a duration token are skipped.
func FindTime(text string) (TimeOfDay, error) {
	return findTime(text, FindDurations(text))
}

func findTime(text string, durations []Duration) (TimeOfDay, error) {
	for _, p := range timePatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			hour, minute, mer, end, ok := p.extract(text, m)
			if !ok {
				continue
			}
			span := Span{m[0], end}
			if insideDuration(span, durations) {
				continue
			}
			if mer == noMeridiem {
				mer = inferMeridiem(text, span)
			}
			hour = to24(hour, mer)
			if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
				return TimeOfDay{}, ErrInvalidTime
			}
			return TimeOfDay{Hour: hour, Minute: minute, Span: span}, nil
		}
	}
	return TimeOfDay{}, ErrNoTime
}

func extractZh(text string, m []int) (int, int, meridiem, int, bool) {
	hour, ok := parseNumber(text[m[4]:m[5]])
	if !ok {
		return 0, 0, 0, 0, false
	}
	mer := noMeridiem
	if m[2] >= 0 {
		switch text[m[2]:m[3]] {
		case "凌晨", "早上", "早晨", "上午":
			mer = am
		default:
			mer = pm
		}
	}

	end := m[1]
	minute := 0
	rest := text[end:]
	if mm := zhMinuteRe.FindStringSubmatchIndex(rest); mm != nil {
		after := rest[mm[1]:]
		// "3点2小时" is an hour followed by a duration, not 3:02.
		if !startsWithAny(strings.TrimLeft(after, " "), "小时", "小時", "钟头", "鐘頭", "个", "個") && !asciiLetterAt(after) {
			switch tok := rest[mm[2]:mm[3]]; tok {
			case "半":
				minute = 30
			case "一刻":
				minute = 15
			case "三刻":
				minute = 45
			default:
				n, ok := parseNumber(tok)
				if !ok {
					return 0, 0, 0, 0, false
				}
				minute = n
			}
			end += mm[1]
		}
	}

	// 有一点累: colloquial "a little", not one o'clock.
	if mer == noMeridiem && minute == 0 && end == m[1] && text[m[4]:m[5]] == "一" {
		return 0, 0, 0, 0, false
	}
	return hour, minute, mer, end, true
}

func asciiLetterAt(s string) bool {
	return s != "" && s[0] < utf8.RuneSelf && unicode.IsLetter(rune(s[0]))
}

func extractEnClock(text string, m []int) (int, int, meridiem, int, bool) {
	var hour, minute int
	var err error
	if m[2] >= 0 {
		hour, err = strconv.Atoi(text[m[4]:m[5]])
		minute = 30
		if strings.EqualFold(text[m[2]:m[3]], "quarter") {
			minute = 15
		}
	} else {
		hour, err = strconv.Atoi(text[m[6]:m[7]])
		if m[8] >= 0 {
			minute, _ = strconv.Atoi(text[m[8]:m[9]])
		}
	}
	if err != nil {
		return 0, 0, 0, 0, false
	}
	mer := noMeridiem
	if m[10] >= 0 {
		mer = daypart(text[m[10]:m[11]])
	}
	return hour, minute, mer, m[1], true
}

func extractEnDaypart(text string, m []int) (int, int, meridiem, int, bool) {
	hour, err := strconv.Atoi(text[m[2]:m[3]])
	if err != nil {
		return 0, 0, 0, 0, false
	}
	minute := 0
	if m[4] >= 0 {
		minute, _ = strconv.Atoi(text[m[4]:m[5]])
	}
	return hour, minute, daypart(text[m[6]:m[7]]), m[1], true
}

func extractGeneric(text string, m []int) (int, int, meridiem, int, bool) {
	hour, err := strconv.Atoi(text[m[2]:m[3]])
	if err != nil {
		return 0, 0, 0, 0, false
	}
	minute := 0
	digitsEnd := m[3]
	if m[4] >= 0 {
		minute, _ = strconv.Atoi(text[m[4]:m[5]])
		digitsEnd = m[5]
	}

	// A meridiem glued to more letters ("5 amazing") is not a meridiem.
	if m[6] >= 0 && boundaryAfter(text, m[1]) {
		mer := am
		if strings.HasPrefix(strings.ToLower(text[m[6]:m[7]]), "p") {
			mer = pm
		}
		return hour, minute, mer, m[1], true
	}
	if !boundaryAfter(text, digitsEnd) {
		return 0, 0, 0, 0, false
	}
	return hour, minute, noMeridiem, digitsEnd, true
}

func daypart(s string) meridiem {
	if strings.Contains(strings.ToLower(s), "morning") {
		return am
	}
	return pm
}

// inferMeridiem looks for an am/pm word anywhere outside the time token.
func inferMeridiem(text string, span Span) meridiem {
	rest := text[:span.Start] + " " + text[span.End:]
	if pmWordRe.MatchString(rest) {
		return pm
	}
	if amWordRe.MatchString(rest) {
		return am
	}
	return noMeridiem
}

func to24(hour int, mer meridiem) int {
	switch {
	case mer == pm && hour < 12:
		return hour + 12
	case mer == am && hour == 12:
		return 0
	}
	return hour
}

func insideDuration(s Span, durations []Duration) bool {
	for _, d := range durations {
		if d.overlaps(s) {
			return true
		}
	}
	return false
}

// cjkUnits are counters that make a bare number a date or a count (10月,
// 3号, 2个) rather than a time.
const cjkUnits = "号號月日年岁歲天个個周週次人"

// boundaryAfter reports whether the token ending at i is not glued to a
// following word ("2h" is not the time 2:00, "3pm开会" still is 15:00).
func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	if r < utf8.RuneSelf {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}
	return !strings.ContainsRune(cjkUnits, r)
}

// letterAt reports whether an ASCII letter starts at i. "2h30m" is two
// durations, "3 hosts" is none.
func letterAt(text string, i int) bool {
	return asciiLetterAt(text[i:])
}

func startsWithAny(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

var cnDigits = map[rune]int{
	'零': 0, '〇': 0, '一': 1, '二': 2, '两': 2, '兩': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// parseNumber parses arabic digits or a Chinese numeral below 100
// (三, 十二, 二十五, 四十).
func parseNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	runes := []rune(s)
	switch len(runes) {
	case 1:
		if runes[0] == '十' {
			return 10, true
		}
		d, ok := cnDigits[runes[0]]
		return d, ok
	case 2:
		if runes[0] == '十' {
			d, ok := cnDigits[runes[1]]
			return 10 + d, ok
		}
		if runes[1] == '十' {
			d, ok := cnDigits[runes[0]]
			return d * 10, ok
		}
	case 3:
		if runes[1] != '十' {
			return 0, false
		}
		tens, ok1 := cnDigits[runes[0]]
		ones, ok2 := cnDigits[runes[2]]
		return tens*10 + ones, ok1 && ok2
	}
	return 0, false
}

// clampMinutes converts a token's minutes to int, saturating just above
// MaxDuration so sums stay far from overflow and still fail the ceiling.
func clampMinutes(f float64) int {
	if f > MaxDuration {
		return MaxDuration + 1
	}
	return int(f)
}

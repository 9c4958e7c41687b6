package classify

import "strings"

var (
	yesWords  = wordSet("yes", "y", "ok", "okay", "sure", "confirm", "是", "好", "好的", "确认", "可以", "对")
	noWords   = wordSet("no", "n", "cancel", "不", "不要", "取消", "否")
	skipWords = wordSet("skip", "no", "none", "pass", "跳过", "不用", "没有", "算了")
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// normalize lowercases and drops surrounding whitespace and punctuation,
// so "Yes!" and "好的。" match.
func normalize(text string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(text)), " .!。！,，~")
}

func IsYes(text string) bool  { return yesWords[normalize(text)] }
func IsNo(text string) bool   { return noWords[normalize(text)] }
func IsSkip(text string) bool { return skipWords[normalize(text)] }

// MorningFields is a parsed morning answer. Missing fields are "(empty)".
type MorningFields struct {
	Mood   string
	Worry  string
	MustDo string
}

const emptyField = "(empty)"

var fieldLabels = []struct {
	field  int
	labels []string
}{
	{0, []string{"mood", "心情"}},
	{1, []string{"worry", "担心", "担忧"}},
	{2, []string{"must-do", "must do", "必做", "要做"}},
}

// ParseMorning reads labelled "Mood: x" lines. Fields still missing are
// filled in order from the non-empty lines and ";"-separated parts of the
// whole text.
func ParseMorning(text string) MorningFields {
	var fields [3]string
	lines := strings.Split(text, "\n")
	for _, fl := range fieldLabels {
		fields[fl.field] = extractLabel(lines, fl.labels)
	}

	if fields[0] == "" || fields[1] == "" || fields[2] == "" {
		var parts []string
		for _, p := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == ';' || r == '；' }) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		for i := range fields {
			if fields[i] == "" && i < len(parts) {
				fields[i] = parts[i]
			}
		}
	}

	for i := range fields {
		if fields[i] == "" {
			fields[i] = emptyField
		}
	}
	return MorningFields{Mood: fields[0], Worry: fields[1], MustDo: fields[2]}
}

func extractLabel(lines, labels []string) string {
	for _, line := range lines {
		l := strings.TrimSpace(line)
		lower := strings.ToLower(l)
		for _, label := range labels {
			if !strings.HasPrefix(lower, label) {
				continue
			}
			rest := strings.TrimSpace(l[len(label):])
			if v, ok := strings.CutPrefix(rest, ":"); ok {
				return strings.TrimSpace(v)
			}
			if v, ok := strings.CutPrefix(rest, "："); ok {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

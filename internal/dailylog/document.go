// Package dailylog keeps one markdown document per day and appends lines
// into its sections.
package dailylog

import (
	"fmt"
	"strings"
)

// Section names one part of the daily document.
type Section int

const (
	Morning Section = iota
	Plan
	CheckIn
	Todo
	Notes
)

func (s Section) String() string {
	switch s {
	case Morning:
		return "morning"
	case Plan:
		return "plan"
	case CheckIn:
		return "check-in"
	case Todo:
		return "todo"
	case Notes:
		return "notes"
	}
	return fmt.Sprintf("Section(%d)", int(s))
}

// Path returns the repository path of a day's document.
func Path(day string) string {
	return "daily/" + day + ".md"
}

// headers maps sections to their markdown headers. The check-in header
// carries the night prompt time.
type headers struct {
	checkIn string
}

func newHeaders(nightAt string) headers {
	return headers{checkIn: "## " + nightAt + " Check-in"}
}

func (h headers) of(s Section) string {
	switch s {
	case Morning:
		return "## Morning"
	case Plan:
		return "## Plan (optional)"
	case CheckIn:
		return h.checkIn
	case Todo:
		return "## Todo"
	}
	return "## Notes"
}

func (h headers) template(day string) string {
	return "# " + day + "\n\n" +
		h.of(Morning) + "\n" +
		"- Mood: \n- Worry: \n- Must-do: \n\n" +
		h.of(Plan) + "\n" +
		"- Planned Blocks:\n\n" +
		h.of(CheckIn) + "\n" +
		"- How was today: \n\n" +
		h.of(Todo) + "\n\n" +
		h.of(Notes) + "\n"
}

// AppendToSection inserts lines at the end of the section headed by header,
// just before the next "## " header. A missing section is added at the end
// of the document.
func AppendToSection(content, header string, lines []string) string {
	insert := strings.Join(lines, "\n") + "\n"

	idx := findHeader(content, header)
	if idx < 0 {
		return strings.TrimRight(content, " \t\r\n") + "\n\n" + header + "\n" + insert
	}

	pos := len(content)
	if next := strings.Index(content[idx+len(header):], "\n## "); next >= 0 {
		pos = idx + len(header) + next + 1
	}
	before := strings.TrimRight(content[:pos], " \t\r\n")
	after := strings.TrimLeft(content[pos:], " \t\r\n")
	if after == "" {
		return before + "\n" + insert
	}
	return before + "\n" + insert + "\n" + after
}

// findHeader returns the offset of header when it occupies a whole line.
func findHeader(content, header string) int {
	from := 0
	for {
		i := strings.Index(content[from:], header)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(header)
		startOK := i == 0 || content[i-1] == '\n'
		endOK := end == len(content) || content[end] == '\n' || content[end] == '\r'
		if startOK && endOK {
			return i
		}
		from = end
	}
}

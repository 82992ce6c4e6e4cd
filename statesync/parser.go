package statesync

import (
	"regexp"
	"strings"

	"github.com/hupe1980/edumesh/core"
)

// Parser extracts StudentInfo from a single free-text turn. The bool result
// reports whether the text matched; a miss is not an error.
type Parser interface {
	Parse(text string) (StudentInfo, bool)
}

// ParserFunc adapts a plain function to Parser.
type ParserFunc func(text string) (StudentInfo, bool)

// Parse implements Parser.
func (f ParserFunc) Parse(text string) (StudentInfo, bool) { return f(text) }

// StudentPattern is the documented grammar:
//
//	BOARD-grade-GRADE-SUBJECT. Question: QUESTION
//
// BOARD and SUBJECT are ASCII letters, GRADE is digits, QUESTION runs to the
// end of the line. Matching is case-insensitive and unanchored.
const StudentPattern = `(?i)([A-Za-z]+)-grade-(\d+)-([A-Za-z]+)\.\s*Question:\s*(.+)`

// RegexParser implements Parser with a regular expression exposing four
// capture groups: board, grade, subject, question.
type RegexParser struct {
	pattern *regexp.Regexp
}

// NewRegexParser returns a parser for StudentPattern.
func NewRegexParser() *RegexParser {
	return &RegexParser{pattern: regexp.MustCompile(StudentPattern)}
}

// NewCustomRegexParser compiles expr, which must define four capture groups.
func NewCustomRegexParser(expr string) (*RegexParser, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &RegexParser{pattern: re}, nil
}

// Parse implements Parser.
func (p *RegexParser) Parse(text string) (StudentInfo, bool) {
	m := p.pattern.FindStringSubmatch(text)
	if len(m) < 5 {
		return StudentInfo{}, false
	}
	return StudentInfo{
		Board:    m[1],
		Grade:    m[2],
		Subject:  m[3],
		Question: strings.TrimSpace(m[4]),
	}, true
}

// ExtractStudentInfo scans the text parts of all events in chronological
// order and returns the first successful parse.
func ExtractStudentInfo(p Parser, events []core.Event) (StudentInfo, bool) {
	for _, ev := range events {
		for _, text := range ev.Texts() {
			if info, ok := p.Parse(text); ok {
				return info, true
			}
		}
	}
	return StudentInfo{}, false
}

// EventFilter selects the events student info may be extracted from.
type EventFilter func(ev core.Event) bool

// FromUser keeps user-authored events, so a curriculum quoted by an agent
// never becomes the student's.
func FromUser(ev core.Event) bool { return ev.Author == core.RoleUser }

// Filter returns the events accepted by f. A nil filter accepts all events.
func (f EventFilter) Filter(events []core.Event) []core.Event {
	if f == nil {
		return events
	}
	out := make([]core.Event, 0, len(events))
	for _, ev := range events {
		if f(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// UserEvents returns the user-authored events of events.
func UserEvents(events []core.Event) []core.Event { return EventFilter(FromUser).Filter(events) }

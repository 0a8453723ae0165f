package timetable

import (
	"regexp"
	"strings"
)

// Room lines carry a number+unit token: "Room 304", "B102", "204호",
// "공학관 204". Professor lines carry a title: "Prof. Kim", "김철수 교수".
var (
	roomPattern = regexp.MustCompile(`(?i)(\b(room|rm\.?|hall|lab|bldg|building)\b\s*[A-Za-z]?-?\d+|\d+\s*호|[가-힣]+관(\s*\d+)?|\b[A-Z]-?\d{2,4}\b)`)
	profPattern = regexp.MustCompile(`(?i)(^(prof\.?|professor|dr\.?)\s+\S|교수(님)?$)`)

	lineSeparators = regexp.MustCompile(`\s*(/|\||·)\s*`)
)

// Disambiguate parses the ordered text lines of one block into course
// name, room, and professor. Heuristics are layered and applied in order:
//
//  1. classify lines by pattern (room token, professor title); the first
//     unmatched line is the course name,
//  2. a single leftover line fills the highest-priority missing field
//     (course > room > professor),
//  3. if every line was claimed by a pattern, the first raw line is the
//     course name verbatim.
//
// Room and professor may stay absent. Only a missing course name fails.
func Disambiguate(rawLines []string) (Fields, bool) {
	lines := splitLines(rawLines)
	if len(lines) == 0 {
		return Fields{}, false
	}

	var f Fields
	rest := make([]string, 0, len(lines))
	for _, line := range lines {
		switch {
		case f.Room == "" && roomPattern.MatchString(line):
			f.Room = line
		case f.Professor == "" && profPattern.MatchString(line):
			f.Professor = line
		default:
			rest = append(rest, line)
		}
	}

	switch len(rest) {
	case 0:
		// Every line matched a pattern; the first raw line still names
		// the course.
		f.CourseName = lines[0]
	case 1:
		f.CourseName = rest[0]
	default:
		f.CourseName = rest[0]
		leftover := rest[1:]
		if len(leftover) > 1 && f.Professor == "" {
			// The professor line is typically the shortest of what
			// remains.
			shortest := shortestIndex(leftover)
			f.Professor = leftover[shortest]
			leftover = append(leftover[:shortest], leftover[shortest+1:]...)
		}
		if len(leftover) == 1 {
			if f.Room == "" {
				f.Room = leftover[0]
			} else if f.Professor == "" {
				f.Professor = leftover[0]
			}
		}
	}

	return f, f.CourseName != ""
}

// splitLines expands embedded separators, trims, and drops empty lines
// while preserving order.
func splitLines(raw []string) []string {
	var out []string
	for _, line := range raw {
		for _, part := range lineSeparators.Split(line, -1) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func shortestIndex(lines []string) int {
	best := 0
	for i, l := range lines {
		if len([]rune(l)) < len([]rune(lines[best])) {
			best = i
		}
	}
	return best
}

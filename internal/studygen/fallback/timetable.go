package fallback

import (
	"regexp"
	"strings"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/textkit"
)

var instructorInitials = regexp.MustCompile(`\(([A-Z]{2,3})\)|\b[A-Z]\.\s?[A-Z][a-z]+\b|\b[A-Z]\.[A-Z]\.`)

const titleTrim = " \t-–—|,;:/@()[]"

// Timetable reads weekly class entries line by line. A weekday label stays
// in effect until the next one; each line with a time (or time range) under
// a weekday becomes an entry. The subject is what remains of the line once
// the weekday, times, room code and instructor are removed, or the closest
// preceding text line when nothing remains.
func Timetable(text string) []records.TimetableEntry {
	out := []records.TimetableEntry{}
	seen := map[string]bool{}
	day, lastText := "", ""

	for _, line := range textkit.SplitLines(text) {
		var cuts [][2]int
		if d, start, end, ok := textkit.FindWeekday(line); ok {
			if d != day {
				lastText = ""
			}
			day = d
			cuts = append(cuts, [2]int{start, end})
		}
		span, hasTime := textkit.FindTimeSpan(line)
		if !hasTime {
			if rest := strings.Trim(removeRanges(line, cuts), titleTrim); rest != "" {
				lastText = rest
			}
			continue
		}
		if day == "" {
			continue
		}
		cuts = append(cuts, [2]int{span.Start, span.End})
		rest := removeRanges(line, cuts)

		room, match := findRoomMatch(rest)
		if room != "" {
			rest = strings.Replace(rest, match, " ", 1)
		}
		instructor := instructorTitled.FindString(rest)
		if instructor != "" {
			rest = strings.Replace(rest, instructor, " ", 1)
		} else if m := instructorInitials.FindStringSubmatch(rest); m != nil {
			instructor = m[0]
			if m[1] != "" {
				instructor = m[1]
			}
			rest = strings.Replace(rest, m[0], " ", 1)
		}

		title := strings.Trim(textkit.CollapseSpace(rest), titleTrim)
		if title == "" {
			title = lastText
		}
		if title == "" {
			title = "Class"
		}
		entry := records.TimetableEntry{
			Day:        day,
			Time:       span.From,
			EndTime:    span.To,
			Title:      title,
			Room:       room,
			Instructor: instructor,
			Recurring:  true,
			Origin:     records.OriginFallback,
		}
		key := entry.Day + "|" + entry.Time + "|" + entry.Title
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, entry)
	}
	return out
}

// removeRanges blanks out the given byte ranges of s.
func removeRanges(s string, ranges [][2]int) string {
	if len(ranges) == 0 {
		return s
	}
	b := []byte(s)
	for _, r := range ranges {
		for i := r[0]; i < r[1] && i < len(b); i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

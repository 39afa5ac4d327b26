package fallback

import (
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/textkit"
)

const MaxScheduleItems = 8

type scheduleRule struct {
	label   string
	pattern *regexp.Regexp
	typ     records.ScheduleType
	at      string
}

// Evaluated in order; the first rule that matches a line claims it.
var scheduleRules = []scheduleRule{
	{"exam", regexp.MustCompile(`(?i)\b(final exam|midterm|exam(?:ination)?|quiz|test)\b`), records.ScheduleExam, "09:00"},
	{"assignment", regexp.MustCompile(`(?i)\b(assignment|homework|problem set|essay|project|lab report|paper)\b`), records.ScheduleAssignment, "23:59"},
	{"class", regexp.MustCompile(`(?i)\b(lecture|class|lab|seminar|tutorial|recitation|workshop)\b`), records.ScheduleClass, "09:00"},
	{"due", regexp.MustCompile(`(?i)\b(due|deadline|submit(?:ted)? by)\b`), records.ScheduleAssignment, "23:59"},
}

var (
	roomPattern      = regexp.MustCompile(`\b(?:[Rr]oom|[Rr]m\.?|[Hh]all)\s+([A-Z]?\d{1,4}[A-Z]?)\b|\b([A-Z]{1,4}-?\d{2,4}[A-Z]?)\b`)
	instructorTitled = regexp.MustCompile(`\b(?:Dr|Prof|Professor|Mr|Mrs|Ms)\.?\s+[A-Z][a-zA-Z\-]+`)
	bulletPrefix     = regexp.MustCompile(`^(?:[-*•>]+|\d{1,2}[.)])\s*`)
	labelSep         = regexp.MustCompile(`[:;]\s`)
)

// Schedule scans text for dated events. Items without a recognizable date
// are placed one week after now. When nothing matches, a single study
// session is proposed for the following evening.
func Schedule(text string, now time.Time, max int) []records.ScheduleItem {
	if max <= 0 || max > MaxScheduleItems {
		max = MaxScheduleItems
	}
	lines := textkit.SplitLines(text)
	if len(lines) == 0 {
		return []records.ScheduleItem{}
	}

	out := make([]records.ScheduleItem, 0, max)
	seen := map[string]bool{}
	for i, line := range lines {
		rule, ok := matchRule(line)
		if !ok {
			continue
		}
		date, ok := nearestDate(lines, i, now)
		if !ok {
			date = now.AddDate(0, 0, 7)
		}
		at, end := rule.at, ""
		if span, ok := textkit.FindTimeSpan(line); ok {
			at, end = span.From, span.To
		}
		item := records.ScheduleItem{
			Title:       scheduleTitle(line),
			Date:        date.Format(textkit.DateLayout),
			Time:        at,
			EndTime:     end,
			Type:        rule.typ,
			Room:        findRoom(line),
			Instructor:  instructorTitled.FindString(line),
			Description: textkit.Truncate(line, 240),
			Origin:      records.OriginFallback,
		}
		key := item.Title + "|" + item.Date
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
		if len(out) == max {
			break
		}
	}
	if len(out) == 0 {
		subject := textkit.DetectCategory(text)
		out = append(out, records.ScheduleItem{
			Title:       "Study Session: " + subject,
			Date:        now.AddDate(0, 0, 1).Format(textkit.DateLayout),
			Time:        records.ScheduleStudy.DefaultTime(),
			Type:        records.ScheduleStudy,
			Description: "Review the material: " + textkit.Truncate(lines[0], 120),
			Origin:      records.OriginFallback,
		})
	}
	return out
}

func matchRule(line string) (scheduleRule, bool) {
	for _, r := range scheduleRules {
		if r.pattern.MatchString(line) {
			return r, true
		}
	}
	return scheduleRule{}, false
}

// nearestDate looks at the line itself, then outward one line at a time
// (previous before next) up to two lines away.
func nearestDate(lines []string, i int, now time.Time) (time.Time, bool) {
	if d, ok := textkit.FindDate(lines[i], now); ok {
		return d, true
	}
	for dist := 1; dist <= 2; dist++ {
		for _, j := range []int{i - dist, i + dist} {
			if j < 0 || j >= len(lines) {
				continue
			}
			if d, ok := textkit.FindDate(lines[j], now); ok {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

func scheduleTitle(line string) string {
	title := bulletPrefix.ReplaceAllString(strings.TrimSpace(line), "")
	if loc := labelSep.FindStringIndex(title); loc != nil && loc[0] > 3 && loc[0] < 60 {
		title = title[:loc[0]]
	}
	return textkit.Truncate(strings.TrimRight(title, " .,-"), 80)
}

func findRoom(line string) string {
	room, _ := findRoomMatch(line)
	return room
}

// findRoomMatch returns the room code and the full text that named it
// ("Room 204" for room "204").
func findRoomMatch(line string) (room, match string) {
	m := roomPattern.FindStringSubmatch(line)
	if m == nil {
		return "", ""
	}
	if m[1] != "" {
		return m[1], m[0]
	}
	return m[2], m[0]
}

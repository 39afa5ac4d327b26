package textkit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

const timeExpr = `\d{1,2}(?::\d{2})?\s*[AaPp]\.?[Mm]\b\.?|\d{1,2}:\d{2}\b`

var (
	clockPattern = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\s*(?:([AaPp])\.?\s*[Mm]?\.?)?$`)
	timeToken    = regexp.MustCompile(`\b(?:` + timeExpr + `)`)
	timeRange    = regexp.MustCompile(`\b(\d{1,2}(?::\d{2})?(?:\s*[AaPp]\.?[Mm]\b\.?)?)\s*(?:-|–|—|to\b|until\b)\s*(` + timeExpr + `)`)
	markerSuffix = regexp.MustCompile(`(?i)([ap])\.?m\.?$`)
)

// NormalizeTime converts "2:30 PM", "12:15 am", "9:00" or "9" into 24h HH:MM.
func NormalizeTime(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "noon":
		return "12:00", true
	case "midnight":
		return "00:00", true
	}
	m := clockPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return "", false
	}
	switch strings.ToLower(m[3]) {
	case "a":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
	case "p":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return "", false
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// TimeSpan is a time or time range found in a line of text. Start and End
// are byte offsets of the matched text.
type TimeSpan struct {
	From  string
	To    string
	Start int
	End   int
}

// FindTimeSpan returns the first time range in line, or the first single
// time when no range is present.
func FindTimeSpan(line string) (TimeSpan, bool) {
	if loc := timeRange.FindStringSubmatchIndex(line); loc != nil {
		fromRaw := line[loc[2]:loc[3]]
		toRaw := line[loc[4]:loc[5]]
		to, okTo := NormalizeTime(toRaw)
		from, okFrom := inheritMarker(fromRaw, toRaw, to)
		if okTo && okFrom {
			return TimeSpan{From: from, To: to, Start: loc[0], End: loc[1]}, true
		}
	}
	if loc := timeToken.FindStringIndex(line); loc != nil {
		if from, ok := NormalizeTime(line[loc[0]:loc[1]]); ok {
			return TimeSpan{From: from, Start: loc[0], End: loc[1]}, true
		}
	}
	return TimeSpan{}, false
}

// "9 - 10:30 AM" borrows the AM from the end of the range unless that would
// put the start after the end.
func inheritMarker(fromRaw, toRaw, to string) (string, bool) {
	if markerSuffix.MatchString(strings.TrimSpace(fromRaw)) {
		return NormalizeTime(fromRaw)
	}
	if m := markerSuffix.FindStringSubmatch(strings.TrimSpace(toRaw)); m != nil {
		if withMarker, ok := NormalizeTime(fromRaw + " " + m[1] + "m"); ok && withMarker <= to {
			return withMarker, true
		}
	}
	return NormalizeTime(fromRaw)
}

// HasTime reports whether text contains a recognizable clock time.
func HasTime(text string) bool {
	return timeToken.MatchString(text)
}

var (
	fullDayPattern = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)s?\b`)
	abbrDayPattern = regexp.MustCompile(`\b(Mon|Tues?|Wed|Thu(?:rs?)?|Fri|Sat|Sun|MON|TUES?|WED|THU(?:RS?)?|FRI|SAT|SUN)\b\.?`)
)

var dayNames = map[string]string{
	"mon": "Monday", "tue": "Tuesday", "wed": "Wednesday", "thu": "Thursday",
	"fri": "Friday", "sat": "Saturday", "sun": "Sunday",
}

// NormalizeDay maps "mon", "Tues", "THURSDAY" and similar to a full English
// weekday name.
func NormalizeDay(raw string) (string, bool) {
	raw = strings.ToLower(strings.Trim(strings.TrimSpace(raw), "."))
	if len(raw) < 3 {
		return "", false
	}
	name, ok := dayNames[raw[:3]]
	if !ok {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(name), strings.TrimSuffix(raw, "s")) {
		return "", false
	}
	return name, true
}

// FindWeekday returns the first weekday label in line and its byte range.
// Abbreviations only count when capitalized so that "sun" or "sat" in prose
// are not read as days.
func FindWeekday(line string) (day string, start, end int, ok bool) {
	best := []int(nil)
	for _, p := range []*regexp.Regexp{fullDayPattern, abbrDayPattern} {
		if loc := p.FindStringSubmatchIndex(line); loc != nil && (best == nil || loc[0] < best[0]) {
			best = loc
		}
	}
	if best == nil {
		return "", 0, 0, false
	}
	day, ok = NormalizeDay(line[best[2]:best[3]])
	if !ok {
		return "", 0, 0, false
	}
	return day, best[0], best[1], true
}

const monthExpr = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`

var (
	isoDate      = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDate    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
	monthDayDate = regexp.MustCompile(`(?i)\b(` + monthExpr + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)
	dayMonthDate = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthExpr + `)\b\.?(?:,?\s+(\d{4})\b)?`)
)

var monthIndex = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

func monthOf(name string) (time.Month, bool) {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return 0, false
	}
	m, ok := monthIndex[name[:3]]
	return m, ok
}

// FindDate returns the earliest recognizable calendar date in text. Dates
// without a year take now's year, moved to next year when that would land
// more than 30 days in the past.
func FindDate(text string, now time.Time) (time.Time, bool) {
	type hit struct {
		at int
		t  time.Time
	}
	var best *hit
	consider := func(at int, t time.Time, ok bool) {
		if ok && (best == nil || at < best.at) {
			best = &hit{at: at, t: t}
		}
	}
	for _, m := range isoDate.FindAllStringSubmatchIndex(text, -1) {
		y, _ := strconv.Atoi(text[m[2]:m[3]])
		mo, _ := strconv.Atoi(text[m[4]:m[5]])
		d, _ := strconv.Atoi(text[m[6]:m[7]])
		t, ok := civil(y, mo, d, true, now)
		consider(m[0], t, ok)
	}
	for _, m := range slashDate.FindAllStringSubmatchIndex(text, -1) {
		mo, _ := strconv.Atoi(text[m[2]:m[3]])
		d, _ := strconv.Atoi(text[m[4]:m[5]])
		y, hasYear := 0, m[6] >= 0
		if hasYear {
			y, _ = strconv.Atoi(text[m[6]:m[7]])
			if y < 100 {
				y += 2000
			}
		}
		t, ok := civil(y, mo, d, hasYear, now)
		consider(m[0], t, ok)
	}
	for _, m := range monthDayDate.FindAllStringSubmatchIndex(text, -1) {
		mo, ok := monthOf(text[m[2]:m[3]])
		if !ok {
			continue
		}
		d, _ := strconv.Atoi(text[m[4]:m[5]])
		y, hasYear := 0, m[6] >= 0
		if hasYear {
			y, _ = strconv.Atoi(text[m[6]:m[7]])
		}
		t, ok := civil(y, int(mo), d, hasYear, now)
		consider(m[0], t, ok)
	}
	for _, m := range dayMonthDate.FindAllStringSubmatchIndex(text, -1) {
		mo, ok := monthOf(text[m[4]:m[5]])
		if !ok {
			continue
		}
		d, _ := strconv.Atoi(text[m[2]:m[3]])
		y, hasYear := 0, m[6] >= 0
		if hasYear {
			y, _ = strconv.Atoi(text[m[6]:m[7]])
		}
		t, ok := civil(y, int(mo), d, hasYear, now)
		consider(m[0], t, ok)
	}
	if best == nil {
		return time.Time{}, false
	}
	return best.t, true
}

func civil(year, month, day int, hasYear bool, now time.Time) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	if !hasYear {
		year = now.Year()
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
	if t.Day() != day {
		return time.Time{}, false
	}
	if !hasYear && t.Before(now.AddDate(0, 0, -30)) {
		t = t.AddDate(1, 0, 0)
	}
	return t, true
}

var dateLayouts = []string{
	DateLayout, "2006/01/02", "01/02/2006", "1/2/2006", "January 2, 2006", "Jan 2, 2006",
	"2 January 2006", "2006-01-02T15:04:05Z07:00", "2006-01-02T15:04:05",
}

// ParseDate accepts a date in any common layout, falling back to the first
// date token inside raw.
func ParseDate(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location()), true
		}
	}
	return FindDate(raw, now)
}

var (
	markedTime = regexp.MustCompile(`\b\d{1,2}(?::\d{2})?\s*[AaPp]\.?[Mm]\b`)
	bareClock  = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	clockRange = regexp.MustCompile(`\b\d{1,2}:\d{2}\s*(?:-|–|to\b)\s*\d{1,2}:\d{2}\b`)
	clockLead  = regexp.MustCompile(`(?i)\b(?:at|from|until|till|by|starts?|begins?|ends?)\s*$`)
	dateLead   = regexp.MustCompile(`(?i)\b(?:due|on|by|before|until|deadline|dated?)\s*:?\s*$`)
)

// Month names that are also everyday words ("may", "march") only count when
// capitalized.
var ambiguousMonths = map[string]bool{"may": true, "march": true, "mar": true}

// HasScheduleCues reports whether text mentions a date, clock time or
// weekday in a way that reads as scheduling. Fractions ("1/2"), ratios
// ("3:45") and the modal "may" do not count on their own.
func HasScheduleCues(text string, now time.Time) bool {
	for _, line := range SplitLines(text) {
		if lineHasScheduleCue(line, now) {
			return true
		}
	}
	return false
}

func lineHasScheduleCue(line string, now time.Time) bool {
	if fullDayPattern.MatchString(line) {
		return true
	}
	// "Sun" and "Sat" also appear in prose; abbreviations need a time nearby.
	if abbrDayPattern.MatchString(line) && HasTime(line) {
		return true
	}
	if isoDate.MatchString(line) || markedTime.MatchString(line) || clockRange.MatchString(line) {
		return true
	}
	for _, m := range bareClock.FindAllStringIndex(line, -1) {
		if clockLead.MatchString(line[:m[0]]) {
			return true
		}
	}
	for _, m := range slashDate.FindAllStringSubmatchIndex(line, -1) {
		mo, _ := strconv.Atoi(line[m[2]:m[3]])
		d, _ := strconv.Atoi(line[m[4]:m[5]])
		hasYear := m[6] >= 0
		if _, ok := civil(now.Year(), mo, d, true, now); !ok {
			continue
		}
		if hasYear || anchoredDate(line, m[0], m[1]) {
			return true
		}
	}
	for _, m := range monthDayDate.FindAllStringSubmatchIndex(line, -1) {
		strong := m[6] >= 0 || hasOrdinal(line[m[5]:]) || labelledMonth(line, m[0], m[1])
		if monthCue(line[m[2]:m[3]], strong) {
			return true
		}
	}
	for _, m := range dayMonthDate.FindAllStringSubmatchIndex(line, -1) {
		strong := m[6] >= 0 || hasOrdinal(line[m[3]:]) || labelledMonth(line, m[0], m[1])
		if monthCue(line[m[4]:m[5]], strong) {
			return true
		}
	}
	return false
}

func monthCue(word string, strong bool) bool {
	if _, ok := monthOf(word); !ok {
		return false
	}
	if !ambiguousMonths[strings.ToLower(word)] {
		return true
	}
	first := word[0]
	return first >= 'A' && first <= 'Z' && strong
}

func labelledMonth(line string, start, end int) bool {
	return anchoredDate(line, start, end) || strings.HasSuffix(strings.TrimSpace(line[:start]), ":")
}

func hasOrdinal(rest string) bool {
	rest = strings.ToLower(rest)
	for _, suf := range []string{"st", "nd", "rd", "th"} {
		if strings.HasPrefix(rest, suf) {
			return true
		}
	}
	return false
}

// anchoredDate reports whether the date at line[start:end] follows a date
// word such as "due" or "on", or labels the line ("3/14: Quiz").
func anchoredDate(line string, start, end int) bool {
	if dateLead.MatchString(line[:start]) {
		return true
	}
	if strings.TrimSpace(line[:start]) != "" {
		return false
	}
	rest := strings.TrimSpace(line[end:])
	return rest == "" || strings.HasPrefix(rest, ":") || strings.HasPrefix(rest, "-") || strings.HasPrefix(rest, "–")
}

// HasTimetableCues reports whether some line carries a time while a weekday
// is in scope (on that line or an earlier one).
func HasTimetableCues(text string) bool {
	dayInScope := false
	for _, line := range SplitLines(text) {
		if _, _, _, ok := FindWeekday(line); ok {
			dayInScope = true
		}
		if dayInScope && HasTime(line) {
			return true
		}
	}
	return false
}

package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/textkit"
)

const MaxTags = 5

var (
	NotesExpect = Expect{
		Shape:    ShapeArray,
		Keys:     []string{"title", "content", "heading", "body"},
		Wrappers: []string{"notes"},
	}
	FlashcardsExpect = Expect{
		Shape:    ShapeArray,
		Keys:     []string{"question", "answer", "front", "back", "term", "definition"},
		Wrappers: []string{"flashcards", "cards"},
	}
	ScheduleExpect = Expect{
		Shape:    ShapeArray,
		Keys:     []string{"title", "date", "due_date", "dueDate", "time"},
		Wrappers: []string{"schedule", "events", "items"},
	}
	TimetableExpect = Expect{
		Shape:    ShapeArray,
		Keys:     []string{"day", "weekday", "subject", "start_time", "startTime"},
		Wrappers: []string{"timetable", "classes", "entries"},
	}
	AnalysisExpect = Expect{
		Shape: ShapeObject,
		Keys:  []string{"subject", "category", "topics", "content_type", "contentType"},
	}
)

// Notes parses a notes reply. source is the text the notes were generated
// from; it seeds category and tag defaults.
func Notes(raw, source string) ([]records.Note, Outcome) {
	res := Parse(raw, NotesExpect)
	out := make([]records.Note, 0, len(res.Items))
	for _, m := range res.Items {
		title := str(m, "title", "heading", "name", "topic")
		content := str(m, "content", "body", "text", "markdown", "summary", "notes")
		if content == "" {
			if pts := strList(m, "points", "bullets", "key_points", "keyPoints"); len(pts) > 0 {
				content = "- " + strings.Join(pts, "\n- ")
			}
		}
		if content == "" {
			continue
		}
		if title == "" {
			title = titleFrom(content)
		}
		category := str(m, "category", "subject")
		if category == "" {
			category = categoryOf(title+"\n"+content, source)
		}
		tags := textkit.DedupeTags(strList(m, "tags", "keywords", "labels"), MaxTags)
		if len(tags) == 0 {
			tags = textkit.Keywords(title+"\n"+content, MaxTags)
		}
		out = append(out, records.Note{
			Title:    title,
			Content:  content,
			Category: category,
			Tags:     tags,
			Origin:   records.OriginGenerated,
		})
	}
	return out, outcomeOf(len(out))
}

func Flashcards(raw, source string) ([]records.Flashcard, Outcome) {
	res := Parse(raw, FlashcardsExpect)
	out := make([]records.Flashcard, 0, len(res.Items))
	for _, m := range res.Items {
		question := str(m, "question", "front", "q", "prompt")
		if question == "" {
			if term := str(m, "term", "concept"); term != "" {
				question = "What is " + strings.TrimRight(term, "?:. ") + "?"
			}
		}
		answer := str(m, "answer", "back", "a", "definition", "response")
		if question == "" || answer == "" {
			continue
		}
		category := str(m, "category", "subject", "topic")
		if category == "" {
			category = categoryOf(question+"\n"+answer, source)
		}
		out = append(out, records.Flashcard{
			Question:   question,
			Answer:     answer,
			Category:   category,
			Difficulty: records.ParseDifficulty(str(m, "difficulty", "level")),
			Origin:     records.OriginGenerated,
		})
	}
	return out, outcomeOf(len(out))
}

// ScheduleItems parses a schedule reply. Unparseable dates become one week
// after now.
func ScheduleItems(raw string, now time.Time) ([]records.ScheduleItem, Outcome) {
	res := Parse(raw, ScheduleExpect)
	out := make([]records.ScheduleItem, 0, len(res.Items))
	for _, m := range res.Items {
		title := str(m, "title", "name", "event", "summary")
		if title == "" {
			continue
		}
		description := str(m, "description", "details", "notes")
		typ := records.ScheduleType(strings.ToLower(str(m, "type", "kind", "category")))
		if !typ.Valid() {
			typ = records.InferScheduleType(title + " " + description)
		}
		date := now.AddDate(0, 0, 7)
		if d, ok := textkit.ParseDate(str(m, "date", "due_date", "dueDate", "due", "deadline"), now); ok {
			date = d
		}
		at, ok := textkit.NormalizeTime(str(m, "time", "start_time", "startTime", "start"))
		if !ok {
			at = typ.DefaultTime()
		}
		end, _ := textkit.NormalizeTime(str(m, "end_time", "endTime", "end"))
		out = append(out, records.ScheduleItem{
			Title:       title,
			Date:        date.Format(textkit.DateLayout),
			Time:        at,
			EndTime:     end,
			Type:        typ,
			Room:        str(m, "room", "location"),
			Instructor:  str(m, "instructor", "teacher", "lecturer"),
			Description: description,
			Origin:      records.OriginGenerated,
		})
	}
	return out, outcomeOf(len(out))
}

func TimetableEntries(raw string) ([]records.TimetableEntry, Outcome) {
	res := Parse(raw, TimetableExpect)
	out := make([]records.TimetableEntry, 0, len(res.Items))
	for _, m := range res.Items {
		day, ok := textkit.NormalizeDay(str(m, "day", "weekday", "day_of_week", "dayOfWeek"))
		if !ok {
			continue
		}
		start, ok := textkit.NormalizeTime(str(m, "time", "start_time", "startTime", "start"))
		if !ok {
			continue
		}
		title := str(m, "title", "subject", "course", "name", "class")
		if title == "" {
			continue
		}
		end, _ := textkit.NormalizeTime(str(m, "end_time", "endTime", "end"))
		out = append(out, records.TimetableEntry{
			Day:        day,
			Time:       start,
			EndTime:    end,
			Title:      title,
			Room:       str(m, "room", "location"),
			Instructor: str(m, "instructor", "teacher", "lecturer"),
			Recurring:  true,
			Origin:     records.OriginGenerated,
		})
	}
	return out, outcomeOf(len(out))
}

// Analysis parses an analyze reply into a partially filled Analysis; the
// caller completes cue flags and task selection.
func Analysis(raw string) (records.Analysis, Outcome) {
	res := Parse(raw, AnalysisExpect)
	if res.Outcome != Parsed {
		return records.Analysis{}, Empty
	}
	m := res.Object
	a := records.Analysis{
		Subject:     str(m, "subject", "title"),
		Category:    str(m, "category"),
		ContentType: strings.ToLower(str(m, "content_type", "contentType", "type")),
		Topics:      textkit.DedupeTags(strList(m, "topics", "key_topics", "keyTopics"), 20),
		Origin:      records.OriginGenerated,
	}
	if a.Subject == "" && a.Category == "" && len(a.Topics) == 0 {
		return records.Analysis{}, Empty
	}
	if a.Category == "" {
		a.Category = textkit.DetectCategory(a.Subject + " " + strings.Join(a.Topics, " "))
	}
	return a, Parsed
}

func outcomeOf(n int) Outcome {
	if n > 0 {
		return Parsed
	}
	return Empty
}

func categoryOf(text, source string) string {
	if c := textkit.DetectCategory(text); c != textkit.CategoryGeneral {
		return c
	}
	return textkit.DetectCategory(source)
}

func titleFrom(content string) string {
	for _, line := range textkit.SplitLines(content) {
		line = strings.TrimLeft(line, "#-*• ")
		if line != "" {
			return textkit.Truncate(line, 60)
		}
	}
	return "Untitled"
}

// str returns the first non-empty scalar among the aliased keys.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := lookupFold(m, k)
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64, bool:
			s = fmt.Sprint(t)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// strList accepts either a JSON array of scalars or a comma separated string.
func strList(m map[string]any, keys ...string) []string {
	for _, k := range keys {
		v, ok := lookupFold(m, k)
		if !ok {
			continue
		}
		var out []string
		switch t := v.(type) {
		case []any:
			for _, el := range t {
				if s, ok := el.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
		case string:
			for _, part := range strings.Split(t, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

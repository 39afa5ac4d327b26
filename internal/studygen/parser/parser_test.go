package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

func TestParseStrategies(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		strategy string
		items    int
	}{
		{"direct", `[{"question":"Q1","answer":"A1"},{"question":"Q2","answer":"A2"}]`, StrategyDirect, 2},
		{"wrapped object", `{"flashcards":[{"question":"Q1","answer":"A1"}]}`, StrategyDirect, 1},
		{"fenced", "Here are your cards:\n```json\n[{\"question\":\"Q\",\"answer\":\"A\"}]\n```\nEnjoy!", StrategyFence, 1},
		{"prose around array", `Sure! [{"question":"What does [x] mean?","answer":"A {placeholder} ]"}] Hope this helps.`, StrategyBalanced, 1},
		{"truncated array", `[{"question":"Q1","answer":"A1"},{"question":"Q2","answer":"A2"},{"question":"Q3","ans`, StrategyBalanced, 2},
		{"field pairs", `{"question": "What is ATP?", "answer": "The energy currency", "question": "dup"`, StrategyFieldPairs, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Parse(tc.raw, FlashcardsExpect)
			if res.Outcome != Parsed {
				t.Fatalf("outcome=%s want=parsed", res.Outcome)
			}
			if res.Strategy != tc.strategy {
				t.Fatalf("strategy=%s want=%s", res.Strategy, tc.strategy)
			}
			if len(res.Items) != tc.items {
				t.Fatalf("items=%d want=%d (%v)", len(res.Items), tc.items, res.Items)
			}
		})
	}
}

func TestParseEmptyOutcomes(t *testing.T) {
	for _, raw := range []string{"", "   ", "[]", "{}", "[1, 2, 3]", "I could not find any flashcards.", `{"unrelated": "value"}`} {
		if res := Parse(raw, FlashcardsExpect); res.Outcome != Empty {
			t.Fatalf("Parse(%q) outcome=%s items=%v", raw, res.Outcome, res.Items)
		}
	}
}

func TestParseMalformedNeverPanics(t *testing.T) {
	inputs := []string{
		"[", "]", "{", "}", "[{", "{[}]", `"unterminated`, "```", "```json", "```\n[\n```",
		`[{"a":"\"}]`, `[{"title":"x"},,]`, `{"notes": [}`, strings.Repeat("[", 500),
		strings.Repeat("{\"a\":", 200), `[{"question":"q","answer":"a"}]]]]`, "\x00\xff\xfe",
		`"question": "only key"`, `[{"question": "q", "answer": 5}]`,
	}
	for _, raw := range inputs {
		for _, want := range []Expect{NotesExpect, FlashcardsExpect, ScheduleExpect, TimetableExpect, AnalysisExpect} {
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Fatalf("Parse(%q) panicked: %v", raw, r)
					}
				}()
				res := Parse(raw, want)
				if res.Outcome == Parsed && want.Shape == ShapeArray && len(res.Items) == 0 {
					t.Fatalf("Parse(%q) parsed with no items", raw)
				}
			}()
		}
	}
}

func TestNotesDefaults(t *testing.T) {
	source := "Cells contain DNA. Enzymes are proteins that catalyze reactions in the cell."
	raw := `[{"title":"Enzymes","content":"Enzymes are proteins. Enzymes speed up reactions inside the cell."},{"title":"empty"}]`
	notes, outcome := Notes(raw, source)
	if outcome != Parsed || len(notes) != 1 {
		t.Fatalf("outcome=%s notes=%d", outcome, len(notes))
	}
	n := notes[0]
	if n.Category != "Biology" {
		t.Fatalf("category=%q", n.Category)
	}
	if len(n.Tags) == 0 || len(n.Tags) > MaxTags || n.Tags[0] != "enzymes" {
		t.Fatalf("tags=%q", n.Tags)
	}
	if n.Origin != records.OriginGenerated {
		t.Fatalf("origin=%s", n.Origin)
	}
}

func TestFlashcardAliases(t *testing.T) {
	raw := `{"cards":[{"front":"Mitosis?","back":"Cell division","level":"Advanced"},{"term":"ATP","definition":"Energy carrier"},{"q":"no answer"}]}`
	cards, outcome := Flashcards(raw, "")
	if outcome != Parsed || len(cards) != 2 {
		t.Fatalf("outcome=%s cards=%#v", outcome, cards)
	}
	if cards[0].Difficulty != records.DifficultyHard {
		t.Fatalf("difficulty=%s", cards[0].Difficulty)
	}
	if cards[1].Question != "What is ATP?" || cards[1].Difficulty != records.DifficultyMedium {
		t.Fatalf("term card=%#v", cards[1])
	}
	if cards[1].Category == "" {
		t.Fatalf("category left empty")
	}
}

func TestScheduleNormalization(t *testing.T) {
	now := time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)
	raw := "```\n" + `[
  {"title":"Chemistry midterm","date":"Feb 3, 2026","time":"2:30 PM","type":"EXAM"},
  {"title":"Essay draft","date":"sometime soon","type":"whatever"},
  {"title":"Lab","dueDate":"01/20/2026","startTime":"9","endTime":"11:00 AM","location":"B12"}
]` + "\n```"
	items, outcome := ScheduleItems(raw, now)
	if outcome != Parsed || len(items) != 3 {
		t.Fatalf("outcome=%s items=%#v", outcome, items)
	}
	if got := items[0]; got.Date != "2026-02-03" || got.Time != "14:30" || got.Type != records.ScheduleExam {
		t.Fatalf("first=%#v", got)
	}
	if got := items[1]; got.Date != "2026-01-12" || got.Type != records.ScheduleAssignment || got.Time != "23:59" {
		t.Fatalf("second=%#v", got)
	}
	if got := items[2]; got.Date != "2026-01-20" || got.Time != "09:00" || got.EndTime != "11:00" || got.Room != "B12" || got.Type != records.ScheduleClass {
		t.Fatalf("third=%#v", got)
	}
}

func TestTimetableEntries(t *testing.T) {
	raw := `[{"day":"tue","start_time":"1:15 pm","end_time":"2:45 PM","subject":"Physics","room":"P101"},{"day":"someday","time":"9:00","title":"x"}]`
	entries, outcome := TimetableEntries(raw)
	if outcome != Parsed || len(entries) != 1 {
		t.Fatalf("outcome=%s entries=%#v", outcome, entries)
	}
	e := entries[0]
	if e.Day != "Tuesday" || e.Time != "13:15" || e.EndTime != "14:45" || e.Title != "Physics" || !e.Recurring {
		t.Fatalf("entry=%#v", e)
	}
}

func TestAnalysisObject(t *testing.T) {
	a, outcome := Analysis("Analysis follows: {\"subject\":\"Cell biology\",\"topics\":[\"Mitosis\",\"mitosis\",\"Meiosis\"],\"content_type\":\"Lecture\"} done")
	if outcome != Parsed {
		t.Fatalf("outcome=%s", outcome)
	}
	if a.Subject != "Cell biology" || a.ContentType != "lecture" || len(a.Topics) != 2 || a.Category == "" {
		t.Fatalf("analysis=%#v", a)
	}
	if _, outcome := Analysis("[]"); outcome != Empty {
		t.Fatalf("array reply should be empty for analysis")
	}
}

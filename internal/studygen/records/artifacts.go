package records

import "strings"

type Note struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Origin   Origin   `json:"origin"`
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func ParseDifficulty(raw string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy", "beginner", "simple", "low":
		return DifficultyEasy
	case "hard", "difficult", "advanced", "high":
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

type Flashcard struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Category   string     `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
	Origin     Origin     `json:"origin"`
}

type ScheduleType string

const (
	ScheduleAssignment ScheduleType = "assignment"
	ScheduleExam       ScheduleType = "exam"
	ScheduleStudy      ScheduleType = "study"
	ScheduleNote       ScheduleType = "note"
	ScheduleClass      ScheduleType = "class"
)

func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleAssignment, ScheduleExam, ScheduleStudy, ScheduleNote, ScheduleClass:
		return true
	}
	return false
}

type ScheduleItem struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Date        string       `json:"date"`
	Time        string       `json:"time"`
	EndTime     string       `json:"endTime,omitempty"`
	Type        ScheduleType `json:"type"`
	Room        string       `json:"room,omitempty"`
	Instructor  string       `json:"instructor,omitempty"`
	Description string       `json:"description"`
	Origin      Origin       `json:"origin"`
}

type TimetableEntry struct {
	ID         string `json:"id"`
	Day        string `json:"day"`
	Time       string `json:"time"`
	EndTime    string `json:"endTime,omitempty"`
	Title      string `json:"title"`
	Room       string `json:"room,omitempty"`
	Instructor string `json:"instructor,omitempty"`
	Recurring  bool   `json:"recurring"`
	Origin     Origin `json:"origin"`
}

// CoverageText is the text a note contributes to a coverage check.
func (n Note) CoverageText() string {
	return n.Title + "\n" + n.Content + "\n" + strings.Join(n.Tags, " ")
}

func (f Flashcard) CoverageText() string {
	return f.Question + "\n" + f.Answer
}

func (s ScheduleItem) CoverageText() string {
	return s.Title + "\n" + s.Description
}

func (e TimetableEntry) CoverageText() string {
	return e.Title
}

var typeCues = []struct {
	t     ScheduleType
	words []string
}{
	{ScheduleExam, []string{"exam", "midterm", "final", "quiz", "test"}},
	{ScheduleAssignment, []string{"assignment", "homework", "due", "deadline", "essay", "project", "submit", "report", "problem set"}},
	{ScheduleClass, []string{"lecture", "class", "lab", "seminar", "tutorial", "recitation", "workshop"}},
	{ScheduleStudy, []string{"study", "review", "revise", "revision", "practice", "read"}},
}

// InferScheduleType guesses an event type from its title or description.
func InferScheduleType(text string) ScheduleType {
	lower := strings.ToLower(text)
	for _, c := range typeCues {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.t
			}
		}
	}
	return ScheduleNote
}

// DefaultTime is the time of day used when an event has none.
func (t ScheduleType) DefaultTime() string {
	switch t {
	case ScheduleAssignment:
		return "23:59"
	case ScheduleExam, ScheduleClass:
		return "09:00"
	case ScheduleStudy:
		return "18:00"
	default:
		return "12:00"
	}
}

// Package records holds the value types that flow through the extraction
// pipeline: generation requests, chunks, the four study-artifact shapes and
// the reports produced about them.
package records

import (
	"strings"
	"time"
)

type Task string

const (
	TaskNotes      Task = "notes"
	TaskFlashcards Task = "flashcards"
	TaskSchedule   Task = "schedule"
	TaskTimetable  Task = "timetable"
	TaskAnalyze    Task = "analyze"
)

// ExtractionTasks are the list-shaped tasks, in the order results are reported.
var ExtractionTasks = []Task{TaskNotes, TaskFlashcards, TaskSchedule, TaskTimetable}

func ParseTask(raw string) (Task, bool) {
	switch t := Task(strings.ToLower(strings.TrimSpace(raw))); t {
	case TaskNotes, TaskFlashcards, TaskSchedule, TaskTimetable, TaskAnalyze:
		return t, true
	}
	return "", false
}

// ListShaped reports whether the task produces an array of records.
func (t Task) ListShaped() bool { return t != TaskAnalyze }

// Sentinel is the neutral reply that always parses for the task.
func (t Task) Sentinel() string {
	if t.ListShaped() {
		return "[]"
	}
	return "{}"
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest is immutable once built; use NewGenerationRequest.
type GenerationRequest struct {
	task     Task
	messages []Message
	model    string
	attempts int
	timeout  time.Duration
}

type RequestOption func(*GenerationRequest)

func WithModel(model string) RequestOption {
	return func(r *GenerationRequest) { r.model = strings.TrimSpace(model) }
}

func WithAttempts(n int) RequestOption {
	return func(r *GenerationRequest) { r.attempts = n }
}

func WithTimeout(d time.Duration) RequestOption {
	return func(r *GenerationRequest) { r.timeout = d }
}

func NewGenerationRequest(task Task, msgs []Message, opts ...RequestOption) GenerationRequest {
	r := GenerationRequest{task: task, messages: append([]Message(nil), msgs...)}
	for _, opt := range opts {
		if opt != nil {
			opt(&r)
		}
	}
	return r
}

func (r GenerationRequest) Task() Task { return r.task }
func (r GenerationRequest) Model() string { return r.model }
func (r GenerationRequest) Attempts() int { return r.attempts }
func (r GenerationRequest) Timeout() time.Duration { return r.timeout }
func (r GenerationRequest) Messages() []Message { return append([]Message(nil), r.messages...) }

// Origin records which stage produced a record.
type Origin string

const (
	OriginGenerated  Origin = "generated"
	OriginFallback   Origin = "fallback"
	OriginSupplement Origin = "supplement"
)

type Chunk struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

type CoverageReport struct {
	Topics     []string `json:"topics"`
	Covered    []string `json:"covered"`
	Missing    []string `json:"missing"`
	Percentage float64  `json:"percentage"`
	Threshold  float64  `json:"threshold"`
	Acceptable bool     `json:"acceptable"`
}

type Analysis struct {
	Subject          string   `json:"subject"`
	Category         string   `json:"category"`
	ContentType      string   `json:"contentType"`
	Topics           []string `json:"topics"`
	HasScheduleCues  bool     `json:"hasScheduleCues"`
	HasTimetableCues bool     `json:"hasTimetableCues"`
	Tasks            []Task   `json:"tasks"`
	Origin           Origin   `json:"origin"`
}

type ProcessResult struct {
	Success       bool             `json:"success"`
	Error         string           `json:"error,omitempty"`
	SourceName    string           `json:"sourceName"`
	ExtractedText string           `json:"extractedText"`
	Summary       string           `json:"summary"`
	Notes         []Note           `json:"notes"`
	Flashcards    []Flashcard      `json:"flashcards"`
	Schedule      []ScheduleItem   `json:"schedule"`
	Timetable     []TimetableEntry `json:"timetable"`
}

// FailedResult carries an error message and empty, non-nil lists.
func FailedResult(sourceName string, err error) ProcessResult {
	msg := "processing failed"
	if err != nil {
		msg = err.Error()
	}
	return ProcessResult{
		Success:    false,
		Error:      msg,
		SourceName: sourceName,
		Notes:      []Note{},
		Flashcards: []Flashcard{},
		Schedule:   []ScheduleItem{},
		Timetable:  []TimetableEntry{},
	}
}

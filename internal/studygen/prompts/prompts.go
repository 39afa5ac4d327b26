// Package prompts builds the message lists sent to generation endpoints.
// Wording is deliberately plain; the parser does not depend on it.
package prompts

import (
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

const styleMarker = "STUDYGEN_PROMPT_STYLE_V1"

var taskInstructions = map[records.Task]string{
	records.TaskNotes: `Write study notes for the material.
Return a JSON array of objects with keys "title", "content", "category", "tags".
"content" is markdown with "## " section headings; "tags" has at most 5 short strings.`,
	records.TaskFlashcards: `Write flashcards that test understanding of the material.
Return a JSON array of objects with keys "question", "answer", "category", "difficulty".
"difficulty" is one of easy, medium, hard. Return at most %d cards.`,
	records.TaskSchedule: `List every dated or timed event in the material (exams, assignments, classes, deadlines).
Return a JSON array of objects with keys "title", "date" (YYYY-MM-DD), "time" (HH:MM, 24h), "endTime", "type", "room", "instructor", "description".
"type" is one of assignment, exam, study, note, class. Today is %s.`,
	records.TaskTimetable: `Extract the weekly class timetable from the material.
Return a JSON array of objects with keys "day" (full weekday name), "time" (HH:MM, 24h), "endTime", "title", "room", "instructor".`,
	records.TaskAnalyze: `Classify the material.
Return a JSON object with keys "subject", "category", "content_type" and "topics" (array of short strings).`,
}

// Params fill the task-specific blanks in the instructions.
type Params struct {
	SourceName    string
	Today         string
	MaxFlashcards int
}

// ForChunk builds the messages for one chunk of one task.
func ForChunk(task records.Task, chunk records.Chunk, p Params) []records.Message {
	var user strings.Builder
	if src := strings.TrimSpace(p.SourceName); src != "" {
		fmt.Fprintf(&user, "Source: %s\n", src)
	}
	if chunk.Total > 1 {
		fmt.Fprintf(&user, "Part %d of %d\n", chunk.Index+1, chunk.Total)
	}
	user.WriteString("Material:\n")
	user.WriteString(chunk.Text)
	return []records.Message{
		{Role: records.RoleSystem, Content: system(task, p)},
		{Role: records.RoleUser, Content: strings.TrimSpace(user.String())},
	}
}

func system(task records.Task, p Params) string {
	instr := taskInstructions[task]
	switch task {
	case records.TaskFlashcards:
		n := p.MaxFlashcards
		if n <= 0 {
			n = 20
		}
		instr = fmt.Sprintf(instr, n)
	case records.TaskSchedule:
		instr = fmt.Sprintf(instr, p.Today)
	}
	return applyStyle(instr)
}

// applyStyle prepends the shared output guidance once.
func applyStyle(instr string) string {
	base := strings.TrimSpace(instr)
	if base == "" || strings.Contains(base, styleMarker) {
		return base
	}
	var b strings.Builder
	b.WriteString(styleMarker)
	b.WriteString("\nYou turn course material into study artifacts.")
	b.WriteString("\nOutput only the requested JSON, with no markdown fences or commentary.")
	b.WriteString("\nUse only facts from the material; do not invent dates, rooms or names.")
	b.WriteString("\n---\n")
	b.WriteString(base)
	return b.String()
}

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/coverage"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/fallback"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/parser"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/prompts"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/textkit"
)

const analysisTopics = 10

func (s *Service) notesKind(sourceName string) kind[records.Note] {
	return kind[records.Note]{
		task:     records.TaskNotes,
		parse:    parser.Notes,
		fallback: func(text string) []records.Note { return fallback.Notes(text, sourceName) },
		text:     records.Note.CoverageText,
		key: func(n records.Note) string {
			return textkit.Normalize(n.Title) + "|" + textkit.Normalize(textkit.Truncate(n.Content, 120))
		},
		setID:     func(n *records.Note, id string) { n.ID = id },
		setOrigin: func(n *records.Note, o records.Origin) { n.Origin = o },
	}
}

func (s *Service) flashcardsKind() kind[records.Flashcard] {
	return kind[records.Flashcard]{
		task:      records.TaskFlashcards,
		parse:     parser.Flashcards,
		fallback:  func(text string) []records.Flashcard { return fallback.Flashcards(text, fallback.MaxFlashcards) },
		text:      records.Flashcard.CoverageText,
		key:       func(f records.Flashcard) string { return textkit.Normalize(f.Question) },
		setID:     func(f *records.Flashcard, id string) { f.ID = id },
		setOrigin: func(f *records.Flashcard, o records.Origin) { f.Origin = o },
		limit:     s.maxCards,
	}
}

func (s *Service) scheduleKind() kind[records.ScheduleItem] {
	now := s.now()
	return kind[records.ScheduleItem]{
		task: records.TaskSchedule,
		parse: func(raw, _ string) ([]records.ScheduleItem, parser.Outcome) {
			return parser.ScheduleItems(raw, now)
		},
		fallback: func(text string) []records.ScheduleItem { return fallback.Schedule(text, now, s.maxItems) },
		key: func(it records.ScheduleItem) string {
			return textkit.Normalize(it.Title) + "|" + it.Date + "|" + it.Time
		},
		setID:     func(it *records.ScheduleItem, id string) { it.ID = id },
		setOrigin: func(it *records.ScheduleItem, o records.Origin) { it.Origin = o },
	}
}

func (s *Service) timetableKind() kind[records.TimetableEntry] {
	return kind[records.TimetableEntry]{
		task: records.TaskTimetable,
		parse: func(raw, _ string) ([]records.TimetableEntry, parser.Outcome) {
			return parser.TimetableEntries(raw)
		},
		fallback: fallback.Timetable,
		key: func(e records.TimetableEntry) string {
			return e.Day + "|" + e.Time + "|" + textkit.Normalize(e.Title)
		},
		setID:     func(e *records.TimetableEntry, id string) { e.ID = id },
		setOrigin: func(e *records.TimetableEntry, o records.Origin) { e.Origin = o },
	}
}

func (s *Service) GenerateNotes(ctx context.Context, content string, opts CallOptions) ([]records.Note, error) {
	if strings.TrimSpace(content) == "" {
		return []records.Note{}, ErrEmptyContent
	}
	return runTask(ctx, s, s.notesKind(opts.SourceName), content, opts), nil
}

func (s *Service) GenerateFlashcards(ctx context.Context, content string, opts CallOptions) ([]records.Flashcard, error) {
	if strings.TrimSpace(content) == "" {
		return []records.Flashcard{}, ErrEmptyContent
	}
	return runTask(ctx, s, s.flashcardsKind(), content, opts), nil
}

// GenerateSchedule extracts dated events. Text without any date, time or
// weekday returns an empty list and never reaches an endpoint.
func (s *Service) GenerateSchedule(ctx context.Context, content string, opts CallOptions) ([]records.ScheduleItem, error) {
	if strings.TrimSpace(content) == "" {
		return []records.ScheduleItem{}, ErrEmptyContent
	}
	if !textkit.HasScheduleCues(content, s.now()) {
		s.log.Info("no schedule cues", "source_name", opts.SourceName)
		return []records.ScheduleItem{}, nil
	}
	return runTask(ctx, s, s.scheduleKind(), content, opts), nil
}

func (s *Service) GenerateTimetable(ctx context.Context, content string, opts CallOptions) ([]records.TimetableEntry, error) {
	if strings.TrimSpace(content) == "" {
		return []records.TimetableEntry{}, ErrEmptyContent
	}
	return runTask(ctx, s, s.timetableKind(), content, opts), nil
}

// Analyze classifies the document. Only its first chunk is sent; anything
// the reply leaves out is filled from heuristics.
func (s *Service) Analyze(ctx context.Context, content string, opts CallOptions) (records.Analysis, error) {
	if strings.TrimSpace(content) == "" {
		return records.Analysis{}, ErrEmptyContent
	}
	ctx, span := observability.StartSpan(ctx, "pipeline.analyze", "source", opts.SourceName)
	defer span.End()

	chunks := s.chunks(content)
	first := chunks[0]
	first.Index, first.Total = 0, 1
	msgs := prompts.ForChunk(records.TaskAnalyze, first, s.promptParams(opts))
	reply := s.gen.Generate(ctx, records.NewGenerationRequest(records.TaskAnalyze, msgs, records.WithModel(opts.Model)))

	h := s.heuristicAnalysis(content)
	if reply.Sentinel {
		return h, nil
	}
	a, outcome := parser.Analysis(reply.Text)
	if outcome == parser.Empty {
		s.log.Warn("unparseable analysis", "endpoint", reply.Endpoint, "reply_len", len(reply.Text))
		return h, nil
	}
	if a.Subject == "" {
		a.Subject = h.Subject
	}
	if a.ContentType == "" {
		a.ContentType = h.ContentType
	}
	if len(a.Topics) == 0 {
		a.Topics = h.Topics
	}
	a.HasScheduleCues = h.HasScheduleCues
	a.HasTimetableCues = h.HasTimetableCues
	a.Tasks = h.Tasks
	return a, nil
}

// heuristicAnalysis never calls an endpoint.
func (s *Service) heuristicAnalysis(content string) records.Analysis {
	a := records.Analysis{
		Subject:          subjectOf(content),
		Category:         textkit.DetectCategory(content),
		Topics:           coverage.ExtractTopics(content, analysisTopics),
		HasScheduleCues:  textkit.HasScheduleCues(content, s.now()),
		HasTimetableCues: textkit.HasTimetableCues(content),
		Origin:           records.OriginFallback,
	}
	switch {
	case a.HasTimetableCues:
		a.ContentType = "timetable"
	case a.HasScheduleCues:
		a.ContentType = "syllabus"
	default:
		a.ContentType = "study_material"
	}
	a.Tasks = []records.Task{records.TaskNotes, records.TaskFlashcards}
	if a.HasScheduleCues {
		a.Tasks = append(a.Tasks, records.TaskSchedule)
	}
	if a.HasTimetableCues {
		a.Tasks = append(a.Tasks, records.TaskTimetable)
	}
	return a
}

func subjectOf(content string) string {
	for _, line := range textkit.SplitLines(content) {
		line = strings.TrimSpace(strings.TrimLeft(line, "#*-= \t"))
		if line != "" {
			return textkit.Truncate(line, 80)
		}
	}
	return ""
}

// ProcessDocument runs the requested tasks for one document and assembles
// the result. With no tasks it picks them from a heuristic analysis. opts
// apply to every task, so a model override reaches each endpoint call. The
// returned result is always usable; empty content gives Success false.
func (s *Service) ProcessDocument(ctx context.Context, content string, tasks []records.Task, opts CallOptions) records.ProcessResult {
	sourceName := opts.SourceName
	if strings.TrimSpace(content) == "" {
		s.log.Warn("empty document", "source_name", sourceName)
		return records.FailedResult(sourceName, ErrEmptyContent)
	}
	if len(tasks) == 0 {
		tasks = s.heuristicAnalysis(content).Tasks
	}

	res := records.ProcessResult{
		Success:       true,
		SourceName:    sourceName,
		ExtractedText: content,
		Notes:         []records.Note{},
		Flashcards:    []records.Flashcard{},
		Schedule:      []records.ScheduleItem{},
		Timetable:     []records.TimetableEntry{},
	}

	// Each task writes only its own field of res.
	g, gctx := errgroup.WithContext(ctx)
	if !s.concurrent {
		g.SetLimit(1)
	}
	for _, task := range uniqueTasks(tasks) {
		switch task {
		case records.TaskNotes:
			g.Go(func() (err error) {
				res.Notes, err = s.GenerateNotes(gctx, content, opts)
				return err
			})
		case records.TaskFlashcards:
			g.Go(func() (err error) {
				res.Flashcards, err = s.GenerateFlashcards(gctx, content, opts)
				return err
			})
		case records.TaskSchedule:
			g.Go(func() (err error) {
				res.Schedule, err = s.GenerateSchedule(gctx, content, opts)
				return err
			})
		case records.TaskTimetable:
			g.Go(func() (err error) {
				res.Timetable, err = s.GenerateTimetable(gctx, content, opts)
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return records.FailedResult(sourceName, err)
	}
	res.Summary = Summary(res)
	s.log.Info("document processed", "source_name", sourceName, "summary", res.Summary)
	return res
}

func uniqueTasks(tasks []records.Task) []records.Task {
	seen := map[records.Task]bool{}
	out := make([]records.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.ListShaped() || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Extract runs a single task and returns its records with their count.
// Analyze counts as one record.
func (s *Service) Extract(ctx context.Context, task records.Task, content string, opts CallOptions) (any, int, error) {
	switch task {
	case records.TaskNotes:
		out, err := s.GenerateNotes(ctx, content, opts)
		return out, len(out), err
	case records.TaskFlashcards:
		out, err := s.GenerateFlashcards(ctx, content, opts)
		return out, len(out), err
	case records.TaskSchedule:
		out, err := s.GenerateSchedule(ctx, content, opts)
		return out, len(out), err
	case records.TaskTimetable:
		out, err := s.GenerateTimetable(ctx, content, opts)
		return out, len(out), err
	case records.TaskAnalyze:
		out, err := s.Analyze(ctx, content, opts)
		if err != nil {
			return out, 0, err
		}
		return out, 1, nil
	}
	return nil, 0, fmt.Errorf("%w: %q", ErrUnknownTask, task)
}

// Summary is the one-line description of a processed document.
func Summary(res records.ProcessResult) string {
	line := fmt.Sprintf("Generated %s, %s, %s and %s",
		plural(len(res.Notes), "note", "notes"),
		plural(len(res.Flashcards), "flashcard", "flashcards"),
		plural(len(res.Schedule), "schedule item", "schedule items"),
		plural(len(res.Timetable), "timetable entry", "timetable entries"),
	)
	if src := strings.TrimSpace(res.SourceName); src != "" {
		line += " from " + src
	}
	return line
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}

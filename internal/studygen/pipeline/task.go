package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/realtime"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/coverage"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/parser"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/prompts"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

// kind describes how one task parses, falls back, deduplicates and labels
// its records. text is nil for tasks that skip coverage checks.
type kind[T any] struct {
	task      records.Task
	parse     func(raw, source string) ([]T, parser.Outcome)
	fallback  func(text string) []T
	text      func(T) string
	key       func(T) string
	setID     func(*T, string)
	setOrigin func(*T, records.Origin)
	limit     int
}

// collector merges records in arrival order, dropping duplicates.
type collector[T any] struct {
	k      kind[T]
	items  []T
	seen   map[string]bool
	counts map[records.Origin]int
}

func newCollector[T any](k kind[T]) *collector[T] {
	return &collector[T]{k: k, items: []T{}, seen: map[string]bool{}, counts: map[records.Origin]int{}}
}

func (c *collector[T]) add(items []T, origin records.Origin) int {
	added := 0
	for _, it := range items {
		key := c.k.key(it)
		if c.seen[key] {
			continue
		}
		c.seen[key] = true
		if origin == records.OriginSupplement {
			c.k.setOrigin(&it, origin)
		}
		c.items = append(c.items, it)
		c.counts[origin]++
		added++
	}
	return added
}

func texts[T any](items []T, fn func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, fn(it))
	}
	return out
}

func runTask[T any](ctx context.Context, s *Service, k kind[T], content string, opts CallOptions) []T {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "pipeline.task", "task", string(k.task), "source", opts.SourceName)
	defer span.End()

	chunks := s.chunks(content)
	s.emit(ctx, realtime.EventTaskStarted, k.task, map[string]any{"chunks": len(chunks)})
	log := s.log.With("task", string(k.task), "source_name", opts.SourceName)

	col := newCollector(k)
	generated := 0
	for _, ch := range chunks {
		if ch.Index > 0 {
			s.pause(ctx)
		}
		items, ok := generateChunk(ctx, s, k, ch, opts)
		if !ok {
			n := col.add(k.fallback(ch.Text), records.OriginFallback)
			s.metrics.IncChunk(string(k.task), string(records.OriginFallback))
			s.emit(ctx, realtime.EventChunkFallback, k.task, map[string]any{"index": ch.Index, "total": ch.Total, "records": n})
			log.Info("chunk used fallback", "chunk", ch.Index, "total", ch.Total, "records", n)
			continue
		}
		generated++
		n := col.add(items, records.OriginGenerated)
		s.metrics.IncChunk(string(k.task), string(records.OriginGenerated))
		s.emit(ctx, realtime.EventChunkGenerated, k.task, map[string]any{"index": ch.Index, "total": ch.Total, "records": n})
		if k.text != nil {
			supplement(ctx, s, col, ch.Text, items, "chunk")
		}
	}
	// A single chunk was already checked above. When every chunk fell back
	// there is nothing generated left to supplement.
	if k.text != nil && len(chunks) > 1 && generated > 0 {
		supplement(ctx, s, col, content, col.items, "final")
	}

	out := col.items
	if k.limit > 0 && len(out) > k.limit {
		out = out[:k.limit]
	}
	for i := range out {
		k.setID(&out[i], uuid.NewString())
	}
	for origin, n := range col.counts {
		s.metrics.AddRecords(string(k.task), string(origin), n)
	}
	s.metrics.ObserveTask(string(k.task), time.Since(start))
	s.emit(ctx, realtime.EventTaskCompleted, k.task, map[string]any{
		"records":   len(out),
		"generated": generated,
		"chunks":    len(chunks),
	})
	log.Info("task completed", "records", len(out), "chunks", len(chunks), "generated_chunks", generated, "duration_ms", time.Since(start).Milliseconds())
	return out
}

// generateChunk returns ok=false when the dispatcher gave up or the reply
// held nothing usable.
func generateChunk[T any](ctx context.Context, s *Service, k kind[T], ch records.Chunk, opts CallOptions) ([]T, bool) {
	ctx, span := observability.StartSpan(ctx, "pipeline.chunk",
		"task", string(k.task),
		"chunk", fmt.Sprintf("%d/%d", ch.Index+1, ch.Total),
	)
	defer span.End()

	msgs := prompts.ForChunk(k.task, ch, s.promptParams(opts))
	reply := s.gen.Generate(ctx, records.NewGenerationRequest(k.task, msgs, records.WithModel(opts.Model)))
	if reply.Sentinel {
		return nil, false
	}
	items, outcome := k.parse(reply.Text, ch.Text)
	if outcome == parser.Empty {
		s.log.Warn("unparseable reply", "task", string(k.task), "chunk", ch.Index, "endpoint", reply.Endpoint, "reply_len", len(reply.Text))
		return nil, false
	}
	return items, true
}

// supplement checks how much of source the given records cover and, when
// coverage is low, adds fallback records built from the passages that
// mention the missing topics.
func supplement[T any](ctx context.Context, s *Service, col *collector[T], source string, items []T, stage string) {
	k := col.k
	report := s.validator.Evaluate(source, texts(items, k.text))
	s.metrics.ObserveCoverage(string(k.task), report.Percentage)
	if report.Acceptable || len(report.Missing) == 0 {
		return
	}
	passages := coverage.PassagesFor(source, report.Missing)
	if passages == "" {
		return
	}
	n := col.add(k.fallback(passages), records.OriginSupplement)
	if n == 0 {
		return
	}
	s.metrics.IncSupplement(string(k.task), stage)
	s.emit(ctx, realtime.EventCoverageSupplemented, k.task, map[string]any{
		"stage":      stage,
		"percentage": report.Percentage,
		"missing":    len(report.Missing),
		"records":    n,
	})
	s.log.Info("coverage supplemented",
		"task", string(k.task),
		"stage", stage,
		"percentage", report.Percentage,
		"missing", len(report.Missing),
		"records", n,
	)
}

func (s *Service) promptParams(opts CallOptions) prompts.Params {
	return prompts.Params{
		SourceName:    opts.SourceName,
		Today:         s.now().Format("2006-01-02"),
		MaxFlashcards: s.maxCards,
	}
}

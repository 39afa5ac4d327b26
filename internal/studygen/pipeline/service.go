// Package pipeline turns document text into study artifacts. Each task
// chunks the text, asks the dispatcher for every chunk in order, parses the
// replies, and falls back to heuristic extraction wherever generation fails
// or misses too much of the source.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/realtime"
	"github.com/yungbote/neurobridge-studygen/internal/realtime/bus"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/chunker"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/coverage"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/dispatch"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/fallback"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

// ErrEmptyContent means there is nothing to extract from. Generation
// failures never surface as errors.
var ErrEmptyContent = errors.New("document has no extractable text")

var ErrUnknownTask = errors.New("unknown extraction task")

const (
	DefaultChunkDelay    = time.Second
	DefaultMaxFlashcards = 20
	DefaultChannel       = "studygen"
)

// Generator is the dispatcher as seen by the pipeline.
type Generator interface {
	Generate(ctx context.Context, req records.GenerationRequest) dispatch.Reply
}

// Options configure a Service. ChunkDelay separates consecutive chunk calls
// of one task: zero means DefaultChunkDelay and a negative value disables it.
type Options struct {
	Chunk         chunker.Options
	ChunkDelay    time.Duration
	Coverage      coverage.Validator
	MaxFlashcards int
	MaxSchedule   int
	Concurrent    bool
	Now           func() time.Time
}

type Service struct {
	gen        Generator
	bus        bus.Bus
	log        *logger.Logger
	metrics    *observability.Metrics
	chunk      chunker.Options
	delay      time.Duration
	validator  coverage.Validator
	maxCards   int
	maxItems   int
	concurrent bool
	now        func() time.Time
}

func New(gen Generator, b bus.Bus, opts Options, log *logger.Logger, metrics *observability.Metrics) *Service {
	if b == nil {
		b = bus.Noop{}
	}
	delay := opts.ChunkDelay
	switch {
	case delay == 0:
		delay = DefaultChunkDelay
	case delay < 0:
		delay = 0
	}
	maxCards := opts.MaxFlashcards
	if maxCards <= 0 {
		maxCards = DefaultMaxFlashcards
	}
	maxItems := opts.MaxSchedule
	if maxItems <= 0 {
		maxItems = fallback.MaxScheduleItems
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		gen:        gen,
		bus:        b,
		log:        logger.OrNop(log).With("component", "pipeline"),
		metrics:    metrics,
		chunk:      opts.Chunk,
		delay:      delay,
		validator:  coverage.New(opts.Coverage.Threshold, opts.Coverage.MaxTopics),
		maxCards:   maxCards,
		maxItems:   maxItems,
		concurrent: opts.Concurrent,
		now:        now,
	}
}

// CallOptions are per-request settings.
type CallOptions struct {
	SourceName string
	Model      string
}

// pause waits out the inter-chunk delay. It returns early when ctx is done.
func (s *Service) pause(ctx context.Context) {
	if s.delay <= 0 {
		return
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Service) emit(ctx context.Context, typ realtime.EventType, task records.Task, data map[string]any) {
	channel := ctxutil.JobID(ctx)
	if channel == "" {
		channel = DefaultChannel
	}
	ev := realtime.Event{
		Channel: channel,
		Type:    typ,
		Task:    string(task),
		Data:    data,
		At:      s.now().UTC(),
	}
	// Progress must not outlive or fail the extraction itself.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.bus.Publish(pubCtx, ev); err != nil {
		s.metrics.IncBusError(string(typ))
		s.log.Warn("progress publish failed", "event", string(typ), "task", string(task), "error", err)
	}
}

// chunks returns content as a single chunk when it fits, otherwise the
// chunker's split.
func (s *Service) chunks(content string) []records.Chunk {
	if !chunker.NeedsSplit(content, s.chunk.MaxChars) {
		return []records.Chunk{{Text: strings.TrimSpace(content), Index: 0, Total: 1}}
	}
	return chunker.Split(content, s.chunk)
}

// Package dispatch sends a generation request to an ordered list of
// endpoints, retrying each a bounded number of times before moving on.
// Generate never fails: when every attempt fails it returns the task's
// neutral sentinel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/engine"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

const (
	DefaultAttempts = 2
	MaxAttempts     = 5
	DefaultBackoff  = time.Second
)

// Caller performs one call against one endpoint.
type Caller interface {
	Call(ctx context.Context, ep engine.Endpoint, req records.GenerationRequest) (string, error)
}

// Options tune retry behaviour. Backoff is the pause between attempts on the
// same endpoint: zero means DefaultBackoff and a negative value disables it.
type Options struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
	Models   ModelTable
}

// Reply is the outcome of Generate. Sentinel is true when no endpoint
// produced text and Text holds the task's neutral value.
type Reply struct {
	Text     string
	Sentinel bool
	Endpoint string
	Attempts int
}

type Dispatcher struct {
	caller     Caller
	candidates []Candidate
	models     ModelTable
	attempts   int
	backoff    time.Duration
	timeout    time.Duration
	log        *logger.Logger
	metrics    *observability.Metrics
}

func New(caller Caller, candidates []Candidate, opts Options, log *logger.Logger, metrics *observability.Metrics) *Dispatcher {
	attempts := clampAttempts(opts.Attempts)
	backoff := opts.Backoff
	switch {
	case backoff == 0:
		backoff = DefaultBackoff
	case backoff < 0:
		backoff = 0
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = engine.DefaultTimeout
	}
	return &Dispatcher{
		caller:     caller,
		candidates: append([]Candidate(nil), candidates...),
		models:     opts.Models.Clone(),
		attempts:   attempts,
		backoff:    backoff,
		timeout:    timeout,
		log:        logger.OrNop(log).With("component", "dispatch"),
		metrics:    metrics,
	}
}

func clampAttempts(n int) int {
	switch {
	case n <= 0:
		return DefaultAttempts
	case n > MaxAttempts:
		return MaxAttempts
	}
	return n
}

// Candidates returns a copy of the endpoint list in preference order.
func (d *Dispatcher) Candidates() []Candidate {
	return append([]Candidate(nil), d.candidates...)
}

func (d *Dispatcher) Generate(ctx context.Context, req records.GenerationRequest) Reply {
	task := req.Task()
	attempts := d.attempts
	if req.Attempts() > 0 {
		attempts = clampAttempts(req.Attempts())
	}
	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = d.timeout
	}
	call := records.NewGenerationRequest(task, req.Messages(),
		records.WithModel(d.models.Resolve(req.Model(), task)),
		records.WithAttempts(attempts),
		records.WithTimeout(timeout),
	)

	spent := 0
	for _, cand := range d.candidates {
		for attempt := 1; attempt <= attempts; attempt++ {
			if ctx.Err() != nil {
				return d.sentinel(task, spent, ctx.Err())
			}
			spent++
			text, err := d.attempt(ctx, cand, call, attempt)
			if err == nil {
				return Reply{Text: text, Endpoint: cand.Name, Attempts: spent}
			}
			d.log.Warn("generation attempt failed",
				"endpoint", cand.Name,
				"task", string(task),
				"attempt", attempt,
				"error", err,
			)
			if !engine.Retryable(err) || attempt == attempts {
				break
			}
			if d.backoff > 0 {
				select {
				case <-ctx.Done():
					return d.sentinel(task, spent, ctx.Err())
				case <-time.After(d.backoff):
				}
			}
		}
	}
	return d.sentinel(task, spent, nil)
}

func (d *Dispatcher) attempt(ctx context.Context, cand Candidate, req records.GenerationRequest, n int) (string, error) {
	ctx, span := observability.StartSpan(ctx, "dispatch.attempt",
		"endpoint", cand.Name,
		"endpoint.kind", string(cand.Kind),
		"task", string(req.Task()),
		"attempt", fmt.Sprint(n),
	)
	defer span.End()

	start := time.Now()
	text, err := d.caller.Call(ctx, cand.Endpoint(), req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = engine.ErrEmptyContent
	}
	d.metrics.ObserveGeneration(cand.Name, string(req.Task()), attemptStatus(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, attemptStatus(err))
		return "", err
	}
	return text, nil
}

func (d *Dispatcher) sentinel(task records.Task, spent int, cause error) Reply {
	d.metrics.IncSentinel(string(task))
	if cause != nil {
		d.log.Warn("generation cancelled, using sentinel", "task", string(task), "attempts", spent, "error", cause)
	} else {
		d.log.Warn("all endpoints failed, using sentinel", "task", string(task), "attempts", spent, "candidates", len(d.candidates))
	}
	return Reply{Text: task.Sentinel(), Sentinel: true, Attempts: spent}
}

func attemptStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var he *engine.HTTPError
	switch {
	case errors.As(err, &he):
		return fmt.Sprintf("http_%d", he.StatusCode)
	case errors.Is(err, engine.ErrEmptyContent):
		return "empty"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}

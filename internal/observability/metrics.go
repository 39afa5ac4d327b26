package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-studygen/internal/platform/envutil"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op, so callers
// never check whether metrics are enabled.
type Metrics struct {
	httpRequests *CounterVec
	httpLatency  *HistogramVec
	httpInflight *Gauge

	genAttempts  *CounterVec
	genLatency   *HistogramVec
	genSentinels *CounterVec

	chunks      *CounterVec
	recordsOut  *CounterVec
	coverage    *HistogramVec
	supplements *CounterVec
	taskLatency *HistogramVec

	busErrors *CounterVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process-wide metrics, or nil when Init was not called
// or metrics are disabled.
func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once when METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		logger.OrNop(log).Info("metrics enabled")
	})
	return instance
}

// NewMetrics returns a fresh, unregistered set of metrics.
func NewMetrics() *Metrics {
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}
	return &Metrics{
		httpRequests: NewCounterVec("sg_http_requests_total", "HTTP requests by method/route/status.", []string{"method", "route", "status"}),
		httpLatency:  NewHistogramVec("sg_http_request_duration_seconds", "HTTP request latency in seconds.", []string{"method", "route"}, latency),
		httpInflight: NewGauge("sg_http_inflight_requests", "In-flight HTTP requests."),

		genAttempts:  NewCounterVec("sg_generation_attempts_total", "Generation calls by endpoint/task/status.", []string{"endpoint", "task", "status"}),
		genLatency:   NewHistogramVec("sg_generation_attempt_duration_seconds", "Generation call latency in seconds.", []string{"endpoint", "task"}, latency),
		genSentinels: NewCounterVec("sg_generation_sentinel_total", "Generations where every candidate failed.", []string{"task"}),

		chunks:      NewCounterVec("sg_chunks_total", "Chunks processed by task and origin.", []string{"task", "origin"}),
		recordsOut:  NewCounterVec("sg_records_total", "Records produced by task and origin.", []string{"task", "origin"}),
		coverage:    NewHistogramVec("sg_coverage_percentage", "Coverage percentage per task run.", []string{"task"}, []float64{10, 25, 50, 75, 90, 100}),
		supplements: NewCounterVec("sg_coverage_supplements_total", "Supplemental fallback passes after low coverage.", []string{"task", "stage"}),
		taskLatency: NewHistogramVec("sg_task_duration_seconds", "End-to-end task duration in seconds.", []string{"task"}, latency),

		busErrors: NewCounterVec("sg_bus_publish_errors_total", "Progress events that failed to publish.", []string{"event"}),
		redisUp:   NewGauge("sg_redis_up", "Whether the progress bus redis answers PING."),
		redisPing: NewGauge("sg_redis_ping_seconds", "Latency of the last redis PING."),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.httpRequests, m.httpLatency, m.httpInflight,
		m.genAttempts, m.genLatency, m.genSentinels,
		m.chunks, m.recordsOut, m.coverage, m.supplements, m.taskLatency,
		m.busErrors, m.redisUp, m.redisPing,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveHTTP(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.Inc(method, route, strconv.Itoa(status))
	m.httpLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) HTTPInflight(delta float64) {
	if m == nil {
		return
	}
	m.httpInflight.Add(delta)
}

// ObserveGeneration records one dispatcher attempt. status is "ok", "empty",
// "http_<code>" or "error".
func (m *Metrics) ObserveGeneration(endpoint, task, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.genAttempts.Inc(endpoint, task, status)
	m.genLatency.Observe(dur.Seconds(), endpoint, task)
}

func (m *Metrics) IncSentinel(task string) {
	if m == nil {
		return
	}
	m.genSentinels.Inc(task)
}

func (m *Metrics) IncChunk(task, origin string) {
	if m == nil {
		return
	}
	m.chunks.Inc(task, origin)
}

func (m *Metrics) AddRecords(task, origin string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsOut.Add(float64(n), task, origin)
}

func (m *Metrics) ObserveCoverage(task string, pct float64) {
	if m == nil {
		return
	}
	m.coverage.Observe(pct, task)
}

func (m *Metrics) IncSupplement(task, stage string) {
	if m == nil {
		return
	}
	m.supplements.Inc(task, stage)
}

func (m *Metrics) ObserveTask(task string, dur time.Duration) {
	if m == nil {
		return
	}
	m.taskLatency.Observe(dur.Seconds(), task)
}

func (m *Metrics) IncBusError(event string) {
	if m == nil {
		return
	}
	m.busErrors.Inc(event)
}

// GenerationCount returns the attempts counted for one series; used by tests
// and the readiness probe.
func (m *Metrics) GenerationCount(endpoint, task, status string) float64 {
	if m == nil {
		return 0
	}
	return m.genAttempts.Value(endpoint, task, status)
}

// StartRedisCollector pings the progress-bus redis on an interval until ctx
// is done.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	log = logger.OrNop(log)
	interval := envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second)
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer rdb.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					log.Warn("metrics: redis ping failed", "error", err)
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/realtime"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/config"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/dispatch"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/pipeline"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

type sentinelGen struct{}

func (sentinelGen) Generate(ctx context.Context, req records.GenerationRequest) dispatch.Reply {
	return dispatch.Reply{Text: req.Task().Sentinel(), Sentinel: true}
}

type panicExtractor struct{ Extractor }

func (panicExtractor) Analyze(ctx context.Context, content string, opts pipeline.CallOptions) (records.Analysis, error) {
	panic("analyzer exploded")
}

type recordingExtractor struct {
	Extractor
	opts pipeline.CallOptions
}

func (r *recordingExtractor) ProcessDocument(ctx context.Context, content string, tasks []records.Task, opts pipeline.CallOptions) records.ProcessResult {
	r.opts = opts
	return r.Extractor.ProcessDocument(ctx, content, tasks, opts)
}

const lecture = `Photosynthesis is the process plants use to turn light into chemical energy.
Mitochondria are the organelles where cellular respiration happens.`

func testConfig() *config.Config {
	return &config.Config{
		Env:  "test",
		HTTP: config.HTTPConfig{Addr: ":0", MaxRequestBytes: 1 << 20},
	}
}

func testHandler(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Extractor == nil {
		deps.Extractor = pipeline.New(sentinelGen{}, nil, pipeline.Options{ChunkDelay: -1}, nil, nil)
	}
	return NewHandler(testConfig(), nil, deps)
}

func doJSON(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error
}

func TestHealthzAndRequestID(t *testing.T) {
	h := testHandler(t, Deps{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("request id=%q", got)
	}
	if got := rr.Header().Get("X-Job-Id"); got != "req-123" {
		t.Fatalf("job id=%q", got)
	}
	if rr.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("missing trace id")
	}
}

func TestReadyz(t *testing.T) {
	h := testHandler(t, Deps{Ready: func(ctx context.Context) error { return errors.New("redis down") }})
	rr := doJSON(h, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != "not_ready" || e.Message != "redis down" {
		t.Fatalf("error=%+v", e)
	}
}

func TestProcessDocument(t *testing.T) {
	h := testHandler(t, Deps{})
	rr := doJSON(h, http.MethodPost, "/v1/documents/process", `{"content":`+jsonString(lecture)+`,"source_name":"lecture.pdf"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var res records.ProcessResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || len(res.Notes) == 0 || !strings.HasSuffix(res.Summary, "from lecture.pdf") {
		t.Fatalf("res=%+v", res)
	}
}

func TestProcessDocumentForwardsModel(t *testing.T) {
	rec := &recordingExtractor{Extractor: pipeline.New(sentinelGen{}, nil, pipeline.Options{ChunkDelay: -1}, nil, nil)}
	h := testHandler(t, Deps{Extractor: rec})
	rr := doJSON(h, http.MethodPost, "/v1/documents/process", `{"content":`+jsonString(lecture)+`,"source_name":" lecture.pdf ","model":"study-large","tasks":["notes"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rec.opts.Model != "study-large" || rec.opts.SourceName != "lecture.pdf" {
		t.Fatalf("opts=%+v", rec.opts)
	}
}

func TestProcessDocumentEmptyContent(t *testing.T) {
	h := testHandler(t, Deps{})
	rr := doJSON(h, http.MethodPost, "/v1/documents/process", `{"content":"   ","source_name":"blank.pdf"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
	var res records.ProcessResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Success || res.Error == "" || res.Notes == nil {
		t.Fatalf("res=%+v", res)
	}
}

func TestProcessDocumentRejectsUnknownTask(t *testing.T) {
	h := testHandler(t, Deps{})
	rr := doJSON(h, http.MethodPost, "/v1/documents/process", `{"content":"x","tasks":["notes","poems"]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != "unknown_task" {
		t.Fatalf("error=%+v", e)
	}
}

func TestExtract(t *testing.T) {
	h := testHandler(t, Deps{})

	t.Run("notes", func(t *testing.T) {
		rr := doJSON(h, http.MethodPost, "/v1/extract/notes", `{"content":`+jsonString(lecture)+`}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		var out struct {
			Task  string            `json:"task"`
			Count int               `json:"count"`
			Items []json.RawMessage `json:"items"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Task != "notes" || out.Count == 0 || out.Count != len(out.Items) {
			t.Fatalf("out=%+v", out)
		}
	})

	t.Run("unknown_task", func(t *testing.T) {
		rr := doJSON(h, http.MethodPost, "/v1/extract/poems", `{"content":"x"}`)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("status=%d", rr.Code)
		}
		if e := decodeError(t, rr); e.Code != "unknown_task" {
			t.Fatalf("error=%+v", e)
		}
	})

	t.Run("empty_content", func(t *testing.T) {
		rr := doJSON(h, http.MethodPost, "/v1/extract/flashcards", `{"content":""}`)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status=%d", rr.Code)
		}
		if e := decodeError(t, rr); e.Code != "empty_content" {
			t.Fatalf("error=%+v", e)
		}
	})

	t.Run("invalid_json", func(t *testing.T) {
		rr := doJSON(h, http.MethodPost, "/v1/extract/notes", `{"content":`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status=%d", rr.Code)
		}
	})
}

func TestAnalyze(t *testing.T) {
	h := testHandler(t, Deps{})
	rr := doJSON(h, http.MethodPost, "/v1/analyze", `{"content":"Exam on Monday at 9:00\nChapter 3 covers enzymes."}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var a records.Analysis
	if err := json.NewDecoder(rr.Body).Decode(&a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !a.HasScheduleCues || a.Origin != records.OriginFallback {
		t.Fatalf("analysis=%+v", a)
	}
}

func TestRequestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.HTTP.MaxRequestBytes = 32
	h := NewHandler(cfg, nil, Deps{Extractor: pipeline.New(sentinelGen{}, nil, pipeline.Options{ChunkDelay: -1}, nil, nil)})
	rr := doJSON(h, http.MethodPost, "/v1/extract/notes", `{"content":"`+strings.Repeat("a", 200)+`"}`)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != "request_too_large" {
		t.Fatalf("error=%+v", e)
	}
}

func TestPanicRecovery(t *testing.T) {
	base := pipeline.New(sentinelGen{}, nil, pipeline.Options{ChunkDelay: -1}, nil, nil)
	h := testHandler(t, Deps{Extractor: panicExtractor{Extractor: base}})
	rr := doJSON(h, http.MethodPost, "/v1/analyze", `{"content":"x"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != "internal" {
		t.Fatalf("error=%+v", e)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := observability.NewMetrics()
	h := testHandler(t, Deps{Metrics: m})
	_ = doJSON(h, http.MethodGet, "/healthz", "")
	rr := doJSON(h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `sg_http_requests_total{method="GET",route="/healthz",status="200"} 1`) {
		t.Fatalf("metrics body=%s", rr.Body.String())
	}
}

func TestCORSAllowsLocalDevOrigins(t *testing.T) {
	h := testHandler(t, Deps{})
	req := httptest.NewRequest(http.MethodOptions, "/v1/analyze", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow-origin=%q status=%d", got, rr.Code)
	}
}

func TestEventStream(t *testing.T) {
	hub := realtime.NewHub(nil)
	srv := httptest.NewServer(testHandler(t, Deps{Hub: hub}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/job-7", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type=%q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.Broadcast(realtime.Event{Channel: "other", Type: realtime.EventTaskStarted})
	hub.Broadcast(realtime.Event{Channel: "job-7", Type: realtime.EventTaskCompleted, Task: "notes"})

	sc := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if eventLine != "event: task.completed" {
		t.Fatalf("event line=%q", eventLine)
	}
	var ev realtime.Event
	if err := json.Unmarshal([]byte(dataLine), &ev); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if ev.Channel != "job-7" || ev.Task != "notes" {
		t.Fatalf("event=%+v", ev)
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

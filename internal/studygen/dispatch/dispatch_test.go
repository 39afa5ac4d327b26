package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/engine"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

type callFunc func(ctx context.Context, ep engine.Endpoint, req records.GenerationRequest) (string, error)

func (f callFunc) Call(ctx context.Context, ep engine.Endpoint, req records.GenerationRequest) (string, error) {
	return f(ctx, ep, req)
}

type callLog struct {
	mu    sync.Mutex
	calls []string
	reqs  []records.GenerationRequest
}

func (l *callLog) add(name string, req records.GenerationRequest) {
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.reqs = append(l.reqs, req)
	l.mu.Unlock()
}

func notesRequest(opts ...records.RequestOption) records.GenerationRequest {
	return records.NewGenerationRequest(records.TaskNotes, []records.Message{
		{Role: records.RoleUser, Content: "Cells divide."},
	}, opts...)
}

func TestBuildCandidates(t *testing.T) {
	cases := []struct {
		name string
		src  Sources
		want []string
	}{
		{
			name: "local_env_prefers_local",
			src: Sources{
				Env:           "development",
				LocalURL:      "http://localhost:8081/v1/generate",
				ProductionURL: "https://gen.example.com/v1/generate",
				RelativePath:  "/api/generate",
				PublicOrigin:  "https://app.example.com",
			},
			want: []string{
				"http://localhost:8081/v1/generate",
				"https://gen.example.com/v1/generate",
				"https://app.example.com/api/generate",
			},
		},
		{
			name: "production_skips_local",
			src: Sources{
				Env:           "production",
				LocalURL:      "http://localhost:8081/v1/generate",
				ProductionURL: "https://gen.example.com/v1/generate",
			},
			want: []string{"https://gen.example.com/v1/generate"},
		},
		{
			name: "duplicates_and_blanks",
			src: Sources{
				Env:           "test",
				LocalURL:      "  ",
				ProductionURL: "https://app.example.com/api/generate",
				RelativePath:  "/api/generate",
				PublicOrigin:  "https://app.example.com/",
			},
			want: []string{"https://app.example.com/api/generate"},
		},
		{
			name: "relative_without_origin",
			src:  Sources{RelativePath: "/api/generate"},
			want: []string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildCandidates(tc.src)
			if len(got) != len(tc.want) {
				t.Fatalf("candidates=%+v want=%v", got, tc.want)
			}
			for i := range got {
				if got[i].URL != tc.want[i] {
					t.Fatalf("candidate[%d]=%q want=%q", i, got[i].URL, tc.want[i])
				}
			}
		})
	}
}

func TestModelTableResolve(t *testing.T) {
	m := ModelTable{
		Tasks:   map[records.Task]string{records.TaskFlashcards: "cards-small"},
		Default: "study-base",
	}
	if got := m.Resolve("override", records.TaskFlashcards); got != "override" {
		t.Fatalf("override=%q", got)
	}
	if got := m.Resolve("", records.TaskFlashcards); got != "cards-small" {
		t.Fatalf("task=%q", got)
	}
	if got := m.Resolve(" ", records.TaskNotes); got != "study-base" {
		t.Fatalf("default=%q", got)
	}
	if got := (ModelTable{}).Resolve("", records.TaskNotes); got != "" {
		t.Fatalf("empty=%q", got)
	}
}

func TestNewCopiesModelTable(t *testing.T) {
	log := &callLog{}
	caller := callFunc(func(ctx context.Context, ep engine.Endpoint, req records.GenerationRequest) (string, error) {
		log.add(ep.Name, req)
		return `[{"title":"ok"}]`, nil
	})
	tasks := map[records.Task]string{records.TaskNotes: "notes-v1"}
	d := New(caller, []Candidate{{Name: "production", URL: "http://a", Kind: KindProduction}}, Options{Models: ModelTable{Tasks: tasks}}, nil, nil)

	tasks[records.TaskNotes] = "notes-v2"
	d.Generate(context.Background(), notesRequest())
	if got := log.reqs[0].Model(); got != "notes-v1" {
		t.Fatalf("model=%q want=notes-v1", got)
	}
}

func TestGenerateFailsOverInOrder(t *testing.T) {
	var log callLog
	caller := callFunc(func(ctx context.Context, ep engine.Endpoint, req records.GenerationRequest) (string, error) {
		log.add(ep.Name, req)
		if ep.Name == "production" {
			return `[{"title":"ok"}]`, nil
		}
		return "", &engine.HTTPError{StatusCode: 502}
	})
	cands := []Candidate{
		{Name: "local", URL: "http://a", Kind: KindLocal},
		{Name: "production", URL: "http://b", Kind: KindProduction},
		{Name: "relative", URL: "http://c", Kind: KindRelative},
	}
	metrics := observability.NewMetrics()
	d := New(caller, cands, Options{Attempts: 2, Backoff: -1, Models: ModelTable{Default: "m1"}}, nil, metrics)

	reply := d.Generate(context.Background(), notesRequest())
	if reply.Sentinel || reply.Text != `[{"title":"ok"}]` || reply.Endpoint != "production" {
		t.Fatalf("reply=%+v", reply)
	}
	if reply.Attempts != 3 {
		t.Fatalf("attempts=%d want=3", reply.Attempts)
	}
	want := []string{"local", "local", "production"}
	for i, name := range want {
		if log.calls[i] != name {
			t.Fatalf("calls=%v want=%v", log.calls, want)
		}
	}
	if got := log.reqs[0].Model(); got != "m1" {
		t.Fatalf("model=%q want=m1", got)
	}
	if got := metrics.GenerationCount("local", "notes", "http_502"); got != 2 {
		t.Fatalf("metric=%v want=2", got)
	}
}

func TestGenerateSentinelWhenAllFail(t *testing.T) {
	var calls int32
	caller := callFunc(func(ctx context.Context, ep engine.Endpoint, req records.GenerationRequest) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("connection refused")
	})
	cands := []Candidate{{Name: "a", URL: "http://a"}, {Name: "b", URL: "http://b"}}
	d := New(caller, cands, Options{Attempts: 3, Backoff: time.Millisecond}, nil, nil)

	reply := d.Generate(context.Background(), notesRequest())
	if !reply.Sentinel || reply.Text != "[]" {
		t.Fatalf("reply=%+v", reply)
	}
	if calls != 6 || reply.Attempts != 6 {
		t.Fatalf("calls=%d attempts=%d want=6", calls, reply.Attempts)
	}

	analyze := records.NewGenerationRequest(records.TaskAnalyze, []records.Message{{Role: records.RoleUser, Content: "x"}})
	if reply := d.Generate(context.Background(), analyze); reply.Text != "{}" || !reply.Sentinel {
		t.Fatalf("analyze reply=%+v", reply)
	}
}

func TestGenerateEmptyTextIsFailure(t *testing.T) {
	var calls int32
	caller := callFunc(func(ctx context.Context, ep engine.Endpoint, req records.GenerationRequest) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "   ", nil
		}
		return "[]", nil
	})
	d := New(caller, []Candidate{{Name: "a", URL: "http://a"}}, Options{Backoff: -1}, nil, nil)
	reply := d.Generate(context.Background(), notesRequest())
	if reply.Sentinel || reply.Attempts != 2 {
		t.Fatalf("reply=%+v", reply)
	}
}

func TestGenerateClientErrorSkipsRetries(t *testing.T) {
	var log callLog
	caller := callFunc(func(ctx context.Context, ep engine.Endpoint, req records.GenerationRequest) (string, error) {
		log.add(ep.Name, req)
		if ep.Name == "a" {
			return "", &engine.HTTPError{StatusCode: 401, Body: "bad key"}
		}
		return "[]", nil
	})
	d := New(caller, []Candidate{{Name: "a", URL: "http://a"}, {Name: "b", URL: "http://b"}}, Options{Attempts: 5, Backoff: -1}, nil, nil)
	reply := d.Generate(context.Background(), notesRequest())
	if reply.Endpoint != "b" || len(log.calls) != 2 {
		t.Fatalf("reply=%+v calls=%v", reply, log.calls)
	}
}

func TestGenerateRequestAttemptsAreClamped(t *testing.T) {
	var calls int32
	caller := callFunc(func(ctx context.Context, ep engine.Endpoint, req records.GenerationRequest) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("down")
	})
	d := New(caller, []Candidate{{Name: "a", URL: "http://a"}}, Options{Backoff: -1}, nil, nil)
	d.Generate(context.Background(), notesRequest(records.WithAttempts(50)))
	if calls != MaxAttempts {
		t.Fatalf("calls=%d want=%d", calls, MaxAttempts)
	}
}

func TestGenerateStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	caller := callFunc(func(ctx context.Context, ep engine.Endpoint, req records.GenerationRequest) (string, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return "", errors.New("down")
	})
	d := New(caller, []Candidate{{Name: "a", URL: "http://a"}, {Name: "b", URL: "http://b"}}, Options{Attempts: 3, Backoff: time.Hour}, nil, nil)

	done := make(chan Reply, 1)
	go func() { done <- d.Generate(ctx, notesRequest()) }()
	select {
	case reply := <-done:
		if !reply.Sentinel || calls != 1 {
			t.Fatalf("reply=%+v calls=%d", reply, calls)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Generate did not stop after cancel")
	}
}

func TestGenerateAgainstHTTPServers(t *testing.T) {
	var downHits, upHits int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&downHits, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&upHits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[{\"question\":\"q\",\"answer\":\"a\"}]"}}]}`))
	}))
	defer up.Close()

	cands := BuildCandidates(Sources{Env: "local", LocalURL: down.URL, ProductionURL: up.URL})
	d := New(engine.New(engine.Options{}), cands, Options{Attempts: 2, Backoff: time.Millisecond}, nil, nil)
	reply := d.Generate(context.Background(), records.NewGenerationRequest(records.TaskFlashcards, []records.Message{
		{Role: records.RoleUser, Content: "make cards"},
	}))
	if reply.Sentinel || reply.Endpoint != string(KindProduction) {
		t.Fatalf("reply=%+v", reply)
	}
	if downHits != 2 || upHits != 1 {
		t.Fatalf("down=%d up=%d", downHits, upHits)
	}
}

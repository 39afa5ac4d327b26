package app

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-studygen/internal/realtime/bus"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func testConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	for _, k := range []string{"REDIS_ADDR", "NB_INBOX_DIR", "NB_HTTP_ADDR", "NB_GEN_PRODUCTION_URL"} {
		t.Setenv(k, "")
	}
	p := filepath.Join(t.TempDir(), "studygen.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	return cfg
}

func TestBuildWithoutRedisUsesLocalBus(t *testing.T) {
	cfg := testConfig(t, `{"env":"test"}`)
	a, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := a.bus.(*bus.Memory); !ok {
		t.Fatalf("bus=%T want *bus.Memory", a.bus)
	}
	if a.inbox != nil {
		t.Fatalf("inbox should be disabled without a dir")
	}
	if readiness(a.bus) != nil {
		t.Fatalf("local bus should not need a readiness probe")
	}
}

func TestBuildEnablesInbox(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, `{"inbox":{"dir":"`+filepath.ToSlash(dir)+`"}}`)
	a, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.inbox == nil {
		t.Fatalf("inbox not built")
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	addr := freeAddr(t)
	cfg := testConfig(t, `{"http":{"addr":"`+addr+`","shutdown_timeout":"2s"}}`)
	a, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	var status int
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			status = resp.StatusCode
			resp.Body.Close()
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status != http.StatusOK {
		t.Fatalf("healthz status=%d want=%d", status, http.StatusOK)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

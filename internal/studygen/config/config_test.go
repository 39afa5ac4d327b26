package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

var overrideVars = []string{
	"LOG_MODE", "NB_HTTP_ADDR", "NB_GEN_LOCAL_URL", "NB_GEN_PRODUCTION_URL",
	"NB_GEN_RELATIVE_PATH", "NB_GEN_PUBLIC_ORIGIN", "NB_GEN_PROVIDER", "NB_GEN_API_KEY",
	"NB_GEN_MODEL", "NB_GEN_ATTEMPTS", "NB_GEN_TIMEOUT", "NB_COVERAGE_THRESHOLD",
	"NB_MAX_CHUNK_CHARS", "REDIS_ADDR", "REDIS_CHANNEL", "NB_INBOX_DIR", "NB_INBOX_OUT_DIR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range overrideVars {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDurationJSON(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{`"5s"`, 5 * time.Second},
		{`"750ms"`, 750 * time.Millisecond},
		{`1000000`, time.Millisecond},
		{`null`, 0},
		{`""`, 0},
	}
	for _, tc := range cases {
		var d Duration
		if err := json.Unmarshal([]byte(tc.in), &d); err != nil {
			t.Fatalf("in=%s err=%v", tc.in, err)
		}
		if d.Duration != tc.want {
			t.Fatalf("in=%s got=%v want=%v", tc.in, d.Duration, tc.want)
		}
	}
	var d Duration
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func TestDurationYAML(t *testing.T) {
	var v struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	if err := yaml.Unmarshal([]byte("a: 2m\nb: 1000\n"), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.Duration != 2*time.Minute || v.B.Duration != time.Microsecond {
		t.Fatalf("a=%v b=%v", v.A.Duration, v.B.Duration)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Env != "development" || cfg.HTTP.Addr != ":8080" {
		t.Fatalf("env=%q addr=%q", cfg.Env, cfg.HTTP.Addr)
	}
	if cfg.Generation.Attempts != 2 || cfg.Generation.Provider != "proxy" {
		t.Fatalf("generation=%+v", cfg.Generation)
	}
	if cfg.Pipeline.CoverageThreshold != 50 || cfg.Pipeline.MaxChunkChars != 8000 || cfg.Pipeline.ChunkDelay.Duration != time.Second {
		t.Fatalf("pipeline=%+v", cfg.Pipeline)
	}
	if cfg.Redis.Channel == "" || len(cfg.Inbox.Extensions) != 2 {
		t.Fatalf("redis=%+v inbox=%+v", cfg.Redis, cfg.Inbox)
	}
	if !cfg.IsLocal() {
		t.Fatalf("development should be local")
	}
}

func TestLoadJSONFile(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "studygen.json", `{
		"env": "production",
		"generation": {
			"production_url": "https://gen.example.com/v1/generate",
			"provider": "OpenAI",
			"attempts": 3,
			"timeout": "20s",
			"task_models": {"flashcards": "cards-small"}
		},
		"pipeline": {"coverage_threshold": 65, "chunk_delay": 0}
	}`)
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	g := cfg.Generation
	if g.Provider != "openai" || g.Attempts != 3 || g.Timeout.Duration != 20*time.Second {
		t.Fatalf("generation=%+v", g)
	}
	if g.RelativePath != "/api/generate" {
		t.Fatalf("default relative path lost: %q", g.RelativePath)
	}
	if cfg.Pipeline.CoverageThreshold != 65 || cfg.Pipeline.MaxChunkChars != 8000 {
		t.Fatalf("pipeline=%+v", cfg.Pipeline)
	}
	if m := g.ModelTable().Resolve("", records.TaskFlashcards); m != "cards-small" {
		t.Fatalf("model=%q", m)
	}
	if cfg.IsLocal() {
		t.Fatalf("production should not be local")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "studygen.yaml", `
env: staging
generation:
  local_url: http://localhost:11434/api/chat
  provider: ollama
  backoff: 250ms
inbox:
  dir: /tmp/inbox
  extensions: [TXT, md]
`)
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Env != "staging" || cfg.Generation.Provider != "ollama" || cfg.Generation.Backoff.Duration != 250*time.Millisecond {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Inbox.OutDir != "/tmp/inbox" || strings.Join(cfg.Inbox.Extensions, ",") != ".txt,.md" {
		t.Fatalf("inbox=%+v", cfg.Inbox)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFile(writeFile(t, "c.json", `{"generation":{"atempts":3}}`)); err == nil {
		t.Fatalf("expected error for unknown json field")
	}
	if _, err := LoadFile(writeFile(t, "c.yml", "pipline:\n  max_topics: 3\n")); err == nil {
		t.Fatalf("expected error for unknown yaml field")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_MODE", "production")
	t.Setenv("NB_GEN_PRODUCTION_URL", "https://env.example.com/generate")
	t.Setenv("NB_GEN_ATTEMPTS", "4")
	t.Setenv("NB_GEN_TIMEOUT", "45s")
	t.Setenv("NB_COVERAGE_THRESHOLD", "70")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	p := writeFile(t, "studygen.json", `{"generation":{"production_url":"https://file.example.com","attempts":1}}`)
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Env != "production" || cfg.Generation.ProductionURL != "https://env.example.com/generate" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Generation.Attempts != 4 || cfg.Generation.Timeout.Duration != 45*time.Second {
		t.Fatalf("generation=%+v", cfg.Generation)
	}
	if cfg.Pipeline.CoverageThreshold != 70 || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("pipeline=%+v redis=%+v", cfg.Pipeline, cfg.Redis)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"attempts", `{"generation":{"attempts":9}}`, "generation.attempts must be between 1 and 5"},
		{"provider", `{"generation":{"provider":"carrier-pigeon"}}`, "generation.provider"},
		{"threshold", `{"pipeline":{"coverage_threshold":120}}`, "pipeline.coverage_threshold"},
		{"task_models", `{"generation":{"task_models":{"poems":"m"}}}`, "unknown task"},
		{"min_chunk", `{"pipeline":{"max_chunk_chars":100,"min_chunk_chars":200}}`, "pipeline.min_chunk_chars"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFile(writeFile(t, "c.json", tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v want containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadUsesPathEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(PathEnv, writeFile(t, "custom.json", `{"http":{"addr":":9191"}}`))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9191" {
		t.Fatalf("addr=%q", cfg.HTTP.Addr)
	}
}

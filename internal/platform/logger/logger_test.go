package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	got := sanitizeKVs([]interface{}{
		"api_key", "sk-123",
		"endpoint", "https://gen.example.com",
		"headers", map[string]interface{}{"Authorization": "Bearer abc"},
		"dangling",
	})
	if len(got) != 7 {
		t.Fatalf("len=%d want=7 (%v)", len(got), got)
	}
	if got[1] != "[REDACTED]" {
		t.Fatalf("api_key not redacted: %v", got[1])
	}
	if got[3] != "https://gen.example.com" {
		t.Fatalf("endpoint changed: %v", got[3])
	}
	hdrs, ok := got[5].(map[string]interface{})
	if !ok || hdrs["Authorization"] != "[REDACTED]" {
		t.Fatalf("nested authorization not redacted: %v", got[5])
	}
	if got[6] != "dangling" {
		t.Fatalf("odd trailing key dropped: %v", got)
	}
}

func TestHashValueIsStable(t *testing.T) {
	a := hashValue("notes/lecture-01.txt")
	b := hashValue("notes/lecture-01.txt")
	if a != b || len(a) != len("hash:")+12 {
		t.Fatalf("unstable hash: %q %q", a, b)
	}
	if hashValue("") != "" {
		t.Fatalf("empty value should hash to empty")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("OrNop(nil) returned nil")
	}
	OrNop(nil).Info("discarded", "k", "v")
}

func TestSanitizeKVsClipsDocumentText(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := sanitizeKVs([]interface{}{"content", long, "summary", "short"})
	s, _ := got[1].(string)
	if !strings.HasSuffix(s, "... (500 chars)") || len(s) >= 500 {
		t.Fatalf("content not clipped: %q", s)
	}
	if got[3] != "short" {
		t.Fatalf("summary changed: %v", got[3])
	}
}

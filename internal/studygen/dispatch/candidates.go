package dispatch

import (
	"maps"
	"net/url"
	"strings"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/engine"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

type Kind string

const (
	KindLocal      Kind = "local"
	KindProduction Kind = "production"
	KindRelative   Kind = "relative"
)

// Candidate is one generation endpoint. A slice of candidates is tried in
// order.
type Candidate struct {
	Name     string
	URL      string
	Provider string
	APIKey   string
	Kind     Kind
}

func (c Candidate) Endpoint() engine.Endpoint {
	return engine.Endpoint{Name: c.Name, URL: c.URL, Provider: c.Provider, APIKey: c.APIKey}
}

// Sources are the configured endpoint locations a candidate list is built
// from.
type Sources struct {
	Env           string
	LocalURL      string
	ProductionURL string
	RelativePath  string
	PublicOrigin  string
	Provider      string
	APIKey        string
}

// IsLocalEnv reports whether env names a developer or test environment.
func IsLocalEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "local", "dev", "test":
		return true
	}
	return false
}

// BuildCandidates orders endpoints by preference: the local endpoint (only in
// a local environment), the absolute production endpoint, then the
// same-origin relative path resolved against PublicOrigin. Blank and
// duplicate URLs are skipped.
func BuildCandidates(src Sources) []Candidate {
	out := []Candidate{}
	seen := map[string]bool{}
	add := func(kind Kind, raw string) {
		u := strings.TrimSpace(raw)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, Candidate{
			Name:     string(kind),
			URL:      u,
			Provider: src.Provider,
			APIKey:   src.APIKey,
			Kind:     kind,
		})
	}
	if IsLocalEnv(src.Env) {
		add(KindLocal, src.LocalURL)
	}
	add(KindProduction, src.ProductionURL)
	add(KindRelative, resolveRelative(src.PublicOrigin, src.RelativePath))
	return out
}

func resolveRelative(origin, path string) string {
	origin, path = strings.TrimSpace(origin), strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return u.String()
	}
	if origin == "" {
		return ""
	}
	base, err := url.Parse(origin)
	if err != nil || !base.IsAbs() {
		return ""
	}
	ref, err := url.Parse(path)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// ModelTable maps tasks to model names. An explicit per-request model wins,
// then the task entry, then Default. An empty result means the endpoint
// picks its own model.
type ModelTable struct {
	Tasks   map[records.Task]string
	Default string
}

// Clone returns a table that shares no map with m.
func (m ModelTable) Clone() ModelTable {
	return ModelTable{Tasks: maps.Clone(m.Tasks), Default: m.Default}
}

func (m ModelTable) Resolve(override string, task records.Task) string {
	if s := strings.TrimSpace(override); s != "" {
		return s
	}
	if s := strings.TrimSpace(m.Tasks[task]); s != "" {
		return s
	}
	return strings.TrimSpace(m.Default)
}

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-studygen/internal/platform/envutil"
	"github.com/yungbote/neurobridge-studygen/internal/realtime/bus"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/chunker"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/coverage"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/dispatch"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/engine"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/fallback"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

const PathEnv = "NB_STUDYGEN_CONFIG_PATH"

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		return d.parse(u)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		d.Duration = time.Duration(n)
		return nil
	}
	if node.Tag == "!!null" {
		d.Duration = 0
		return nil
	}
	if err := d.parse(node.Value); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   10 << 20,
		},
		Generation: GenerationConfig{
			RelativePath: "/api/generate",
			Provider:     engine.ProviderProxy,
			Timeout:      Duration{Duration: engine.DefaultTimeout},
			Attempts:     dispatch.DefaultAttempts,
			Backoff:      Duration{Duration: dispatch.DefaultBackoff},
			MaxTokens:    4096,
			Temperature:  0.3,
			TopP:         1,
		},
		Pipeline: PipelineConfig{
			MaxChunkChars:     chunker.DefaultMaxChars,
			MinChunkChars:     chunker.DefaultMinChars,
			ChunkDelay:        Duration{Duration: time.Second},
			CoverageThreshold: coverage.DefaultThreshold,
			MaxTopics:         coverage.DefaultMaxTopics,
			MaxFlashcards:     20,
			MaxScheduleItems:  fallback.MaxScheduleItems,
			ConcurrentTasks:   true,
		},
		Inbox: InboxConfig{
			Extensions: []string{".txt", ".md"},
			Debounce:   Duration{Duration: 500 * time.Millisecond},
		},
	}
}

// Load reads the config file named by NB_STUDYGEN_CONFIG_PATH, or the first
// of ./config/studygen.{json,yaml,yml} that exists, applies environment
// overrides and validates the result. With no file the defaults apply.
func Load() (*Config, error) {
	cfgPath := strings.TrimSpace(os.Getenv(PathEnv))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			for _, name := range []string{"studygen.json", "studygen.yaml", "studygen.yml"} {
				p := filepath.Join(wd, "config", name)
				if _, err := os.Stat(p); err == nil {
					cfgPath = p
					break
				}
			}
		}
	}
	return LoadFile(cfgPath)
}

// LoadFile is Load with an explicit path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decode(path, b, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode layers the file over the defaults already in cfg.
func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.HTTP.Addr = envutil.String("NB_HTTP_ADDR", cfg.HTTP.Addr)

	g := &cfg.Generation
	g.LocalURL = envutil.String("NB_GEN_LOCAL_URL", g.LocalURL)
	g.ProductionURL = envutil.String("NB_GEN_PRODUCTION_URL", g.ProductionURL)
	g.RelativePath = envutil.String("NB_GEN_RELATIVE_PATH", g.RelativePath)
	g.PublicOrigin = envutil.String("NB_GEN_PUBLIC_ORIGIN", g.PublicOrigin)
	g.Provider = envutil.String("NB_GEN_PROVIDER", g.Provider)
	g.APIKey = envutil.String("NB_GEN_API_KEY", g.APIKey)
	g.Model = envutil.String("NB_GEN_MODEL", g.Model)
	g.Attempts = envutil.Int("NB_GEN_ATTEMPTS", g.Attempts)
	g.Timeout.Duration = envutil.Duration("NB_GEN_TIMEOUT", g.Timeout.Duration)

	p := &cfg.Pipeline
	p.CoverageThreshold = envutil.Float("NB_COVERAGE_THRESHOLD", p.CoverageThreshold)
	p.MaxChunkChars = envutil.Int("NB_MAX_CHUNK_CHARS", p.MaxChunkChars)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Channel = envutil.String("REDIS_CHANNEL", cfg.Redis.Channel)
	cfg.Inbox.Dir = envutil.String("NB_INBOX_DIR", cfg.Inbox.Dir)
	cfg.Inbox.OutDir = envutil.String("NB_INBOX_OUT_DIR", cfg.Inbox.OutDir)
}

func (cfg *Config) normalize() error {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 10 << 20
	}
	if cfg.HTTP.ShutdownTimeout.Duration <= 0 {
		cfg.HTTP.ShutdownTimeout = Duration{Duration: 15 * time.Second}
	}

	g := &cfg.Generation
	g.LocalURL = strings.TrimSpace(g.LocalURL)
	g.ProductionURL = strings.TrimSpace(g.ProductionURL)
	g.PublicOrigin = strings.TrimRight(strings.TrimSpace(g.PublicOrigin), "/")
	g.Provider = strings.ToLower(strings.TrimSpace(g.Provider))
	if g.Provider == "" {
		g.Provider = engine.ProviderProxy
	}
	if !engine.KnownProvider(g.Provider) {
		return fmt.Errorf("generation.provider %q is not one of proxy, openai, ollama", g.Provider)
	}
	if g.Attempts < 1 || g.Attempts > dispatch.MaxAttempts {
		return fmt.Errorf("generation.attempts must be between 1 and %d", dispatch.MaxAttempts)
	}
	if g.Timeout.Duration <= 0 {
		g.Timeout = Duration{Duration: engine.DefaultTimeout}
	}
	if g.Backoff.Duration < 0 {
		return errors.New("generation.backoff must not be negative")
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		return errors.New("generation.temperature must be between 0 and 2")
	}
	if g.TopP < 0 || g.TopP > 1 {
		return errors.New("generation.top_p must be between 0 and 1")
	}
	for task := range g.TaskModels {
		if _, ok := records.ParseTask(task); !ok {
			return fmt.Errorf("generation.task_models: unknown task %q", task)
		}
	}

	p := &cfg.Pipeline
	if p.MaxChunkChars <= 0 {
		p.MaxChunkChars = chunker.DefaultMaxChars
	}
	if p.MinChunkChars < 0 || p.MinChunkChars >= p.MaxChunkChars {
		return errors.New("pipeline.min_chunk_chars must be between 0 and max_chunk_chars")
	}
	if p.ChunkDelay.Duration < 0 {
		return errors.New("pipeline.chunk_delay must not be negative")
	}
	if p.CoverageThreshold <= 0 || p.CoverageThreshold > 100 {
		return errors.New("pipeline.coverage_threshold must be in (0, 100]")
	}
	if p.MaxTopics <= 0 {
		p.MaxTopics = coverage.DefaultMaxTopics
	}
	if p.MaxFlashcards <= 0 {
		p.MaxFlashcards = 20
	}
	if p.MaxScheduleItems <= 0 {
		p.MaxScheduleItems = fallback.MaxScheduleItems
	}

	cfg.Redis.Addr = strings.TrimSpace(cfg.Redis.Addr)
	if strings.TrimSpace(cfg.Redis.Channel) == "" {
		cfg.Redis.Channel = bus.DefaultChannel
	}

	in := &cfg.Inbox
	in.Dir = strings.TrimSpace(in.Dir)
	in.OutDir = strings.TrimSpace(in.OutDir)
	if in.Dir != "" && in.OutDir == "" {
		in.OutDir = in.Dir
	}
	exts := make([]string, 0, len(in.Extensions))
	for _, e := range in.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	if len(exts) == 0 {
		exts = []string{".txt", ".md"}
	}
	in.Extensions = exts
	if in.Debounce.Duration <= 0 {
		in.Debounce = Duration{Duration: 500 * time.Millisecond}
	}
	return nil
}

// IsLocal reports whether the environment is a developer machine.
func (cfg *Config) IsLocal() bool {
	return dispatch.IsLocalEnv(cfg.Env)
}

// ModelTable turns the task model map into the dispatcher's routing table.
// Keys were validated by Load.
func (g GenerationConfig) ModelTable() dispatch.ModelTable {
	tasks := make(map[records.Task]string, len(g.TaskModels))
	for k, v := range g.TaskModels {
		if t, ok := records.ParseTask(k); ok {
			tasks[t] = strings.TrimSpace(v)
		}
	}
	return dispatch.ModelTable{Tasks: tasks, Default: strings.TrimSpace(g.Model)}
}

package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `json:"addr" yaml:"addr"`
	ReadHeaderTimeout Duration `json:"read_header_timeout" yaml:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxRequestBytes   int64    `json:"max_request_bytes" yaml:"max_request_bytes"`

	// AllowedOrigins feeds CORS. Empty means localhost dev origins only.
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// GenerationConfig describes where text generation happens and how hard to
// try. Candidate order is local (local envs only), production, then the
// relative path resolved against PublicOrigin.
type GenerationConfig struct {
	LocalURL      string `json:"local_url,omitempty" yaml:"local_url,omitempty"`
	ProductionURL string `json:"production_url,omitempty" yaml:"production_url,omitempty"`
	RelativePath  string `json:"relative_path,omitempty" yaml:"relative_path,omitempty"`
	PublicOrigin  string `json:"public_origin,omitempty" yaml:"public_origin,omitempty"`

	// Provider selects the request/response envelope: proxy, openai or ollama.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	Timeout  Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Attempts int      `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Backoff  Duration `json:"backoff,omitempty" yaml:"backoff,omitempty"`

	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`

	Model      string            `json:"model,omitempty" yaml:"model,omitempty"`
	TaskModels map[string]string `json:"task_models,omitempty" yaml:"task_models,omitempty"`
}

type PipelineConfig struct {
	MaxChunkChars     int      `json:"max_chunk_chars" yaml:"max_chunk_chars"`
	MinChunkChars     int      `json:"min_chunk_chars" yaml:"min_chunk_chars"`
	ChunkDelay        Duration `json:"chunk_delay" yaml:"chunk_delay"`
	CoverageThreshold float64  `json:"coverage_threshold" yaml:"coverage_threshold"`
	MaxTopics         int      `json:"max_topics" yaml:"max_topics"`
	MaxFlashcards     int      `json:"max_flashcards" yaml:"max_flashcards"`
	MaxScheduleItems  int      `json:"max_schedule_items" yaml:"max_schedule_items"`
	ConcurrentTasks   bool     `json:"concurrent_tasks" yaml:"concurrent_tasks"`
}

type RedisConfig struct {
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// InboxConfig enables the directory watcher when Dir is set.
type InboxConfig struct {
	Dir        string   `json:"dir,omitempty" yaml:"dir,omitempty"`
	OutDir     string   `json:"out_dir,omitempty" yaml:"out_dir,omitempty"`
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Debounce   Duration `json:"debounce,omitempty" yaml:"debounce,omitempty"`
}

type Config struct {
	Env        string           `json:"env" yaml:"env"`
	HTTP       HTTPConfig       `json:"http" yaml:"http"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline"`
	Redis      RedisConfig      `json:"redis" yaml:"redis"`
	Inbox      InboxConfig      `json:"inbox" yaml:"inbox"`
}

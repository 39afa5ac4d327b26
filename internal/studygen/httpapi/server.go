// Package httpapi exposes the extraction pipeline over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/realtime"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/config"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/pipeline"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

const serviceName = "studygen"

// Extractor is the part of the pipeline the handlers call.
type Extractor interface {
	ProcessDocument(ctx context.Context, content string, tasks []records.Task, opts pipeline.CallOptions) records.ProcessResult
	Extract(ctx context.Context, task records.Task, content string, opts pipeline.CallOptions) (any, int, error)
	Analyze(ctx context.Context, content string, opts pipeline.CallOptions) (records.Analysis, error)
}

type Deps struct {
	Extractor Extractor
	Hub       *realtime.Hub
	Metrics   *observability.Metrics

	// Ready reports whether dependencies (the progress bus) are usable.
	// Nil means always ready.
	Ready func(ctx context.Context) error
}

func NewServer(cfg *config.Config, log *logger.Logger, deps Deps) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           NewHandler(cfg, log, deps),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       cfg.HTTP.IdleTimeout.Duration,
		WriteTimeout:      0,
	}
}

func NewHandler(cfg *config.Config, log *logger.Logger, deps Deps) *gin.Engine {
	log = logger.OrNop(log).With("component", "httpapi")
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(recovery(log))
	r.Use(otelgin.Middleware(serviceName))
	r.Use(attachTraceContext())
	r.Use(requestLogger(log))
	r.Use(metrics(deps.Metrics))
	r.Use(corsFor(cfg.HTTP.AllowedOrigins))

	h := &handlers{
		log:      log,
		svc:      deps.Extractor,
		hub:      deps.Hub,
		ready:    deps.Ready,
		maxBytes: cfg.HTTP.MaxRequestBytes,
	}

	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapF(deps.Metrics.WriteHTTP))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/documents/process", h.process)
		v1.POST("/extract/:task", h.extract)
		v1.POST("/analyze", h.analyze)
		if deps.Hub != nil {
			v1.GET("/events/:channel", h.events)
		}
	}
	return r
}

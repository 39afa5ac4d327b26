package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/realtime"
	"github.com/yungbote/neurobridge-studygen/internal/realtime/bus"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/chunker"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/config"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/coverage"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/dispatch"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/engine"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/httpapi"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/inbox"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/pipeline"
)

const version = "0.1.0"

type App struct {
	Log     *logger.Logger
	Config  *config.Config
	Service *pipeline.Service

	server  *http.Server
	bus     bus.Bus
	hub     *realtime.Hub
	metrics *observability.Metrics
	inbox   *inbox.Inbox
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return Build(cfg, log)
}

// Build wires every component from cfg without starting anything that
// listens or watches.
func Build(cfg *config.Config, log *logger.Logger) (*App, error) {
	log = logger.OrNop(log)
	metrics := observability.Init(log)

	b, err := newBus(cfg, log)
	if err != nil {
		return nil, err
	}

	g := cfg.Generation
	cands := dispatch.BuildCandidates(dispatch.Sources{
		Env:           cfg.Env,
		LocalURL:      g.LocalURL,
		ProductionURL: g.ProductionURL,
		RelativePath:  g.RelativePath,
		PublicOrigin:  g.PublicOrigin,
		Provider:      g.Provider,
		APIKey:        g.APIKey,
	})
	if len(cands) == 0 {
		log.Warn("no generation endpoints configured; every task will use heuristic extraction")
	}
	caller := engine.New(engine.Options{
		Sampling: engine.Sampling{MaxTokens: g.MaxTokens, Temperature: g.Temperature, TopP: g.TopP},
		Timeout:  g.Timeout.Duration,
	})
	disp := dispatch.New(caller, cands, dispatch.Options{
		Attempts: g.Attempts,
		Backoff:  g.Backoff.Duration,
		Timeout:  g.Timeout.Duration,
		Models:   g.ModelTable(),
	}, log, metrics)

	p := cfg.Pipeline
	delay := p.ChunkDelay.Duration
	if delay == 0 {
		delay = -1
	}
	svc := pipeline.New(disp, b, pipeline.Options{
		Chunk:         chunker.Options{MaxChars: p.MaxChunkChars, MinChars: p.MinChunkChars},
		ChunkDelay:    delay,
		Coverage:      coverage.New(p.CoverageThreshold, p.MaxTopics),
		MaxFlashcards: p.MaxFlashcards,
		MaxSchedule:   p.MaxScheduleItems,
		Concurrent:    p.ConcurrentTasks,
	}, log, metrics)

	hub := realtime.NewHub(log)
	srv := httpapi.NewServer(cfg, log, httpapi.Deps{
		Extractor: svc,
		Hub:       hub,
		Metrics:   metrics,
		Ready:     readiness(b),
	})

	a := &App{
		Log:     log,
		Config:  cfg,
		Service: svc,
		server:  srv,
		bus:     b,
		hub:     hub,
		metrics: metrics,
	}
	if cfg.Inbox.Dir != "" {
		a.inbox = inbox.New(svc, inbox.Options{
			Dir:        cfg.Inbox.Dir,
			OutDir:     cfg.Inbox.OutDir,
			Extensions: cfg.Inbox.Extensions,
		}, log)
	}
	return a, nil
}

func newBus(cfg *config.Config, log *logger.Logger) (bus.Bus, error) {
	if cfg.Redis.Addr == "" {
		return bus.NewLocal(), nil
	}
	b, err := bus.NewRedisBus(log, bus.RedisConfig{Addr: cfg.Redis.Addr, Channel: cfg.Redis.Channel})
	if err != nil {
		return nil, fmt.Errorf("progress bus: %w", err)
	}
	return b, nil
}

func readiness(b bus.Bus) func(ctx context.Context) error {
	p, ok := b.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping
}

// Run serves HTTP, forwards progress events to the hub and, when
// configured, watches the inbox. It returns after ctx is cancelled and the
// server has shut down.
func (a *App) Run(ctx context.Context) error {
	shutdownTracing := observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "studygen",
		Version:     version,
		Environment: a.Config.Env,
	})
	defer func() {
		_ = shutdownTracing(context.Background())
		_ = a.bus.Close()
		a.Log.Sync()
	}()

	if err := a.bus.StartForwarder(ctx, a.hub.Broadcast); err != nil {
		return fmt.Errorf("start event forwarder: %w", err)
	}
	a.metrics.StartRedisCollector(ctx, a.Log, a.Config.Redis.Addr)

	g, gctx := errgroup.WithContext(ctx)
	if a.inbox != nil {
		w, err := inbox.NewWatcher(a.Config.Inbox.Extensions, a.Config.Inbox.Debounce.Duration, a.Log)
		if err != nil {
			return fmt.Errorf("inbox watcher: %w", err)
		}
		defer w.Stop()
		g.Go(func() error { return a.inbox.Run(gctx, w) })
	}

	g.Go(func() error {
		a.Log.Info("studygen listening", "addr", a.Config.HTTP.Addr, "env", a.Config.Env)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout.Duration)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

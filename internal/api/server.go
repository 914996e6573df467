// Package api is the thin HTTP adapter over the engine: it exposes
// monitor CRUD and scheduler control, nothing else. There is no web UI
// and no authentication layer — a single trusted operator process is
// assumed, per the engine's scope.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sentrymon/engine/internal/config"
	"github.com/sentrymon/engine/internal/engine"
	"github.com/sentrymon/engine/internal/store"
)

type Server struct {
	cfg       *config.Config
	store     store.Store
	executor  *engine.Executor
	scheduler *engine.Scheduler
	logger    *slog.Logger
	version   string
	handler   http.Handler

	// baseCtx outlives any single request — the scheduler's tick loop
	// must not be tied to the HTTP request that started it.
	baseCtx context.Context
}

func NewServer(ctx context.Context, cfg *config.Config, st store.Store, executor *engine.Executor, scheduler *engine.Scheduler, logger *slog.Logger, version string) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		executor:  executor,
		scheduler: scheduler,
		logger:    logger,
		version:   version,
		baseCtx:   ctx,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	handler = bodyLimit(cfg.Server.MaxBodySize)(handler)
	rl := newRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst)
	handler = rl.middleware()(handler)
	handler = cors(cfg.Server.CORSOrigins)(handler)
	handler = secureHeaders()(handler)
	handler = logging(logger)(handler)
	handler = requestID()(handler)
	handler = recovery(logger)(handler)

	s.handler = handler
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) p(path string) string {
	return s.cfg.Server.BasePath + path
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+s.p("/api/health"), s.handleHealth)

	mux.HandleFunc("GET "+s.p("/api/monitors"), s.handleListMonitors)
	mux.HandleFunc("GET "+s.p("/api/monitors/{id}"), s.handleGetMonitor)
	mux.HandleFunc("POST "+s.p("/api/monitors"), s.handleCreateMonitor)
	mux.HandleFunc("PUT "+s.p("/api/monitors/{id}"), s.handleUpdateMonitor)
	mux.HandleFunc("DELETE "+s.p("/api/monitors/{id}"), s.handleDeleteMonitor)
	mux.HandleFunc("GET "+s.p("/api/monitors/execute"), s.handleExecute)

	mux.HandleFunc("GET "+s.p("/api/scheduler/status"), s.handleSchedulerStatus)
	mux.HandleFunc("POST "+s.p("/api/scheduler/start"), s.handleSchedulerStart)
	mux.HandleFunc("POST "+s.p("/api/scheduler/stop"), s.handleSchedulerStop)
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/store"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	store      *store.Store
	orch       *core.Orchestrator
	logger     *slog.Logger
	authToken  string

	// baseCtx outlives individual requests; orchestrator start uses it
	// so monitoring survives the request that initiated it.
	baseCtx context.Context
}

// NewServer constructs the HTTP API server. mcpHandler and metricsHandler
// are mounted as-is at /mcp and /metrics.
func NewServer(ctx context.Context, addr, authToken string, st *store.Store, orch *core.Orchestrator, mcpHandler, metricsHandler http.Handler, logger *slog.Logger) (*Server, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		store:     st,
		orch:      orch,
		logger:    logger,
		authToken: authToken,
		baseCtx:   ctx,
	}
	s.registerRoutes(mcpHandler, metricsHandler)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	s.httpServer = httpServer
	return s, nil
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mcpHandler, metricsHandler http.Handler) {
	if metricsHandler != nil {
		s.router.Handle("/metrics", metricsHandler)
	}

	if mcpHandler != nil {
		if s.authToken != "" {
			mcpHandler = AuthMiddleware(s.authToken)(mcpHandler)
		}
		s.router.Handle("/mcp", mcpHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		// Apply authentication to all API endpoints
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Get("/status", s.handleStatus)

		r.Post("/orchestrator/start", s.handleOrchestratorStart)
		r.Post("/orchestrator/stop", s.handleOrchestratorStop)

		r.Route("/servers", func(r chi.Router) {
			r.Get("/", s.handleListServers)
			r.Post("/", s.handleUpsertServer)

			r.Route("/{serverID}", func(r chi.Router) {
				r.Patch("/", s.handleSetServerActive)
				r.Get("/activities", s.handleListActivities)
				r.Post("/tasks/{kind}/trigger", s.handleTriggerTask)
			})
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListManualTasks)
			r.Post("/", s.handleQueueManualTask)
			r.Get("/{taskID}", s.handleGetManualTask)
		})

		r.Route("/executions", func(r chi.Router) {
			r.Get("/", s.handleListExecutions)
			r.Get("/{executionID}", s.handleGetExecution)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleListSettings)
			r.Put("/", s.handleSetSetting)
		})
	})
}

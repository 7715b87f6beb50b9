package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/taskqueue/internal/ratelimit"
	"github.com/ashita-ai/taskqueue/internal/service/tasks"
)

// Server is the task queue HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Store, Limiter, MCPServer, MetricsHandler,
// OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Service *tasks.Service
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	Store          Pinger
	StoreName      string
	Limiter        ratelimit.Limiter
	MCPServer      *mcpserver.MCPServer
	MetricsHandler http.Handler

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	OpenAPISpec []byte

	// Embedder extensions. Registrars run after the built-in routes;
	// middlewares wrap the whole chain, first registered outermost.
	RouteRegistrars []func(*http.ServeMux)
	Middlewares     []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Service:             cfg.Service,
		Store:               cfg.Store,
		StoreName:           cfg.StoreName,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	claimRL := ratelimit.Middleware(cfg.Limiter, ratelimit.AgentKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Queue operations.
	mux.HandleFunc("PUT /tasks", h.HandleEnqueue)
	mux.Handle("POST /tasks/claim", claimRL(http.HandlerFunc(h.HandleClaim)))
	mux.HandleFunc("PUT /tasks/complete", h.HandleComplete)
	mux.HandleFunc("PUT /tasks/metrics/{task_id}", h.HandleUpdateMetrics)

	// Queries.
	mux.HandleFunc("GET /tasks", h.HandleListTasks)
	mux.HandleFunc("GET /tasks/status", h.HandleTaskStatus)
	mux.HandleFunc("GET /JobStatus", h.HandleJobStatus)
	mux.HandleFunc("GET /DatasetDiscovery", h.HandleDatasetDiscovery)

	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /echo", h.HandleEcho)
	mux.HandleFunc("GET /health/readiness", h.HandleReadiness)
	mux.HandleFunc("GET /health", h.HandleHealth)

	for _, register := range cfg.RouteRegistrars {
		register(mux)
	}

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Package taskqueue is the public API for embedding the task queue server.
//
// Consumers import this package to construct and extend the server without
// forking it:
//
//	app, err := taskqueue.New(ctx,
//	    taskqueue.WithVersion(version),
//	    taskqueue.WithLogger(logger),
//	    taskqueue.WithExtraRoutes(myRoutes),
//	    taskqueue.WithEventHook(myWebhook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*, never the other way round. Public
// types (Document, DocumentKind, TaskEvent) are standalone; conversion to the internal
// model happens in the adapters at the bottom of this file.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/taskqueue/api"
	"github.com/ashita-ai/taskqueue/internal/config"
	"github.com/ashita-ai/taskqueue/internal/mcp"
	"github.com/ashita-ai/taskqueue/internal/metrics"
	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/ratelimit"
	"github.com/ashita-ai/taskqueue/internal/server"
	"github.com/ashita-ai/taskqueue/internal/service/documents"
	"github.com/ashita-ai/taskqueue/internal/service/tasks"
	"github.com/ashita-ai/taskqueue/internal/storage"
	"github.com/ashita-ai/taskqueue/internal/storage/sqlite"
	"github.com/ashita-ai/taskqueue/internal/telemetry"
	"github.com/ashita-ai/taskqueue/migrations"
)

const shutdownTimeout = 10 * time.Second

// store is what the App needs from either backend.
type store interface {
	tasks.Store
	metrics.Counter
	EnsureTaskType(ctx context.Context, name string) (model.TaskType, error)
	Ping(ctx context.Context) error
}

// App is the task queue server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	store        store
	closeStore   func()
	srv          *server.Server
	collector    *metrics.Collector
	stopPoller   func()
	pollerDone   <-chan struct{}
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the server. It opens the store, runs migrations, seeds
// task types, loads the status registry and wires every subsystem. It does
// NOT start goroutines or accept connections; call Run().
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger, err = NewLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return nil, err
		}
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("taskqueue starting", "version", version, "port", cfg.Port, "store", cfg.Store)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}
	fail := func(err error) (*App, error) {
		closeStore()
		_ = otelShutdown(context.Background())
		return nil, err
	}

	for _, name := range cfg.SeedTaskTypes {
		tt, err := st.EnsureTaskType(ctx, name)
		if err != nil {
			return fail(fmt.Errorf("seed task type %q: %w", name, err))
		}
		logger.Debug("task type ready", "task_type", tt.Name, "id", tt.ID)
	}

	statuses, err := tasks.LoadStatusRegistry(ctx, st, logger)
	if err != nil {
		return fail(err)
	}

	var docs tasks.DocumentSource
	switch {
	case o.documentSource != nil:
		docs = &documentSourceAdapter{src: o.documentSource}
	case cfg.DocumentServiceURL != "":
		docs = documents.NewClient(cfg.DocumentServiceURL, cfg.DocumentTimeout, cfg.DocumentConcurrency, logger)
		logger.Info("document service: enabled", "url", cfg.DocumentServiceURL)
	default:
		docs = documents.Noop{}
		logger.Info("document service: disabled (no TASKQUEUE_DOCUMENT_SERVICE_URL)")
	}

	hooks := make([]tasks.Hook, len(o.eventHooks))
	for i, h := range o.eventHooks {
		hooks[i] = &eventHookAdapter{hook: h}
	}

	svc := tasks.New(st, statuses, docs, logger, hooks...)
	mcpSrv := mcp.New(svc, logger, version)
	collector := metrics.NewCollector(st, logger)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("claim rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("claim rate limiting: disabled")
	}

	registrars := make([]func(*http.ServeMux), len(o.routeRegistrars))
	for i, r := range o.routeRegistrars {
		registrars[i] = r
	}
	middlewares := make([]func(http.Handler) http.Handler, len(o.middlewares))
	for i, m := range o.middlewares {
		middlewares[i] = m
	}

	srv := server.New(server.ServerConfig{
		Service:             svc,
		Logger:              logger,
		Store:               st,
		StoreName:           cfg.Store,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		MetricsHandler:      collector.Handler(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
		RouteRegistrars:     registrars,
		Middlewares:         middlewares,
	})

	return &App{
		cfg:          cfg,
		store:        st,
		closeStore:   closeStore,
		srv:          srv,
		collector:    collector,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler, for tests and embedders that run
// their own listener.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the metrics collector and the HTTP server, then blocks until
// ctx is cancelled or the server fails. Shutdown is called on return.
func (a *App) Run(ctx context.Context) error {
	a.startPoller(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// startPoller runs the metrics collector on a context Shutdown can cancel,
// so it never outlives the store.
func (a *App) startPoller(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	done := a.collector.Start(pollCtx, a.cfg.MetricsInterval)
	a.pollerDone = done
	a.stopPoller = func() {
		cancel()
		<-done
	}
}

// Shutdown drains in-flight HTTP requests, stops the metrics poller, then
// releases the limiter, the store and the telemetry providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("taskqueue shutting down")

	var err error
	if shutdownErr := a.srv.Shutdown(ctx); shutdownErr != nil {
		a.logger.Error("http shutdown error", "error", shutdownErr)
		err = shutdownErr
	}
	if a.stopPoller != nil {
		a.stopPoller()
		a.stopPoller = nil
	}
	_ = a.limiter.Close()
	a.closeStore()
	_ = a.otelShutdown(context.Background())

	a.logger.Info("taskqueue stopped")
	return err
}

// NewLogger builds the JSON (or text) slog logger writing to stdout.
func NewLogger(level, format string) (*slog.Logger, error) {
	lvl, err := config.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts)), nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := sqlite.New(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		closeFn := func() { _ = s.Close() }
		if cfg.SkipEmbeddedMigrations {
			logger.Info("embedded migrations skipped by config")
		} else if err := s.RunMigrations(ctx, migrations.SQLite()); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return s, closeFn, nil

	default:
		db, err := storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		if cfg.SkipEmbeddedMigrations {
			logger.Info("embedded migrations skipped by config")
		} else if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return db, db.Close, nil
	}
}

// documentSourceAdapter wraps a public DocumentSource to satisfy
// tasks.DocumentSource.
type documentSourceAdapter struct {
	src DocumentSource
}

func (a *documentSourceAdapter) FetchDocuments(ctx context.Context, kind model.DocumentKind, taskID int64) []model.Document {
	docs := a.src.FetchDocuments(ctx, DocumentKind(kind), taskID)
	out := make([]model.Document, len(docs))
	for i, d := range docs {
		out[i] = model.Document{
			DocumentID: d.ID,
			Metadata:   d.Metadata,
			Content:    d.Content,
		}
	}
	return out
}

// eventHookAdapter wraps a public EventHook to satisfy tasks.Hook.
type eventHookAdapter struct {
	hook EventHook
}

func (a *eventHookAdapter) OnTaskEnqueued(ctx context.Context, ev model.TaskEvent) error {
	return a.hook.OnTaskEnqueued(ctx, toPublicEvent(ev))
}

func (a *eventHookAdapter) OnTaskClaimed(ctx context.Context, ev model.TaskEvent) error {
	return a.hook.OnTaskClaimed(ctx, toPublicEvent(ev))
}

func (a *eventHookAdapter) OnTaskFinished(ctx context.Context, ev model.TaskEvent) error {
	return a.hook.OnTaskFinished(ctx, toPublicEvent(ev))
}

func toPublicEvent(ev model.TaskEvent) TaskEvent {
	return TaskEvent{
		TaskID:   ev.TaskID,
		TaskType: ev.TaskType,
		Revision: ev.Revision,
		AgentID:  ev.AgentID,
		Status:   string(ev.Status),
		At:       ev.At,
	}
}

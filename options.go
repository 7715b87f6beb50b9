package taskqueue

import (
	"log/slog"

	"github.com/ashita-ai/taskqueue/internal/config"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
type resolvedOptions struct {
	port            *int
	store           string
	databaseURL     string
	sqlitePath      string
	seedTaskTypes   []string
	logger          *slog.Logger
	version         string
	documentSource  DocumentSource
	eventHooks      []EventHook
	routeRegistrars []RouteRegistrar
	middlewares     []Middleware
}

// apply overrides the loaded configuration with explicit options.
func (o resolvedOptions) apply(cfg *config.Config) {
	if o.port != nil {
		cfg.Port = *o.port
	}
	if o.store != "" {
		cfg.Store = o.store
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.sqlitePath != "" {
		cfg.SQLitePath = o.sqlitePath
	}
	cfg.SeedTaskTypes = append(cfg.SeedTaskTypes, o.seedTaskTypes...)
}

// WithPort overrides the TCP port from config (TASKQUEUE_PORT env var).
// Port 0 picks a free port.
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = &port }
}

// WithDatabaseURL selects the PostgreSQL store at url, overriding
// DATABASE_URL and TASKQUEUE_STORE.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) {
		o.store = config.StorePostgres
		o.databaseURL = url
	}
}

// WithSQLitePath selects the SQLite store at path (a file path or file: URI).
func WithSQLitePath(path string) Option {
	return func(o *resolvedOptions) {
		o.store = config.StoreSQLite
		o.sqlitePath = path
	}
}

// WithTaskTypes adds task types that are created at startup if missing.
func WithTaskTypes(names ...string) Option {
	return func(o *resolvedOptions) { o.seedTaskTypes = append(o.seedTaskTypes, names...) }
}

// WithLogger sets the structured logger for the App. If not set, a logger
// is built from TASKQUEUE_LOG_LEVEL and TASKQUEUE_LOG_FORMAT.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithDocumentSource replaces the HTTP document service client used by
// dataset discovery.
func WithDocumentSource(src DocumentSource) Option {
	return func(o *resolvedOptions) { o.documentSource = src }
}

// WithEventHook registers a hook that receives every task lifecycle event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Registrars are called in registration order after the built-in routes.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an outermost HTTP middleware. The first
// registered middleware is called first by every request.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

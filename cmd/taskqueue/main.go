// Command taskqueue runs the task queue coordinator.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/taskqueue"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env before reading the log settings (non-fatal; production won't have one).
	_ = godotenv.Load()

	logger, err := taskqueue.NewLogger(os.Getenv("TASKQUEUE_LOG_LEVEL"), os.Getenv("TASKQUEUE_LOG_FORMAT"))
	if err != nil {
		slog.Error("invalid log settings", "error", err)
		return 1
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := taskqueue.New(ctx,
		taskqueue.WithVersion(version),
		taskqueue.WithLogger(logger),
	)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	if err := app.Run(ctx); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

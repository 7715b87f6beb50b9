// Command verify-checksums recomputes the parameter checksum and revision
// of every stored task and reports rows whose stored values differ from
// what the current algorithm produces.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./scripts/verify-checksums
//	TASKQUEUE_STORE=sqlite TASKQUEUE_SQLITE_PATH=taskqueue.db go run ./scripts/verify-checksums
//
// The script is read-only. Stored checksums are immutable once written, so
// drift is reported for investigation and never rewritten. It exits 1 when
// any row drifted.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/taskqueue/internal/checksum"
	"github.com/ashita-ai/taskqueue/internal/config"
	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/storage"
	"github.com/ashita-ai/taskqueue/internal/storage/sqlite"
)

type taskLister interface {
	ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error)
}

func main() {
	drifted, err := run()
	if err != nil {
		log.Fatal(err)
	}
	if drifted > 0 {
		os.Exit(1)
	}
}

func run() (int, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return 0, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var lister taskLister
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := sqlite.New(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return 0, fmt.Errorf("connect: %w", err)
		}
		defer func() { _ = s.Close() }()
		lister = s
	default:
		db, err := storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return 0, fmt.Errorf("connect: %w", err)
		}
		defer db.Close()
		lister = db
	}

	all, err := lister.ListTasks(ctx, model.TaskFilter{})
	if err != nil {
		return 0, fmt.Errorf("list tasks: %w", err)
	}

	drifted := 0
	for _, t := range all {
		if d := check(t); d != "" {
			drifted++
			fmt.Printf("task %d: %s\n", t.ID, d)
		}
	}
	fmt.Printf("scanned %d tasks, %d drifted\n", len(all), drifted)
	return drifted, nil
}

// check returns a description of the drift in t, or "" when its stored
// checksum and revision match a recomputation.
func check(t model.Task) string {
	want := checksum.FromQuery(t.Query)
	if t.ParameterChecksum != want {
		return fmt.Sprintf("parameter_checksum %s, recomputed %s", t.ParameterChecksum, want)
	}
	if rev := checksum.Revision(t.CreatedAt, want); t.Revision != rev {
		return fmt.Sprintf("revision %s, recomputed %s", t.Revision, rev)
	}
	return ""
}

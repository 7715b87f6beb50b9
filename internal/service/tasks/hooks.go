package tasks

import (
	"context"
	"time"

	"github.com/ashita-ai/taskqueue/internal/model"
)

const hookTimeout = 10 * time.Second

// Hook receives task lifecycle events. Methods are called in a goroutine
// after the transition is stored; failures are logged and never fail the
// originating request.
type Hook interface {
	OnTaskEnqueued(ctx context.Context, ev model.TaskEvent) error
	OnTaskClaimed(ctx context.Context, ev model.TaskEvent) error
	OnTaskFinished(ctx context.Context, ev model.TaskEvent) error
}

// notify fans ev out to every hook. The hooks share one detached context so
// a finished request does not cancel them.
func (s *Service) notify(ev model.TaskEvent) {
	if len(s.hooks) == 0 {
		return
	}
	hooks := s.hooks
	logger := s.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		for _, h := range hooks {
			var err error
			switch ev.Status {
			case model.TaskStatusUnclaimed:
				err = h.OnTaskEnqueued(ctx, ev)
			case model.TaskStatusClaimed:
				err = h.OnTaskClaimed(ctx, ev)
			default:
				err = h.OnTaskFinished(ctx, ev)
			}
			if err != nil {
				logger.Warn("task event hook failed", "task_id", ev.TaskID, "status", ev.Status, "error", err)
			}
		}
	}()
}

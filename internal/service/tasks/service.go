// Package tasks provides the queue coordinator and the query side of the
// task queue.
//
// Both the HTTP API and the MCP server delegate to this service, so input
// validation, reference resolution and error classification are identical
// across interfaces. Every state transition is a single store statement;
// the service itself holds no mutable state.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/taskqueue/internal/checksum"
	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/storage"
	"github.com/ashita-ai/taskqueue/internal/telemetry"
)

// Store is the persistence the service needs. Implemented by
// storage.DB (PostgreSQL) and sqlite.Store. Implementations return
// storage.ErrNotFound for missing rows and for a claim that finds no work.
type Store interface {
	ListTaskTypes(ctx context.Context) ([]model.TaskType, error)
	ListTaskStatuses(ctx context.Context) ([]model.TaskStatusRow, error)
	InsertTask(ctx context.Context, nt model.NewTask) (model.Task, error)
	ClaimTask(ctx context.Context, p model.ClaimParams) (model.Task, error)
	CompleteTask(ctx context.Context, p model.CompleteParams) (model.Task, error)
	UpdateTaskMetrics(ctx context.Context, id int64, metrics model.Metrics) error
	ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error)
}

// DocumentSource retrieves the documents a task produced. Failures degrade
// to placeholder content inside the returned documents and never error.
type DocumentSource interface {
	FetchDocuments(ctx context.Context, kind model.DocumentKind, taskID int64) []model.Document
}

// Service implements every queue operation.
type Service struct {
	store    Store
	statuses *model.StatusRegistry
	docs     DocumentSource
	hooks    []Hook
	logger   *slog.Logger
	now      func() time.Time

	tracer      trace.Tracer
	enqueued    metric.Int64Counter
	claimed     metric.Int64Counter
	claimMisses metric.Int64Counter
	finished    metric.Int64Counter
}

// LoadStatusRegistry reads the status table once. A registry missing any of
// the fixed statuses is returned as-is; operations that need the missing
// status fail with model.ErrConfig.
func LoadStatusRegistry(ctx context.Context, store Store, logger *slog.Logger) (*model.StatusRegistry, error) {
	rows, err := store.ListTaskStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("tasks: load statuses: %w", err)
	}
	reg := model.NewStatusRegistry(rows)
	if !reg.Complete() {
		logger.Warn("tasks: task_status table is missing statuses", "rows", len(rows))
	}
	return reg, nil
}

// New creates a Service. docs may be nil, in which case discovery returns
// tasks without documents. hooks receive every lifecycle transition.
func New(store Store, statuses *model.StatusRegistry, docs DocumentSource, logger *slog.Logger, hooks ...Hook) *Service {
	meter := telemetry.Meter("taskqueue/tasks")
	enqueued, _ := meter.Int64Counter("taskqueue.tasks.enqueued",
		metric.WithDescription("Tasks added to the queue"),
	)
	claimed, _ := meter.Int64Counter("taskqueue.tasks.claimed",
		metric.WithDescription("Tasks handed to an agent"),
	)
	misses, _ := meter.Int64Counter("taskqueue.tasks.claim_misses",
		metric.WithDescription("Claims that found no unclaimed task"),
	)
	finished, _ := meter.Int64Counter("taskqueue.tasks.finished",
		metric.WithDescription("Terminal transitions by outcome"),
	)
	return &Service{
		store:       store,
		statuses:    statuses,
		docs:        docs,
		hooks:       hooks,
		logger:      logger,
		now:         time.Now,
		tracer:      telemetry.Tracer("taskqueue/tasks"),
		enqueued:    enqueued,
		claimed:     claimed,
		claimMisses: misses,
		finished:    finished,
	}
}

// Statuses returns the registry loaded at startup.
func (s *Service) Statuses() *model.StatusRegistry {
	return s.statuses
}

// Enqueue validates and stores a new unclaimed task. Identical queries are
// not deduplicated; each call creates a task.
func (s *Service) Enqueue(ctx context.Context, req model.EnqueueRequest) (model.Task, error) {
	ctx, span := s.tracer.Start(ctx, "tasks.Enqueue",
		trace.WithAttributes(attribute.String("taskqueue.task_type", req.TaskType)))
	defer span.End()

	if err := req.Validate(); err != nil {
		return model.Task{}, err
	}
	typ, err := s.resolveType(ctx, req.TaskType)
	if err != nil {
		return model.Task{}, err
	}
	unclaimed, err := s.statuses.MustID(model.TaskStatusUnclaimed)
	if err != nil {
		return model.Task{}, err
	}

	now := s.now().UTC()
	sum := checksum.FromQuery(req.Query)
	task, err := s.store.InsertTask(ctx, model.NewTask{
		TaskTypeID:        typ.ID,
		TaskStatusID:      unclaimed,
		Query:             req.Query,
		RequestedByUser:   req.RequestedByUser,
		Notes:             req.Notes,
		ParameterChecksum: sum,
		Revision:          checksum.Revision(now, sum),
		CreatedAt:         now,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return model.Task{}, fmt.Errorf("tasks: enqueue: %w", err)
	}

	span.SetAttributes(attribute.Int64("taskqueue.task_id", task.ID))
	s.enqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", typ.Name)))
	s.logger.Info("task enqueued", "task_id", task.ID, "task_type", typ.Name, "revision", task.Revision)
	s.notify(model.TaskEvent{
		TaskID: task.ID, TaskType: typ.Name, Revision: task.Revision,
		Status: model.TaskStatusUnclaimed, At: now,
	})
	return task, nil
}

// Claim hands the lowest-id unclaimed task of taskType to agentID.
// Concurrent claims never receive the same task.
func (s *Service) Claim(ctx context.Context, taskType, agentID string) (model.Task, error) {
	ctx, span := s.tracer.Start(ctx, "tasks.Claim", trace.WithAttributes(
		attribute.String("taskqueue.task_type", taskType),
		attribute.String("taskqueue.agent_id", agentID),
	))
	defer span.End()

	if agentID == "" {
		return model.Task{}, fmt.Errorf("%w: agent_id is required", model.ErrInvalidInput)
	}
	if len(agentID) > model.MaxAgentIDLen {
		return model.Task{}, fmt.Errorf("%w: agent_id exceeds maximum length of %d characters", model.ErrInvalidInput, model.MaxAgentIDLen)
	}
	typ, err := s.resolveType(ctx, taskType)
	if err != nil {
		return model.Task{}, err
	}
	unclaimed, err := s.statuses.MustID(model.TaskStatusUnclaimed)
	if err != nil {
		return model.Task{}, err
	}
	claimed, err := s.statuses.MustID(model.TaskStatusClaimed)
	if err != nil {
		return model.Task{}, err
	}

	claimedAt := s.now().UTC()
	task, err := s.store.ClaimTask(ctx, model.ClaimParams{
		TaskTypeID:      typ.ID,
		UnclaimedStatus: unclaimed,
		ClaimedStatus:   claimed,
		AgentID:         agentID,
		ClaimedAt:       claimedAt,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.claimMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", typ.Name)))
			return model.Task{}, fmt.Errorf("%w: task type %q", model.ErrNoWorkAvailable, typ.Name)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return model.Task{}, fmt.Errorf("tasks: claim: %w", err)
	}

	span.SetAttributes(attribute.Int64("taskqueue.task_id", task.ID))
	s.claimed.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", typ.Name)))
	s.logger.Info("task claimed", "task_id", task.ID, "task_type", typ.Name, "agent_id", agentID)
	s.notify(model.TaskEvent{
		TaskID: task.ID, TaskType: typ.Name, Revision: task.Revision,
		AgentID: agentID, Status: model.TaskStatusClaimed, At: claimedAt,
	})
	return task, nil
}

// Complete records the outcome of a task. Input is validated before the
// task is looked up, and no prior status is required: completing an
// already-terminal task overwrites its outcome.
func (s *Service) Complete(ctx context.Context, req model.CompleteRequest) (model.Task, error) {
	ctx, span := s.tracer.Start(ctx, "tasks.Complete", trace.WithAttributes(
		attribute.Int64("taskqueue.task_id", req.TaskID),
		attribute.Bool("taskqueue.success", req.Success),
	))
	defer span.End()

	if err := req.Validate(); err != nil {
		return model.Task{}, err
	}
	target := model.TaskStatusFailed
	if req.Success {
		target = model.TaskStatusCompleted
	}
	statusID, err := s.statuses.MustID(target)
	if err != nil {
		return model.Task{}, err
	}

	transitionAt := s.now().UTC()
	task, err := s.store.CompleteTask(ctx, model.CompleteParams{
		TaskID:       req.TaskID,
		StatusID:     statusID,
		Success:      req.Success,
		ResultKey:    req.ObjectStorageKeyForResults,
		Message:      req.Message,
		TransitionAt: transitionAt,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Task{}, fmt.Errorf("%w: task %d", model.ErrNotFound, req.TaskID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete failed")
		return model.Task{}, fmt.Errorf("tasks: complete: %w", err)
	}

	s.finished.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(target))))
	s.logger.Info("task finished", "task_id", task.ID, "outcome", target)
	s.notify(model.TaskEvent{
		TaskID: task.ID, TaskType: s.typeName(ctx, task.TaskTypeID), Revision: task.Revision,
		Status: target, At: transitionAt,
	})
	return task, nil
}

// UpdateProgress replaces the progress metrics of a task.
func (s *Service) UpdateProgress(ctx context.Context, taskID int64, metrics model.Metrics) error {
	ctx, span := s.tracer.Start(ctx, "tasks.UpdateProgress",
		trace.WithAttributes(attribute.Int64("taskqueue.task_id", taskID)))
	defer span.End()

	if err := s.store.UpdateTaskMetrics(ctx, taskID, metrics); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: task %d", model.ErrNotFound, taskID)
		}
		span.RecordError(err)
		return fmt.Errorf("tasks: update progress: %w", err)
	}
	return nil
}

// typeName maps a task type id back to its name for event payloads. It
// returns "" when the types cannot be read.
func (s *Service) typeName(ctx context.Context, id int) string {
	if len(s.hooks) == 0 {
		return ""
	}
	types, err := s.store.ListTaskTypes(ctx)
	if err != nil {
		return ""
	}
	for _, t := range types {
		if t.ID == id {
			return t.Name
		}
	}
	return ""
}

// resolveType finds a task type by name. Types are re-read on every call
// so administratively added types are visible without a restart.
func (s *Service) resolveType(ctx context.Context, name string) (model.TaskType, error) {
	types, err := s.store.ListTaskTypes(ctx)
	if err != nil {
		return model.TaskType{}, fmt.Errorf("tasks: list task types: %w", err)
	}
	for _, t := range types {
		if t.Name == name {
			return t, nil
		}
	}
	return model.TaskType{}, fmt.Errorf("%w: %q", model.ErrUnknownType, name)
}

package tasks

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/taskqueue/internal/checksum"
	"github.com/ashita-ai/taskqueue/internal/model"
)

// ListFilter selects tasks by name rather than surrogate id.
// Nil fields are unconstrained.
type ListFilter struct {
	TaskType   *string
	TaskStatus *string
	TaskID     *int64
}

// List returns the tasks matching every set field of f, ordered by id.
func (s *Service) List(ctx context.Context, f ListFilter) ([]model.TaskSummary, error) {
	ctx, span := s.tracer.Start(ctx, "tasks.List")
	defer span.End()

	types, err := s.store.ListTaskTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("tasks: list task types: %w", err)
	}

	var tf model.TaskFilter
	if f.TaskType != nil {
		id, ok := typeID(types, *f.TaskType)
		if !ok {
			return nil, fmt.Errorf("%w: %q", model.ErrUnknownType, *f.TaskType)
		}
		tf.TaskTypeID = &id
	}
	if f.TaskStatus != nil {
		id, ok := s.statuses.ID(model.TaskStatus(*f.TaskStatus))
		if !ok {
			return nil, fmt.Errorf("%w: %q", model.ErrUnknownStatus, *f.TaskStatus)
		}
		tf.TaskStatusID = &id
	}
	tf.ID = f.TaskID

	rows, err := s.store.ListTasks(ctx, tf)
	if err != nil {
		return nil, fmt.Errorf("tasks: list: %w", err)
	}
	span.SetAttributes(attribute.Int("taskqueue.result_count", len(rows)))
	return s.summarize(types, rows), nil
}

// Status is List for callers that address one task: a task id that matches
// nothing is reported as not found instead of an empty result.
func (s *Service) Status(ctx context.Context, f ListFilter) ([]model.TaskSummary, error) {
	out, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if f.TaskID != nil && len(out) == 0 {
		return nil, fmt.Errorf("%w: task %d", model.ErrNotFound, *f.TaskID)
	}
	return out, nil
}

// FindByQuery returns the tasks of taskType whose parameter checksum equals
// that of query, so a submitter can tell whether the same request was
// already made.
func (s *Service) FindByQuery(ctx context.Context, taskType, query string) ([]model.TaskSummary, error) {
	ctx, span := s.tracer.Start(ctx, "tasks.FindByQuery",
		trace.WithAttributes(attribute.String("taskqueue.task_type", taskType)))
	defer span.End()

	if taskType == "" || query == "" {
		return nil, fmt.Errorf("%w: task_type and query are required", model.ErrInvalidInput)
	}
	types, err := s.store.ListTaskTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("tasks: list task types: %w", err)
	}
	id, ok := typeID(types, taskType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownType, taskType)
	}

	sum := checksum.FromQuery(query)
	span.SetAttributes(attribute.String("taskqueue.parameter_checksum", sum))
	rows, err := s.store.ListTasks(ctx, model.TaskFilter{TaskTypeID: &id, Checksum: &sum})
	if err != nil {
		return nil, fmt.Errorf("tasks: find by query: %w", err)
	}
	return s.summarize(types, rows), nil
}

// Discover returns every task with the given revision together with the
// original and text documents it produced. Document retrieval failures are
// folded into placeholder content.
func (s *Service) Discover(ctx context.Context, revision string) ([]model.Discovery, error) {
	ctx, span := s.tracer.Start(ctx, "tasks.Discover",
		trace.WithAttributes(attribute.String("taskqueue.revision", revision)))
	defer span.End()

	if revision == "" {
		return nil, fmt.Errorf("%w: revision is required", model.ErrInvalidInput)
	}
	types, err := s.store.ListTaskTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("tasks: list task types: %w", err)
	}
	rows, err := s.store.ListTasks(ctx, model.TaskFilter{Revision: &revision})
	if err != nil {
		return nil, fmt.Errorf("tasks: discover: %w", err)
	}

	out := make([]model.Discovery, 0, len(rows))
	for _, sum := range s.summarize(types, rows) {
		d := model.Discovery{
			Task:            sum,
			OriginalContent: []model.Document{},
			TextContent:     []model.Document{},
		}
		if s.docs != nil {
			if docs := s.docs.FetchDocuments(ctx, model.DocumentKindOriginal, sum.ID); docs != nil {
				d.OriginalContent = docs
			}
			if docs := s.docs.FetchDocuments(ctx, model.DocumentKindText, sum.ID); docs != nil {
				d.TextContent = docs
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func typeID(types []model.TaskType, name string) (int, bool) {
	for _, t := range types {
		if t.Name == name {
			return t.ID, true
		}
	}
	return 0, false
}

func (s *Service) summarize(types []model.TaskType, rows []model.Task) []model.TaskSummary {
	names := make(map[int]string, len(types))
	for _, t := range types {
		names[t.ID] = t.Name
	}
	out := make([]model.TaskSummary, 0, len(rows))
	for _, t := range rows {
		status, _ := s.statuses.Status(t.TaskStatusID)
		out = append(out, model.TaskSummary{
			Task:       t,
			TaskType:   names[t.TaskTypeID],
			TaskStatus: status,
		})
	}
	return out
}

// TaskTypes returns every registered task type ordered by id.
func (s *Service) TaskTypes(ctx context.Context) ([]model.TaskType, error) {
	types, err := s.store.ListTaskTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("tasks: list task types: %w", err)
	}
	return types, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/storage"
)

const taskColumns = `id, task_type_id, task_status_id, query, requested_by_user, notes,
	parameter_checksum, revision, claimed_by_agent, claimed_time, completed_time, failed_time,
	object_storage_key_for_results, message, job_progress_metrics, created_at`

type scanner interface {
	Scan(dest ...any) error
}

// Timestamps are stored as RFC 3339 text in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse timestamp %q: %w", ns.String, err)
	}
	return &t, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func scanTask(row scanner) (model.Task, error) {
	var (
		t                                model.Task
		notes, agent, resultKey, message sql.NullString
		claimedAt, completedAt, failedAt sql.NullString
		metrics, createdAt               string
	)
	if err := row.Scan(
		&t.ID, &t.TaskTypeID, &t.TaskStatusID, &t.Query, &t.RequestedByUser, &notes,
		&t.ParameterChecksum, &t.Revision, &agent, &claimedAt, &completedAt, &failedAt,
		&resultKey, &message, &metrics, &createdAt,
	); err != nil {
		return model.Task{}, err
	}
	t.Notes = nullString(notes)
	t.ClaimedByAgent = nullString(agent)
	t.ObjectStorageKeyForResults = nullString(resultKey)
	t.Message = nullString(message)

	var err error
	if t.ClaimedTime, err = parseTime(claimedAt); err != nil {
		return model.Task{}, err
	}
	if t.CompletedTime, err = parseTime(completedAt); err != nil {
		return model.Task{}, err
	}
	if t.FailedTime, err = parseTime(failedAt); err != nil {
		return model.Task{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Task{}, fmt.Errorf("sqlite: parse created_at %q: %w", createdAt, err)
	}
	t.CreatedAt = created

	t.JobProgressMetrics = model.Metrics{}
	if err := json.Unmarshal([]byte(metrics), &t.JobProgressMetrics); err != nil {
		return model.Task{}, fmt.Errorf("sqlite: decode metrics of task %d: %w", t.ID, err)
	}
	return t, nil
}

// InsertTask persists a new unclaimed task and returns it with its assigned id.
func (s *Store) InsertTask(ctx context.Context, nt model.NewTask) (model.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`INSERT INTO task_queue (task_type_id, task_status_id, query, requested_by_user, notes,
		                         parameter_checksum, revision, job_progress_metrics, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '{}', ?)
		 RETURNING `+taskColumns,
		nt.TaskTypeID, nt.TaskStatusID, nt.Query, nt.RequestedByUser, nt.Notes,
		nt.ParameterChecksum, nt.Revision, formatTime(nt.CreatedAt),
	))
	if err != nil {
		return model.Task{}, fmt.Errorf("sqlite: insert task: %w", err)
	}
	return t, nil
}

// ClaimTask moves the lowest-id unclaimed task of a type to claimed in a
// single statement. Returns storage.ErrNotFound when none is left.
func (s *Store) ClaimTask(ctx context.Context, p model.ClaimParams) (model.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`UPDATE task_queue
		 SET task_status_id = ?1, claimed_by_agent = ?2, claimed_time = ?3
		 WHERE task_status_id = ?5 AND id = (
		     SELECT id FROM task_queue
		     WHERE task_type_id = ?4 AND task_status_id = ?5
		     ORDER BY id
		     LIMIT 1
		 )
		 RETURNING `+taskColumns,
		p.ClaimedStatus, p.AgentID, formatTime(p.ClaimedAt), p.TaskTypeID, p.UnclaimedStatus,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, storage.ErrNotFound
		}
		return model.Task{}, fmt.Errorf("sqlite: claim task: %w", err)
	}
	return t, nil
}

// CompleteTask records a terminal outcome, leaving exactly one terminal
// timestamp set.
func (s *Store) CompleteTask(ctx context.Context, p model.CompleteParams) (model.Task, error) {
	at := formatTime(p.TransitionAt)
	var completedAt, failedAt sql.NullString
	if p.Success {
		completedAt = sql.NullString{String: at, Valid: true}
	} else {
		failedAt = sql.NullString{String: at, Valid: true}
	}

	t, err := scanTask(s.db.QueryRowContext(ctx,
		`UPDATE task_queue SET
		     task_status_id = ?,
		     message = ?,
		     claimed_time = COALESCE(claimed_time, ?),
		     completed_time = ?,
		     failed_time = ?,
		     object_storage_key_for_results = CASE WHEN ? THEN ? ELSE object_storage_key_for_results END
		 WHERE id = ?
		 RETURNING `+taskColumns,
		p.StatusID, p.Message, at, completedAt, failedAt, p.Success, p.ResultKey, p.TaskID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, storage.ErrNotFound
		}
		return model.Task{}, fmt.Errorf("sqlite: complete task: %w", err)
	}
	return t, nil
}

// UpdateTaskMetrics replaces the progress metrics of a task wholesale.
func (s *Store) UpdateTaskMetrics(ctx context.Context, id int64, metrics model.Metrics) error {
	if metrics == nil {
		metrics = model.Metrics{}
	}
	raw, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("sqlite: encode metrics: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_queue SET job_progress_metrics = ? WHERE id = ?`, string(raw), id)
	if err != nil {
		return fmt.Errorf("sqlite: update task metrics: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update task metrics: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (model.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM task_queue WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, storage.ErrNotFound
		}
		return model.Task{}, fmt.Errorf("sqlite: get task: %w", err)
	}
	return t, nil
}

// ListTasks returns the tasks matching every set field of f, ordered by id.
func (s *Store) ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	var (
		conds []string
		args  []any
	)
	add := func(col string, v any) {
		conds = append(conds, col+" = ?")
		args = append(args, v)
	}
	if f.TaskTypeID != nil {
		add("task_type_id", *f.TaskTypeID)
	}
	if f.TaskStatusID != nil {
		add("task_status_id", *f.TaskStatusID)
	}
	if f.ID != nil {
		add("id", *f.ID)
	}
	if f.Checksum != nil {
		add("parameter_checksum", *f.Checksum)
	}
	if f.Revision != nil {
		add("revision", *f.Revision)
	}
	query := `SELECT ` + taskColumns + ` FROM task_queue`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountTasks returns the number of tasks per type and status.
func (s *Store) CountTasks(ctx context.Context) ([]model.TaskCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tt.name, ts.name, COUNT(*)
		 FROM task_queue q
		 JOIN task_type tt ON tt.id = q.task_type_id
		 JOIN task_status ts ON ts.id = q.task_status_id
		 GROUP BY tt.name, ts.name
		 ORDER BY tt.name, ts.name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: count tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []model.TaskCount
	for rows.Next() {
		var c model.TaskCount
		if err := rows.Scan(&c.TaskType, &c.TaskStatus, &c.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scan task count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

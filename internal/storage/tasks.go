package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/taskqueue/internal/model"
)

const taskColumns = `id, task_type_id, task_status_id, query, requested_by_user, notes,
	parameter_checksum, revision, claimed_by_agent, claimed_time, completed_time, failed_time,
	object_storage_key_for_results, message, job_progress_metrics, created_at`

func scanTask(row pgx.Row) (model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID, &t.TaskTypeID, &t.TaskStatusID, &t.Query, &t.RequestedByUser, &t.Notes,
		&t.ParameterChecksum, &t.Revision, &t.ClaimedByAgent, &t.ClaimedTime, &t.CompletedTime, &t.FailedTime,
		&t.ObjectStorageKeyForResults, &t.Message, &t.JobProgressMetrics, &t.CreatedAt,
	)
	if t.JobProgressMetrics == nil {
		t.JobProgressMetrics = model.Metrics{}
	}
	return t, err
}

// InsertTask persists a new unclaimed task and returns it with its assigned id.
func (db *DB) InsertTask(ctx context.Context, nt model.NewTask) (model.Task, error) {
	t, err := scanTask(db.pool.QueryRow(ctx,
		`INSERT INTO task_queue (task_type_id, task_status_id, query, requested_by_user, notes,
		                         parameter_checksum, revision, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+taskColumns,
		nt.TaskTypeID, nt.TaskStatusID, nt.Query, nt.RequestedByUser, nt.Notes,
		nt.ParameterChecksum, nt.Revision, nt.CreatedAt,
	))
	if err != nil {
		return model.Task{}, fmt.Errorf("storage: insert task: %w", err)
	}
	return t, nil
}

// ClaimTask atomically moves the lowest-id unclaimed task of a type to
// claimed and returns it. Rows locked by a concurrent claim are skipped, so
// two callers never receive the same task. Returns ErrNotFound when no
// unclaimed task of the type remains.
func (db *DB) ClaimTask(ctx context.Context, p model.ClaimParams) (model.Task, error) {
	var t model.Task
	err := WithRetry(ctx, DefaultMaxRetries, DefaultRetryDelay, func() error {
		var err error
		t, err = scanTask(db.pool.QueryRow(ctx,
			`UPDATE task_queue
			 SET task_status_id = $1, claimed_by_agent = $2, claimed_time = $3
			 WHERE task_status_id = $5 AND id = (
			     SELECT id FROM task_queue
			     WHERE task_type_id = $4 AND task_status_id = $5
			     ORDER BY id
			     LIMIT 1
			     FOR UPDATE SKIP LOCKED
			 )
			 RETURNING `+taskColumns,
			p.ClaimedStatus, p.AgentID, p.ClaimedAt, p.TaskTypeID, p.UnclaimedStatus,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("storage: claim task: %w", err)
	}
	return t, nil
}

// CompleteTask records a terminal outcome. Exactly one of completed_time and
// failed_time is left set; claimed_time is stamped if the task was never
// claimed. The message is always overwritten.
func (db *DB) CompleteTask(ctx context.Context, p model.CompleteParams) (model.Task, error) {
	t, err := scanTask(db.pool.QueryRow(ctx,
		`UPDATE task_queue SET
		     task_status_id = $2,
		     message = $3,
		     claimed_time = COALESCE(claimed_time, $4::timestamptz),
		     completed_time = CASE WHEN $5::boolean THEN $4::timestamptz ELSE NULL END,
		     failed_time = CASE WHEN $5::boolean THEN NULL ELSE $4::timestamptz END,
		     object_storage_key_for_results = CASE WHEN $5::boolean THEN $6::text ELSE object_storage_key_for_results END
		 WHERE id = $1
		 RETURNING `+taskColumns,
		p.TaskID, p.StatusID, p.Message, p.TransitionAt, p.Success, p.ResultKey,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("storage: complete task: %w", err)
	}
	return t, nil
}

// UpdateTaskMetrics replaces the progress metrics of a task wholesale.
func (db *DB) UpdateTaskMetrics(ctx context.Context, id int64, metrics model.Metrics) error {
	if metrics == nil {
		metrics = model.Metrics{}
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE task_queue SET job_progress_metrics = $1 WHERE id = $2`, metrics, id)
	if err != nil {
		return fmt.Errorf("storage: update task metrics: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask retrieves a task by id.
func (db *DB) GetTask(ctx context.Context, id int64) (model.Task, error) {
	t, err := scanTask(db.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM task_queue WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("storage: get task: %w", err)
	}
	return t, nil
}

// ListTasks returns the tasks matching every set field of f, ordered by id.
func (db *DB) ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	where, args := buildTaskWhere(f)
	rows, err := db.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM task_queue`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// buildTaskWhere renders f as a WHERE clause with positional parameters.
func buildTaskWhere(f model.TaskFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
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
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// CountTasks returns the number of tasks per type and status.
func (db *DB) CountTasks(ctx context.Context) ([]model.TaskCount, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT tt.name, ts.name, COUNT(*)
		 FROM task_queue q
		 JOIN task_type tt ON tt.id = q.task_type_id
		 JOIN task_status ts ON ts.id = q.task_status_id
		 GROUP BY tt.name, ts.name
		 ORDER BY tt.name, ts.name`)
	if err != nil {
		return nil, fmt.Errorf("storage: count tasks: %w", err)
	}
	defer rows.Close()

	var counts []model.TaskCount
	for rows.Next() {
		var c model.TaskCount
		if err := rows.Scan(&c.TaskType, &c.TaskStatus, &c.Count); err != nil {
			return nil, fmt.Errorf("storage: scan task count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

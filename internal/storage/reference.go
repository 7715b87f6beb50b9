package storage

import (
	"context"
	"fmt"

	"github.com/ashita-ai/taskqueue/internal/model"
)

// ListTaskTypes returns every task type ordered by id.
func (db *DB) ListTaskTypes(ctx context.Context) ([]model.TaskType, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, name FROM task_type ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list task types: %w", err)
	}
	defer rows.Close()

	var types []model.TaskType
	for rows.Next() {
		var t model.TaskType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("storage: scan task type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// ListTaskStatuses returns every row of the task_status table ordered by id.
func (db *DB) ListTaskStatuses(ctx context.Context) ([]model.TaskStatusRow, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, name FROM task_status ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list task statuses: %w", err)
	}
	defer rows.Close()

	var statuses []model.TaskStatusRow
	for rows.Next() {
		var s model.TaskStatusRow
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("storage: scan task status: %w", err)
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

// EnsureTaskType inserts a task type if it does not exist and returns it.
// Used for administrative seeding only.
func (db *DB) EnsureTaskType(ctx context.Context, name string) (model.TaskType, error) {
	var t model.TaskType
	err := db.pool.QueryRow(ctx,
		`INSERT INTO task_type (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name`, name,
	).Scan(&t.ID, &t.Name)
	if err != nil {
		return model.TaskType{}, fmt.Errorf("storage: ensure task type %q: %w", name, err)
	}
	return t, nil
}

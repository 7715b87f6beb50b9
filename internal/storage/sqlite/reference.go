package sqlite

import (
	"context"
	"fmt"

	"github.com/ashita-ai/taskqueue/internal/model"
)

// ListTaskTypes returns every task type ordered by id.
func (s *Store) ListTaskTypes(ctx context.Context) ([]model.TaskType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM task_type ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list task types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var types []model.TaskType
	for rows.Next() {
		var t model.TaskType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scan task type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// ListTaskStatuses returns every row of the task_status table ordered by id.
func (s *Store) ListTaskStatuses(ctx context.Context) ([]model.TaskStatusRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM task_status ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list task statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var statuses []model.TaskStatusRow
	for rows.Next() {
		var st model.TaskStatusRow
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scan task status: %w", err)
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// EnsureTaskType inserts a task type if it does not exist and returns it.
func (s *Store) EnsureTaskType(ctx context.Context, name string) (model.TaskType, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_type (name) VALUES (?)`, name); err != nil {
		return model.TaskType{}, fmt.Errorf("sqlite: ensure task type %q: %w", name, err)
	}
	var t model.TaskType
	if err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM task_type WHERE name = ?`, name).Scan(&t.ID, &t.Name); err != nil {
		return model.TaskType{}, fmt.Errorf("sqlite: ensure task type %q: %w", name, err)
	}
	return t, nil
}

package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kestrelsched/kestrel/internal/model"
	"github.com/kestrelsched/kestrel/internal/store"
)

const taskColumns = `task_id, title, COALESCE(descr, ''), command, trigger_type, trigger_args`

func scanTask(row interface{ Scan(...any) error }) (model.Task, error) {
	var t model.Task
	var args string
	if err := row.Scan(&t.TaskID, &t.Title, &t.Descr, &t.Command, &t.TriggerType, &args); err != nil {
		return model.Task{}, err
	}
	t.TriggerArgs = json.RawMessage(args)
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM task ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

func (s *Store) GetTask(ctx context.Context, taskID int64) (model.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM task WHERE task_id = $1`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, store.ErrNotFound
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get task %d: %w", taskID, err)
	}
	return t, nil
}

func (s *Store) CreateTask(ctx context.Context, in store.TaskInput) (model.Task, error) {
	if err := store.ValidateTaskInput(in); err != nil {
		return model.Task{}, err
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO task (title, descr, command, trigger_type, trigger_args)
			 VALUES ($1, NULLIF($2, ''), $3, $4, $5)
			 RETURNING task_id`,
			in.Title, in.Descr, in.Command, in.TriggerType, string(in.TriggerArgs),
		).Scan(&id)
	})
	if err != nil {
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}

	return model.Task{
		TaskID:      id,
		Title:       in.Title,
		Descr:       in.Descr,
		Command:     in.Command,
		TriggerType: in.TriggerType,
		TriggerArgs: json.RawMessage(in.TriggerArgs),
	}, nil
}

func (s *Store) UpdateTask(ctx context.Context, taskID int64, in store.TaskInput) (model.Task, error) {
	if err := store.ValidateTaskInput(in); err != nil {
		return model.Task{}, err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE task
			 SET title = $1, descr = NULLIF($2, ''), command = $3, trigger_type = $4, trigger_args = $5
			 WHERE task_id = $6`,
			in.Title, in.Descr, in.Command, in.TriggerType, string(in.TriggerArgs), taskID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.Task{}, store.ErrNotFound
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("update task %d: %w", taskID, err)
	}

	return model.Task{
		TaskID:      taskID,
		Title:       in.Title,
		Descr:       in.Descr,
		Command:     in.Command,
		TriggerType: in.TriggerType,
		TriggerArgs: json.RawMessage(in.TriggerArgs),
	}, nil
}

func (s *Store) DeleteTask(ctx context.Context, taskID int64) error {
	// process_log and output_log rows for this task are left in place:
	// execution history outlives the task that produced it.
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM task WHERE task_id = $1`, taskID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete task %d: %w", taskID, err)
	}
	return nil
}

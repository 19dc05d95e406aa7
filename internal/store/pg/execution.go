package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kestrelsched/kestrel/internal/model"
	"github.com/kestrelsched/kestrel/internal/store"
)

func (s *Store) CreateProcessLog(ctx context.Context, taskID int64, status model.ProcessStatus, start time.Time) (model.ProcessLog, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO process_log (task_id, status, start_date)
			 VALUES ($1, $2, $3)
			 RETURNING process_log_id`,
			taskID, status, start.UTC(),
		).Scan(&id)
	})
	if err != nil {
		return model.ProcessLog{}, fmt.Errorf("create process log: %w", err)
	}
	return model.ProcessLog{
		ProcessLogID: id,
		TaskID:       taskID,
		Status:       status,
		StartDate:    start.UTC(),
	}, nil
}

func (s *Store) UpdateProcessLog(ctx context.Context, log model.ProcessLog) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE process_log
			 SET status = $1, finish_date = $2, return_code = $3
			 WHERE process_log_id = $4`,
			log.Status, log.FinishDate, log.ReturnCode, log.ProcessLogID)
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
		return fmt.Errorf("update process log %d: %w", log.ProcessLogID, err)
	}
	return nil
}

const processLogColumns = `process_log_id, task_id, status, start_date, finish_date, return_code`

func scanProcessLog(row interface{ Scan(...any) error }) (model.ProcessLog, error) {
	var pl model.ProcessLog
	err := row.Scan(&pl.ProcessLogID, &pl.TaskID, &pl.Status, &pl.StartDate, &pl.FinishDate, &pl.ReturnCode)
	return pl, err
}

func (s *Store) ListProcessLogs(ctx context.Context, taskID *int64) ([]model.ProcessLog, error) {
	q := `SELECT ` + processLogColumns + ` FROM process_log`
	var args []any
	if taskID != nil {
		q += ` WHERE task_id = $1`
		args = append(args, *taskID)
	}
	q += ` ORDER BY process_log_id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list process logs: %w", err)
	}
	defer rows.Close()

	var out []model.ProcessLog
	for rows.Next() {
		pl, err := scanProcessLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process log: %w", err)
		}
		out = append(out, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list process logs: %w", err)
	}
	return out, nil
}

func (s *Store) GetProcessLog(ctx context.Context, processLogID int64) (model.ProcessLog, error) {
	pl, err := scanProcessLog(s.db.QueryRowContext(ctx,
		`SELECT `+processLogColumns+` FROM process_log WHERE process_log_id = $1`, processLogID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProcessLog{}, store.ErrNotFound
	}
	if err != nil {
		return model.ProcessLog{}, fmt.Errorf("get process log %d: %w", processLogID, err)
	}
	return pl, nil
}

// AppendOutputLogs inserts the batch in one transaction, preserving slice
// order so per-process insertion order matches observation order.
func (s *Store) AppendOutputLogs(ctx context.Context, lines []model.OutputLog) error {
	if len(lines) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO output_log (process_log_id, message, time, is_error)
			 VALUES ($1, $2, $3, $4)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, l := range lines {
			isError := 0
			if l.IsError {
				isError = 1
			}
			if _, err := stmt.ExecContext(ctx, l.ProcessLogID, l.Message, l.Time.UTC(), isError); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append output logs: %w", err)
	}
	return nil
}

func (s *Store) ListOutputLogs(ctx context.Context, processLogID int64, afterOutputLogID int64) ([]model.OutputLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT output_log_id, process_log_id, message, time, is_error
		 FROM output_log
		 WHERE process_log_id = $1 AND output_log_id > $2
		 ORDER BY output_log_id`,
		processLogID, afterOutputLogID)
	if err != nil {
		return nil, fmt.Errorf("list output logs: %w", err)
	}
	defer rows.Close()

	var out []model.OutputLog
	for rows.Next() {
		var l model.OutputLog
		var isError int
		if err := rows.Scan(&l.OutputLogID, &l.ProcessLogID, &l.Message, &l.Time, &isError); err != nil {
			return nil, fmt.Errorf("scan output log: %w", err)
		}
		l.IsError = isError != 0
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list output logs: %w", err)
	}
	return out, nil
}

// Package store defines the persistence interfaces the scheduler depends
// on. Concrete adapters live in subpackages (pg for Postgres, memstore for
// an in-process fake used by tests).
package store

import (
	"context"
	"time"

	"github.com/kestrelsched/kestrel/internal/model"
)

// TaskInput is the create/update payload for a task.
type TaskInput struct {
	Title       string
	Descr       string
	Command     string
	TriggerType model.TriggerType
	TriggerArgs []byte
}

// TaskStore persists Task definitions.
type TaskStore interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	GetTask(ctx context.Context, taskID int64) (model.Task, error)
	CreateTask(ctx context.Context, in TaskInput) (model.Task, error)
	UpdateTask(ctx context.Context, taskID int64, in TaskInput) (model.Task, error)
	DeleteTask(ctx context.Context, taskID int64) error
}

// ExecutionStore persists ProcessLog and OutputLog records.
type ExecutionStore interface {
	CreateProcessLog(ctx context.Context, taskID int64, status model.ProcessStatus, start time.Time) (model.ProcessLog, error)
	UpdateProcessLog(ctx context.Context, log model.ProcessLog) error
	ListProcessLogs(ctx context.Context, taskID *int64) ([]model.ProcessLog, error)
	GetProcessLog(ctx context.Context, processLogID int64) (model.ProcessLog, error)

	AppendOutputLogs(ctx context.Context, lines []model.OutputLog) error
	ListOutputLogs(ctx context.Context, processLogID int64, afterOutputLogID int64) ([]model.OutputLog, error)
}

// Store is the full persistence surface the manager and HTTP layer depend
// on.
type Store interface {
	TaskStore
	ExecutionStore
}

// Package memstore is an in-process fake of store.Store, used by unit
// tests that exercise the manager and HTTP layers without a real Postgres
// instance.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kestrelsched/kestrel/internal/model"
	"github.com/kestrelsched/kestrel/internal/store"
)

type Store struct {
	mu sync.Mutex

	nextTaskID   int64
	nextLogID    int64
	nextOutputID int64

	tasks       map[int64]model.Task
	processLogs map[int64]model.ProcessLog
	outputLogs  map[int64][]model.OutputLog // keyed by process_log_id
}

func New() *Store {
	return &Store{
		tasks:       make(map[int64]model.Task),
		processLogs: make(map[int64]model.ProcessLog),
		outputLogs:  make(map[int64][]model.OutputLog),
	}
}

func (s *Store) ListTasks(ctx context.Context) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

func (s *Store) GetTask(ctx context.Context, taskID int64) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return model.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) CreateTask(ctx context.Context, in store.TaskInput) (model.Task, error) {
	if err := store.ValidateTaskInput(in); err != nil {
		return model.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTaskID++
	t := model.Task{
		TaskID:      s.nextTaskID,
		Title:       in.Title,
		Descr:       in.Descr,
		Command:     in.Command,
		TriggerType: in.TriggerType,
		TriggerArgs: in.TriggerArgs,
	}
	s.tasks[t.TaskID] = t
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, taskID int64, in store.TaskInput) (model.Task, error) {
	if err := store.ValidateTaskInput(in); err != nil {
		return model.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return model.Task{}, store.ErrNotFound
	}
	t := model.Task{
		TaskID:      taskID,
		Title:       in.Title,
		Descr:       in.Descr,
		Command:     in.Command,
		TriggerType: in.TriggerType,
		TriggerArgs: in.TriggerArgs,
	}
	s.tasks[taskID] = t
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, taskID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return store.ErrNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

func (s *Store) CreateProcessLog(ctx context.Context, taskID int64, status model.ProcessStatus, start time.Time) (model.ProcessLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	pl := model.ProcessLog{
		ProcessLogID: s.nextLogID,
		TaskID:       taskID,
		Status:       status,
		StartDate:    start,
	}
	s.processLogs[pl.ProcessLogID] = pl
	return pl, nil
}

func (s *Store) UpdateProcessLog(ctx context.Context, log model.ProcessLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processLogs[log.ProcessLogID]; !ok {
		return store.ErrNotFound
	}
	s.processLogs[log.ProcessLogID] = log
	return nil
}

func (s *Store) ListProcessLogs(ctx context.Context, taskID *int64) ([]model.ProcessLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ProcessLog, 0, len(s.processLogs))
	for _, pl := range s.processLogs {
		if taskID != nil && pl.TaskID != *taskID {
			continue
		}
		out = append(out, pl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessLogID < out[j].ProcessLogID })
	return out, nil
}

func (s *Store) GetProcessLog(ctx context.Context, processLogID int64) (model.ProcessLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pl, ok := s.processLogs[processLogID]
	if !ok {
		return model.ProcessLog{}, store.ErrNotFound
	}
	return pl, nil
}

func (s *Store) AppendOutputLogs(ctx context.Context, lines []model.OutputLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range lines {
		s.nextOutputID++
		lines[i].OutputLogID = s.nextOutputID
		s.outputLogs[lines[i].ProcessLogID] = append(s.outputLogs[lines[i].ProcessLogID], lines[i])
	}
	return nil
}

func (s *Store) ListOutputLogs(ctx context.Context, processLogID int64, afterOutputLogID int64) ([]model.OutputLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OutputLog
	for _, l := range s.outputLogs[processLogID] {
		if l.OutputLogID > afterOutputLogID {
			out = append(out, l)
		}
	}
	return out, nil
}

var _ store.Store = (*Store)(nil)

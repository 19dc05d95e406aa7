// Package manager reconciles the set of running executors against the
// task table: a map-based registry behind an RWMutex, with an atomic
// draining flag that rejects new work during shutdown.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelsched/kestrel/internal/executor"
	"github.com/kestrelsched/kestrel/internal/model"
	"github.com/kestrelsched/kestrel/internal/monitor"
	"github.com/kestrelsched/kestrel/internal/outputbuf"
	"github.com/kestrelsched/kestrel/internal/store"
	"github.com/kestrelsched/kestrel/internal/trigger"
)

// ErrNotFound is returned by RunTask/StopTask when no executor is
// registered for the given task id.
var ErrNotFound = errors.New("manager: executor not found")

// Metrics receives executor-lifecycle events. Satisfied by
// *telemetry.Metrics; optional.
type Metrics interface {
	executor.Metrics
	SetActiveExecutors(n int)
}

type entry struct {
	task model.Task
	exec *executor.Executor
}

// ExecutorView is the read-only projection of a registered executor
// exposed over the GET /executor endpoint.
type ExecutorView struct {
	Task   model.Task `json:"task"`
	Active bool       `json:"active"`
	Status string     `json:"status"`
}

// Manager owns the live set of executors and keeps it in sync with the
// task store. Sync is the only place executors are created, and apart from
// Shutdown the only place they are torn down; it is serialized behind mu
// so at most one reconciliation runs at a time.
type Manager struct {
	st       store.Store
	sink     monitor.OutputSink
	tracer   trace.Tracer
	metrics  Metrics
	draining atomic.Bool

	mu      sync.RWMutex
	entries map[int64]*entry
}

// New constructs a Manager. sink receives every output line produced by
// any executor's child process (typically a shared *outputbuf.Buffer).
func New(st store.Store, sink monitor.OutputSink) *Manager {
	return &Manager{
		st:      st,
		sink:    sink,
		tracer:  otel.Tracer("kestrel/manager"),
		entries: make(map[int64]*entry),
	}
}

// Sync reconciles the executor set against the current task table: a task
// with no executor gets one created (but not started — run() is always an
// explicit, separate call); an executor whose task was deleted is stopped
// and removed; an executor whose task changed semantically
// ((command, trigger_type, trigger_args) tuple) is torn down and replaced —
// if the old executor was active, the replacement is started immediately so
// the new trigger/command takes effect without an explicit run_executor
// call. Tasks that only changed cosmetically (title/description) are left
// running unchanged.
func (m *Manager) Sync(ctx context.Context) error {
	if m.draining.Load() {
		return nil
	}

	ctx, span := m.tracer.Start(ctx, "manager.sync")
	defer span.End()

	// Hold mu across the read as well as the apply, so a slower concurrent
	// Sync can never apply an older task snapshot over a newer one.
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks, err := m.st.ListTasks(ctx)
	if err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(tasks))

	for _, t := range tasks {
		seen[t.TaskID] = struct{}{}
		existing, ok := m.entries[t.TaskID]
		switch {
		case !ok:
			m.createLocked(t, false)
		case !existing.task.Equal(t):
			wasActive := existing.exec.Active()
			slog.Info("manager: task changed, restarting executor", "task_id", t.TaskID, "was_active", wasActive)
			m.createLocked(t, wasActive)
			existing.exec.Stop()
		default:
			// unchanged trigger/command; cosmetic fields (title/descr) may
			// have changed, so keep the registry's copy current for display.
			existing.task = t
		}
	}

	for id, e := range m.entries {
		if _, ok := seen[id]; !ok {
			slog.Info("manager: task deleted, stopping executor", "task_id", id)
			e.exec.Stop()
			delete(m.entries, id)
		}
	}

	m.reportActiveLocked()
	return nil
}

// createLocked must be called with m.mu held. It builds the task's trigger
// and executor, registers it, and starts it only if start is true.
func (m *Manager) createLocked(t model.Task, start bool) {
	trig, err := trigger.New(t.TriggerType, t.TriggerArgs, time.Now().UTC())
	if err != nil {
		slog.Error("manager: failed to build trigger, skipping task", "task_id", t.TaskID, "error", err)
		return
	}
	ex := executor.New(t, trig, m.sink, m.st)
	if m.metrics != nil {
		ex.SetMetrics(m.metrics)
	}
	m.entries[t.TaskID] = &entry{task: t, exec: ex}
	if start {
		ex.Start()
	}
}

// SetMetrics attaches a metrics recorder, propagated to every executor
// created afterwards. Call before the first Sync.
func (m *Manager) SetMetrics(metrics Metrics) {
	m.metrics = metrics
}

// reportActiveLocked must be called with m.mu held (read or write).
func (m *Manager) reportActiveLocked() {
	if m.metrics == nil {
		return
	}
	n := 0
	for _, e := range m.entries {
		if e.exec.Active() {
			n++
		}
	}
	m.metrics.SetActiveExecutors(n)
}

// RunTask starts the executor for taskID. Returns ErrNotFound if no
// executor is registered (the task id doesn't exist, or hasn't been picked
// up by a Sync yet).
func (m *Manager) RunTask(taskID int64) error {
	m.mu.RLock()
	e, ok := m.entries[taskID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	e.exec.Start()
	m.mu.RLock()
	m.reportActiveLocked()
	m.mu.RUnlock()
	return nil
}

// StopTask stops the executor for taskID. Returns ErrNotFound if no
// executor is registered.
func (m *Manager) StopTask(taskID int64) error {
	m.mu.RLock()
	e, ok := m.entries[taskID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	e.exec.Stop()
	m.mu.RLock()
	m.reportActiveLocked()
	m.mu.RUnlock()
	return nil
}

// RunAll starts every registered executor.
func (m *Manager) RunAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		e.exec.Start()
	}
	m.reportActiveLocked()
}

// StopAll stops every registered executor.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		e.exec.Stop()
	}
	m.reportActiveLocked()
}

// ListExecutors returns a snapshot of every registered executor, for the
// GET /executor endpoint.
func (m *Manager) ListExecutors() []ExecutorView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ExecutorView, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, ExecutorView{
			Task:   e.task,
			Active: e.exec.Active(),
			Status: e.exec.Status(),
		})
	}
	return out
}

// MarkDraining stops Sync from starting new work; existing executors keep
// running until Shutdown stops them.
func (m *Manager) MarkDraining() {
	m.draining.Store(true)
}

// Shutdown stops every running executor. Call after MarkDraining so no
// new executor can slip in during teardown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		e.exec.Stop()
	}
	m.entries = make(map[int64]*entry)
}

// RunLoop periodically calls Sync so tasks added by another process
// instance (or restored after a restart) are picked up without a direct
// signal, a background safety net alongside the synchronous Sync call
// each HTTP mutation already makes.
func (m *Manager) RunLoop(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sync(ctx); err != nil {
				slog.Error("manager: periodic sync failed", "error", err)
			}
		}
	}
}

var _ monitor.OutputSink = (*outputbuf.Buffer)(nil)

// Package executor implements the per-task scheduling state machine: idle
// while waiting to be started, active while a single outstanding timer is
// pending. A generation counter lets a stale timer callback recognize it
// has been superseded by a Stop/Start cycle and discard itself.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelsched/kestrel/internal/model"
	"github.com/kestrelsched/kestrel/internal/monitor"
	"github.com/kestrelsched/kestrel/internal/store"
	"github.com/kestrelsched/kestrel/internal/trigger"
)

// Metrics receives run-outcome events. Satisfied by *telemetry.Metrics;
// optional — a nil Metrics on an Executor simply skips reporting.
type Metrics interface {
	RunFinished(status string, latency time.Duration)
	MissedRun()
}

// MissedGrace bounds how close to "now" a scheduled instant must be to still
// be run. A trigger can only yield an instant at or before now on its very
// first Next call (a date trigger whose single configured instant is already
// in the past); cron and interval triggers always compute strictly-future
// instants relative to "now". A past instant is recorded as missed, never
// re-executed.
const MissedGrace = 5 * time.Second

// Executor drives one task through its trigger's run-date sequence. At most
// one timer is pending at a time; the timer callback rearms its successor
// before launching the execution monitor, so a long-running command never
// delays the next scheduled instant. Two runs of the same task may overlap;
// runs are intentionally not serialized.
type Executor struct {
	taskID  int64
	sink    monitor.OutputSink
	store   store.ExecutionStore
	mon     *monitor.Monitor
	tracer  trace.Tracer
	metrics Metrics

	mu         sync.Mutex
	trig       trigger.Trigger
	command    string
	timer      *time.Timer
	generation uint64
	active     bool
	status     string
}

// New constructs an idle Executor for a task. It owns no timer until Start
// is called — per the manager's "discover, do not auto-run" reconciliation
// policy, constructing an Executor must never itself start it.
func New(task model.Task, trig trigger.Trigger, sink monitor.OutputSink, st store.ExecutionStore) *Executor {
	return &Executor{
		taskID:  task.TaskID,
		sink:    sink,
		store:   st,
		mon:     monitor.New(),
		tracer:  otel.Tracer("kestrel/executor"),
		trig:    trig,
		command: task.Command,
		status:  "never launched",
	}
}

// Start transitions Idle -> Active: arms the timer for the task's next run
// instant, computed relative to now. A no-op if already Active.
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return
	}
	e.active = true
	e.armNextLocked(time.Now().UTC())
}

// Stop transitions Active -> Idle: cancels the pending timer. Any execution
// monitor already running continues to completion — stop only ever cancels
// the timer side, never a spawned child process. Idempotent.
func (e *Executor) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	e.active = false
	e.generation++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// SetMetrics attaches a metrics recorder. Must be called before Start; not
// safe to change concurrently with a running executor.
func (e *Executor) SetMetrics(m Metrics) {
	e.metrics = m
}

// Active reports whether the executor currently holds a pending timer.
func (e *Executor) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Status returns the most recent ProcessLog status this executor produced,
// or "never launched" before any run.
func (e *Executor) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Executor) setStatusLocked(s model.ProcessStatus) {
	e.status = string(s)
}

// armNextLocked must be called with e.mu held and e.active == true. It asks
// the trigger for the next instant after `after` and schedules a callback
// for it. A trigger that reports exhaustion (the date trigger, once its
// single instant has fired) or an error leaves the Executor idle.
func (e *Executor) armNextLocked(after time.Time) {
	next, ok, err := e.trig.Next(after)
	if err != nil {
		slog.Error("executor: failed to compute next run", "task_id", e.taskID, "error", err)
		e.active = false
		return
	}
	if !ok {
		slog.Info("executor: trigger exhausted, task will not run again", "task_id", e.taskID)
		e.active = false
		return
	}

	e.generation++
	gen := e.generation
	delay := time.Until(next)
	if delay < 0 {
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() { e.onFire(gen, next) })
}

// onFire is the timer callback. It first checks gen against the current
// generation so a stale timer from a Stop/Start race is a no-op. The
// successor timer is armed before the execution monitor is launched, and
// the monitor runs in its own goroutine, so a long command never delays
// the next tick and scheduling never drifts by the command's runtime.
func (e *Executor) onFire(gen uint64, scheduledFor time.Time) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("executor: timer callback panicked", "task_id", e.taskID, "panic", r)
		}
	}()

	e.mu.Lock()
	if !e.active || gen != e.generation {
		e.mu.Unlock()
		return
	}
	command := e.command
	taskID := e.taskID
	now := time.Now().UTC()
	missed := now.Sub(scheduledFor) > MissedGrace
	e.armNextLocked(now)
	e.mu.Unlock()

	if missed {
		ctx, span := e.tracer.Start(context.Background(), "executor.missed",
			trace.WithAttributes(attribute.Int64("task_id", taskID)))
		e.recordMissed(ctx, taskID, scheduledFor)
		span.End()
		return
	}

	go e.runOnce(taskID, command, scheduledFor)
}

func (e *Executor) recordMissed(ctx context.Context, taskID int64, scheduledFor time.Time) {
	pl, err := e.store.CreateProcessLog(ctx, taskID, model.StatusAwaiting, scheduledFor)
	if err != nil {
		slog.Error("executor: failed to record missed run", "task_id", taskID, "error", err)
		return
	}
	pl.Status = model.StatusMissed
	finish := time.Now().UTC()
	pl.FinishDate = &finish
	if err := e.store.UpdateProcessLog(ctx, pl); err != nil {
		slog.Error("executor: failed to finalize missed run", "task_id", taskID, "error", err)
	}
	e.mu.Lock()
	e.setStatusLocked(model.StatusMissed)
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.MissedRun()
	}
	slog.Warn("executor: run missed", "task_id", taskID, "scheduled_for", scheduledFor)
}

func (e *Executor) runOnce(taskID int64, command string, scheduledFor time.Time) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("executor: run panicked", "task_id", taskID, "panic", r)
		}
	}()

	started := time.Now()
	ctx, span := e.tracer.Start(context.Background(), "executor.run",
		trace.WithAttributes(attribute.Int64("task_id", taskID)))
	defer span.End()

	pl, err := e.store.CreateProcessLog(ctx, taskID, model.StatusAwaiting, scheduledFor)
	if err != nil {
		slog.Error("executor: failed to create process log", "task_id", taskID, "error", err)
		return
	}

	pl.Status = model.StatusStarted
	if err := e.store.UpdateProcessLog(ctx, pl); err != nil {
		slog.Error("executor: failed to mark started", "task_id", taskID, "error", err)
	}
	e.mu.Lock()
	e.setStatusLocked(model.StatusStarted)
	e.mu.Unlock()

	res := e.mon.Run(ctx, command, pl.ProcessLogID, e.sink)

	pl.Status = res.Status
	pl.ReturnCode = res.ReturnCode
	finish := res.FinishDate
	pl.FinishDate = &finish
	if err := e.store.UpdateProcessLog(ctx, pl); err != nil {
		slog.Error("executor: failed to finalize run", "task_id", taskID, "error", err)
	}

	// Force a flush so a log-tail reader observes this run's full output as
	// soon as the run is done, rather than waiting for the next periodic tick.
	if f, ok := e.sink.(interface{ Flush() }); ok {
		f.Flush()
	}

	e.mu.Lock()
	e.setStatusLocked(res.Status)
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.RunFinished(string(res.Status), time.Since(started))
	}
}

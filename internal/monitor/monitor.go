// Package monitor spawns a task's command as a child process and captures
// its outcome. One Monitor.Run call corresponds to exactly one ProcessLog.
// stdout and stderr are drained concurrently line-by-line, so a stalled
// stderr never blocks stdout progress on long-running commands.
package monitor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelsched/kestrel/internal/model"
)

// OutputSink receives one captured output line as it is read. Typically an
// *outputbuf.Buffer.
type OutputSink interface {
	Add(line model.OutputLog)
}

// Monitor runs a single task's command to completion, streaming its
// output to a sink and returning the terminal ProcessLog fields.
type Monitor struct {
	tracer trace.Tracer
}

func New() *Monitor {
	return &Monitor{tracer: otel.Tracer("kestrel/monitor")}
}

// Result is the terminal outcome of one run, ready to be written back onto
// a ProcessLog.
type Result struct {
	Status     model.ProcessStatus
	FinishDate time.Time
	ReturnCode *int
}

// Run spawns command via the OS shell ("sh -c command"), streams stdout
// and stderr into sink tagged by processLogID, and blocks until the
// process exits or ctx is canceled. The run token is an opaque correlation
// id attached to the trace span and log lines — never a persisted row key.
func (m *Monitor) Run(ctx context.Context, command string, processLogID int64, sink OutputSink) Result {
	runToken := uuid.New()
	ctx, span := m.tracer.Start(ctx, "monitor.run",
		trace.WithAttributes(
			attribute.Int64("process_log_id", processLogID),
			attribute.String("run_token", runToken.String()),
		))
	defer span.End()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return spawnFailure(err, processLogID, sink)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return spawnFailure(err, processLogID, sink)
	}

	if err := cmd.Start(); err != nil {
		slog.Error("monitor: failed to start process", "run_token", runToken, "error", err)
		return spawnFailure(err, processLogID, sink)
	}

	var g errgroup.Group
	g.Go(func() error { return drain(stdout, processLogID, false, sink) })
	g.Go(func() error { return drain(stderr, processLogID, true, sink) })
	drainErr := g.Wait()

	waitErr := cmd.Wait()
	finish := time.Now().UTC()

	if drainErr != nil {
		slog.Warn("monitor: output drain error", "run_token", runToken, "error", drainErr)
	}

	if waitErr != nil {
		code := exitCode(waitErr)
		slog.Warn("monitor: process exited non-zero", "run_token", runToken, "return_code", code)
		return Result{Status: model.StatusFailed, FinishDate: finish, ReturnCode: &code}
	}

	code := 0
	return Result{Status: model.StatusFinished, FinishDate: finish, ReturnCode: &code}
}

// drain reads r line by line until EOF, keeping each line's terminator so
// the stored message reproduces the stream byte-for-byte.
func drain(r io.Reader, processLogID int64, isError bool, sink OutputSink) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			sink.Add(model.OutputLog{
				ProcessLogID: processLogID,
				Message:      line,
				Time:         time.Now().UTC(),
				IsError:      isError,
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// spawnFailureCode marks a run the OS refused to launch, as opposed to a
// command that ran and exited non-zero.
const spawnFailureCode = -1

// spawnFailure finalizes a run whose process never started: a synthetic
// stderr line explaining the failure is emitted so the run's output stream
// tells the operator what went wrong, not just a bare return code.
func spawnFailure(err error, processLogID int64, sink OutputSink) Result {
	sink.Add(model.OutputLog{
		ProcessLogID: processLogID,
		Message:      "failed to spawn process: " + err.Error(),
		Time:         time.Now().UTC(),
		IsError:      true,
	})
	code := spawnFailureCode
	return Result{Status: model.StatusFailed, FinishDate: time.Now().UTC(), ReturnCode: &code}
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

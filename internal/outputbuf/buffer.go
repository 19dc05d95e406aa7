// Package outputbuf batches OutputLog lines in memory and flushes them to
// the store on a fixed period, so a chatty child process doesn't issue one
// INSERT per line.
package outputbuf

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kestrelsched/kestrel/internal/model"
)

// Sink persists a batch of output lines. store.ExecutionStore.AppendOutputLogs
// satisfies this.
type Sink interface {
	AppendOutputLogs(ctx context.Context, lines []model.OutputLog) error
}

// Metrics receives one event per captured output line. Satisfied by
// *telemetry.Metrics; optional.
type Metrics interface {
	OutputLine(stream string)
}

// Buffer accumulates OutputLog lines and flushes them periodically and on
// Close. Safe for concurrent use by multiple writers (e.g. stdout and
// stderr drains of the same process).
type Buffer struct {
	sink    Sink
	metrics Metrics
	period  time.Duration

	mu      sync.Mutex
	pending []model.OutputLog

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New starts a Buffer that flushes to sink every period. Call Close to
// stop the background flusher and drain whatever is pending.
func New(sink Sink, period time.Duration) *Buffer {
	if period <= 0 {
		period = time.Second
	}
	b := &Buffer{
		sink:   sink,
		period: period,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go b.run()
	return b
}

// SetMetrics attaches a metrics recorder. Not safe to change concurrently
// with producers calling Add.
func (b *Buffer) SetMetrics(m Metrics) {
	b.metrics = m
}

// Add enqueues a line for the next flush. Non-blocking.
func (b *Buffer) Add(line model.OutputLog) {
	b.mu.Lock()
	b.pending = append(b.pending, line)
	b.mu.Unlock()
	if b.metrics != nil {
		stream := "stdout"
		if line.IsError {
			stream = "stderr"
		}
		b.metrics.OutputLine(stream)
	}
}

func (b *Buffer) run() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.stopCh:
			b.flush()
			return
		}
	}
}

// Flush drains whatever is pending into one transactional insert,
// immediately rather than waiting for the next tick. The executor calls
// this after each run finishes so a log-tail reader observes the run's
// full output as soon as the run completes.
func (b *Buffer) Flush() {
	b.flush()
}

func (b *Buffer) flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if err := b.sink.AppendOutputLogs(context.Background(), batch); err != nil {
		slog.Error("outputbuf: flush failed, will retry next tick", "lines", len(batch), "error", err)
		// Put the batch back at the front so per-process insertion order
		// survives a transient store failure; the next flush retries.
		b.mu.Lock()
		b.pending = append(batch, b.pending...)
		b.mu.Unlock()
	}
}

// Close stops the background flusher after one final flush. Idempotent.
func (b *Buffer) Close() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
}

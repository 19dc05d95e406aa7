package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMetricsTimeout = 15 * time.Second

// Metrics holds the Prometheus collectors for scheduler health and serves
// them over a dedicated /metrics listener.
type Metrics struct {
	server *http.Server

	runsTotal        *prometheus.CounterVec
	runLatency       prometheus.Histogram
	executorsActive  prometheus.Gauge
	missedRunsTotal  prometheus.Counter
	outputLinesTotal *prometheus.CounterVec
}

// RunFinished records one completed execution monitor run.
func (m *Metrics) RunFinished(status string, latency time.Duration) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runLatency.Observe(latency.Seconds())
}

// MissedRun records one scheduled instant recorded as StatusMissed.
func (m *Metrics) MissedRun() {
	m.missedRunsTotal.Inc()
}

// SetActiveExecutors reports the current count of Active executors.
func (m *Metrics) SetActiveExecutors(n int) {
	m.executorsActive.Set(float64(n))
}

// OutputLine records one captured stdout or stderr line.
func (m *Metrics) OutputLine(stream string) {
	m.outputLinesTotal.WithLabelValues(stream).Inc()
}

func (m *Metrics) registry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{ReportErrors: false}),
		m.runsTotal,
		m.runLatency,
		m.executorsActive,
		m.missedRunsTotal,
		m.outputLinesTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Shutdown stops the metrics HTTP server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

// NewMetrics constructs the collector set and starts serving /metrics on
// port in the background.
func NewMetrics(port int) (*Metrics, error) {
	if port <= 0 {
		port = 9090
	}

	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Count of execution monitor runs, by terminal status.",
		}, []string{"status"}),
		runLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_run_latency_seconds",
			Help:    "Wall-clock duration of execution monitor runs.",
			Buckets: prometheus.DefBuckets,
		}),
		executorsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_executors_active",
			Help: "Number of executors currently holding a pending timer.",
		}),
		missedRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_missed_runs_total",
			Help: "Count of scheduled instants recorded as missed instead of run.",
		}),
		outputLinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_output_lines_total",
			Help: "Count of captured stdout/stderr lines, by stream.",
		}, []string{"stream"}),
	}

	mux := http.NewServeMux()
	reg, err := m.registry()
	if err != nil {
		return nil, err
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	m.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  defaultMetricsTimeout,
		WriteTimeout: defaultMetricsTimeout,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("telemetry: metrics server stopped", "error", err)
		}
	}()

	return m, nil
}

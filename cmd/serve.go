package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelsched/kestrel/internal/config"
	"github.com/kestrelsched/kestrel/internal/httpapi"
	"github.com/kestrelsched/kestrel/internal/logging"
	"github.com/kestrelsched/kestrel/internal/manager"
	"github.com/kestrelsched/kestrel/internal/outputbuf"
	"github.com/kestrelsched/kestrel/internal/store/pg"
	"github.com/kestrelsched/kestrel/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler engine and its HTTP control plane",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	watcher, err := config.Load(configPath, envPath)
	if err != nil {
		return err
	}
	cfg := watcher.Current()
	logging.Init(cfg.LogFormat, cfg.LogLevel)
	watcher.OnChange(func(c config.Config) {
		logging.Init(c.LogFormat, c.LogLevel)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	metrics, err := telemetry.NewMetrics(cfg.MetricsPort)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	db, err := pg.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	st := pg.NewStore(db)

	buf := outputbuf.New(st, cfg.OutputFlushPeriod)
	buf.SetMetrics(metrics)

	mgr := manager.New(st, buf)
	mgr.SetMetrics(metrics)
	if err := mgr.Sync(ctx); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	go mgr.RunLoop(ctx, cfg.SyncPeriod)

	// The token is read per request so a live config reload takes effect
	// without restarting the server.
	api := httpapi.New(st, mgr, func() string { return watcher.Current().HTTPToken })
	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(cfg.HTTPPort)),
		Handler: api.Router(httpapi.NewLogger(slogLevel(cfg.LogLevel), cfg.LogFormat != "text")),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving control plane", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	mgr.MarkDraining()

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}

	// Stop timers first, then drain whatever output is still buffered.
	// Child processes already running are left to finish on their own.
	mgr.Shutdown()
	buf.Close()

	if err := metrics.Shutdown(shutCtx); err != nil {
		slog.Error("metrics shutdown failed", "error", err)
	}
	if err := shutdownTracing(shutCtx); err != nil {
		slog.Error("tracing shutdown failed", "error", err)
	}
	return nil
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

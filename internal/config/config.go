// Package config loads process configuration from the environment, an
// optional .env file, and an optional config file watched for live reload.
package config

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full set of process settings. The scheduling/execution
// engine itself takes no configuration beyond what's threaded explicitly
// into its constructors; everything here is transport/ops wiring.
type Config struct {
	// DatabaseURL is a Postgres connection string understood by pgx.
	DatabaseURL string

	// HTTPHost/HTTPPort bind the control-plane HTTP server.
	HTTPHost string
	HTTPPort int

	// HTTPToken, if non-empty, gates every request behind
	// "Authorization: Bearer <token>". Empty disables the gate.
	HTTPToken string

	// LogFormat is "json" (default) or "text".
	LogFormat string
	// LogLevel is one of debug/info/warn/error.
	LogLevel string

	// OutputFlushPeriod is how often the output-log buffer drains to
	// storage.
	OutputFlushPeriod time.Duration
	// SyncPeriod is the manager's periodic background reconciliation
	// interval, alongside the synchronous Sync every mutating handler
	// already triggers.
	SyncPeriod time.Duration

	// MetricsPort serves /metrics for Prometheus scraping.
	MetricsPort int
	// OTLPEndpoint, if set, is where trace spans are exported via gRPC.
	OTLPEndpoint string
}

func defaults(v *viper.Viper) {
	v.SetDefault("database_url", "postgres://localhost:5432/scheduler?sslmode=disable")
	v.SetDefault("http_host", "0.0.0.0")
	v.SetDefault("http_port", 8080)
	v.SetDefault("http_token", "")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_level", "info")
	v.SetDefault("output_flush_period", "1s")
	v.SetDefault("sync_period", "30s")
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("otlp_endpoint", "")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		DatabaseURL:       v.GetString("database_url"),
		HTTPHost:          v.GetString("http_host"),
		HTTPPort:          v.GetInt("http_port"),
		HTTPToken:         v.GetString("http_token"),
		LogFormat:         v.GetString("log_format"),
		LogLevel:          v.GetString("log_level"),
		OutputFlushPeriod: v.GetDuration("output_flush_period"),
		SyncPeriod:        v.GetDuration("sync_period"),
		MetricsPort:       v.GetInt("metrics_port"),
		OTLPEndpoint:      v.GetString("otlp_endpoint"),
	}
}

// Watcher holds the live Config plus whatever is needed to keep it fresh.
// Only LogLevel/LogFormat/HTTPToken are meant to change without a restart;
// DatabaseURL and the HTTP bind address take effect on next process start.
type Watcher struct {
	mu       sync.RWMutex
	cur      *Config
	onChange []func(Config)
}

// Load reads SCHED_-prefixed environment variables (after loading envPath
// as a .env file, if it exists), and optionally a config file at
// configPath (yaml/json/toml, auto-detected by viper). If configPath is
// non-empty, changes to it are watched via fsnotify and re-applied live.
func Load(configPath, envPath string) (*Watcher, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			slog.Warn("config: no .env file loaded", "path", envPath, "error", err)
		}
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("sched")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("config: no config file loaded", "path", configPath, "error", err)
		}
	}

	w := &Watcher{cur: fromViper(v)}

	if configPath != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			slog.Info("config: file changed, reloading", "path", e.Name)
			w.mu.Lock()
			w.cur = fromViper(v)
			cur := *w.cur
			hooks := w.onChange
			w.mu.Unlock()
			for _, fn := range hooks {
				fn(cur)
			}
		})
		v.WatchConfig()
	}

	return w, nil
}

// Current returns a snapshot of the live config.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return *w.cur
}

// OnChange registers fn to run after each live reload, with the new
// snapshot. Register hooks during startup, before the watched file can
// change.
func (w *Watcher) OnChange(fn func(Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Package httpapi implements the JSON control plane: task CRUD, executor
// control, and execution/output reads. Every mutating task handler commits
// the store change first and then calls manager.Sync, so the registry
// converges immediately rather than waiting for the next periodic pass.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	"github.com/kestrelsched/kestrel/internal/manager"
	"github.com/kestrelsched/kestrel/internal/store"
)

// API holds the control plane's dependencies. token is read per request so
// a live config reload takes effect without a restart; a nil token func or
// an empty token disables the auth gate.
type API struct {
	st    store.Store
	mgr   *manager.Manager
	token func() string
}

func New(st store.Store, mgr *manager.Manager, token func() string) *API {
	return &API{st: st, mgr: mgr, token: token}
}

// Router builds the chi router with logging, CORS, panic recovery, and the
// optional bearer-token gate. /healthz stays outside the gate so liveness
// probes work without credentials.
func (a *API) Router(logger *httplog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if logger != nil {
		r.Use(httplog.RequestLogger(logger))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(a.auth)

		r.Get("/task", a.handleListTasks)
		r.Post("/task", a.handleCreateTask)
		r.Get("/task/{id}", a.handleGetTask)
		r.Post("/task/{id}", a.handleUpdateTask)
		r.Delete("/task/{id}", a.handleDeleteTask)

		r.Get("/executor", a.handleListExecutors)
		r.Post("/run_executor/{id}", a.handleRunExecutor)
		r.Post("/stop_executor/{id}", a.handleStopExecutor)

		r.Get("/process_log", a.handleListProcessLogs)
		r.Get("/execution/output/{process_log_id}", a.handleExecutionOutput)
	})

	return r
}

func (a *API) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.token != nil {
			if want := a.token(); want != "" && extractBearerToken(r) != want {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: failed to encode response", "error", err)
	}
}

// writeError maps store and manager sentinel errors onto the HTTP contract:
// validation failures are 400, unknown ids are 404, anything else is 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, manager.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		slog.Error("httpapi: request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func pathID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}

// NewLogger builds the slog-backed request logger the router installs.
func NewLogger(level slog.Level, jsonFormat bool) *httplog.Logger {
	return httplog.NewLogger("kestrel", httplog.Options{
		LogLevel:        level,
		JSON:            jsonFormat,
		Concise:         true,
		RequestHeaders:  false,
		TimeFieldFormat: time.RFC3339,
	})
}

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/kestrelsched/kestrel/internal/manager"
	"github.com/kestrelsched/kestrel/internal/model"
)

func (a *API) handleListExecutors(w http.ResponseWriter, r *http.Request) {
	views := a.mgr.ListExecutors()
	if views == nil {
		views = []manager.ExecutorView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_executors": views})
}

func (a *API) handleRunExecutor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err := a.mgr.RunTask(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_id": id})
}

func (a *API) handleStopExecutor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err := a.mgr.StopTask(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_id": id})
}

func (a *API) handleListProcessLogs(w http.ResponseWriter, r *http.Request) {
	var taskID *int64
	if v := r.URL.Query().Get("task_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task_id"})
			return
		}
		taskID = &id
	}
	logs, err := a.st.ListProcessLogs(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []model.ProcessLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"process_logs": logs})
}

// handleExecutionOutput serves the incremental log tail: lines of one
// process past the caller's cursor, plus the process's current status and
// return code so the caller knows when to stop polling.
func (a *API) handleExecutionOutput(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "process_log_id")
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	var last int64
	if v := r.URL.Query().Get("last_output_log_id"); v != "" {
		last, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid last_output_log_id"})
			return
		}
	}

	pl, err := a.st.GetProcessLog(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	logs, err := a.st.ListOutputLogs(r.Context(), id, last)
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []model.OutputLog{}
	}
	if len(logs) > 0 {
		last = logs[len(logs)-1].OutputLogID
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"output_logs":        logs,
		"last_output_log_id": last,
		"status":             pl.Status,
		"return_code":        pl.ReturnCode,
	})
}

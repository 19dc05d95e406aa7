package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kestrelsched/kestrel/internal/model"
	"github.com/kestrelsched/kestrel/internal/store"
)

// taskPayload is the request body for task create and update. descr may be
// null; trigger_args is kept raw and validated by the store against
// trigger_type.
type taskPayload struct {
	Title       string            `json:"title"`
	Descr       *string           `json:"descr"`
	Command     string            `json:"command"`
	TriggerType model.TriggerType `json:"trigger_type"`
	TriggerArgs json.RawMessage   `json:"trigger_args"`
}

func (p taskPayload) toInput() store.TaskInput {
	descr := ""
	if p.Descr != nil {
		descr = *p.Descr
	}
	return store.TaskInput{
		Title:       p.Title,
		Descr:       descr,
		Command:     p.Command,
		TriggerType: p.TriggerType,
		TriggerArgs: p.TriggerArgs,
	}
}

func decodeTaskPayload(w http.ResponseWriter, r *http.Request) (taskPayload, bool) {
	var p taskPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return taskPayload{}, false
	}
	return p, true
}

// syncManager realigns the executor registry right after a committed task
// mutation. A sync failure here doesn't fail the request — the write is
// already durable and the periodic reconciliation will converge.
func (a *API) syncManager(r *http.Request) {
	if err := a.mgr.Sync(r.Context()); err != nil {
		slog.Error("httpapi: post-mutation sync failed", "error", err)
	}
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.st.ListTasks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (a *API) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	task, err := a.st.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (a *API) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeTaskPayload(w, r)
	if !ok {
		return
	}
	task, err := a.st.CreateTask(r.Context(), p.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	a.syncManager(r)
	writeJSON(w, http.StatusCreated, map[string]any{"task_id": task.TaskID})
}

func (a *API) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	p, ok := decodeTaskPayload(w, r)
	if !ok {
		return
	}
	task, err := a.st.UpdateTask(r.Context(), id, p.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	a.syncManager(r)
	writeJSON(w, http.StatusOK, map[string]any{"task_id": task.TaskID})
}

func (a *API) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err := a.st.DeleteTask(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	a.syncManager(r)
	writeJSON(w, http.StatusOK, map[string]any{"task_id": id})
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsched/kestrel/internal/manager"
	"github.com/kestrelsched/kestrel/internal/model"
	"github.com/kestrelsched/kestrel/internal/outputbuf"
	"github.com/kestrelsched/kestrel/internal/store/memstore"
)

func newTestServer(t *testing.T, token string) (*httptest.Server, *memstore.Store, *manager.Manager) {
	t.Helper()
	st := memstore.New()
	buf := outputbuf.New(st, time.Hour)
	t.Cleanup(buf.Close)
	mgr := manager.New(st, buf)

	tokenFn := func() string { return token }
	srv := httptest.NewServer(New(st, mgr, tokenFn).Router(nil))
	t.Cleanup(srv.Close)
	return srv, st, mgr
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func intervalTask(title, command string) map[string]any {
	return map[string]any{
		"title":        title,
		"descr":        nil,
		"command":      command,
		"trigger_type": "interval",
		"trigger_args": map[string]any{"seconds": 3600},
	}
}

func TestAPI_CreateTaskAndGetRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/task", intervalTask("t", "echo hi"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	taskID := int64(body["task_id"].(float64))
	require.Equal(t, int64(1), taskID)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/task/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	task := body["task"].(map[string]any)
	assert.Equal(t, "t", task["title"])
	assert.Equal(t, "echo hi", task["command"])
	assert.Equal(t, "interval", task["trigger_type"])
}

func TestAPI_CreateTaskSyncsManager(t *testing.T) {
	srv, _, mgr := newTestServer(t, "")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/task", intervalTask("t", "echo hi"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	views := mgr.ListExecutors()
	require.Len(t, views, 1)
	assert.False(t, views[0].Active)
	assert.Equal(t, "never launched", views[0].Status)
}

func TestAPI_CreateTaskValidation(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	payload := intervalTask("t", "echo hi")
	payload["trigger_args"] = map[string]any{} // zero-duration interval
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/task", payload)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	payload = intervalTask("", "echo hi")
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/task", payload)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetMissingTask(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/task/99", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_DeleteRemovesExecutorAndTask(t *testing.T) {
	srv, _, mgr := newTestServer(t, "")

	doJSON(t, http.MethodPost, srv.URL+"/task", intervalTask("t", "echo hi"))
	require.Len(t, mgr.ListExecutors(), 1)

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/task/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, mgr.ListExecutors())

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/task", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["tasks"])
}

func TestAPI_UpdateReplacesActiveExecutor(t *testing.T) {
	srv, _, mgr := newTestServer(t, "")

	doJSON(t, http.MethodPost, srv.URL+"/task", intervalTask("t", "echo a"))
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/run_executor/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	update := intervalTask("t", "echo b")
	update["trigger_args"] = map[string]any{"seconds": 5, "minutes": 1}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/task/1", update)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	views := mgr.ListExecutors()
	require.Len(t, views, 1)
	assert.Equal(t, "echo b", views[0].Task.Command)
	assert.True(t, views[0].Active, "replacement inherits the old executor's active state")
}

func TestAPI_RunStopExecutorNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/run_executor/42", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/stop_executor/42", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ExecutionOutputCursor(t *testing.T) {
	srv, st, _ := newTestServer(t, "")

	ctx := t.Context()
	pl, err := st.CreateProcessLog(ctx, 1, model.StatusStarted, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, st.AppendOutputLogs(ctx, []model.OutputLog{
		{ProcessLogID: pl.ProcessLogID, Message: "one\n", Time: time.Now().UTC()},
		{ProcessLogID: pl.ProcessLogID, Message: "two\n", Time: time.Now().UTC()},
		{ProcessLogID: pl.ProcessLogID, Message: "three\n", Time: time.Now().UTC(), IsError: true},
	}))

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/execution/output/1?last_output_log_id=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	logs := body["output_logs"].([]any)
	require.Len(t, logs, 2)
	assert.Equal(t, "two\n", logs[0].(map[string]any)["message"])
	assert.Equal(t, "three\n", logs[1].(map[string]any)["message"])
	assert.Equal(t, float64(3), body["last_output_log_id"])
	assert.Equal(t, "started", body["status"])
}

func TestAPI_ExecutionOutputEmptyKeepsCursor(t *testing.T) {
	srv, st, _ := newTestServer(t, "")

	ctx := t.Context()
	_, err := st.CreateProcessLog(ctx, 1, model.StatusFinished, time.Now().UTC())
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/execution/output/1?last_output_log_id=7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["output_logs"])
	assert.Equal(t, float64(7), body["last_output_log_id"])
}

func TestAPI_BearerTokenGate(t *testing.T) {
	srv, _, _ := newTestServer(t, "sekrit")

	resp, err := http.Get(srv.URL + "/task")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/task", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// healthz stays open
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_ProcessLogList(t *testing.T) {
	srv, st, _ := newTestServer(t, "")

	ctx := t.Context()
	_, err := st.CreateProcessLog(ctx, 1, model.StatusFinished, time.Now().UTC())
	require.NoError(t, err)
	_, err = st.CreateProcessLog(ctx, 2, model.StatusFailed, time.Now().UTC())
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/process_log", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	logs := body["process_logs"].([]any)
	require.Len(t, logs, 2)
	assert.Equal(t, float64(1), logs[0].(map[string]any)["process_log_id"])
}

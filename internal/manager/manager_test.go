package manager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsched/kestrel/internal/model"
	"github.com/kestrelsched/kestrel/internal/outputbuf"
	"github.com/kestrelsched/kestrel/internal/store"
	"github.com/kestrelsched/kestrel/internal/store/memstore"
)

func TestManager_Sync_AddsAndRemovesExecutors(t *testing.T) {
	st := memstore.New()
	buf := outputbuf.New(st, 10*time.Millisecond)
	defer buf.Close()
	m := New(st, buf)

	ctx := context.Background()
	task, err := st.CreateTask(ctx, store.TaskInput{
		Title:       "ping",
		Command:     "echo hi",
		TriggerType: model.TriggerInterval,
		TriggerArgs: json.RawMessage(`{"seconds": 3600}`),
	})
	require.NoError(t, err)

	require.NoError(t, m.Sync(ctx))

	m.mu.RLock()
	_, ok := m.entries[task.TaskID]
	m.mu.RUnlock()
	assert.True(t, ok)

	require.NoError(t, st.DeleteTask(ctx, task.TaskID))
	require.NoError(t, m.Sync(ctx))

	m.mu.RLock()
	_, ok = m.entries[task.TaskID]
	m.mu.RUnlock()
	assert.False(t, ok)
}

func TestManager_Sync_IdempotentWithoutChanges(t *testing.T) {
	st := memstore.New()
	buf := outputbuf.New(st, 10*time.Millisecond)
	defer buf.Close()
	m := New(st, buf)

	ctx := context.Background()
	task, err := st.CreateTask(ctx, store.TaskInput{
		Title:       "ping",
		Command:     "echo hi",
		TriggerType: model.TriggerInterval,
		TriggerArgs: json.RawMessage(`{"seconds": 3600}`),
	})
	require.NoError(t, err)

	require.NoError(t, m.Sync(ctx))
	m.mu.RLock()
	before := m.entries[task.TaskID].exec
	m.mu.RUnlock()

	require.NoError(t, m.Sync(ctx))
	m.mu.RLock()
	after := m.entries[task.TaskID].exec
	count := len(m.entries)
	m.mu.RUnlock()

	assert.Same(t, before, after)
	assert.Equal(t, 1, count)
}

func TestManager_Sync_RestartsExecutorOnSemanticChange(t *testing.T) {
	st := memstore.New()
	buf := outputbuf.New(st, 10*time.Millisecond)
	defer buf.Close()
	m := New(st, buf)

	ctx := context.Background()
	task, err := st.CreateTask(ctx, store.TaskInput{
		Title:       "ping",
		Command:     "echo hi",
		TriggerType: model.TriggerInterval,
		TriggerArgs: json.RawMessage(`{"seconds": 3600}`),
	})
	require.NoError(t, err)
	require.NoError(t, m.Sync(ctx))

	m.mu.RLock()
	before := m.entries[task.TaskID].exec
	m.mu.RUnlock()

	_, err = st.UpdateTask(ctx, task.TaskID, store.TaskInput{
		Title:       "ping renamed",
		Command:     "echo bye",
		TriggerType: model.TriggerInterval,
		TriggerArgs: json.RawMessage(`{"seconds": 3600}`),
	})
	require.NoError(t, err)
	require.NoError(t, m.Sync(ctx))

	m.mu.RLock()
	after := m.entries[task.TaskID].exec
	m.mu.RUnlock()
	assert.NotSame(t, before, after)
}

func TestManager_Sync_KeepsExecutorOnCosmeticChange(t *testing.T) {
	st := memstore.New()
	buf := outputbuf.New(st, 10*time.Millisecond)
	defer buf.Close()
	m := New(st, buf)

	ctx := context.Background()
	task, err := st.CreateTask(ctx, store.TaskInput{
		Title:       "ping",
		Command:     "echo hi",
		TriggerType: model.TriggerInterval,
		TriggerArgs: json.RawMessage(`{"seconds": 3600}`),
	})
	require.NoError(t, err)
	require.NoError(t, m.Sync(ctx))

	m.mu.RLock()
	before := m.entries[task.TaskID].exec
	m.mu.RUnlock()

	_, err = st.UpdateTask(ctx, task.TaskID, store.TaskInput{
		Title:       "ping renamed only",
		Command:     "echo hi",
		TriggerType: model.TriggerInterval,
		TriggerArgs: json.RawMessage(`{"seconds": 3600}`),
	})
	require.NoError(t, err)
	require.NoError(t, m.Sync(ctx))

	m.mu.RLock()
	after := m.entries[task.TaskID].exec
	m.mu.RUnlock()
	assert.Same(t, before, after)
}

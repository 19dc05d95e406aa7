package monitor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsched/kestrel/internal/model"
)

type collectingSink struct {
	mu    sync.Mutex
	lines []model.OutputLog
}

func (c *collectingSink) Add(line model.OutputLog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collectingSink) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, l := range c.lines {
		out = append(out, l.Message)
	}
	return out
}

func TestMonitor_Run_CapturesStdoutAndSucceeds(t *testing.T) {
	m := New()
	sink := &collectingSink{}

	res := m.Run(context.Background(), "echo hello", 1, sink)

	require.Equal(t, model.StatusFinished, res.Status)
	require.NotNil(t, res.ReturnCode)
	assert.Equal(t, 0, *res.ReturnCode)
	// line terminators are preserved in captured messages
	assert.Contains(t, sink.messages(), "hello\n")
}

func TestMonitor_Run_CapturesStderrAndFailure(t *testing.T) {
	m := New()
	sink := &collectingSink{}

	res := m.Run(context.Background(), "echo oops 1>&2; exit 3", 2, sink)

	require.Equal(t, model.StatusFailed, res.Status)
	require.NotNil(t, res.ReturnCode)
	assert.Equal(t, 3, *res.ReturnCode)

	var sawError bool
	for _, l := range sink.lines {
		if l.IsError && l.Message == "oops\n" {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

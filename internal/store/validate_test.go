package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsched/kestrel/internal/model"
)

func validInput() TaskInput {
	return TaskInput{
		Title:       "t",
		Command:     "echo hi",
		TriggerType: model.TriggerInterval,
		TriggerArgs: json.RawMessage(`{"seconds": 30}`),
	}
}

func TestValidateTaskInput(t *testing.T) {
	require.NoError(t, ValidateTaskInput(validInput()))

	tests := []struct {
		name   string
		mutate func(*TaskInput)
	}{
		{"empty title", func(in *TaskInput) { in.Title = "" }},
		{"empty command", func(in *TaskInput) { in.Command = "" }},
		{"unbalanced quotes", func(in *TaskInput) { in.Command = `echo "oops` }},
		{"zero interval", func(in *TaskInput) { in.TriggerArgs = json.RawMessage(`{}`) }},
		{"unknown trigger type", func(in *TaskInput) { in.TriggerType = "hourly" }},
		{"malformed cron", func(in *TaskInput) {
			in.TriggerType = model.TriggerCron
			in.TriggerArgs = json.RawMessage(`"often"`)
		}},
		{"malformed date", func(in *TaskInput) {
			in.TriggerType = model.TriggerDate
			in.TriggerArgs = json.RawMessage(`"yesterday"`)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			err := ValidateTaskInput(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

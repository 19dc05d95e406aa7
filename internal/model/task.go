// Package model defines the persisted entities of the scheduler: tasks,
// their execution history, and the output each execution produced.
package model

import "encoding/json"

// TriggerType names the kind of run-date iterator a Task uses.
type TriggerType string

const (
	TriggerCron     TriggerType = "cron"
	TriggerInterval TriggerType = "interval"
	TriggerDate     TriggerType = "date"
)

// Task is a registered, persisted unit of work: a shell command plus the
// trigger that decides when it runs.
type Task struct {
	TaskID      int64           `json:"task_id"`
	Title       string          `json:"title"`
	Descr       string          `json:"descr"`
	Command     string          `json:"command"`
	TriggerType TriggerType     `json:"trigger_type"`
	TriggerArgs json.RawMessage `json:"trigger_args"`
}

// Equal reports whether two tasks are semantically identical: same command
// and same trigger. Title and description are cosmetic and intentionally
// excluded — changing them must not restart the task's executor.
func (t Task) Equal(other Task) bool {
	if t.Command != other.Command || t.TriggerType != other.TriggerType {
		return false
	}
	return jsonEqual(t.TriggerArgs, other.TriggerArgs)
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return string(a) == string(b)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return string(a) == string(b)
	}
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return string(ab) == string(bb)
}

// IntervalArgs is the trigger_args payload for TriggerInterval. Any subset
// of the fields may be present; the summed duration must be positive.
// Fractional values are allowed ("seconds": 0.25 is a valid interval).
//
// Cron and date triggers carry no struct payload: their trigger_args is a
// bare JSON string (the cron expression, or an RFC 3339 instant).
type IntervalArgs struct {
	Weeks   float64 `json:"weeks,omitempty"`
	Days    float64 `json:"days,omitempty"`
	Hours   float64 `json:"hours,omitempty"`
	Minutes float64 `json:"minutes,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
}

// Package trigger computes the run-date sequence for a task's schedule:
// a cron expression, a fixed interval, or a single date.
package trigger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kestrelsched/kestrel/internal/model"
)

// Trigger produces the next scheduled instant after a reference time. Cron
// and interval triggers always return a time strictly later than after; a
// date trigger returns its configured instant whatever after is, so that
// instant may already lie in the past.
type Trigger interface {
	// Next returns the next run instant relative to the given time. ok is
	// false (with a nil error) only for a date trigger whose single instant
	// has already been yielded — a quiet, permanent no-op, not a failure.
	Next(after time.Time) (next time.Time, ok bool, err error)
}

// New constructs the Trigger for a task's trigger_type/trigger_args,
// anchoring interval triggers at the given creation instant. Cron and date
// args are bare JSON strings; interval args are a model.IntervalArgs object.
func New(kind model.TriggerType, args json.RawMessage, createdAt time.Time) (Trigger, error) {
	switch kind {
	case model.TriggerCron:
		var expr string
		if err := json.Unmarshal(args, &expr); err != nil {
			return nil, fmt.Errorf("trigger: invalid cron args: %w", err)
		}
		return NewCron(expr)
	case model.TriggerInterval:
		var a model.IntervalArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("trigger: invalid interval args: %w", err)
		}
		return NewInterval(a, createdAt)
	case model.TriggerDate:
		var at string
		if err := json.Unmarshal(args, &at); err != nil {
			return nil, fmt.Errorf("trigger: invalid date args: %w", err)
		}
		return NewDate(at)
	default:
		return nil, fmt.Errorf("trigger: unknown trigger_type %q", kind)
	}
}

// Validate checks that args are well-formed for kind without constructing a
// running Trigger (used by the store before a task is written).
func Validate(kind model.TriggerType, args json.RawMessage) error {
	_, err := New(kind, args, time.Now().UTC())
	return err
}

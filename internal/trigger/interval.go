package trigger

import (
	"fmt"
	"time"

	"github.com/kestrelsched/kestrel/internal/model"
)

// IntervalTrigger fires every fixed duration, anchored at the createdAt
// instant given to NewInterval (the manager passes the moment it builds the
// task's executor): every run is base + k*delta for some k >= 1, and Next
// returns the first such instant strictly after its argument, never at it.
type IntervalTrigger struct {
	base  time.Time
	delta time.Duration
}

func NewInterval(a model.IntervalArgs, createdAt time.Time) (*IntervalTrigger, error) {
	seconds := a.Weeks*7*24*3600 +
		a.Days*24*3600 +
		a.Hours*3600 +
		a.Minutes*60 +
		a.Seconds
	delta := time.Duration(seconds * float64(time.Second))
	if delta <= 0 {
		return nil, fmt.Errorf("trigger: interval must be positive, got weeks=%v days=%v hours=%v minutes=%v seconds=%v",
			a.Weeks, a.Days, a.Hours, a.Minutes, a.Seconds)
	}
	return &IntervalTrigger{base: createdAt, delta: delta}, nil
}

func (iv *IntervalTrigger) Next(after time.Time) (time.Time, bool, error) {
	if !after.After(iv.base) {
		return iv.base.Add(iv.delta), true, nil
	}
	elapsed := after.Sub(iv.base)
	k := elapsed/iv.delta + 1
	next := iv.base.Add(k * iv.delta)
	for !next.After(after) {
		next = next.Add(iv.delta)
	}
	return next, true, nil
}

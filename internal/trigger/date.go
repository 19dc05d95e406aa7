package trigger

import (
	"fmt"
	"time"
)

// DateTrigger fires exactly once, at a fixed instant. It yields the
// configured instant on the first Next call, then reports ok=false forever:
// exhaustion is a quiet, permanent no-op, not a fault.
type DateTrigger struct {
	at   time.Time
	done bool
}

func NewDate(at string) (*DateTrigger, error) {
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return nil, fmt.Errorf("trigger: invalid date %q: %w", at, err)
	}
	return &DateTrigger{at: t}, nil
}

func (d *DateTrigger) Next(after time.Time) (time.Time, bool, error) {
	if d.done {
		return time.Time{}, false, nil
	}
	d.done = true
	return d.at, true, nil
}

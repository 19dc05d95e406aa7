package trigger

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// CronTrigger fires at each instant a standard 5-field cron expression
// matches. Evaluation delegates to gronx, which handles lists, ranges,
// steps, and wildcards.
type CronTrigger struct {
	expr string
	gron gronx.Gronx
}

func NewCron(expr string) (*CronTrigger, error) {
	g := gronx.New()
	if !g.IsValid(expr) {
		return nil, fmt.Errorf("trigger: invalid cron expression %q", expr)
	}
	return &CronTrigger{expr: expr, gron: *g}, nil
}

func (c *CronTrigger) Next(after time.Time) (time.Time, bool, error) {
	next, err := gronx.NextTickAfter(c.expr, after, false)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("trigger: cron next tick: %w", err)
	}
	return next, true, nil
}

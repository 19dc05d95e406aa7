package trigger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsched/kestrel/internal/model"
)

func TestCronTrigger_Next(t *testing.T) {
	tr, err := NewCron("*/5 * * * *")
	require.NoError(t, err)

	after := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	next, ok, err := tr.Next(after)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, next.After(after))
	assert.Equal(t, 0, next.Minute()%5)
}

func TestCronTrigger_RejectsInvalidExpr(t *testing.T) {
	_, err := NewCron("not a cron expr")
	assert.Error(t, err)
}

func TestIntervalTrigger_AnchoredAtCreation(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, err := NewInterval(model.IntervalArgs{Minutes: 10}, created)
	require.NoError(t, err)

	next, ok, err := tr.Next(created)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created.Add(10*time.Minute), next)

	// Next() always strictly advances past "after", even mid-interval.
	mid := created.Add(25 * time.Minute)
	next2, ok2, err := tr.Next(mid)
	require.NoError(t, err)
	require.True(t, ok2)
	assert.Equal(t, created.Add(30*time.Minute), next2)
}

func TestIntervalTrigger_RejectsZeroSum(t *testing.T) {
	_, err := NewInterval(model.IntervalArgs{}, time.Now())
	assert.Error(t, err)
}

func TestIntervalTrigger_FractionalAndCompoundUnits(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tr, err := NewInterval(model.IntervalArgs{Seconds: 0.25}, created)
	require.NoError(t, err)
	next, ok, err := tr.Next(created)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created.Add(250*time.Millisecond), next)

	tr2, err := NewInterval(model.IntervalArgs{Weeks: 1, Days: 1}, created)
	require.NoError(t, err)
	next2, _, err := tr2.Next(created)
	require.NoError(t, err)
	assert.Equal(t, created.Add(8*24*time.Hour), next2)
}

func TestDateTrigger_FiresOnceThenExhausted(t *testing.T) {
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tr, err := NewDate(at.Format(time.RFC3339))
	require.NoError(t, err)

	next, ok, err := tr.Next(time.Time{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(next))

	_, ok2, err := tr.Next(next)
	require.NoError(t, err)
	assert.False(t, ok2)
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New("bogus", json.RawMessage(`{}`), time.Now())
	assert.Error(t, err)
}

func TestValidate_RoundTripsEachKind(t *testing.T) {
	require.NoError(t, Validate(model.TriggerCron, json.RawMessage(`"* * * * *"`)))
	require.NoError(t, Validate(model.TriggerInterval, json.RawMessage(`{"seconds":30}`)))
	require.NoError(t, Validate(model.TriggerDate, json.RawMessage(`"2030-01-01T00:00:00Z"`)))
	assert.Error(t, Validate(model.TriggerInterval, json.RawMessage(`{}`)))
	assert.Error(t, Validate(model.TriggerCron, json.RawMessage(`{"expr":"* * * * *"}`)))
}

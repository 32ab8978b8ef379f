package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/models"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
}

func newTestAdapter() *Adapter {
	a := New(nil, zap.NewNop())
	a.now = fixedNow
	return a
}

func TestQueryDefaultsToToday(t *testing.T) {
	a := newTestAdapter()
	res, err := a.Query(context.Background(), models.DomainQuery{Domain: "schedule", Operation: "search"}, nil)
	require.NoError(t, err)

	slots, ok := res.Result.Primary.([]slot)
	require.True(t, ok)
	require.NotEmpty(t, slots)
	assert.Equal(t, "2026-08-29", slots[0].Date)
	assert.True(t, res.Result.Metadata.DemoData)
	assert.NotEmpty(t, res.Insights)
}

func TestExecuteRequiresDateAndTime(t *testing.T) {
	a := newTestAdapter()
	_, err := a.Execute(context.Background(), models.Action{
		ID: "a1", Type: models.ActionSchedule, Operation: "schedule",
		Payload: map[string]interface{}{"work_order_id": "WO-1003", "date": "2026-09-01"},
	}, nil)
	require.ErrorIs(t, err, ErrDateTimeRequired)
}

func TestExecuteRejectsConflictingSlot(t *testing.T) {
	a := newTestAdapter()
	// 09:00 is taken by WO-1001 in the demo calendar
	_, err := a.Execute(context.Background(), models.Action{
		ID: "a2", Type: models.ActionSchedule, Operation: "schedule",
		Payload: map[string]interface{}{"work_order_id": "WO-1003", "date": "2026-09-01", "time": "09:00"},
	}, nil)
	require.ErrorIs(t, err, ErrSlotConflict)
}

func TestExecuteBooksFreeSlot(t *testing.T) {
	a := newTestAdapter()
	res, err := a.Execute(context.Background(), models.Action{
		ID: "a3", Type: models.ActionSchedule, Operation: "reschedule",
		Payload: map[string]interface{}{"work_order_id": "WO-1003", "date": "2026-09-01", "time": "11:00"},
	}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.RollbackAvailable)
}

func TestCurrentStateFindsExistingAppointment(t *testing.T) {
	a := newTestAdapter()
	state, err := a.CurrentState(context.Background(), models.Action{
		Payload: map[string]interface{}{"work_order_id": "WO-1001"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, state["scheduled"])
	assert.Equal(t, "09:00", state["time"])
}

func TestCurrentStateUnscheduledWorkOrder(t *testing.T) {
	a := newTestAdapter()
	state, err := a.CurrentState(context.Background(), models.Action{
		Payload: map[string]interface{}{"work_order_id": "WO-9999"},
	})
	require.NoError(t, err)
	assert.Equal(t, false, state["scheduled"])
}

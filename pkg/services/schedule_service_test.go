package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-ai/skein/pkg/models"
)

func TestComputeNextRun(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("never fired — anchored at creation", func(t *testing.T) {
		next := ComputeNextRun(models.ScheduleKindMinutes, 5, nil, nil, t0, t0)
		assert.Equal(t, t0.Add(5*time.Minute), next)
	})

	t.Run("never fired — anchor advanced past now", func(t *testing.T) {
		// Evaluated 12 minutes after creation, a 5-minute schedule lands on
		// the first slot after now.
		now := t0.Add(12 * time.Minute)
		next := ComputeNextRun(models.ScheduleKindMinutes, 5, nil, nil, t0, now)
		assert.Equal(t, t0.Add(15*time.Minute), next)
	})

	t.Run("never fired — slot landing exactly on now is kept", func(t *testing.T) {
		now := t0.Add(10 * time.Minute)
		next := ComputeNextRun(models.ScheduleKindMinutes, 5, nil, nil, t0, now)
		assert.Equal(t, now, next)
	})

	t.Run("never fired — explicit start_from", func(t *testing.T) {
		startFrom := t0.Add(time.Hour)
		next := ComputeNextRun(models.ScheduleKindHours, 2, &startFrom, nil, t0, t0)
		assert.Equal(t, startFrom.Add(2*time.Hour), next)
	})

	t.Run("fired before — one interval after last run", func(t *testing.T) {
		lastRun := t0.Add(12 * time.Minute)
		next := ComputeNextRun(models.ScheduleKindMinutes, 5, nil, &lastRun, t0, lastRun)
		assert.Equal(t, lastRun.Add(5*time.Minute), next)
	})

	t.Run("weeks", func(t *testing.T) {
		lastRun := t0
		next := ComputeNextRun(models.ScheduleKindWeeks, 2, nil, &lastRun, t0, t0)
		assert.Equal(t, t0.Add(2*7*24*time.Hour), next)
	})
}

func TestCreateScheduleValidation(t *testing.T) {
	svc := NewScheduleService(newTestDB(t))
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateScheduleRequest
	}{
		{"empty name", CreateScheduleRequest{AgentName: "a", Message: "m", Kind: models.ScheduleKindMinutes, Interval: 1}},
		{"empty agent", CreateScheduleRequest{Name: "n", Message: "m", Kind: models.ScheduleKindMinutes, Interval: 1}},
		{"empty message", CreateScheduleRequest{Name: "n", AgentName: "a", Kind: models.ScheduleKindMinutes, Interval: 1}},
		{"bad kind", CreateScheduleRequest{Name: "n", AgentName: "a", Message: "m", Kind: "days", Interval: 1}},
		{"zero interval", CreateScheduleRequest{Name: "n", AgentName: "a", Message: "m", Kind: models.ScheduleKindMinutes, Interval: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateSchedule(ctx, tc.req)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestScheduleCRUD(t *testing.T) {
	svc := NewScheduleService(newTestDB(t))
	ctx := context.Background()

	sched, err := svc.CreateSchedule(ctx, CreateScheduleRequest{
		Name: "nightly report", AgentName: "reporter", Message: "summarize the day",
		Kind: models.ScheduleKindHours, Interval: 24, Enabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "default", sched.ProjectDir)
	assert.Nil(t, sched.LastRunAt)
	assert.Equal(t, sched.CreatedAt.Add(24*time.Hour), sched.NextRunAt)

	got, err := svc.GetSchedule(ctx, sched.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, sched, got)

	all, err := svc.ListSchedules(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, svc.DeleteSchedule(ctx, sched.ScheduleID))
	_, err = svc.GetSchedule(ctx, sched.ScheduleID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.DeleteSchedule(ctx, sched.ScheduleID), ErrNotFound)
}

func TestDueSchedules(t *testing.T) {
	svc := NewScheduleService(newTestDB(t))
	ctx := context.Background()

	sched, err := svc.CreateSchedule(ctx, CreateScheduleRequest{
		Name: "s", AgentName: "a", Message: "m",
		Kind: models.ScheduleKindMinutes, Interval: 5, Enabled: true,
	})
	require.NoError(t, err)

	due, err := svc.DueSchedules(ctx, sched.CreatedAt)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = svc.DueSchedules(ctx, sched.CreatedAt.Add(6*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, sched.ScheduleID, due[0].ScheduleID)

	// Disabled schedules are never due.
	require.NoError(t, svc.SetScheduleEnabled(ctx, sched.ScheduleID, false))
	due, err = svc.DueSchedules(ctx, sched.CreatedAt.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkRun(t *testing.T) {
	svc := NewScheduleService(newTestDB(t))
	ctx := context.Background()

	sched, err := svc.CreateSchedule(ctx, CreateScheduleRequest{
		Name: "s", AgentName: "a", Message: "m",
		Kind: models.ScheduleKindMinutes, Interval: 5, Enabled: true,
	})
	require.NoError(t, err)

	firedAt := sched.CreatedAt.Add(12 * time.Minute)
	require.NoError(t, svc.MarkRun(ctx, sched.ScheduleID, firedAt))

	got, err := svc.GetSchedule(ctx, sched.ScheduleID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.Equal(t, firedAt, *got.LastRunAt)
	assert.Equal(t, firedAt.Add(5*time.Minute), got.NextRunAt)
}

func TestUpdateScheduleRecomputesNextRun(t *testing.T) {
	svc := NewScheduleService(newTestDB(t))
	ctx := context.Background()

	sched, err := svc.CreateSchedule(ctx, CreateScheduleRequest{
		Name: "s", AgentName: "a", Message: "m",
		Kind: models.ScheduleKindMinutes, Interval: 5, Enabled: true,
	})
	require.NoError(t, err)

	firedAt := sched.CreatedAt.Add(5 * time.Minute)
	require.NoError(t, svc.MarkRun(ctx, sched.ScheduleID, firedAt))

	// Changing the interval recomputes next_run_at from the current last_run_at.
	updated, err := svc.UpdateSchedule(ctx, sched.ScheduleID, UpdateScheduleRequest{
		Name: "s", AgentName: "a", Message: "m",
		Kind: models.ScheduleKindHours, Interval: 1, Enabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, firedAt.Add(time.Hour), updated.NextRunAt)
	assert.Equal(t, models.ScheduleKindHours, updated.Kind)
}

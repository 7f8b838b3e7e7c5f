// Package scheduler fires persisted schedules: roughly every 30 seconds it
// looks up schedules whose next run time has passed and starts the configured
// agent with the configured message.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/skein-ai/skein/pkg/agent/orchestrator"
	"github.com/skein-ai/skein/pkg/models"
	"github.com/skein-ai/skein/pkg/run"
	"github.com/skein-ai/skein/pkg/services"
)

// DefaultTickInterval is how often due schedules are checked.
const DefaultTickInterval = 30 * time.Second

// Runner drives the schedule loop. One instance per process.
type Runner struct {
	schedules *services.ScheduleService
	runs      *run.Manager
	interval  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a Runner. interval <= 0 selects DefaultTickInterval.
func NewRunner(schedules *services.ScheduleService, runs *run.Manager, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Runner{schedules: schedules, runs: runs, interval: interval}
}

// Start launches the background schedule loop.
func (r *Runner) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.loop(ctx)

	slog.Info("Schedule runner started", "interval", r.interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	slog.Info("Schedule runner stopped")
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	r.Tick(ctx, time.Now().UTC())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick fires every schedule due at now. Each fired schedule is marked as run
// even when the launch fails, so a broken agent cannot wedge the loop into
// refiring every tick.
func (r *Runner) Tick(ctx context.Context, now time.Time) {
	due, err := r.schedules.DueSchedules(ctx, now)
	if err != nil {
		slog.Error("failed to query due schedules", "error", err)
		return
	}

	for _, schedule := range due {
		r.fire(ctx, schedule, now)
	}
}

func (r *Runner) fire(ctx context.Context, schedule *models.Schedule, now time.Time) {
	logger := slog.With(
		"schedule_id", schedule.ScheduleID,
		"schedule", schedule.Name,
		"agent", schedule.AgentName,
		"project", schedule.ProjectDir,
	)

	runID, err := r.runs.StartRun(ctx, orchestrator.Request{
		AgentName:  schedule.AgentName,
		Message:    schedule.Message,
		ProjectDir: schedule.ProjectDir,
	})
	if err != nil {
		logger.Error("failed to launch scheduled run", "error", err)
	} else {
		logger.Info("scheduled run launched", "run_id", runID)
	}

	if err := r.schedules.MarkRun(ctx, schedule.ScheduleID, now); err != nil {
		logger.Error("failed to mark schedule as run", "error", err)
	}
}

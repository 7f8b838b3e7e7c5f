package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skein-ai/skein/pkg/models"
)

// ScheduleService persists recurring agent triggers and computes their firing
// times.
type ScheduleService struct {
	db *sql.DB
}

// NewScheduleService creates a ScheduleService on the shared database handle.
func NewScheduleService(db *sql.DB) *ScheduleService {
	return &ScheduleService{db: db}
}

// ComputeNextRun derives the next firing time for a schedule as of now.
// When the schedule has fired before, the next run is exactly one interval
// after the last run. Otherwise the anchor (startFrom, or createdAt when
// unset) is advanced interval by interval until the result is no earlier
// than now; a slot landing exactly on now is kept.
func ComputeNextRun(kind models.ScheduleKind, interval int, startFrom, lastRunAt *time.Time, createdAt, now time.Time) time.Time {
	delta := time.Duration(interval) * kind.Duration()
	if lastRunAt != nil {
		return lastRunAt.Add(delta)
	}
	anchor := createdAt
	if startFrom != nil {
		anchor = *startFrom
	}
	next := anchor.Add(delta)
	for next.Before(now) {
		next = next.Add(delta)
	}
	return next
}

// CreateScheduleRequest carries the fields for a new schedule.
type CreateScheduleRequest struct {
	Name       string
	ProjectDir string
	AgentName  string
	Message    string
	Kind       models.ScheduleKind
	Interval   int
	StartFrom  *time.Time
	Enabled    bool
}

func (r CreateScheduleRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name", "must not be empty")
	}
	if r.AgentName == "" {
		return NewValidationError("agent_name", "must not be empty")
	}
	if r.Message == "" {
		return NewValidationError("message", "must not be empty")
	}
	if !r.Kind.Valid() {
		return NewValidationError("kind", "must be minutes, hours, or weeks")
	}
	if r.Interval < 1 {
		return NewValidationError("interval", "must be at least 1")
	}
	return nil
}

// CreateSchedule inserts a new schedule with a derived next_run_at.
func (s *ScheduleService) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*models.Schedule, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.ProjectDir == "" {
		req.ProjectDir = "default"
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	sched := &models.Schedule{
		ScheduleID: uuid.New().String(),
		Name:       req.Name,
		ProjectDir: req.ProjectDir,
		AgentName:  req.AgentName,
		Message:    req.Message,
		Kind:       req.Kind,
		Interval:   req.Interval,
		StartFrom:  req.StartFrom,
		Enabled:    req.Enabled,
		NextRunAt:  ComputeNextRun(req.Kind, req.Interval, req.StartFrom, nil, now, now),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules
		 (schedule_id, name, project_dir, agent_name, message, kind, interval,
		  start_from, enabled, last_run_at, next_run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
		sched.ScheduleID, sched.Name, sched.ProjectDir, sched.AgentName, sched.Message,
		string(sched.Kind), sched.Interval, timePtrToMillis(sched.StartFrom),
		boolToInt(sched.Enabled), sched.NextRunAt.UnixMilli(),
		sched.CreatedAt.UnixMilli(), sched.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return sched, nil
}

// GetSchedule returns a schedule by ID, or ErrNotFound.
func (s *ScheduleService) GetSchedule(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx, scheduleSelect+` WHERE schedule_id = ?`, scheduleID)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %s: %w", scheduleID, ErrNotFound)
	}
	return sched, err
}

// ListSchedules returns schedules for a project (all projects when empty),
// ordered by next firing time.
func (s *ScheduleService) ListSchedules(ctx context.Context, projectDir string) ([]*models.Schedule, error) {
	query := scheduleSelect
	var args []any
	if projectDir != "" {
		query += ` WHERE project_dir = ?`
		args = append(args, projectDir)
	}
	query += ` ORDER BY next_run_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// DueSchedules returns enabled schedules whose next_run_at has passed, ordered
// by next_run_at.
func (s *ScheduleService) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		scheduleSelect+` WHERE enabled = 1 AND next_run_at <= ? ORDER BY next_run_at`,
		now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("due schedules: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// UpdateScheduleRequest carries updatable schedule fields.
type UpdateScheduleRequest struct {
	Name      string
	AgentName string
	Message   string
	Kind      models.ScheduleKind
	Interval  int
	StartFrom *time.Time
	Enabled   bool
}

// UpdateSchedule replaces the schedule's definition and recomputes next_run_at
// with the current last_run_at.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, scheduleID string, req UpdateScheduleRequest) (*models.Schedule, error) {
	create := CreateScheduleRequest{
		Name: req.Name, AgentName: req.AgentName, Message: req.Message,
		Kind: req.Kind, Interval: req.Interval,
	}
	if err := create.validate(); err != nil {
		return nil, err
	}

	existing, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	nextRun := ComputeNextRun(req.Kind, req.Interval, req.StartFrom, existing.LastRunAt, existing.CreatedAt, now)

	_, err = s.db.ExecContext(ctx,
		`UPDATE schedules
		 SET name = ?, agent_name = ?, message = ?, kind = ?, interval = ?,
		     start_from = ?, enabled = ?, next_run_at = ?, updated_at = ?
		 WHERE schedule_id = ?`,
		req.Name, req.AgentName, req.Message, string(req.Kind), req.Interval,
		timePtrToMillis(req.StartFrom), boolToInt(req.Enabled),
		nextRun.UnixMilli(), now.UnixMilli(), scheduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return s.GetSchedule(ctx, scheduleID)
}

// SetScheduleEnabled toggles a schedule without touching its timing.
func (s *ScheduleService) SetScheduleEnabled(ctx context.Context, scheduleID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET enabled = ?, updated_at = ? WHERE schedule_id = ?`,
		boolToInt(enabled), time.Now().UTC().UnixMilli(), scheduleID)
	if err != nil {
		return fmt.Errorf("set schedule enabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %s: %w", scheduleID, ErrNotFound)
	}
	return nil
}

// MarkRun records a firing at now: last_run_at = now and next_run_at = now + Δ.
// Called after every launch attempt, successful or not, so a permanently
// failing schedule cannot stall the due queue.
func (s *ScheduleService) MarkRun(ctx context.Context, scheduleID string, now time.Time) error {
	sched, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	now = now.UTC().Truncate(time.Millisecond)
	nextRun := ComputeNextRun(sched.Kind, sched.Interval, sched.StartFrom, &now, sched.CreatedAt, now)

	_, err = s.db.ExecContext(ctx,
		`UPDATE schedules SET last_run_at = ?, next_run_at = ?, updated_at = ? WHERE schedule_id = ?`,
		now.UnixMilli(), nextRun.UnixMilli(), now.UnixMilli(), scheduleID)
	if err != nil {
		return fmt.Errorf("mark schedule run: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, scheduleID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE schedule_id = ?`, scheduleID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %s: %w", scheduleID, ErrNotFound)
	}
	return nil
}

const scheduleSelect = `SELECT schedule_id, name, project_dir, agent_name, message, kind, interval,
       start_from, enabled, last_run_at, next_run_at, created_at, updated_at
FROM schedules`

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var sched models.Schedule
	var kind string
	var startFrom, lastRunAt sql.NullInt64
	var enabled int
	var nextRunAt, createdAt, updatedAt int64

	err := row.Scan(&sched.ScheduleID, &sched.Name, &sched.ProjectDir, &sched.AgentName,
		&sched.Message, &kind, &sched.Interval, &startFrom, &enabled,
		&lastRunAt, &nextRunAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sched.Kind = models.ScheduleKind(kind)
	sched.StartFrom = millisPtrToTime(startFrom)
	sched.Enabled = enabled != 0
	sched.LastRunAt = millisPtrToTime(lastRunAt)
	sched.NextRunAt = time.UnixMilli(nextRunAt).UTC()
	sched.CreatedAt = time.UnixMilli(createdAt).UTC()
	sched.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &sched, nil
}

func scanSchedules(rows *sql.Rows) ([]*models.Schedule, error) {
	var schedules []*models.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, sched)
	}
	return schedules, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtrToMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func millisPtrToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/skein-ai/skein/pkg/models"
)

// ExecutionService persists agent runs and tool invocations and answers the
// ancestor/descendant queries used for subtree cancellation and the execution
// tree view.
type ExecutionService struct {
	db *sql.DB
}

// NewExecutionService creates an ExecutionService on the shared database handle.
func NewExecutionService(db *sql.DB) *ExecutionService {
	return &ExecutionService{db: db}
}

// CreateAgentRunRequest carries the fields for a new agent run row.
type CreateAgentRunRequest struct {
	AgentName       string
	ParentRunID     *string
	ParentAgentName string
	CallMode        models.CallMode
	ProjectDir      string
}

// CreateAgentRun inserts a new run in state "generating" and returns it.
// The run ID is a fresh UUID; StartedAt is truncated to millisecond precision
// so a round-trip through the store returns identical values.
func (s *ExecutionService) CreateAgentRun(ctx context.Context, req CreateAgentRunRequest) (*models.AgentRun, error) {
	if req.AgentName == "" {
		return nil, NewValidationError("agent_name", "must not be empty")
	}
	if req.ParentAgentName == "" {
		req.ParentAgentName = models.RootAgentName
	}
	if req.CallMode == "" {
		req.CallMode = models.CallModeSynchronous
	}
	if req.ProjectDir == "" {
		req.ProjectDir = "default"
	}

	run := &models.AgentRun{
		RunID:           uuid.New().String(),
		AgentName:       req.AgentName,
		ParentRunID:     req.ParentRunID,
		ParentAgentName: req.ParentAgentName,
		StartedAt:       time.Now().UTC().Truncate(time.Millisecond),
		CurrentState:    models.RunStateGenerating,
		CallMode:        req.CallMode,
		ProjectDir:      req.ProjectDir,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_executions
		 (run_id, agent_name, parent_run_id, parent_agent_name, started_at, current_state, call_mode, project_dir)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.AgentName, run.ParentRunID, run.ParentAgentName,
		run.StartedAt.UnixMilli(), string(run.CurrentState), string(run.CallMode), run.ProjectDir,
	)
	if err != nil {
		return nil, fmt.Errorf("create agent run: %w", err)
	}
	return run, nil
}

// GetAgentRun returns a run by ID, or ErrNotFound.
func (s *ExecutionService) GetAgentRun(ctx context.Context, runID string) (*models.AgentRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, agent_name, parent_run_id, parent_agent_name, started_at,
		        completed_at, current_state, call_mode, project_dir, log_file
		 FROM agent_executions WHERE run_id = ?`, runID)
	run, err := scanAgentRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

// ListAgentRuns returns runs for a project, most recent first. A zero limit
// means no limit.
func (s *ExecutionService) ListAgentRuns(ctx context.Context, projectDir string, limit int) ([]*models.AgentRun, error) {
	query := `SELECT run_id, agent_name, parent_run_id, parent_agent_name, started_at,
	                 completed_at, current_state, call_mode, project_dir, log_file
	          FROM agent_executions WHERE project_dir = ? ORDER BY started_at DESC, run_id DESC`
	args := []any{projectDir}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agent runs: %w", err)
	}
	defer rows.Close()
	return scanAgentRuns(rows)
}

// ListRunningAgentRuns returns all runs with no completion timestamp, across
// every project, oldest first.
func (s *ExecutionService) ListRunningAgentRuns(ctx context.Context) ([]*models.AgentRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, agent_name, parent_run_id, parent_agent_name, started_at,
		        completed_at, current_state, call_mode, project_dir, log_file
		 FROM agent_executions WHERE completed_at IS NULL ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list running agent runs: %w", err)
	}
	defer rows.Close()
	return scanAgentRuns(rows)
}

// UpdateRunState records a new lifecycle state for a run. Completed runs are
// never moved back; the state machine is monotone.
func (s *ExecutionService) UpdateRunState(ctx context.Context, runID string, state models.RunState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_executions SET current_state = ? WHERE run_id = ? AND completed_at IS NULL`,
		string(state), runID)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Debug("Run state update skipped", "run_id", runID, "state", state)
	}
	return nil
}

// SetRunLogFile records the log file path on a run row.
func (s *ExecutionService) SetRunLogFile(ctx context.Context, runID, logFile string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agent_executions SET log_file = ? WHERE run_id = ?`, logFile, runID)
	if err != nil {
		return fmt.Errorf("set run log file: %w", err)
	}
	return nil
}

// CompleteAgentRun marks a run completed. Idempotent: an already-completed run
// keeps its original completion timestamp.
func (s *ExecutionService) CompleteAgentRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agent_executions
		 SET current_state = ?, completed_at = ?
		 WHERE run_id = ? AND completed_at IS NULL`,
		string(models.RunStateCompleted), time.Now().UTC().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("complete agent run: %w", err)
	}
	return nil
}

// CompleteAllRunning marks every uncompleted run as completed. When projectDir
// is non-empty, only that project's runs are touched. Returns the number of
// rows updated. Used by stop-all and by startup orphan reclaim.
func (s *ExecutionService) CompleteAllRunning(ctx context.Context, projectDir string) (int, error) {
	query := `UPDATE agent_executions SET current_state = ?, completed_at = ? WHERE completed_at IS NULL`
	args := []any{string(models.RunStateCompleted), time.Now().UTC().UnixMilli()}
	if projectDir != "" {
		query += ` AND project_dir = ?`
		args = append(args, projectDir)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("complete running runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Descendants returns the transitive children of rootRunID (excluding the root
// itself), breadth-first over the parent_run_id edges. Cycles cannot exist
// because a child's parent row predates the child.
func (s *ExecutionService) Descendants(ctx context.Context, rootRunID string) ([]*models.AgentRun, error) {
	var result []*models.AgentRun
	frontier := []string{rootRunID}

	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]

		rows, err := s.db.QueryContext(ctx,
			`SELECT run_id, agent_name, parent_run_id, parent_agent_name, started_at,
			        completed_at, current_state, call_mode, project_dir, log_file
			 FROM agent_executions WHERE parent_run_id = ?`, next)
		if err != nil {
			return nil, fmt.Errorf("query children of %s: %w", next, err)
		}
		children, err := scanAgentRuns(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			result = append(result, child)
			frontier = append(frontier, child.RunID)
		}
	}
	return result, nil
}

// ExecutionTree returns the run rooted at rootRunID with all descendants
// resolved recursively.
func (s *ExecutionService) ExecutionTree(ctx context.Context, rootRunID string) (*models.ExecutionTreeNode, error) {
	root, err := s.GetAgentRun(ctx, rootRunID)
	if err != nil {
		return nil, err
	}

	descendants, err := s.Descendants(ctx, rootRunID)
	if err != nil {
		return nil, err
	}
	byParent := make(map[string][]*models.AgentRun)
	for _, run := range descendants {
		if run.ParentRunID != nil {
			byParent[*run.ParentRunID] = append(byParent[*run.ParentRunID], run)
		}
	}

	var build func(run *models.AgentRun) models.ExecutionTreeNode
	build = func(run *models.AgentRun) models.ExecutionTreeNode {
		node := models.ExecutionTreeNode{Run: *run, Children: []models.ExecutionTreeNode{}}
		for _, child := range byParent[run.RunID] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}
	tree := build(root)
	return &tree, nil
}

// CreateToolInvocation inserts a started tool invocation row and returns it.
func (s *ExecutionService) CreateToolInvocation(ctx context.Context, runID, toolName, parameters string, callMode models.CallMode) (*models.ToolInvocation, error) {
	inv := &models.ToolInvocation{
		InvocationID: uuid.New().String(),
		RunID:        runID,
		ToolName:     toolName,
		Parameters:   parameters,
		CallMode:     callMode,
		StartedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_executions (invocation_id, run_id, tool_name, parameters, call_mode, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		inv.InvocationID, inv.RunID, inv.ToolName, inv.Parameters,
		string(inv.CallMode), inv.StartedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("create tool invocation: %w", err)
	}
	return inv, nil
}

// CompleteToolInvocation records the result and completion timestamp together.
func (s *ExecutionService) CompleteToolInvocation(ctx context.Context, invocationID, result string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tool_executions SET completed_at = ?, result = ? WHERE invocation_id = ? AND completed_at IS NULL`,
		time.Now().UTC().UnixMilli(), result, invocationID)
	if err != nil {
		return fmt.Errorf("complete tool invocation: %w", err)
	}
	return nil
}

// ListToolInvocations returns all invocations issued by a run, oldest first.
func (s *ExecutionService) ListToolInvocations(ctx context.Context, runID string) ([]*models.ToolInvocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT invocation_id, run_id, tool_name, parameters, call_mode, started_at, completed_at, result
		 FROM tool_executions WHERE run_id = ? ORDER BY started_at, invocation_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tool invocations: %w", err)
	}
	defer rows.Close()

	var invocations []*models.ToolInvocation
	for rows.Next() {
		var inv models.ToolInvocation
		var startedAt int64
		var completedAt sql.NullInt64
		var result sql.NullString
		var callMode string
		if err := rows.Scan(&inv.InvocationID, &inv.RunID, &inv.ToolName, &inv.Parameters,
			&callMode, &startedAt, &completedAt, &result); err != nil {
			return nil, fmt.Errorf("scan tool invocation: %w", err)
		}
		inv.CallMode = models.CallMode(callMode)
		inv.StartedAt = time.UnixMilli(startedAt).UTC()
		if completedAt.Valid {
			t := time.UnixMilli(completedAt.Int64).UTC()
			inv.CompletedAt = &t
		}
		if result.Valid {
			v := result.String
			inv.Result = &v
		}
		invocations = append(invocations, &inv)
	}
	return invocations, rows.Err()
}

// PruneCompletedRuns deletes runs completed before the cutoff, along with
// their tool invocations. Returns the pruned runs' log file paths so the
// caller can remove the files too.
func (s *ExecutionService) PruneCompletedRuns(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, log_file FROM agent_executions
		 WHERE completed_at IS NOT NULL AND completed_at <= ?`, cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("select prunable runs: %w", err)
	}

	var runIDs []string
	var logFiles []string
	for rows.Next() {
		var runID string
		var logFile sql.NullString
		if err := rows.Scan(&runID, &logFile); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan prunable run: %w", err)
		}
		runIDs = append(runIDs, runID)
		if logFile.Valid && logFile.String != "" {
			logFiles = append(logFiles, logFile.String)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, runID := range runIDs {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM tool_executions WHERE run_id = ?`, runID); err != nil {
			return nil, fmt.Errorf("prune tool invocations: %w", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM agent_executions WHERE run_id = ?`, runID); err != nil {
			return nil, fmt.Errorf("prune run: %w", err)
		}
	}
	return logFiles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgentRun(row rowScanner) (*models.AgentRun, error) {
	var run models.AgentRun
	var parentRunID, logFile sql.NullString
	var startedAt int64
	var completedAt sql.NullInt64
	var state, callMode string

	err := row.Scan(&run.RunID, &run.AgentName, &parentRunID, &run.ParentAgentName,
		&startedAt, &completedAt, &state, &callMode, &run.ProjectDir, &logFile)
	if err != nil {
		return nil, err
	}
	if parentRunID.Valid {
		run.ParentRunID = &parentRunID.String
	}
	if logFile.Valid {
		run.LogFile = &logFile.String
	}
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64).UTC()
		run.CompletedAt = &t
	}
	run.CurrentState = models.RunState(state)
	run.CallMode = models.CallMode(callMode)
	return &run, nil
}

func scanAgentRuns(rows *sql.Rows) ([]*models.AgentRun, error) {
	var runs []*models.AgentRun
	for rows.Next() {
		run, err := scanAgentRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

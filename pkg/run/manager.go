// Package run tracks live agent runs and provides stop semantics: individual
// subtrees via the parent edges, whole projects, or everything at once.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skein-ai/skein/pkg/agent/orchestrator"
	"github.com/skein-ai/skein/pkg/services"
)

// Manager owns the cancel functions of in-flight runs. Register it on the
// orchestrator's OnRunStarted/OnRunFinished hooks so sub-agent runs are
// tracked alongside top-level ones.
type Manager struct {
	executions *services.ExecutionService

	mu      sync.RWMutex
	cancels map[string]context.CancelFunc
	orc     *orchestrator.Orchestrator

	wg sync.WaitGroup
}

// NewManager creates a Manager. SetOrchestrator must be called before
// StartRun.
func NewManager(executions *services.ExecutionService) *Manager {
	return &Manager{
		executions: executions,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// SetOrchestrator wires the orchestrator used by StartRun. Separate from the
// constructor because the orchestrator's deps reference Track/Untrack.
func (m *Manager) SetOrchestrator(orc *orchestrator.Orchestrator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orc = orc
}

// Track registers a run's cancel function. Called by the orchestrator when a
// run starts.
func (m *Manager) Track(runID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[runID] = cancel
}

// Untrack drops a finished run.
func (m *Manager) Untrack(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, runID)
}

// ActiveCount returns how many runs are currently tracked.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cancels)
}

// StartRun prepares a run, returns its ID, and drives it in the background.
func (m *Manager) StartRun(ctx context.Context, req orchestrator.Request) (string, error) {
	m.mu.RLock()
	orc := m.orc
	m.mu.RUnlock()
	if orc == nil {
		return "", fmt.Errorf("run manager has no orchestrator")
	}

	prepared, err := orc.Prepare(ctx, req)
	if err != nil {
		return "", err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		result := prepared.Execute(context.Background())
		slog.Info("background run finished",
			"run_id", result.RunID, "iterations", result.TotalIterations,
			"session_ended", result.SessionEnded)
	}()
	return prepared.ID(), nil
}

// StopTree cancels a run and every transitive child, then marks them all
// completed. Untracked descendants (crashed or orphaned) are still completed
// in the store. Returns the number of runs touched.
func (m *Manager) StopTree(ctx context.Context, runID string) (int, error) {
	if _, err := m.executions.GetAgentRun(ctx, runID); err != nil {
		return 0, err
	}

	descendants, err := m.executions.Descendants(ctx, runID)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(descendants)+1)
	ids = append(ids, runID)
	for _, d := range descendants {
		ids = append(ids, d.RunID)
	}

	m.mu.RLock()
	for _, id := range ids {
		if cancel, ok := m.cancels[id]; ok {
			cancel()
		}
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.executions.CompleteAgentRun(ctx, id); err != nil {
			slog.Warn("failed to complete run during stop", "run_id", id, "error", err)
		}
	}
	slog.Info("stopped run tree", "root", runID, "runs", len(ids))
	return len(ids), nil
}

// StopAll cancels every tracked run and completes all running rows. With a
// non-empty projectDir only that project's runs are stopped. Idempotent: a
// second call finds nothing to stop and returns 0.
func (m *Manager) StopAll(ctx context.Context, projectDir string) (int, error) {
	running, err := m.executions.ListRunningAgentRuns(ctx)
	if err != nil {
		return 0, err
	}

	// Rows are completed before the cancels fire: a cancelled run's own
	// finalize would otherwise complete its row first and the count here
	// would miss it.
	n, err := m.executions.CompleteAllRunning(ctx, projectDir)
	if err != nil {
		return 0, err
	}

	m.mu.RLock()
	for _, r := range running {
		if projectDir != "" && r.ProjectDir != projectDir {
			continue
		}
		if cancel, ok := m.cancels[r.RunID]; ok {
			cancel()
		}
	}
	m.mu.RUnlock()

	if n > 0 {
		slog.Info("stopped running agents", "project", projectDir, "runs", n)
	}
	return n, nil
}

// ReclaimOrphans completes any runs left open by a previous process. Called
// once at startup, before the API accepts traffic.
func (m *Manager) ReclaimOrphans(ctx context.Context) (int, error) {
	n, err := m.executions.CompleteAllRunning(ctx, "")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Warn("reclaimed orphaned runs from previous process", "runs", n)
	}
	return n, nil
}

// Shutdown stops every run and waits for background goroutines to drain, or
// for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	if _, err := m.StopAll(ctx, ""); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skein-ai/skein/pkg/database"
	"github.com/skein-ai/skein/pkg/services"
)

func newTestExecutions(t *testing.T) *services.ExecutionService {
	t.Helper()
	client, err := database.NewClient(context.Background(),
		database.Config{Path: filepath.Join(t.TempDir(), "skein.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return services.NewExecutionService(client.DB())
}

func TestSweepPrunesOldCompletedRuns(t *testing.T) {
	executions := newTestExecutions(t)
	ctx := context.Background()

	old, err := executions.CreateAgentRun(ctx, services.CreateAgentRunRequest{AgentName: "reporter"})
	require.NoError(t, err)
	logFile := filepath.Join(t.TempDir(), old.RunID+".json")
	require.NoError(t, os.WriteFile(logFile, []byte("{}"), 0o644))
	require.NoError(t, executions.SetRunLogFile(ctx, old.RunID, logFile))
	require.NoError(t, executions.CompleteAgentRun(ctx, old.RunID))

	inv, err := executions.CreateToolInvocation(ctx, old.RunID, "calculator", `{}`, "synchronous")
	require.NoError(t, err)
	require.NoError(t, executions.CompleteToolInvocation(ctx, inv.InvocationID, "4"))

	fresh, err := executions.CreateAgentRun(ctx, services.CreateAgentRunRequest{AgentName: "reporter"})
	require.NoError(t, err)

	svc := NewService(executions, 24*time.Hour, time.Hour)
	svc.Sweep(ctx, time.Now().UTC().Add(48*time.Hour))

	_, err = executions.GetAgentRun(ctx, old.RunID)
	require.ErrorIs(t, err, services.ErrNotFound)
	_, err = os.Stat(logFile)
	require.True(t, os.IsNotExist(err))

	invocations, err := executions.ListToolInvocations(ctx, old.RunID)
	require.NoError(t, err)
	require.Empty(t, invocations)

	// The running run survives, retention only applies after completion.
	got, err := executions.GetAgentRun(ctx, fresh.RunID)
	require.NoError(t, err)
	require.False(t, got.Completed())
}

func TestSweepKeepsRunsInsideRetention(t *testing.T) {
	executions := newTestExecutions(t)
	ctx := context.Background()

	run, err := executions.CreateAgentRun(ctx, services.CreateAgentRunRequest{AgentName: "reporter"})
	require.NoError(t, err)
	require.NoError(t, executions.CompleteAgentRun(ctx, run.RunID))

	svc := NewService(executions, 24*time.Hour, time.Hour)
	svc.Sweep(ctx, time.Now().UTC())

	_, err = executions.GetAgentRun(ctx, run.RunID)
	require.NoError(t, err)
}

func TestStartStop(t *testing.T) {
	executions := newTestExecutions(t)

	svc := NewService(executions, 24*time.Hour, time.Hour)
	svc.Start(context.Background())
	svc.Stop()
	svc.Stop()
}

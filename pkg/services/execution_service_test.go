package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-ai/skein/pkg/models"
)

func TestCreateAndGetAgentRun(t *testing.T) {
	svc := NewExecutionService(newTestDB(t))
	ctx := context.Background()

	run, err := svc.CreateAgentRun(ctx, CreateAgentRunRequest{AgentName: "researcher"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, models.RootAgentName, run.ParentAgentName)
	assert.Equal(t, models.RunStateGenerating, run.CurrentState)
	assert.Equal(t, models.CallModeSynchronous, run.CallMode)
	assert.Equal(t, "default", run.ProjectDir)
	assert.Nil(t, run.CompletedAt)

	got, err := svc.GetAgentRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run, got)
}

func TestCreateAgentRunValidation(t *testing.T) {
	svc := NewExecutionService(newTestDB(t))

	_, err := svc.CreateAgentRun(context.Background(), CreateAgentRunRequest{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestGetAgentRunNotFound(t *testing.T) {
	svc := NewExecutionService(newTestDB(t))

	_, err := svc.GetAgentRun(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteAgentRunIdempotent(t *testing.T) {
	svc := NewExecutionService(newTestDB(t))
	ctx := context.Background()

	run, err := svc.CreateAgentRun(ctx, CreateAgentRunRequest{AgentName: "a"})
	require.NoError(t, err)

	require.NoError(t, svc.CompleteAgentRun(ctx, run.RunID))
	first, err := svc.GetAgentRun(ctx, run.RunID)
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)
	assert.Equal(t, models.RunStateCompleted, first.CurrentState)

	// Second completion keeps the original timestamp.
	require.NoError(t, svc.CompleteAgentRun(ctx, run.RunID))
	second, err := svc.GetAgentRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, first.CompletedAt, second.CompletedAt)
}

func TestUpdateRunStateSkipsCompletedRuns(t *testing.T) {
	svc := NewExecutionService(newTestDB(t))
	ctx := context.Background()

	run, err := svc.CreateAgentRun(ctx, CreateAgentRunRequest{AgentName: "a"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateRunState(ctx, run.RunID, models.RunStateWaiting))
	got, err := svc.GetAgentRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateWaiting, got.CurrentState)

	require.NoError(t, svc.CompleteAgentRun(ctx, run.RunID))
	require.NoError(t, svc.UpdateRunState(ctx, run.RunID, models.RunStateGenerating))
	got, err = svc.GetAgentRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCompleted, got.CurrentState)
}

func TestDescendants(t *testing.T) {
	svc := NewExecutionService(newTestDB(t))
	ctx := context.Background()

	root, err := svc.CreateAgentRun(ctx, CreateAgentRunRequest{AgentName: "root-agent"})
	require.NoError(t, err)
	child, err := svc.CreateAgentRun(ctx, CreateAgentRunRequest{
		AgentName: "child", ParentRunID: &root.RunID, ParentAgentName: "root-agent",
	})
	require.NoError(t, err)
	grandchild, err := svc.CreateAgentRun(ctx, CreateAgentRunRequest{
		AgentName: "grandchild", ParentRunID: &child.RunID, ParentAgentName: "child",
	})
	require.NoError(t, err)

	// Unrelated run must not appear.
	other, err := svc.CreateAgentRun(ctx, CreateAgentRunRequest{AgentName: "other"})
	require.NoError(t, err)

	descendants, err := svc.Descendants(ctx, root.RunID)
	require.NoError(t, err)

	ids := make([]string, 0, len(descendants))
	for _, d := range descendants {
		ids = append(ids, d.RunID)
	}
	assert.ElementsMatch(t, []string{child.RunID, grandchild.RunID}, ids)
	assert.NotContains(t, ids, other.RunID)
}

func TestExecutionTree(t *testing.T) {
	svc := NewExecutionService(newTestDB(t))
	ctx := context.Background()

	root, err := svc.CreateAgentRun(ctx, CreateAgentRunRequest{AgentName: "root-agent"})
	require.NoError(t, err)
	c1, err := svc.CreateAgentRun(ctx, CreateAgentRunRequest{
		AgentName: "c1", ParentRunID: &root.RunID, ParentAgentName: "root-agent",
	})
	require.NoError(t, err)
	_, err = svc.CreateAgentRun(ctx, CreateAgentRunRequest{
		AgentName: "c2", ParentRunID: &root.RunID, ParentAgentName: "root-agent",
	})
	require.NoError(t, err)
	_, err = svc.CreateAgentRun(ctx, CreateAgentRunRequest{
		AgentName: "g1", ParentRunID: &c1.RunID, ParentAgentName: "c1",
	})
	require.NoError(t, err)

	tree, err := svc.ExecutionTree(ctx, root.RunID)
	require.NoError(t, err)
	assert.Equal(t, root.RunID, tree.Run.RunID)
	require.Len(t, tree.Children, 2)

	var c1Node *models.ExecutionTreeNode
	for i := range tree.Children {
		if tree.Children[i].Run.AgentName == "c1" {
			c1Node = &tree.Children[i]
		}
	}
	require.NotNil(t, c1Node)
	require.Len(t, c1Node.Children, 1)
	assert.Equal(t, "g1", c1Node.Children[0].Run.AgentName)
}

func TestCompleteAllRunning(t *testing.T) {
	svc := NewExecutionService(newTestDB(t))
	ctx := context.Background()

	_, err := svc.CreateAgentRun(ctx, CreateAgentRunRequest{AgentName: "a", ProjectDir: "p1"})
	require.NoError(t, err)
	_, err = svc.CreateAgentRun(ctx, CreateAgentRunRequest{AgentName: "b", ProjectDir: "p2"})
	require.NoError(t, err)

	n, err := svc.CompleteAllRunning(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	running, err := svc.ListRunningAgentRuns(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "b", running[0].AgentName)

	n, err = svc.CompleteAllRunning(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Idempotent: a second stop-all changes nothing.
	n, err = svc.CompleteAllRunning(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestToolInvocationLifecycle(t *testing.T) {
	svc := NewExecutionService(newTestDB(t))
	ctx := context.Background()

	run, err := svc.CreateAgentRun(ctx, CreateAgentRunRequest{AgentName: "a"})
	require.NoError(t, err)

	inv, err := svc.CreateToolInvocation(ctx, run.RunID, "calc", `{"op":"add"}`, models.CallModeSynchronous)
	require.NoError(t, err)
	assert.Nil(t, inv.CompletedAt)
	assert.Nil(t, inv.Result)

	require.NoError(t, svc.CompleteToolInvocation(ctx, inv.InvocationID, "5"))

	invocations, err := svc.ListToolInvocations(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, invocations, 1)

	got := invocations[0]
	// completed_at and result are set together.
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Result)
	assert.Equal(t, "5", *got.Result)
	assert.Equal(t, `{"op":"add"}`, got.Parameters)
}

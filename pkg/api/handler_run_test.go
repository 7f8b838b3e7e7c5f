package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skein-ai/skein/pkg/models"
	"github.com/skein-ai/skein/pkg/services"
)

func TestRunAgentHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.saveAgent(t, "reporter", "You report.")

	rec := ts.do(t, http.MethodPost, "/api/agents/run", RunAgentRequest{
		AgentName: "reporter",
		Message:   "write the report",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[RunStartedResponse](t, rec)
	require.NotEmpty(t, resp.RunID)
	require.Equal(t, "reporter", resp.AgentName)
	require.Equal(t, "started", resp.Status)

	require.Eventually(t, func() bool {
		run, err := ts.executions.GetAgentRun(context.Background(), resp.RunID)
		return err == nil && run.Completed()
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunAgentHandlerValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/agents/run", RunAgentRequest{Message: "hi"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/agents/run", RunAgentRequest{AgentName: "reporter"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunAgentHandlerUnknownAgent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/agents/run", RunAgentRequest{
		AgentName: "ghost",
		Message:   "hello",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStopAllHandlerNoRuns(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/agents/stop-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[StopResponse](t, rec)
	require.Equal(t, 0, resp.StoppedCount)
}

func TestStopAllHandlerUnknownProject(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/agents/stop-all?project=ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStopTreeHandler(t *testing.T) {
	ts := newTestServer(t)

	run, err := ts.executions.CreateAgentRun(context.Background(), services.CreateAgentRunRequest{AgentName: "reporter"})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/agents/stop/"+run.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[StopResponse](t, rec)
	require.Equal(t, 1, resp.StoppedCount)

	stopped, err := ts.executions.GetAgentRun(context.Background(), run.RunID)
	require.NoError(t, err)
	require.True(t, stopped.Completed())
	require.Equal(t, models.RunStateCompleted, stopped.CurrentState)
}

func TestStopTreeHandlerUnknownRun(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/agents/stop/ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

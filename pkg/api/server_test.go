package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skein-ai/skein/pkg/agent/orchestrator"
	"github.com/skein-ai/skein/pkg/database"
	"github.com/skein-ai/skein/pkg/llm"
	"github.com/skein-ai/skein/pkg/run"
	"github.com/skein-ai/skein/pkg/services"
	"github.com/skein-ai/skein/pkg/tools"
)

const endSessionDone = `<tool_call>
<tool_name>end_session</tool_name>
<parameters>
{"final_message": "done"}
</parameters>
</tool_call>`

type testServer struct {
	server     *Server
	projects   *services.ProjectService
	schedules  *services.ScheduleService
	executions *services.ExecutionService
	runs       *run.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	client, err := database.NewClient(ctx, database.Config{Path: filepath.Join(dir, "skein.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	projects := services.NewProjectService(client.DB(), filepath.Join(dir, "user"))
	require.NoError(t, projects.EnsureDefaultProject(ctx))
	executions := services.NewExecutionService(client.DB())
	schedules := services.NewScheduleService(client.DB())

	registry, err := tools.NewRegistry(tools.BuiltinTools()...)
	require.NoError(t, err)

	manager := run.NewManager(executions)
	orc := orchestrator.New(orchestrator.Deps{
		LLM:           llm.NewMockClient(endSessionDone),
		Model:         "mock",
		Tools:         registry,
		Projects:      projects,
		Executions:    executions,
		LogsDir:       filepath.Join(dir, "logs"),
		OnRunStarted:  manager.Track,
		OnRunFinished: manager.Untrack,
	})
	manager.SetOrchestrator(orc)

	server := NewServer(client, projects, schedules, executions, registry, manager, nil)
	return &testServer{
		server:     server,
		projects:   projects,
		schedules:  schedules,
		executions: executions,
		runs:       manager,
	}
}

// saveAgent writes an agent definition into the default project.
func (ts *testServer) saveAgent(t *testing.T, name, prompt string) {
	t.Helper()
	agentDir := filepath.Join(ts.projects.ProjectPath(services.DefaultProjectDir), "agents", name)
	require.NoError(t, os.MkdirAll(agentDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, "system_prompt.txt"), []byte(prompt), 0o644))
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthHandler(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[HealthResponse](t, rec)
	require.Equal(t, healthStatusHealthy, resp.Status)
	require.Equal(t, 0, resp.ActiveRuns)
	require.Equal(t, healthStatusHealthy, resp.Checks["database"].Status)
}

func TestWSHandlerWithoutManager(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/ws", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

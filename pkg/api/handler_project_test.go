package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skein-ai/skein/pkg/models"
)

func TestProjectLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/projects", CreateProjectRequest{ProjectName: "Incident Response"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[models.Project](t, rec)
	require.Equal(t, "Incident Response", created.ProjectName)
	require.Equal(t, "incident_response", created.ProjectDir)

	rec = ts.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	projects := decodeJSON[[]models.Project](t, rec)
	dirs := make([]string, 0, len(projects))
	for _, p := range projects {
		dirs = append(dirs, p.ProjectDir)
	}
	require.Contains(t, dirs, "default")
	require.Contains(t, dirs, "incident_response")

	rec = ts.do(t, http.MethodDelete, "/api/projects/incident_response", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/projects/incident_response", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateProjectRejectsEmptyName(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/projects", CreateProjectRequest{ProjectName: "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteDefaultProjectProtected(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodDelete, "/api/projects/default", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCloneProject(t *testing.T) {
	ts := newTestServer(t)
	ts.saveAgent(t, "scout", "You scout.")

	rec := ts.do(t, http.MethodPost, "/api/projects/clone", CloneProjectRequest{
		SourceDir:   "default",
		ProjectName: "Default Copy",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	clone := decodeJSON[models.Project](t, rec)

	// The cloned project carries the source's agents.
	rec = ts.do(t, http.MethodGet, "/api/agents?project="+clone.ProjectDir, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	agents := decodeJSON[[]AgentSummary](t, rec)
	require.Len(t, agents, 1)
	require.Equal(t, "scout", agents[0].Name)
}

func TestCloneProjectUnknownSource(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/projects/clone", CloneProjectRequest{
		SourceDir:   "nope",
		ProjectName: "Copy",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
